// Command nosleep runs the lock countdown agent and talks to it.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"nosleep/internal/client"
	"nosleep/internal/logging"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var version = "dev"

const defaultAgentURL = "http://127.0.0.1:8765"

// remoteOptions are shared by every command that calls a running agent
type remoteOptions struct {
	URL     string
	APIKey  string
	Verbose bool

	v *viper.Viper
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	ro := &remoteOptions{v: viper.New()}

	topLevel := &cobra.Command{
		Use:           "nosleep",
		Short:         "Lock the device when a countdown runs out",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	topLevel.PersistentFlags().StringVar(&ro.URL, "url", defaultAgentURL,
		"Agent control API address. Env: NOSLEEP_URL.")
	topLevel.PersistentFlags().StringVar(&ro.APIKey, "api-key", "",
		"Agent API key. Env: NOSLEEP_API_KEY.")
	topLevel.PersistentFlags().BoolVarP(&ro.Verbose, "verbose", "v", false,
		"Log client requests to stderr.")

	ro.v.SetEnvPrefix("NOSLEEP")
	ro.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	ro.v.AutomaticEnv()
	_ = ro.v.BindPFlag("url", topLevel.PersistentFlags().Lookup("url"))
	_ = ro.v.BindPFlag("api-key", topLevel.PersistentFlags().Lookup("api-key"))

	addRun(topLevel)
	addLock(topLevel, ro)
	addSchedule(topLevel, ro)
	addCancel(topLevel, ro)
	addStatus(topLevel, ro)
	addGrant(topLevel, ro)
	addLogs(topLevel, ro)

	return topLevel
}

// client builds an API client from flags, falling back to the environment
func (o *remoteOptions) client(errOut io.Writer) *client.Client {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	logger := logging.NewLogger(logging.LoggerConfig{
		Format: "text",
		Level:  level,
		Output: errOut,
	})
	return client.New(o.v.GetString("url"), o.v.GetString("api-key"), logger)
}
