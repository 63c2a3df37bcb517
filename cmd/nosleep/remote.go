package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"nosleep/internal/client"
	"nosleep/internal/lockctl"
	"strings"

	"github.com/spf13/cobra"
)

func addLock(topLevel *cobra.Command, ro *remoteOptions) {
	cmd := &cobra.Command{
		Use:   "lock",
		Short: "Lock the device now",
		Long:  "Lock the device now. A running countdown is cancelled first.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ro.client(cmd.ErrOrStderr())
			if err := c.LockNow(cmd.Context()); err != nil {
				return explain(err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Device locked.")
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

// ScheduleOptions selects the countdown length
type ScheduleOptions struct {
	Hours   int
	Minutes int
}

func addSchedule(topLevel *cobra.Command, ro *remoteOptions) {
	so := &ScheduleOptions{}

	cmd := &cobra.Command{
		Use:   "schedule [duration]",
		Short: "Start a lock countdown",
		Long: `Start a lock countdown. A running countdown is replaced.

The duration is a Go duration in whole minutes or H:MM clock notation.
Without an argument, --hours and --minutes are used.`,
		Example: `
nosleep schedule 1h30m
nosleep schedule 0:45
nosleep schedule --hours 2
`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			selection, err := so.selection(args)
			if err != nil {
				return err
			}

			c := ro.client(cmd.ErrOrStderr())
			schedule, err := c.Schedule(cmd.Context(), selection)
			if err != nil {
				return explain(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Lock scheduled in %s (%s).\n", schedule.Remaining, schedule.ID)
			return nil
		},
	}

	cmd.Flags().IntVar(&so.Hours, "hours", 0, "Countdown hours.")
	cmd.Flags().IntVar(&so.Minutes, "minutes", 0, "Countdown minutes.")

	topLevel.AddCommand(cmd)
}

func (o *ScheduleOptions) selection(args []string) (lockctl.SelectedDuration, error) {
	if len(args) == 1 {
		if o.Hours != 0 || o.Minutes != 0 {
			return lockctl.SelectedDuration{}, errors.New("give either a duration argument or --hours/--minutes, not both")
		}
		return lockctl.ParseSelectedDuration(args[0])
	}
	selection := lockctl.SelectedDuration{Hours: o.Hours, Minutes: o.Minutes}
	if err := selection.Validate(); err != nil {
		return lockctl.SelectedDuration{}, err
	}
	return selection, nil
}

func addCancel(topLevel *cobra.Command, ro *remoteOptions) {
	cmd := &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the running countdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ro.client(cmd.ErrOrStderr())
			cancelled, err := c.Cancel(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if cancelled {
				fmt.Fprintln(cmd.OutOrStdout(), "Countdown cancelled.")
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No countdown running.")
			}
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

func addStatus(topLevel *cobra.Command, ro *remoteOptions) {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the agent state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ro.client(cmd.ErrOrStderr())
			state, err := c.State(cmd.Context())
			if err != nil {
				return explain(err)
			}
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(state)
			}
			printState(cmd.OutOrStdout(), state)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the raw state as JSON.")

	topLevel.AddCommand(cmd)
}

func printState(w io.Writer, state *client.State) {
	switch state.Schedule.Status {
	case "running":
		fmt.Fprintf(w, "Countdown:    %s remaining", state.Schedule.Remaining)
		if state.Schedule.Warned {
			fmt.Fprint(w, " (warned)")
		}
		fmt.Fprintln(w)
	default:
		fmt.Fprintln(w, "Countdown:    idle")
	}
	fmt.Fprintf(w, "Selected:     %s\n", state.SelectedText)
	fmt.Fprintf(w, "Admin:        %s\n", grantedText(state.Admin))
	fmt.Fprintf(w, "Overlay:      %s\n", grantedText(state.Overlay))
	if !state.LockAvailable {
		fmt.Fprintln(w, "Lock:         unavailable on this device")
	}
	if len(state.Capabilities) > 0 {
		fmt.Fprintf(w, "Capabilities: %s\n", strings.Join(state.Capabilities, ", "))
	}
	if state.LastLockError != "" {
		fmt.Fprintf(w, "Last error:   %s\n", state.LastLockError)
	}
}

func grantedText(p lockctl.PermissionState) string {
	if p.Granted {
		return "granted"
	}
	return "not granted"
}

func addGrant(topLevel *cobra.Command, ro *remoteOptions) {
	cmd := &cobra.Command{
		Use:       "grant admin|overlay",
		Short:     "Ask the device to grant a permission",
		ValidArgs: []string{"admin", "overlay"},
		Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ro.client(cmd.ErrOrStderr())

			var result *client.PermissionResult
			var err error
			switch args[0] {
			case "admin":
				result, err = c.RequestAdmin(cmd.Context())
			case "overlay":
				result, err = c.RequestOverlay(cmd.Context())
			}
			if err != nil {
				return explain(err)
			}

			switch {
			case result.Granted:
				fmt.Fprintf(cmd.OutOrStdout(), "%s permission granted.\n", args[0])
			case result.Pending:
				fmt.Fprintf(cmd.OutOrStdout(), "%s permission requested. Confirm it on the device, then run 'nosleep status'.\n", args[0])
			default:
				fmt.Fprintf(cmd.OutOrStdout(), "%s permission not granted.\n", args[0])
			}
			return nil
		},
	}
	topLevel.AddCommand(cmd)
}

// LogsOptions selects what the logs command prints
type LogsOptions struct {
	Clear  bool
	Events bool
	Kind   string
	Limit  int
}

func addLogs(topLevel *cobra.Command, ro *remoteOptions) {
	lo := &LogsOptions{}

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show the agent debug log or lock journal",
		Example: `
nosleep logs
nosleep logs --clear
nosleep logs --events --kind lock_failed --limit 10
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c := ro.client(cmd.ErrOrStderr())
			out := cmd.OutOrStdout()

			switch {
			case lo.Clear:
				if err := c.ClearLogs(cmd.Context()); err != nil {
					return explain(err)
				}
				fmt.Fprintln(out, "Debug log cleared.")

			case lo.Events:
				events, err := c.Events(cmd.Context(), lo.Kind, lo.Limit)
				if err != nil {
					return explain(err)
				}
				if len(events) == 0 {
					fmt.Fprintln(out, "No events.")
				}
				for _, e := range events {
					line := fmt.Sprintf("%s  %-18s", e.CreatedAt.Format("2006-01-02 15:04:05"), e.Kind)
					if e.Remaining != "" {
						line += " " + e.Remaining
					}
					if e.Detail != "" {
						line += " " + e.Detail
					}
					fmt.Fprintln(out, strings.TrimRight(line, " "))
				}

			default:
				lines, err := c.Logs(cmd.Context())
				if err != nil {
					return explain(err)
				}
				if len(lines) == 0 {
					fmt.Fprintln(out, "No logs yet.")
				}
				for _, line := range lines {
					fmt.Fprintln(out, line)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&lo.Clear, "clear", false, "Clear the debug log.")
	cmd.Flags().BoolVar(&lo.Events, "events", false, "Show the lock journal instead of the debug log.")
	cmd.Flags().StringVar(&lo.Kind, "kind", "", "Only show journal events of this kind.")
	cmd.Flags().IntVar(&lo.Limit, "limit", 0, "Maximum number of journal events.")
	cmd.MarkFlagsMutuallyExclusive("clear", "events")

	topLevel.AddCommand(cmd)
}

// explain adds a next step to errors the user can act on
func explain(err error) error {
	switch {
	case errors.Is(err, lockctl.ErrPermissionNotActive):
		return fmt.Errorf("%w\nrun 'nosleep grant admin' and confirm on the device", err)
	case errors.Is(err, client.ErrUnauthorized):
		return fmt.Errorf("%w\nset --api-key or NOSLEEP_API_KEY", err)
	}
	return err
}
