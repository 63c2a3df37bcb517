package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"nosleep/config"
	"nosleep/internal/api"
	"nosleep/internal/clock"
	"nosleep/internal/lifecycle"
	"nosleep/internal/lockctl"
	"nosleep/internal/logging"
	"nosleep/internal/platform"
	"nosleep/internal/storage"
	"nosleep/internal/storage/sqlite"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

// RunOptions configures the agent process
type RunOptions struct {
	ConfigPath string
	Simulate   bool
	Schedule   string
}

func addRun(topLevel *cobra.Command) {
	o := &RunOptions{}

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the lock agent",
		Long: `Run the lock agent in the foreground.

The agent owns the countdown, the permission gates and the control API.
Without --config, settings come from NOSLEEP_* environment variables.`,
		Example: `
nosleep run --config /etc/nosleep/config.json
nosleep run --simulate --schedule 25m
`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runAgent(ctx, o, cmd.ErrOrStderr())
		},
	}

	cmd.Flags().StringVarP(&o.ConfigPath, "config", "c", "",
		"Path to a JSON configuration file.")
	cmd.Flags().BoolVar(&o.Simulate, "simulate", false,
		"Use an in-memory device instead of the host platform.")
	cmd.Flags().StringVar(&o.Schedule, "schedule", "",
		"Start a countdown right away, e.g. 1h30m or 0:45.")

	topLevel.AddCommand(cmd)
}

func runAgent(ctx context.Context, o *RunOptions, stderr io.Writer) error {
	cfg, err := loadConfig(o.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if o.Simulate {
		cfg.Simulate = true
	}

	var initial lockctl.SelectedDuration
	if o.Schedule != "" {
		if initial, err = lockctl.ParseSelectedDuration(o.Schedule); err != nil {
			return err
		}
	}

	output := stderr
	if cfg.Logging.Path != "" {
		logFile, err := logging.OpenLogFile(cfg.Logging.Path)
		if err != nil {
			return err
		}
		defer logFile.Close()
		output = io.MultiWriter(stderr, logFile)
	}

	debugLog := logging.NewDebugLog(logging.DefaultDebugLogSize)
	logger := logging.NewLogger(logging.LoggerConfig{
		Format:   cfg.Logging.Format,
		Level:    logging.ParseLevel(cfg.Logging.Level),
		Output:   output,
		DebugLog: debugLog,
	})

	logger.Info("Starting nosleep agent", "version", version, "simulate", cfg.Simulate)

	caps := openPlatform(cfg, logger)
	defer caps.Close()

	var recorder lockctl.EventRecorder
	var journal storage.Journal
	if cfg.Journal.Path != "" {
		db, err := openJournal(ctx, cfg.Journal, logger)
		if err != nil {
			return err
		}
		defer db.Close()
		recorder, journal = db, db
	}

	lifecycleEvents := lifecycle.NewBroadcaster()
	go lifecycle.WatchSignals(ctx, lifecycleEvents)

	controller := lockctl.New(caps, clock.RealClock{}, lifecycleEvents, recorder, cfg.LockOptions(), logger)
	defer controller.Close()

	controller.Bootstrap(ctx)

	if o.Schedule != "" {
		if err := controller.SetSelected(initial); err != nil {
			return err
		}
		if _, err := controller.ScheduleSelected(ctx); err != nil {
			logger.Error("Failed to start initial countdown", "error", err, "selection", initial.String())
		}
	}

	router := api.NewRouter(api.RouterConfig{
		Controller: logging.NewControllerLogger(controller, logger),
		Journal:    journal,
		DebugLog:   debugLog,
		APIKey:     cfg.API.APIKey,
		Version:    version,
		Logger:     logger,
	})
	if cfg.API.APIKey == "" {
		logger.Warn("API key not set, control API is unauthenticated")
	}

	server := &http.Server{
		Addr:         cfg.API.Address(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Info("Control API listening", "address", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down control API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Graceful shutdown complete")
	return nil
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.LoadFromEnv()
	}
	return config.Load(path)
}

func openPlatform(cfg *config.Config, logger *slog.Logger) platform.Capabilities {
	if cfg.Simulate {
		sim := platform.NewSimulator(platform.SimulatorOptions{
			OverlayAllowed: true,
			AsyncGrant:     true,
		}, logger)
		return sim.Capabilities()
	}
	return platform.New(logger)
}

func openJournal(ctx context.Context, cfg config.JournalConfig, logger *slog.Logger) (*sqlite.SQLiteStorage, error) {
	tz := time.UTC
	if cfg.Timezone != "" {
		loc, err := time.LoadLocation(cfg.Timezone)
		if err != nil {
			return nil, fmt.Errorf("failed to load journal timezone: %w", err)
		}
		tz = loc
	}

	logger.Info("Opening lock journal", "path", cfg.Path)
	db, err := sqlite.New(cfg.Path, tz)
	if err != nil {
		return nil, fmt.Errorf("failed to open journal: %w", err)
	}

	if cfg.Retention > 0 {
		pruned, err := db.PruneEvents(ctx, time.Now().Add(-cfg.Retention))
		if err != nil {
			logger.Warn("Failed to prune journal", "error", err)
		} else if pruned > 0 {
			logger.Info("Pruned journal", "events", pruned, "retention", cfg.Retention)
		}
	}
	return db, nil
}
