package logging

import (
	"context"
	"log/slog"
	"nosleep/internal/lockctl"
	"time"
)

// ControllerLogger wraps a lock controller and logs all user-facing calls
type ControllerLogger struct {
	controller lockctl.Service
	logger     *slog.Logger
}

// NewControllerLogger creates a new logging decorator for the lock controller
func NewControllerLogger(controller lockctl.Service, logger *slog.Logger) lockctl.Service {
	return &ControllerLogger{
		controller: controller,
		logger:     logger.With("interface", "LockController"),
	}
}

func (l *ControllerLogger) Schedule(ctx context.Context, selection lockctl.SelectedDuration) (lockctl.ScheduleState, error) {
	start := time.Now()
	l.logger.Info("Schedule called",
		"selected", selection.String())

	state, err := l.controller.Schedule(ctx, selection)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("Schedule failed",
			"selected", selection.String(),
			"code", lockctl.ErrorCode(err),
			"duration", duration,
			"error", err)
		return state, err
	}

	l.logger.Info("Schedule completed",
		"selected", selection.String(),
		"schedule_id", state.ID,
		"deadline", state.Deadline,
		"duration", duration)

	return state, nil
}

func (l *ControllerLogger) Cancel(ctx context.Context) bool {
	start := time.Now()
	l.logger.Info("Cancel called")

	cancelled := l.controller.Cancel(ctx)

	l.logger.Info("Cancel completed",
		"cancelled", cancelled,
		"duration", time.Since(start))

	return cancelled
}

func (l *ControllerLogger) LockNow(ctx context.Context) error {
	start := time.Now()
	l.logger.Info("LockNow called")

	err := l.controller.LockNow(ctx)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error("LockNow failed",
			"code", lockctl.ErrorCode(err),
			"duration", duration,
			"error", err)
		return err
	}

	l.logger.Info("LockNow completed",
		"duration", duration)

	return nil
}

func (l *ControllerLogger) RequestAdmin(ctx context.Context) (bool, error) {
	return l.request(ctx, "RequestAdmin", l.controller.RequestAdmin)
}

func (l *ControllerLogger) RequestOverlay(ctx context.Context) (bool, error) {
	return l.request(ctx, "RequestOverlay", l.controller.RequestOverlay)
}

func (l *ControllerLogger) request(ctx context.Context, name string, fn func(context.Context) (bool, error)) (bool, error) {
	start := time.Now()
	l.logger.Info(name + " called")

	granted, err := fn(ctx)
	duration := time.Since(start)

	if err != nil {
		l.logger.Error(name+" failed",
			"code", lockctl.ErrorCode(err),
			"duration", duration,
			"error", err)
		return false, err
	}

	l.logger.Info(name+" completed",
		"granted", granted,
		"duration", duration)

	return granted, nil
}

func (l *ControllerLogger) Snapshot(ctx context.Context) lockctl.Snapshot {
	l.logger.Debug("Snapshot called")
	snap := l.controller.Snapshot(ctx)
	l.logger.Debug("Snapshot completed",
		"status", snap.Schedule.Status,
		"admin_granted", snap.Admin.Granted)
	return snap
}
