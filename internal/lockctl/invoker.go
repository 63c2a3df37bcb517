package lockctl

import (
	"context"
	"errors"
	"log/slog"

	"nosleep/internal/clock"
	"nosleep/internal/platform"
)

// LockInvoker wraps the privileged lock action
type LockInvoker struct {
	locker   platform.Locker
	gate     *PermissionGate
	clock    clock.Clock
	recorder EventRecorder
	logger   *slog.Logger

	// preempt cancels a running schedule before an immediate lock and
	// reports whether there was one
	preempt func() bool
}

// NewLockInvoker creates an invoker for the platform's lock capability
func NewLockInvoker(caps platform.Capabilities, gate *PermissionGate, clk clock.Clock, recorder EventRecorder, logger *slog.Logger) *LockInvoker {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	l := &LockInvoker{
		gate:     gate,
		clock:    clk,
		recorder: recorder,
		logger:   logger.With("component", "lock-invoker"),
	}
	if caps.Has(platform.CapLock) {
		l.locker = caps.Lock
	}
	return l
}

// Available reports whether the platform can lock at all
func (l *LockInvoker) Available() bool {
	return l.locker != nil
}

// LockNow locks the device immediately. A running schedule is cancelled
// first. Errors are ErrCapabilityUnavailable, a *PermissionError (matching
// ErrPermissionNotActive) or a *PlatformFailure.
func (l *LockInvoker) LockNow(ctx context.Context) error {
	return l.lock(ctx, "")
}

// lock runs the lock action. scheduleID is set when a countdown fired; that
// schedule is already idle and whatever runs now is newer, so it is left alone.
func (l *LockInvoker) lock(ctx context.Context, scheduleID string) error {
	if scheduleID == "" && l.preempt != nil && l.preempt() {
		l.logger.Info("cancelling scheduled lock before execution")
	}

	if l.locker == nil {
		l.logger.Warn("lock capability missing")
		l.record(ctx, EventLockFailed, scheduleID, ErrorCode(ErrCapabilityUnavailable))
		return ErrCapabilityUnavailable
	}

	err := l.locker.LockNow(ctx)
	if err == nil {
		// the platform only locks while admin is active
		l.gate.markGranted()
		l.logger.Info("device locked", "schedule_id", scheduleID)
		l.record(ctx, EventLockSucceeded, scheduleID, "")
		return nil
	}

	var lockErr error
	if errors.Is(err, platform.ErrAdminNotActive) {
		l.logger.Warn("admin not active, grant required", "error", err)
		lockErr = &PermissionError{Cause: err, grant: l.grant}
	} else {
		l.logger.Error("lock failed", "error", err)
		lockErr = &PlatformFailure{Message: err.Error(), Err: err}
	}
	l.record(ctx, EventLockFailed, scheduleID, ErrorCode(lockErr))
	return lockErr
}

// grant is the action offered with a PermissionError
func (l *LockInvoker) grant(ctx context.Context) (bool, error) {
	l.logger.Info("user accepted grant permission")
	l.gate.mu.Lock()
	l.gate.prompted = true
	l.gate.mu.Unlock()
	return l.gate.Request(ctx)
}

func (l *LockInvoker) record(ctx context.Context, kind EventKind, scheduleID, detail string) {
	event := &Event{
		Kind:       kind,
		ScheduleID: scheduleID,
		Detail:     detail,
		CreatedAt:  l.clock.Now(),
	}
	if err := l.recorder.RecordEvent(ctx, event); err != nil {
		l.logger.Warn("failed to record event", "kind", kind, "error", err)
	}
}
