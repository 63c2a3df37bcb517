package lockctl

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"nosleep/internal/platform"
)

// warner shows the pre-lock warning. With the overlay permission it draws over
// other apps; without it, or if the overlay fails, it falls back to a
// transient toast.
type warner struct {
	toaster platform.Toaster
	overlay *PermissionGate
	logger  *slog.Logger
}

func newWarner(caps platform.Capabilities, overlay *PermissionGate, logger *slog.Logger) *warner {
	w := &warner{
		overlay: overlay,
		logger:  logger.With("component", "warning"),
	}
	if caps.Has(platform.CapToast) {
		w.toaster = caps.Toast
	}
	return w
}

func warningMessage(remaining time.Duration) string {
	minutes := int((remaining + time.Minute - 1) / time.Minute)
	if minutes <= 1 {
		return "Device locks in less than 1 minute"
	}
	return fmt.Sprintf("Device locks in %d minutes", minutes)
}

func (w *warner) warn(ctx context.Context, state ScheduleState) {
	message := warningMessage(state.Remaining)
	if w.toaster == nil {
		w.logger.Warn("toast capability missing, warning only logged", "message", message)
		return
	}

	style := platform.ToastTransient
	if w.overlay.Granted() {
		style = platform.ToastOverlay
	}

	err := w.toaster.ShowToast(ctx, message, style)
	if err != nil && style == platform.ToastOverlay {
		w.logger.Warn("overlay warning failed, falling back to transient toast", "error", err)
		err = w.toaster.ShowToast(ctx, message, platform.ToastTransient)
	}
	if err != nil {
		w.logger.Error("failed to show warning", "error", err)
	}
}
