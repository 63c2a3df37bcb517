package lockctl

import (
	"context"
	"log/slog"
	"sync"

	"nosleep/internal/lifecycle"
)

// AppLifecycleObserver re-checks both permission gates whenever the host
// returns to the foreground. The subscription lives until Close.
type AppLifecycleObserver struct {
	admin   *PermissionGate
	overlay *PermissionGate
	// promptOnResume additionally re-runs the admin prompt while it stays denied
	promptOnResume bool
	logger         *slog.Logger

	unsubscribe func()
	closeOnce   sync.Once
}

// NewAppLifecycleObserver subscribes to source. A nil source observes nothing.
func NewAppLifecycleObserver(source lifecycle.Source, admin, overlay *PermissionGate, promptOnResume bool, logger *slog.Logger) *AppLifecycleObserver {
	o := &AppLifecycleObserver{
		admin:          admin,
		overlay:        overlay,
		promptOnResume: promptOnResume,
		logger:         logger.With("component", "lifecycle"),
	}
	if source != nil {
		o.unsubscribe = source.Subscribe(o.handle)
	}
	return o
}

func (o *AppLifecycleObserver) handle(t lifecycle.Transition) {
	if t != lifecycle.Foreground {
		o.logger.Debug("host moved to background")
		return
	}

	ctx := context.Background()
	o.logger.Info("host active, refreshing permission state")
	adminGranted := o.admin.Check(ctx)
	o.overlay.Check(ctx)

	if !adminGranted && o.promptOnResume {
		o.admin.Prompt(ctx, false)
	}
}

// Close releases the subscription
func (o *AppLifecycleObserver) Close() {
	o.closeOnce.Do(func() {
		if o.unsubscribe != nil {
			o.unsubscribe()
		}
	})
}
