//go:build darwin

package platform

import (
	"context"
	"log/slog"
)

// DarwinPlatform implements the lock capabilities for macOS (for debugging purposes).
// It logs actions instead of performing actual workstation control.
type DarwinPlatform struct {
	logs   chan string
	logger *slog.Logger
}

// NewDarwinPlatform creates a new macOS platform implementation
func NewDarwinPlatform(logger *slog.Logger) *DarwinPlatform {
	return &DarwinPlatform{
		logs:   make(chan string, 64),
		logger: logger.With("component", "platform-darwin"),
	}
}

// Capabilities exposes what this platform can do
func (p *DarwinPlatform) Capabilities() Capabilities {
	return Capabilities{
		Admin: p,
		Lock:  p,
		Toast: p,
		Logs:  p.logs,
	}
}

func (p *DarwinPlatform) emitLog(message string) {
	select {
	case p.logs <- message:
	default:
	}
}

// IsAdminActive always reports active in debug mode
func (p *DarwinPlatform) IsAdminActive(ctx context.Context) (bool, error) {
	p.emitLog("isAdminActive: active (debug)")
	return true, nil
}

// LockNow logs a lock action for debugging purposes
func (p *DarwinPlatform) LockNow(ctx context.Context) error {
	p.logger.Warn("LOCK_NOW",
		"action", "lock",
		"platform", "darwin",
		"note", "debug mode - no actual lock performed",
	)
	p.emitLog("lockNow: device locked successfully (debug)")
	return nil
}

// ShowToast logs a warning notification for debugging purposes
func (p *DarwinPlatform) ShowToast(ctx context.Context, message string, style ToastStyle) error {
	p.logger.Warn("LOCK_WARNING",
		"action", "warn",
		"platform", "darwin",
		"style", style.String(),
		"message", message,
		"note", "debug mode - no notification shown",
	)
	return nil
}

// New creates the capability set for the current OS
func New(logger *slog.Logger) Capabilities {
	return NewDarwinPlatform(logger).Capabilities()
}

var (
	_ AdminStatus = (*DarwinPlatform)(nil)
	_ Locker      = (*DarwinPlatform)(nil)
	_ Toaster     = (*DarwinPlatform)(nil)
)
