//go:build windows

package platform

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/windows"
)

var (
	user32          = windows.NewLazySystemDLL("user32.dll")
	lockWorkStation = user32.NewProc("LockWorkStation")
	messageBeep     = user32.NewProc("MessageBeep")
)

const mbIconExclamation = 0x00000030

// ErrLockFailed is returned when user32 refuses to lock the workstation
var ErrLockFailed = errors.New("LockWorkStation failed")

// WindowsPlatform implements the lock capabilities for Windows
type WindowsPlatform struct {
	logs   chan string
	logger *slog.Logger
}

// NewWindowsPlatform creates a new Windows platform implementation
func NewWindowsPlatform(logger *slog.Logger) *WindowsPlatform {
	return &WindowsPlatform{
		logs:   make(chan string, 64),
		logger: logger.With("component", "platform"),
	}
}

// Capabilities exposes what this platform can do. There is no overlay surface
// and no interactive grant flow.
func (p *WindowsPlatform) Capabilities() Capabilities {
	return Capabilities{
		Admin: p,
		Lock:  p,
		Toast: p,
		Logs:  p.logs,
	}
}

func (p *WindowsPlatform) emitLog(message string) {
	p.logger.Debug(message)
	select {
	case p.logs <- message:
	default:
	}
}

// IsAdminActive reports whether the process runs in an interactive session.
// Services in session 0 cannot lock the user's workstation.
func (p *WindowsPlatform) IsAdminActive(ctx context.Context) (bool, error) {
	var sessionID uint32
	if err := windows.ProcessIdToSessionId(windows.GetCurrentProcessId(), &sessionID); err != nil {
		p.emitLog("isAdminActive: error - " + err.Error())
		return false, fmt.Errorf("%w: %v", ErrServiceUnavailable, err)
	}
	active := sessionID != 0
	if active {
		p.emitLog("isAdminActive: active")
	} else {
		p.emitLog("isAdminActive: inactive (session 0)")
	}
	return active, nil
}

// LockNow locks the Windows workstation using user32.dll
func (p *WindowsPlatform) LockNow(ctx context.Context) error {
	active, err := p.IsAdminActive(ctx)
	if err != nil {
		return err
	}
	if !active {
		return fmt.Errorf("%w: not running in an interactive session", ErrAdminNotActive)
	}

	ret, _, callErr := lockWorkStation.Call()
	if ret == 0 {
		// LockWorkStation returns 0 on failure
		p.emitLog("lockNow: LockWorkStation failed - " + callErr.Error())
		return fmt.Errorf("%w: %v", ErrLockFailed, callErr)
	}

	p.emitLog("lockNow: device locked successfully")
	return nil
}

// ShowToast plays the exclamation sound and logs the message. Native toasts
// need a registered AppUserModelID, which the agent does not have.
func (p *WindowsPlatform) ShowToast(ctx context.Context, message string, style ToastStyle) error {
	if ret, _, callErr := messageBeep.Call(uintptr(mbIconExclamation)); ret == 0 {
		p.logger.Debug("MessageBeep failed", "error", callErr)
	}
	p.logger.Warn("lock warning",
		"message", message,
		"style", style.String(),
	)
	p.emitLog("showToast (fallback): " + message)
	return nil
}

// New creates the capability set for the current OS
func New(logger *slog.Logger) Capabilities {
	return NewWindowsPlatform(logger).Capabilities()
}

var (
	_ AdminStatus = (*WindowsPlatform)(nil)
	_ Locker      = (*WindowsPlatform)(nil)
	_ Toaster     = (*WindowsPlatform)(nil)
)
