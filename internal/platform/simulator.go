package platform

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// SimulatorOptions configures a Simulator
type SimulatorOptions struct {
	AdminActive    bool
	OverlayAllowed bool
	// AsyncGrant makes RequestAdminPermission behave like a settings screen:
	// it returns false and the grant lands after GrantDelay.
	AsyncGrant bool
	GrantDelay time.Duration
}

// Simulator is an in-memory device with every capability present.
// It backs the agent's --simulate mode and integration tests.
type Simulator struct {
	mu             sync.Mutex
	adminActive    bool
	overlayAllowed bool
	asyncGrant     bool
	grantDelay     time.Duration
	lockErr        error
	locks          int
	adminRequests  int
	toasts         []string
	logs           chan string
	logger         *slog.Logger
}

// NewSimulator creates a simulated device
func NewSimulator(opts SimulatorOptions, logger *slog.Logger) *Simulator {
	if opts.GrantDelay <= 0 {
		opts.GrantDelay = 2 * time.Second
	}
	return &Simulator{
		adminActive:    opts.AdminActive,
		overlayAllowed: opts.OverlayAllowed,
		asyncGrant:     opts.AsyncGrant,
		grantDelay:     opts.GrantDelay,
		logs:           make(chan string, 64),
		logger:         logger.With("component", "platform-simulator"),
	}
}

// Capabilities exposes every capability of the simulated device
func (s *Simulator) Capabilities() Capabilities {
	return Capabilities{
		Admin:          s,
		AdminRequest:   s,
		Lock:           s,
		Overlay:        s,
		OverlayRequest: s,
		Toast:          s,
		Logs:           s.logs,
	}
}

func (s *Simulator) emitLog(message string) {
	s.logger.Debug(message)
	select {
	case s.logs <- message:
	default:
	}
}

// IsAdminActive reports the simulated admin state
func (s *Simulator) IsAdminActive(ctx context.Context) (bool, error) {
	s.mu.Lock()
	active := s.adminActive
	s.mu.Unlock()
	s.emitLog(fmt.Sprintf("isAdminActive: %t", active))
	return active, nil
}

// RequestAdminPermission grants admin immediately or after the grant delay
func (s *Simulator) RequestAdminPermission(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminRequests++

	if s.adminActive {
		s.emitLog("requestAdminPermission: admin already active")
		return true, nil
	}
	if !s.asyncGrant {
		s.adminActive = true
		s.emitLog("requestAdminPermission: granted")
		return true, nil
	}

	s.emitLog("requestAdminPermission: launching device admin settings")
	time.AfterFunc(s.grantDelay, func() {
		s.SetAdminActive(true)
	})
	return false, nil
}

// LockNow records a lock or fails the way a real device would without admin
func (s *Simulator) LockNow(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lockErr != nil {
		s.emitLog("lockNow: " + s.lockErr.Error())
		return s.lockErr
	}
	if !s.adminActive {
		s.emitLog("lockNow: admin not active")
		return fmt.Errorf("%w: enable the app as a device administrator", ErrAdminNotActive)
	}

	s.locks++
	s.emitLog("lockNow: device locked successfully")
	return nil
}

// CanDrawOverlays reports the simulated overlay permission
func (s *Simulator) CanDrawOverlays(ctx context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.overlayAllowed, nil
}

// RequestOverlayPermission "opens settings"; the user grants it right away
func (s *Simulator) RequestOverlayPermission(ctx context.Context) error {
	s.mu.Lock()
	s.overlayAllowed = true
	s.mu.Unlock()
	s.emitLog("requestOverlayPermission: opened settings")
	return nil
}

// ShowToast records the message
func (s *Simulator) ShowToast(ctx context.Context, message string, style ToastStyle) error {
	s.mu.Lock()
	s.toasts = append(s.toasts, message)
	s.mu.Unlock()
	s.emitLog(fmt.Sprintf("showToast (%s): %s", style, message))
	return nil
}

// SetAdminActive changes the simulated admin state
func (s *Simulator) SetAdminActive(active bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.adminActive = active
}

// SetLockError makes subsequent LockNow calls fail with err (nil clears it)
func (s *Simulator) SetLockError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lockErr = err
}

// LockCount returns how many times the device was locked
func (s *Simulator) LockCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locks
}

// AdminRequests returns how many times the grant flow was started
func (s *Simulator) AdminRequests() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.adminRequests
}

// Toasts returns the messages shown so far
func (s *Simulator) Toasts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.toasts))
	copy(out, s.toasts)
	return out
}

var (
	_ AdminStatus      = (*Simulator)(nil)
	_ AdminRequester   = (*Simulator)(nil)
	_ Locker           = (*Simulator)(nil)
	_ OverlayStatus    = (*Simulator)(nil)
	_ OverlayRequester = (*Simulator)(nil)
	_ Toaster          = (*Simulator)(nil)
)
