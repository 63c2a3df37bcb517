package lockctl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nosleep/internal/clock"
	"nosleep/internal/platform"
)

// DefaultRecheckDelay is how long an asynchronous grant flow gets before the
// gate re-checks the platform state
const DefaultRecheckDelay = 500 * time.Millisecond

// PermissionState is the last known grant state of a capability
type PermissionState struct {
	Granted bool `json:"granted"`
}

// probeFunc queries the platform; promptFunc starts the grant flow
type (
	probeFunc  func(ctx context.Context) (bool, error)
	promptFunc func(ctx context.Context) (bool, error)
)

// PermissionGate tracks one privileged capability. Checks fail closed: any
// error or missing capability reads as not granted.
type PermissionGate struct {
	name         string
	probe        probeFunc  // nil when the status capability is absent
	prompt       promptFunc // nil when the request capability is absent
	clock        clock.Clock
	recheckDelay time.Duration
	logger       *slog.Logger
	onChange     func(name string, granted bool)

	mu       sync.Mutex
	granted  bool
	prompted bool // an automatic prompt already ran in the current not-granted streak
	pending  bool // a prompt is waiting for its delayed re-check
	recheck  clock.Timer
	closed   bool
}

// NewPermissionGate creates the gate for the device admin capability
func NewPermissionGate(caps platform.Capabilities, clk clock.Clock, recheckDelay time.Duration, logger *slog.Logger) *PermissionGate {
	g := newGate("admin", clk, recheckDelay, logger)
	if caps.Has(platform.CapAdminStatus) {
		g.probe = caps.Admin.IsAdminActive
	}
	if caps.Has(platform.CapAdminRequest) {
		g.prompt = caps.AdminRequest.RequestAdminPermission
	}
	return g
}

// NewOverlayPermissionGate creates the gate for the draw-over-other-apps
// capability. Its request flow never reports a synchronous grant.
func NewOverlayPermissionGate(caps platform.Capabilities, clk clock.Clock, recheckDelay time.Duration, logger *slog.Logger) *PermissionGate {
	g := newGate("overlay", clk, recheckDelay, logger)
	if caps.Has(platform.CapOverlayStatus) {
		g.probe = caps.Overlay.CanDrawOverlays
	}
	if caps.Has(platform.CapOverlayRequest) {
		requester := caps.OverlayRequest
		g.prompt = func(ctx context.Context) (bool, error) {
			return false, requester.RequestOverlayPermission(ctx)
		}
	}
	return g
}

func newGate(name string, clk clock.Clock, recheckDelay time.Duration, logger *slog.Logger) *PermissionGate {
	if recheckDelay <= 0 {
		recheckDelay = DefaultRecheckDelay
	}
	return &PermissionGate{
		name:         name,
		clock:        clk,
		recheckDelay: recheckDelay,
		logger:       logger.With("component", "permission-gate", "permission", name),
	}
}

// Name returns the capability this gate tracks
func (g *PermissionGate) Name() string {
	return g.name
}

// State returns the current permission state
func (g *PermissionGate) State() PermissionState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return PermissionState{Granted: g.granted}
}

// Granted reports the current grant state
func (g *PermissionGate) Granted() bool {
	return g.State().Granted
}

// Check queries the platform and records the result. It never fails: platform
// errors and a missing capability both read as not granted.
func (g *PermissionGate) Check(ctx context.Context) bool {
	if g.probe == nil {
		g.logger.Debug("check -> fallback INACTIVE (capability absent)")
		g.setGranted(false)
		return false
	}

	granted, err := g.probe(ctx)
	if err != nil {
		g.logger.Warn("check failed, treating as not granted", "error", err)
		g.setGranted(false)
		return false
	}

	if granted {
		g.logger.Debug("check -> ACTIVE")
	} else {
		g.logger.Debug("check -> INACTIVE")
	}
	g.setGranted(granted)
	return granted
}

// Request starts the interactive grant flow. A synchronous grant returns true.
// Otherwise the flow continues outside the process: Request returns false and
// a single re-check runs after the re-check delay to reconcile the state.
func (g *PermissionGate) Request(ctx context.Context) (bool, error) {
	if g.prompt == nil {
		g.clearPending()
		return false, ErrCapabilityUnavailable
	}

	granted, err := g.prompt(ctx)
	if err != nil {
		g.logger.Error("request failed", "error", err)
		g.clearPending()
		return false, &PlatformFailure{
			Message: fmt.Sprintf("failed to open %s permission settings: %v", g.name, err),
			Err:     err,
		}
	}

	if granted {
		g.logger.Info("request -> granted")
		g.clearPending()
		g.setGranted(true)
		return true, nil
	}

	g.logger.Info("request -> launched settings (waiting for result)", "recheck_in", g.recheckDelay)
	g.scheduleRecheck(context.WithoutCancel(ctx))
	return false, nil
}

// Prompt runs the automatic grant flow. It does nothing while the capability
// is granted or while an earlier prompt waits for its re-check. With once set
// it prompts at most once per not-granted streak. It reports whether the flow
// was started.
func (g *PermissionGate) Prompt(ctx context.Context, once bool) bool {
	g.mu.Lock()
	if g.granted || g.pending || g.closed || (once && g.prompted) {
		g.mu.Unlock()
		return false
	}
	g.prompted = true
	g.pending = true
	g.mu.Unlock()

	g.logger.Info("not granted -> prompting user")
	if _, err := g.Request(ctx); err != nil {
		g.logger.Warn("automatic prompt failed", "error", err)
	}
	return true
}

// markGranted records a grant proven by a successful privileged action
func (g *PermissionGate) markGranted() {
	g.setGranted(true)
}

func (g *PermissionGate) scheduleRecheck(ctx context.Context) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		g.pending = false
		return
	}
	if g.recheck != nil {
		g.recheck.Stop()
	}
	g.pending = true
	g.recheck = g.clock.AfterFunc(g.recheckDelay, func() {
		g.mu.Lock()
		g.recheck = nil
		g.pending = false
		closed := g.closed
		g.mu.Unlock()
		if closed {
			return
		}
		g.logger.Debug("delayed re-check")
		g.Check(ctx)
	})
}

func (g *PermissionGate) clearPending() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pending = false
}

func (g *PermissionGate) setGranted(granted bool) {
	g.mu.Lock()
	changed := g.granted != granted
	g.granted = granted
	if granted {
		// the not-granted streak is over
		g.prompted = false
	}
	onChange := g.onChange
	g.mu.Unlock()

	if changed {
		g.logger.Info("permission state changed", "granted", granted)
		if onChange != nil {
			onChange(g.name, granted)
		}
	}
}

// Close cancels any pending re-check
func (g *PermissionGate) Close() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	g.pending = false
	if g.recheck != nil {
		g.recheck.Stop()
		g.recheck = nil
	}
}
