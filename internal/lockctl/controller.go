// Package lockctl sequences permission checks, the lock countdown and the
// privileged lock action of the nosleep agent.
//
// A Controller owns one PermissionGate per privileged capability, a
// CountdownScheduler holding at most one running schedule, a LockInvoker
// wrapping the platform lock, and an AppLifecycleObserver that refreshes the
// gates whenever the host returns to the foreground. An immediate lock always
// wins over a pending schedule: the schedule is cancelled before the lock runs.
package lockctl

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"nosleep/internal/clock"
	"nosleep/internal/idgen"
	"nosleep/internal/lifecycle"
	"nosleep/internal/platform"
)

// Options configures a Controller
type Options struct {
	TickPeriod       time.Duration
	WarningThreshold time.Duration
	RecheckDelay     time.Duration
	DriftCorrection  bool
	PromptOnResume   bool
	DefaultSelection SelectedDuration
}

// DefaultOptions returns the stock timings: 1s ticks, 1 minute warning, 500ms re-check
func DefaultOptions() Options {
	return Options{
		TickPeriod:       DefaultTickPeriod,
		WarningThreshold: DefaultWarningThreshold,
		RecheckDelay:     DefaultRecheckDelay,
		DefaultSelection: DefaultSelection,
	}
}

// Service is the user-facing surface of the controller
type Service interface {
	Schedule(ctx context.Context, selection SelectedDuration) (ScheduleState, error)
	Cancel(ctx context.Context) bool
	LockNow(ctx context.Context) error
	RequestAdmin(ctx context.Context) (bool, error)
	RequestOverlay(ctx context.Context) (bool, error)
	Snapshot(ctx context.Context) Snapshot
}

// Snapshot is a point-in-time view of the controller
type Snapshot struct {
	Admin           PermissionState  `json:"admin"`
	Overlay         PermissionState  `json:"overlay"`
	Schedule        ScheduleState    `json:"schedule"`
	Selected        SelectedDuration `json:"selected"`
	Capabilities    []string         `json:"capabilities"`
	LockAvailable   bool             `json:"lock_available"`
	BackgroundTicks bool             `json:"background_ticks"`
	LastLockError   string           `json:"last_lock_error,omitempty"`
}

// Controller wires the gates, the countdown and the lock action together
type Controller struct {
	caps      platform.Capabilities
	clock     clock.Clock
	admin     *PermissionGate
	overlay   *PermissionGate
	invoker   *LockInvoker
	scheduler *CountdownScheduler
	observer  *AppLifecycleObserver
	recorder  EventRecorder
	logger    *slog.Logger

	mu            sync.Mutex
	selected      SelectedDuration
	lastLockError error
	closed        bool

	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// New builds a controller and subscribes it to source. Call Bootstrap to run
// the cold-start permission flow and Close to release everything.
func New(caps platform.Capabilities, clk clock.Clock, source lifecycle.Source, recorder EventRecorder, opts Options, logger *slog.Logger) *Controller {
	if recorder == nil {
		recorder = nopRecorder{}
	}
	recorder = stampingRecorder{next: recorder}
	if opts.DefaultSelection.Validate() != nil || opts.DefaultSelection.Duration() <= 0 {
		opts.DefaultSelection = DefaultSelection
	}

	c := &Controller{
		caps:     caps,
		clock:    clk,
		recorder: recorder,
		logger:   logger.With("component", "controller"),
		selected: opts.DefaultSelection,
		done:     make(chan struct{}),
	}

	c.admin = NewPermissionGate(caps, clk, opts.RecheckDelay, logger)
	c.overlay = NewOverlayPermissionGate(caps, clk, opts.RecheckDelay, logger)
	c.admin.onChange = c.recordPermission
	c.overlay.onChange = c.recordPermission

	c.invoker = NewLockInvoker(caps, c.admin, clk, recorder, logger)
	c.scheduler = NewCountdownScheduler(clk, SchedulerOptions{
		TickPeriod:       opts.TickPeriod,
		WarningThreshold: opts.WarningThreshold,
		DriftCorrection:  opts.DriftCorrection,
	}, recorder, logger)

	w := newWarner(caps, c.overlay, logger)
	c.scheduler.onWarning = w.warn
	c.scheduler.onFire = c.fire
	c.invoker.preempt = func() bool {
		return c.scheduler.Cancel(context.Background())
	}

	c.observer = NewAppLifecycleObserver(source, c.admin, c.overlay, opts.PromptOnResume, logger)

	if caps.Logs != nil {
		c.wg.Add(1)
		go c.forwardNativeLogs(caps.Logs)
	}

	if missing := caps.Missing(); len(missing) > 0 {
		c.logger.Warn("platform capabilities missing", "missing", missing)
	}
	return c
}

// Bootstrap runs the cold-start flow: check both gates and, if admin is not
// granted, prompt for it once.
func (c *Controller) Bootstrap(ctx context.Context) {
	active := c.admin.Check(ctx)
	c.overlay.Check(ctx)
	if !active {
		c.logger.Info("initial admin check inactive")
		c.admin.Prompt(ctx, true)
	}
}

// Schedule starts a countdown of selection and keeps it as the selected
// duration. The lock capability is checked before the duration.
func (c *Controller) Schedule(ctx context.Context, selection SelectedDuration) (ScheduleState, error) {
	return c.start(ctx, selection, true)
}

// ScheduleSelected starts a countdown of the currently selected duration
func (c *Controller) ScheduleSelected(ctx context.Context) (ScheduleState, error) {
	return c.start(ctx, c.Selected(), false)
}

func (c *Controller) start(ctx context.Context, selection SelectedDuration, store bool) (ScheduleState, error) {
	if err := c.checkOpen(); err != nil {
		return ScheduleState{}, err
	}
	if !c.invoker.Available() {
		c.logger.Warn("schedule rejected: lock capability missing")
		return c.scheduler.State(), ErrCapabilityUnavailable
	}
	if err := selection.Validate(); err != nil {
		c.logger.Warn("schedule rejected: invalid duration", "selected", selection.String(), "error", err)
		return c.scheduler.State(), err
	}
	if selection.Duration() <= 0 {
		c.logger.Warn("schedule rejected: invalid duration", "selected", selection.String())
		return c.scheduler.State(), ErrInvalidDuration
	}

	state, err := c.scheduler.Start(ctx, selection.Duration())
	if err != nil {
		return state, err
	}
	if store {
		c.mu.Lock()
		c.selected = selection
		c.mu.Unlock()
	}
	c.logger.Debug("schedule started from selection", "selected", selection.String())
	return state, nil
}

// Cancel stops the running countdown, if any
func (c *Controller) Cancel(ctx context.Context) bool {
	return c.scheduler.Cancel(ctx)
}

// LockNow cancels any running countdown and locks immediately
func (c *Controller) LockNow(ctx context.Context) error {
	if err := c.checkOpen(); err != nil {
		return err
	}
	err := c.invoker.LockNow(ctx)
	c.setLastLockError(err)
	return err
}

// RequestAdmin starts the admin grant flow on explicit user request
func (c *Controller) RequestAdmin(ctx context.Context) (bool, error) {
	return c.admin.Request(ctx)
}

// RequestOverlay starts the overlay grant flow on explicit user request
func (c *Controller) RequestOverlay(ctx context.Context) (bool, error) {
	return c.overlay.Request(ctx)
}

// SetSelected replaces the selected duration without starting a countdown
func (c *Controller) SetSelected(selection SelectedDuration) error {
	if err := selection.Validate(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = selection
	return nil
}

// Selected returns the selected duration
func (c *Controller) Selected() SelectedDuration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// OpenPicker lets the user pick a new duration. A dismissed picker keeps the
// current selection.
func (c *Controller) OpenPicker(ctx context.Context, picker DurationPicker) error {
	selected, ok, err := picker.Pick(ctx, c.Selected())
	if err != nil {
		c.logger.Error("error opening time picker", "error", err)
		return fmt.Errorf("failed to open time picker: %w", err)
	}
	if !ok {
		c.logger.Info("time picker dismissed without selection")
		return nil
	}
	if err := c.SetSelected(selected); err != nil {
		return err
	}
	c.logger.Info("time picker selection", "selected", selected.String())
	return nil
}

// Snapshot returns the current controller state
func (c *Controller) Snapshot(ctx context.Context) Snapshot {
	c.mu.Lock()
	selected := c.selected
	lastErr := ErrorCode(c.lastLockError)
	c.mu.Unlock()

	return Snapshot{
		Admin:           c.admin.State(),
		Overlay:         c.overlay.State(),
		Schedule:        c.scheduler.State(),
		Selected:        selected,
		Capabilities:    c.caps.Present(),
		LockAvailable:   c.invoker.Available(),
		BackgroundTicks: c.scheduler.Background(),
		LastLockError:   lastErr,
	}
}

// Close tears the controller down: the lifecycle subscription is released,
// any countdown is cancelled and pending re-checks are dropped.
func (c *Controller) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()

		c.observer.Close()
		c.scheduler.Close()
		c.admin.Close()
		c.overlay.Close()
		close(c.done)
		c.wg.Wait()
		c.logger.Info("controller closed")
	})
}

func (c *Controller) fire(ctx context.Context, state ScheduleState) {
	err := c.invoker.lock(ctx, state.ID)
	c.setLastLockError(err)
	if err != nil {
		c.logger.Error("scheduled lock failed", "schedule_id", state.ID, "code", ErrorCode(err), "error", err)
	}
}

func (c *Controller) checkOpen() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrControllerClosed
	}
	return nil
}

func (c *Controller) setLastLockError(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastLockError = err
}

func (c *Controller) recordPermission(name string, granted bool) {
	state := "revoked"
	if granted {
		state = "granted"
	}
	event := &Event{
		Kind:      EventPermissionChanged,
		Detail:    name + "=" + state,
		CreatedAt: c.clock.Now(),
	}
	if err := c.recorder.RecordEvent(context.Background(), event); err != nil {
		c.logger.Warn("failed to record event", "kind", event.Kind, "error", err)
	}
}

func (c *Controller) forwardNativeLogs(lines <-chan string) {
	defer c.wg.Done()
	native := c.logger.With("source", "native")
	for {
		select {
		case <-c.done:
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			native.Info("[native] " + line)
		}
	}
}

// stampingRecorder assigns IDs to events before they are stored
type stampingRecorder struct {
	next EventRecorder
}

func (r stampingRecorder) RecordEvent(ctx context.Context, event *Event) error {
	if event.ID == "" {
		event.ID = idgen.NewEvent()
	}
	return r.next.RecordEvent(ctx, event)
}

var _ Service = (*Controller)(nil)
