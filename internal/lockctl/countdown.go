package lockctl

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"nosleep/internal/clock"
	"nosleep/internal/idgen"
)

const (
	// DefaultTickPeriod is how often a running countdown advances
	DefaultTickPeriod = time.Second
	// DefaultWarningThreshold is the remaining time at which the warning fires
	DefaultWarningThreshold = time.Minute
)

// Status is the countdown state. Transitions: Idle -> Running -> Fired|Cancelled -> Idle.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusFired
	StatusCancelled
)

func (s Status) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusFired:
		return "fired"
	case StatusCancelled:
		return "cancelled"
	default:
		return "idle"
	}
}

// MarshalText encodes the status by name
func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// ScheduleState describes the single countdown
type ScheduleState struct {
	ID            string        `json:"id,omitempty"`
	TotalDuration time.Duration `json:"total_duration"`
	Remaining     time.Duration `json:"remaining"`
	Status        Status        `json:"status"`
	Warned        bool          `json:"warned"`
	StartedAt     time.Time     `json:"started_at,omitzero"`
	Deadline      time.Time     `json:"deadline,omitzero"`
}

// Running reports whether the countdown is active
func (s ScheduleState) Running() bool {
	return s.Status == StatusRunning
}

// SchedulerOptions tunes the countdown
type SchedulerOptions struct {
	TickPeriod       time.Duration
	WarningThreshold time.Duration
	// DriftCorrection caps the remaining time by the wall-clock deadline so
	// ticks lost while the host was suspended are caught up on the next tick
	DriftCorrection bool
}

// CountdownScheduler owns at most one running countdown. Every tick carries
// the generation of the schedule that created it; ticks from a replaced or
// cancelled schedule are ignored.
type CountdownScheduler struct {
	clock      clock.Clock
	opts       SchedulerOptions
	background bool
	recorder   EventRecorder
	logger     *slog.Logger

	// onWarning runs with the scheduler lock held and must not call back into the scheduler
	onWarning func(ctx context.Context, state ScheduleState)
	// onFire runs after the schedule went idle
	onFire func(ctx context.Context, state ScheduleState)

	mu     sync.Mutex
	state  ScheduleState
	gen    uint64
	ticker clock.Ticker
	stop   chan struct{}
	closed bool
	wg     sync.WaitGroup
}

// NewCountdownScheduler creates an idle scheduler
func NewCountdownScheduler(clk clock.Clock, opts SchedulerOptions, recorder EventRecorder, logger *slog.Logger) *CountdownScheduler {
	if opts.TickPeriod <= 0 {
		opts.TickPeriod = DefaultTickPeriod
	}
	if opts.WarningThreshold <= 0 {
		opts.WarningThreshold = DefaultWarningThreshold
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	return &CountdownScheduler{
		clock:      clk,
		opts:       opts,
		background: clock.IsBackgroundCapable(clk),
		recorder:   recorder,
		logger:     logger.With("component", "countdown"),
	}
}

// Background reports whether ticks keep firing while the host is backgrounded
func (s *CountdownScheduler) Background() bool {
	return s.background
}

// State returns a copy of the current schedule
func (s *CountdownScheduler) State() ScheduleState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a countdown of d, replacing any running one. A non-positive d
// is rejected with ErrInvalidDuration and leaves the state untouched.
func (s *CountdownScheduler) Start(ctx context.Context, d time.Duration) (ScheduleState, error) {
	if d <= 0 {
		s.logger.Warn("invalid duration", "duration", d)
		return s.State(), ErrInvalidDuration
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ScheduleState{}, ErrControllerClosed
	}

	var replaced *ScheduleState
	if s.state.Status == StatusRunning {
		old := s.state
		replaced = &old
		s.releaseLocked()
	}

	// wall clock only: the monotonic clock stops while the host is suspended
	now := s.clock.Now().Round(0)
	s.gen++
	s.state = ScheduleState{
		ID:            idgen.NewSchedule(),
		TotalDuration: d,
		Remaining:     d,
		Status:        StatusRunning,
		StartedAt:     now,
		Deadline:      now.Add(d),
	}
	s.ticker = s.clock.NewTicker(s.opts.TickPeriod)
	s.stop = make(chan struct{})
	s.wg.Add(1)
	go s.run(s.gen, s.ticker.C(), s.stop)
	started := s.state
	s.mu.Unlock()

	if replaced != nil {
		s.logger.Info("replaced running schedule", "schedule_id", replaced.ID, "remaining", replaced.Remaining)
		s.record(ctx, EventScheduleCancelled, *replaced, "replaced")
	}
	if !s.background {
		s.logger.Warn("background ticking unavailable, countdown pauses while the host is suspended")
	}
	s.logger.Info("scheduled lock",
		"schedule_id", started.ID,
		"duration", d,
		"deadline", started.Deadline,
	)
	s.record(ctx, EventScheduleStarted, started, "")
	return started, nil
}

// Cancel stops a running countdown. It is a no-op when nothing runs and
// reports whether a schedule was cancelled. Once it returns, the cancelled
// schedule produces no further warning or fire.
func (s *CountdownScheduler) Cancel(ctx context.Context) bool {
	s.mu.Lock()
	if s.state.Status != StatusRunning {
		s.mu.Unlock()
		return false
	}
	s.releaseLocked()
	s.state.Status = StatusCancelled
	cancelled := s.state
	s.state.Remaining = 0
	s.state.Status = StatusIdle
	s.mu.Unlock()

	s.logger.Info("scheduled lock cancelled", "schedule_id", cancelled.ID, "remaining", cancelled.Remaining)
	s.record(ctx, EventScheduleCancelled, cancelled, "")
	return true
}

// Close cancels any countdown and waits for the tick goroutine to exit.
// It must not be called from onFire.
func (s *CountdownScheduler) Close() {
	s.mu.Lock()
	s.closed = true
	if s.state.Status == StatusRunning {
		s.releaseLocked()
		s.state.Remaining = 0
		s.state.Status = StatusIdle
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// releaseLocked stops the tick resource. Callers hold s.mu.
func (s *CountdownScheduler) releaseLocked() {
	if s.ticker != nil {
		s.ticker.Stop()
		s.ticker = nil
	}
	if s.stop != nil {
		close(s.stop)
		s.stop = nil
	}
}

func (s *CountdownScheduler) run(gen uint64, ticks <-chan time.Time, stop <-chan struct{}) {
	defer s.wg.Done()
	for {
		select {
		case <-stop:
			return
		case now := <-ticks:
			if done := s.tick(gen, now); done {
				return
			}
		}
	}
}

// tick advances schedule gen by one period. It reports true once that
// schedule is no longer running.
func (s *CountdownScheduler) tick(gen uint64, now time.Time) bool {
	ctx := context.Background()

	s.mu.Lock()
	if s.gen != gen || s.state.Status != StatusRunning {
		s.mu.Unlock()
		return true
	}

	remaining := s.state.Remaining - s.opts.TickPeriod
	if s.opts.DriftCorrection {
		byDeadline := s.state.Deadline.Sub(s.clock.Now().Round(0)).Truncate(time.Millisecond)
		if byDeadline < remaining {
			remaining = byDeadline
		}
	}
	if remaining < 0 {
		remaining = 0
	}
	s.state.Remaining = remaining

	var warned *ScheduleState
	if !s.state.Warned && remaining <= s.opts.WarningThreshold {
		s.state.Warned = true
		snapshot := s.state
		warned = &snapshot
		if s.onWarning != nil {
			s.onWarning(ctx, snapshot)
		}
	}

	if remaining > 0 {
		s.mu.Unlock()
		if warned != nil {
			s.logger.Info("lock warning", "schedule_id", warned.ID, "remaining", warned.Remaining)
			s.record(ctx, EventWarningShown, *warned, "")
		}
		return false
	}

	s.releaseLocked()
	s.state.Status = StatusFired
	fired := s.state
	s.state.Status = StatusIdle
	onFire := s.onFire
	s.mu.Unlock()

	if warned != nil {
		s.record(ctx, EventWarningShown, *warned, "")
	}
	s.logger.Info("scheduled lock countdown reached zero", "schedule_id", fired.ID)
	s.record(ctx, EventScheduleFired, fired, "")
	if onFire != nil {
		onFire(ctx, fired)
	}
	return true
}

func (s *CountdownScheduler) record(ctx context.Context, kind EventKind, state ScheduleState, detail string) {
	event := &Event{
		Kind:       kind,
		ScheduleID: state.ID,
		Remaining:  state.Remaining,
		Detail:     detail,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.recorder.RecordEvent(ctx, event); err != nil {
		s.logger.Warn("failed to record event", "kind", kind, "error", err)
	}
}
