// Package clock abstracts time so countdowns and delayed re-checks can be driven by tests.
package clock

import (
	"sort"
	"sync"
	"time"
)

// Ticker delivers ticks on C until stopped
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

// Timer is a pending one-shot callback
type Timer interface {
	// Stop prevents the callback from running. It reports whether the call stopped it.
	Stop() bool
}

// Clock interface abstracts time operations for testing
type Clock interface {
	// Now returns the current time
	Now() time.Time
	// NewTicker creates a ticker that fires every d
	NewTicker(d time.Duration) Ticker
	// AfterFunc runs f in its own goroutine once d has elapsed
	AfterFunc(d time.Duration, f func()) Timer
}

// BackgroundCapable is implemented by clocks whose tickers keep firing while
// the host process is not in the foreground.
type BackgroundCapable interface {
	Background() bool
}

// IsBackgroundCapable reports whether tickers from c survive backgrounding.
// Clocks that do not say so are assumed to be foreground-only.
func IsBackgroundCapable(c Clock) bool {
	bc, ok := c.(BackgroundCapable)
	return ok && bc.Background()
}

// RealClock implements Clock using the real system time.
// Its tickers run on runtime timers that are independent of any UI foreground state.
type RealClock struct{}

// Now returns the current time
func (RealClock) Now() time.Time {
	return time.Now()
}

// NewTicker creates a new time.Ticker
func (RealClock) NewTicker(d time.Duration) Ticker {
	return realTicker{time.NewTicker(d)}
}

// AfterFunc wraps time.AfterFunc
func (RealClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Background reports true: runtime timers are not tied to foreground state
func (RealClock) Background() bool {
	return true
}

type realTicker struct {
	t *time.Ticker
}

func (r realTicker) C() <-chan time.Time { return r.t.C }
func (r realTicker) Stop()               { r.t.Stop() }

// MockClock implements Clock for testing. Tickers only tick when told to and
// AfterFunc callbacks run synchronously from Advance.
type MockClock struct {
	mu          sync.Mutex
	CurrentTime time.Time
	Foreground  bool // when true the clock reports it is not background capable
	tickers     []*MockTicker
	timers      []*mockTimer
}

// NewMockClock creates a mock clock starting at t
func NewMockClock(t time.Time) *MockClock {
	return &MockClock{CurrentTime: t}
}

// Now returns the mocked current time
func (m *MockClock) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CurrentTime
}

// NewTicker creates a manual ticker
func (m *MockClock) NewTicker(d time.Duration) Ticker {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &MockTicker{Period: d, ch: make(chan time.Time, 1)}
	m.tickers = append(m.tickers, t)
	return t
}

// AfterFunc registers f to run once the mocked time passes d
func (m *MockClock) AfterFunc(d time.Duration, f func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &mockTimer{when: m.CurrentTime.Add(d), f: f}
	m.timers = append(m.timers, t)
	return t
}

// Background reports whether tickers from this clock survive backgrounding
func (m *MockClock) Background() bool {
	return !m.Foreground
}

// Advance moves the mocked time forward and runs any timers that became due
func (m *MockClock) Advance(d time.Duration) {
	m.mu.Lock()
	m.CurrentTime = m.CurrentTime.Add(d)
	now := m.CurrentTime
	var due, pending []*mockTimer
	for _, t := range m.timers {
		if t.stopped() {
			continue
		}
		if !t.when.After(now) {
			due = append(due, t)
		} else {
			pending = append(pending, t)
		}
	}
	m.timers = pending
	m.mu.Unlock()

	sort.Slice(due, func(i, j int) bool { return due[i].when.Before(due[j].when) })
	for _, t := range due {
		t.fire()
	}
}

// Set sets the mocked current time to a specific value
func (m *MockClock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CurrentTime = t
}

// Tickers returns every ticker created so far, oldest first
func (m *MockClock) Tickers() []*MockTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*MockTicker, len(m.tickers))
	copy(out, m.tickers)
	return out
}

// LastTicker returns the most recently created ticker, or nil
func (m *MockClock) LastTicker() *MockTicker {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tickers) == 0 {
		return nil
	}
	return m.tickers[len(m.tickers)-1]
}

// PendingTimers returns the number of AfterFunc callbacks not yet run or stopped
func (m *MockClock) PendingTimers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, t := range m.timers {
		if !t.stopped() {
			n++
		}
	}
	return n
}

// MockTicker is a ticker driven by the test
type MockTicker struct {
	Period time.Duration
	ch     chan time.Time
	mu     sync.Mutex
	done   bool
}

// C returns the tick channel
func (t *MockTicker) C() <-chan time.Time { return t.ch }

// Stop marks the ticker stopped; later Tick calls are dropped
func (t *MockTicker) Stop() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.done = true
}

// Stopped reports whether Stop was called
func (t *MockTicker) Stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

// Tick delivers a tick unless the ticker is stopped or a tick is already queued.
// It reports whether the tick was queued.
func (t *MockTicker) Tick(now time.Time) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	select {
	case t.ch <- now:
		return true
	default:
		return false
	}
}

type mockTimer struct {
	mu   sync.Mutex
	when time.Time
	f    func()
	done bool
}

func (t *mockTimer) Stop() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.done {
		return false
	}
	t.done = true
	return true
}

func (t *mockTimer) stopped() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

func (t *mockTimer) fire() {
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	t.mu.Unlock()
	t.f()
}

// Ensure implementations satisfy the interface
var (
	_ Clock = RealClock{}
	_ Clock = (*MockClock)(nil)
)
