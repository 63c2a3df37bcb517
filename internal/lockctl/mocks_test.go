package lockctl

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"nosleep/internal/clock"
	"nosleep/internal/platform"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClock() *clock.MockClock {
	return clock.NewMockClock(time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC))
}

// MockToast is one ShowToast call
type MockToast struct {
	Message string
	Style   platform.ToastStyle
}

// MockDevice is a test double implementing every platform capability
type MockDevice struct {
	mu sync.Mutex

	AdminActive bool
	AdminErr    error
	AdminChecks int

	// RequestResult is what RequestAdminPermission returns; GrantOnRequest
	// flips AdminActive as if the user accepted in a settings screen
	RequestResult  bool
	RequestErr     error
	GrantOnRequest bool
	RequestCalls   int

	LockErr   error
	LockCalls int

	OverlayAllowed      bool
	OverlayErr          error
	OverlayRequestCalls int

	OverlayToastErr error
	Toasts          []MockToast
}

func (m *MockDevice) IsAdminActive(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdminChecks++
	return m.AdminActive, m.AdminErr
}

func (m *MockDevice) RequestAdminPermission(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCalls++
	if m.GrantOnRequest {
		m.AdminActive = true
	}
	return m.RequestResult, m.RequestErr
}

func (m *MockDevice) LockNow(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LockCalls++
	return m.LockErr
}

func (m *MockDevice) CanDrawOverlays(ctx context.Context) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.OverlayAllowed, m.OverlayErr
}

func (m *MockDevice) RequestOverlayPermission(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.OverlayRequestCalls++
	m.OverlayAllowed = true
	return nil
}

func (m *MockDevice) ShowToast(ctx context.Context, message string, style platform.ToastStyle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Toasts = append(m.Toasts, MockToast{Message: message, Style: style})
	if style == platform.ToastOverlay {
		return m.OverlayToastErr
	}
	return nil
}

func (m *MockDevice) SetAdminActive(active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AdminActive = active
}

func (m *MockDevice) Counts() (checks, requests, locks int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.AdminChecks, m.RequestCalls, m.LockCalls
}

func (m *MockDevice) ToastList() []MockToast {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockToast, len(m.Toasts))
	copy(out, m.Toasts)
	return out
}

// Capabilities exposes every capability
func (m *MockDevice) Capabilities() platform.Capabilities {
	return platform.Capabilities{
		Admin:          m,
		AdminRequest:   m,
		Lock:           m,
		Overlay:        m,
		OverlayRequest: m,
		Toast:          m,
	}
}

// MockRecorder is a test double for EventRecorder
type MockRecorder struct {
	mu     sync.Mutex
	Events []Event
	Err    error
}

func (m *MockRecorder) RecordEvent(ctx context.Context, event *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Events = append(m.Events, *event)
	return m.Err
}

func (m *MockRecorder) Kinds() []EventKind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]EventKind, 0, len(m.Events))
	for _, e := range m.Events {
		kinds = append(kinds, e.Kind)
	}
	return kinds
}

func (m *MockRecorder) Count(kind EventKind) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, e := range m.Events {
		if e.Kind == kind {
			n++
		}
	}
	return n
}

func (m *MockRecorder) Last(kind EventKind) (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.Events) - 1; i >= 0; i-- {
		if m.Events[i].Kind == kind {
			return m.Events[i], true
		}
	}
	return Event{}, false
}

// currentGen returns the generation of the running schedule
func currentGen(s *CountdownScheduler) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}
