package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"
	"time"

	"nosleep/internal/api/middleware"
	"nosleep/internal/lockctl"
	"nosleep/internal/logging"
	"nosleep/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testAPIKey = "secret"

// MockController is a test double for lockctl.Service
type MockController struct {
	ScheduleErr   error
	LockErr       error
	AdminGranted  bool
	AdminErr      error
	Cancelled     bool
	LastSelection lockctl.SelectedDuration
	LockCalls     int
	Snap          lockctl.Snapshot
}

func (m *MockController) Schedule(ctx context.Context, selection lockctl.SelectedDuration) (lockctl.ScheduleState, error) {
	m.LastSelection = selection
	if m.ScheduleErr != nil {
		return lockctl.ScheduleState{}, m.ScheduleErr
	}
	now := time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)
	return lockctl.ScheduleState{
		ID:            "sched_1",
		TotalDuration: selection.Duration(),
		Remaining:     selection.Duration(),
		Status:        lockctl.StatusRunning,
		StartedAt:     now,
		Deadline:      now.Add(selection.Duration()),
	}, nil
}

func (m *MockController) Cancel(ctx context.Context) bool { return m.Cancelled }

func (m *MockController) LockNow(ctx context.Context) error {
	m.LockCalls++
	return m.LockErr
}

func (m *MockController) RequestAdmin(ctx context.Context) (bool, error) {
	return m.AdminGranted, m.AdminErr
}

func (m *MockController) RequestOverlay(ctx context.Context) (bool, error) {
	return false, nil
}

func (m *MockController) Snapshot(ctx context.Context) lockctl.Snapshot { return m.Snap }

// MockJournal is a test double for storage.Journal
type MockJournal struct {
	Events     []*lockctl.Event
	ListErr    error
	LastFilter storage.EventFilter
}

func (m *MockJournal) RecordEvent(ctx context.Context, event *lockctl.Event) error {
	m.Events = append(m.Events, event)
	return nil
}

func (m *MockJournal) GetEvent(ctx context.Context, id string) (*lockctl.Event, error) {
	return nil, storage.ErrEventNotFound
}

func (m *MockJournal) ListEvents(ctx context.Context, filter storage.EventFilter) ([]*lockctl.Event, error) {
	m.LastFilter = filter
	return m.Events, m.ListErr
}

func (m *MockJournal) PruneEvents(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

func (m *MockJournal) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testServer struct {
	controller *MockController
	journal    *MockJournal
	debugLog   *logging.DebugLog
	config     RouterConfig
}

func newTestServer() *testServer {
	ts := &testServer{
		controller: &MockController{},
		journal:    &MockJournal{},
		debugLog:   logging.NewDebugLog(10),
	}
	ts.config = RouterConfig{
		Controller: ts.controller,
		Journal:    ts.journal,
		DebugLog:   ts.debugLog,
		APIKey:     testAPIKey,
		Version:    "test",
		Logger:     testLogger(),
	}
	return ts
}

func (ts *testServer) do(t *testing.T, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	router := NewRouter(ts.config)

	var reader *bytes.Reader
	if body != "" {
		reader = bytes.NewReader([]byte(body))
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	var decoded map[string]any
	if strings.HasPrefix(strings.TrimSpace(w.Body.String()), "{") {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &decoded))
	}
	return w, decoded
}

func TestHealth_NoAuth(t *testing.T) {
	router := NewRouter(newTestServer().config)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"status":"UP"`)
	assert.NotEmpty(t, w.Header().Get(middleware.RequestIDKey))
}

func TestAuth(t *testing.T) {
	router := NewRouter(newTestServer().config)

	req := httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Body.String(), "AUTH_REQUIRED")

	req = httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	req.Header.Set(middleware.APIKeyHeader, "wrong")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/v1/state", nil)
	req.Header.Set("Authorization", "Bearer "+testAPIKey)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestGetState(t *testing.T) {
	ts := newTestServer()
	ts.controller.Snap = lockctl.Snapshot{
		Admin:         lockctl.PermissionState{Granted: true},
		Selected:      lockctl.SelectedDuration{Hours: 1, Minutes: 5},
		Capabilities:  []string{"lock_now"},
		LockAvailable: true,
		Schedule: lockctl.ScheduleState{
			ID:        "sched_1",
			Status:    lockctl.StatusRunning,
			Remaining: time.Hour + 4*time.Minute + 59*time.Second,
		},
		LastLockError: "PLATFORM_FAILURE",
	}

	w, body := ts.do(t, http.MethodGet, "/v1/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1h 05m", body["selected_text"])
	assert.Equal(t, "PLATFORM_FAILURE", body["last_lock_error"])

	schedule := body["schedule"].(map[string]any)
	assert.Equal(t, "running", schedule["status"])
	assert.Equal(t, "01:04:59", schedule["remaining"])
	assert.Equal(t, "sched_1", schedule["id"])
}

func TestSchedule(t *testing.T) {
	ts := newTestServer()

	w, body := ts.do(t, http.MethodPost, "/v1/schedule", `{"hours":1,"minutes":30}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, lockctl.SelectedDuration{Hours: 1, Minutes: 30}, ts.controller.LastSelection)
	assert.Equal(t, "01:30:00", body["remaining"])
	assert.Equal(t, float64(5400), body["total_seconds"])

	w, _ = ts.do(t, http.MethodPost, "/v1/schedule", `{"duration":"0:45"}`)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, lockctl.SelectedDuration{Minutes: 45}, ts.controller.LastSelection)
}

func TestSchedule_BadInput(t *testing.T) {
	ts := newTestServer()

	w, body := ts.do(t, http.MethodPost, "/v1/schedule", `{"hours":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_REQUEST", body["code"])

	w, body = ts.do(t, http.MethodPost, "/v1/schedule", `{"duration":"30s"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DURATION", body["code"])

	// would wrap to a 26 second countdown if converted unchecked
	w, body = ts.do(t, http.MethodPost, "/v1/schedule", `{"hours":5124095,"minutes":35}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_DURATION", body["code"])
	assert.Equal(t, lockctl.SelectedDuration{}, ts.controller.LastSelection, "controller not called")

	router := NewRouter(ts.config)
	req := httptest.NewRequest(http.MethodPost, "/v1/schedule", strings.NewReader(`{"minutes":5}`))
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	req.Header.Set("Content-Type", "text/plain")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, rec.Code)
}

func TestControllerErrorMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"capability", lockctl.ErrCapabilityUnavailable, http.StatusNotImplemented, "CAPABILITY_UNAVAILABLE"},
		{"permission", &lockctl.PermissionError{}, http.StatusConflict, "PERMISSION_NOT_ACTIVE"},
		{"duration", lockctl.ErrInvalidDuration, http.StatusBadRequest, "INVALID_DURATION"},
		{"platform", &lockctl.PlatformFailure{Message: "keyguard crashed"}, http.StatusBadGateway, "PLATFORM_FAILURE"},
		{"closed", lockctl.ErrControllerClosed, http.StatusServiceUnavailable, "CONTROLLER_CLOSED"},
		{"other", errors.New("sql: database is closed"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer()
			ts.controller.LockErr = tt.err

			w, body := ts.do(t, http.MethodPost, "/v1/lock", "")
			assert.Equal(t, tt.status, w.Code)
			assert.Equal(t, tt.code, body["code"])
		})
	}
}

func TestLockNow_PermissionErrorCarriesGrantURL(t *testing.T) {
	ts := newTestServer()
	ts.controller.LockErr = &lockctl.PermissionError{}

	w, body := ts.do(t, http.MethodPost, "/v1/lock", "")
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "/v1/permissions/admin/request", body["grant_url"])
	assert.Equal(t, lockctl.ErrPermissionNotActive.Error(), body["error"])
}

func TestLockNow_Success(t *testing.T) {
	ts := newTestServer()
	w, body := ts.do(t, http.MethodPost, "/v1/lock", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["locked"])
	assert.Equal(t, 1, ts.controller.LockCalls)
}

func TestCancelSchedule(t *testing.T) {
	ts := newTestServer()
	ts.controller.Cancelled = true
	w, body := ts.do(t, http.MethodDelete, "/v1/schedule", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, true, body["cancelled"])
}

func TestPermissionRequests(t *testing.T) {
	ts := newTestServer()
	ts.controller.AdminGranted = false

	w, body := ts.do(t, http.MethodPost, "/v1/permissions/admin/request", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, true, body["pending"])

	ts.controller.AdminErr = lockctl.ErrCapabilityUnavailable
	w, _ = ts.do(t, http.MethodPost, "/v1/permissions/admin/request", "")
	assert.Equal(t, http.StatusNotImplemented, w.Code)

	w, body = ts.do(t, http.MethodPost, "/v1/permissions/overlay/request", "")
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "overlay", body["permission"])
}

func TestLogs(t *testing.T) {
	ts := newTestServer()
	at := time.Date(2025, 3, 14, 21, 0, 0, 0, time.UTC)
	ts.debugLog.Add(at, "first")
	ts.debugLog.Add(at.Add(time.Second), "second")

	w, body := ts.do(t, http.MethodGet, "/v1/logs", "")
	require.Equal(t, http.StatusOK, w.Code)
	lines := body["lines"].([]any)
	require.Len(t, lines, 2)
	assert.Equal(t, "2025-03-14T21:00:01Z - second", lines[0])

	w, _ = ts.do(t, http.MethodDelete, "/v1/logs", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, ts.debugLog.Entries())
}

func TestEvents(t *testing.T) {
	ts := newTestServer()
	ts.journal.Events = []*lockctl.Event{
		{ID: "evt_2", Kind: lockctl.EventScheduleFired, ScheduleID: "sched_1"},
		{ID: "evt_1", Kind: lockctl.EventPermissionChanged, Detail: "admin=granted"},
	}

	router := NewRouter(ts.config)
	req := httptest.NewRequest(http.MethodGet, "/v1/events?kind=schedule_fired&limit=5&since=2025-03-14T00:00:00Z", nil)
	req.Header.Set(middleware.APIKeyHeader, testAPIKey)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	var events []map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, "evt_2", events[0]["id"])
	assert.Equal(t, "00:00:00", events[0]["remaining"])
	assert.Equal(t, "admin=granted", events[1]["detail"])

	assert.Equal(t, lockctl.EventScheduleFired, ts.journal.LastFilter.Kind)
	assert.Equal(t, 5, ts.journal.LastFilter.Limit)
	assert.False(t, ts.journal.LastFilter.Since.IsZero())

	w, body := ts.do(t, http.MethodGet, "/v1/events?limit=-1", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "INVALID_LIMIT", body["code"])

	ts.journal.ListErr = errors.New("disk I/O error")
	w, _ = ts.do(t, http.MethodGet, "/v1/events", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestOptionalRoutes(t *testing.T) {
	ts := newTestServer()
	ts.config.Journal = nil
	ts.config.DebugLog = nil

	w, _ := ts.do(t, http.MethodGet, "/v1/events", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = ts.do(t, http.MethodGet, "/v1/logs", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRecovery(t *testing.T) {
	ts := newTestServer()
	ts.config.Controller = nil

	w, body := ts.do(t, http.MethodGet, "/v1/state", "")
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "INTERNAL_ERROR", body["code"])
}
