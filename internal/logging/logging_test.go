package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"testing"
	"time"

	"nosleep/internal/lockctl"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDebugLog_RingNewestFirst(t *testing.T) {
	d := NewDebugLog(3)
	base := time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)
	for i := 0; i < 5; i++ {
		d.Add(base.Add(time.Duration(i)*time.Second), fmt.Sprintf("line %d", i))
	}

	entries := d.Entries()
	require.Len(t, entries, 3)
	assert.Equal(t, "line 4", entries[0].Message)
	assert.Equal(t, "line 2", entries[2].Message)
	assert.Equal(t, "2025-01-02T03:04:09Z - line 4", entries[0].String())

	d.Clear()
	assert.Empty(t, d.Entries())
}

func TestDebugLog_DefaultSize(t *testing.T) {
	d := NewDebugLog(0)
	for i := 0; i < 60; i++ {
		d.Add(time.Now(), "x")
	}
	assert.Len(t, d.Entries(), DefaultDebugLogSize)
}

func TestNewLogger_TeesIntoDebugLog(t *testing.T) {
	var out bytes.Buffer
	debug := NewDebugLog(10)
	logger := NewLogger(LoggerConfig{
		Format:   "json",
		Level:    slog.LevelInfo,
		Output:   &out,
		DebugLog: debug,
	})

	logger.With("component", "countdown").Info("scheduled lock", "schedule_id", "sched_1")
	logger.Debug("hidden")

	entries := debug.Entries()
	require.Len(t, entries, 1)
	assert.Equal(t, "scheduled lock schedule_id=sched_1", entries[0].Message)

	var record map[string]any
	require.NoError(t, json.Unmarshal(out.Bytes(), &record))
	assert.Equal(t, "scheduled lock", record["msg"])
	assert.Equal(t, "countdown", record["component"])
	assert.Contains(t, record, "timestamp")
}

func TestNewLogger_TextFormat(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(LoggerConfig{Format: "text", Level: slog.LevelDebug, Output: &out})
	logger.Debug("hello", "n", 1)
	assert.True(t, strings.Contains(out.String(), "msg=hello"))
	assert.True(t, strings.Contains(out.String(), "n=1"))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestOpenLogFile(t *testing.T) {
	path := t.TempDir() + "/agent.log"
	file, err := OpenLogFile(path)
	require.NoError(t, err)
	defer file.Close()

	logger := NewLogger(LoggerConfig{Format: "text", Output: file})
	logger.Info("to file")

	_, err = OpenLogFile(t.TempDir() + "/missing/dir/agent.log")
	assert.Error(t, err)
}

// MockController is a test double for lockctl.Service
type MockController struct {
	ScheduleErr error
	LockErr     error
	Calls       []string
}

func (m *MockController) Schedule(ctx context.Context, selection lockctl.SelectedDuration) (lockctl.ScheduleState, error) {
	m.Calls = append(m.Calls, "Schedule")
	if m.ScheduleErr != nil {
		return lockctl.ScheduleState{}, m.ScheduleErr
	}
	return lockctl.ScheduleState{ID: "sched_1", Status: lockctl.StatusRunning, Remaining: selection.Duration()}, nil
}

func (m *MockController) Cancel(ctx context.Context) bool {
	m.Calls = append(m.Calls, "Cancel")
	return true
}

func (m *MockController) LockNow(ctx context.Context) error {
	m.Calls = append(m.Calls, "LockNow")
	return m.LockErr
}

func (m *MockController) RequestAdmin(ctx context.Context) (bool, error) {
	m.Calls = append(m.Calls, "RequestAdmin")
	return true, nil
}

func (m *MockController) RequestOverlay(ctx context.Context) (bool, error) {
	m.Calls = append(m.Calls, "RequestOverlay")
	return false, nil
}

func (m *MockController) Snapshot(ctx context.Context) lockctl.Snapshot {
	m.Calls = append(m.Calls, "Snapshot")
	return lockctl.Snapshot{}
}

func TestControllerLogger_DelegatesAndLogs(t *testing.T) {
	ctx := context.Background()
	var out bytes.Buffer
	logger := NewLogger(LoggerConfig{Format: "text", Level: slog.LevelDebug, Output: &out})
	mock := &MockController{LockErr: lockctl.ErrCapabilityUnavailable}
	svc := NewControllerLogger(mock, logger)

	state, err := svc.Schedule(ctx, lockctl.SelectedDuration{Minutes: 5})
	require.NoError(t, err)
	assert.Equal(t, "sched_1", state.ID)

	assert.True(t, svc.Cancel(ctx))
	assert.ErrorIs(t, svc.LockNow(ctx), lockctl.ErrCapabilityUnavailable)

	granted, err := svc.RequestAdmin(ctx)
	require.NoError(t, err)
	assert.True(t, granted)
	granted, err = svc.RequestOverlay(ctx)
	require.NoError(t, err)
	assert.False(t, granted)
	svc.Snapshot(ctx)

	assert.Equal(t, []string{"Schedule", "Cancel", "LockNow", "RequestAdmin", "RequestOverlay", "Snapshot"}, mock.Calls)
	assert.Contains(t, out.String(), "LockNow failed")
	assert.Contains(t, out.String(), "code=CAPABILITY_UNAVAILABLE")
	assert.Contains(t, out.String(), "interface=LockController")
}

func TestControllerLogger_ScheduleError(t *testing.T) {
	var out bytes.Buffer
	logger := NewLogger(LoggerConfig{Format: "text", Output: &out})
	mock := &MockController{ScheduleErr: errors.New("boom")}

	_, err := NewControllerLogger(mock, logger).Schedule(context.Background(), lockctl.SelectedDuration{})
	assert.EqualError(t, err, "boom")
	assert.Contains(t, out.String(), "Schedule failed")
}
