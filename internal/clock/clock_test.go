package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMockClock_AfterFuncRunsOnAdvance(t *testing.T) {
	start := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	clk := NewMockClock(start)

	fired := 0
	clk.AfterFunc(500*time.Millisecond, func() { fired++ })
	assert.Equal(t, 1, clk.PendingTimers())

	clk.Advance(499 * time.Millisecond)
	assert.Equal(t, 0, fired)

	clk.Advance(time.Millisecond)
	assert.Equal(t, 1, fired)
	assert.Equal(t, 0, clk.PendingTimers())

	clk.Advance(time.Second)
	assert.Equal(t, 1, fired, "timer must run once")
}

func TestMockClock_StoppedTimerDoesNotRun(t *testing.T) {
	clk := NewMockClock(time.Now())

	fired := false
	timer := clk.AfterFunc(time.Second, func() { fired = true })
	assert.True(t, timer.Stop())
	assert.False(t, timer.Stop(), "second stop reports nothing to stop")

	clk.Advance(2 * time.Second)
	assert.False(t, fired)
}

func TestMockTicker_TickAndStop(t *testing.T) {
	clk := NewMockClock(time.Now())
	ticker := clk.NewTicker(time.Second)

	mt := clk.LastTicker()
	require.NotNil(t, mt)
	assert.Equal(t, time.Second, mt.Period)

	assert.True(t, mt.Tick(clk.Now()))
	assert.False(t, mt.Tick(clk.Now()), "buffer holds a single pending tick")
	<-ticker.C()

	ticker.Stop()
	assert.True(t, mt.Stopped())
	assert.False(t, mt.Tick(clk.Now()))
}

func TestIsBackgroundCapable(t *testing.T) {
	assert.True(t, IsBackgroundCapable(RealClock{}))

	clk := NewMockClock(time.Now())
	assert.True(t, IsBackgroundCapable(clk))

	clk.Foreground = true
	assert.False(t, IsBackgroundCapable(clk))
}
