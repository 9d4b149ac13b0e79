package timer

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtimehq/airtime/pkg/meeting"
)

// fakeClock is a manually advanced clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 8, 31, 10, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestStartStop_MeasuresElapsed(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	tm.Start(meeting.CategoryMen)
	clock.Advance(5 * time.Second)

	seconds, ok := tm.Stop()
	require.True(t, ok)
	assert.InDelta(t, 5.0, seconds, 1e-9)

	_, running := tm.Running()
	assert.False(t, running)
}

func TestStop_Idempotent(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	tm.Start(meeting.CategoryWomen)
	clock.Advance(2 * time.Second)

	_, ok := tm.Stop()
	require.True(t, ok)

	// Second stop with no intervening start must be a no-op.
	seconds, ok := tm.Stop()
	assert.False(t, ok)
	assert.Zero(t, seconds)
}

func TestStop_WhenIdle(t *testing.T) {
	tm := New()
	seconds, ok := tm.Stop()
	assert.False(t, ok)
	assert.Zero(t, seconds)
}

func TestCurrentDuration(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	_, ok := tm.CurrentDuration()
	assert.False(t, ok, "idle timer has no current duration")

	tm.Start(meeting.CategoryMen)
	clock.Advance(12 * time.Second)

	seconds, ok := tm.CurrentDuration()
	require.True(t, ok)
	assert.InDelta(t, 12.0, seconds, 1e-9)
}

func TestResumeWithOffset_LateAttach(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	// Attach mid-interval: 12s already elapsed elsewhere.
	tm.ResumeWithOffset(meeting.CategoryMen, 12.0)
	clock.Advance(3 * time.Second)

	seconds, ok := tm.CurrentDuration()
	require.True(t, ok)
	assert.InDelta(t, 15.0, seconds, 1e-9, "late attach must continue from the true origin, not zero")
}

func TestResumeFrom_PersistedInstant(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	start := clock.Now().Add(-30 * time.Second)
	tm.ResumeFrom(meeting.CategoryWomen, start)

	seconds, ok := tm.CurrentDuration()
	require.True(t, ok)
	assert.InDelta(t, 30.0, seconds, 1e-9)
}

func TestResumeFrom_FutureInstantRestartsFromNow(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	tm.ResumeFrom(meeting.CategoryWomen, clock.Now().Add(time.Hour))

	seconds, ok := tm.CurrentDuration()
	require.True(t, ok)
	assert.InDelta(t, 0.0, seconds, 1e-9)
}

func TestStart_ReplacesRunningInterval(t *testing.T) {
	clock := newFakeClock()
	tm := New(WithClock(clock.Now))

	tm.Start(meeting.CategoryMen)
	clock.Advance(5 * time.Second)
	tm.Start(meeting.CategoryWomen)
	clock.Advance(3 * time.Second)

	cat, running := tm.Running()
	require.True(t, running)
	assert.Equal(t, meeting.CategoryWomen, cat)

	seconds, ok := tm.Stop()
	require.True(t, ok)
	assert.InDelta(t, 3.0, seconds, 1e-9, "restart discards the prior interval")
}

func TestTick_PushesToDisplay(t *testing.T) {
	var mu sync.Mutex
	var updates []string

	tm := New(
		WithTickInterval(5*time.Millisecond),
		WithDisplay(func(formatted string, _ float64) {
			mu.Lock()
			updates = append(updates, formatted)
			mu.Unlock()
		}),
	)
	defer tm.Close()

	tm.Start(meeting.CategoryMen)

	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		mu.Lock()
		n := len(updates)
		mu.Unlock()
		if n >= 2 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, updates, "display should receive ticks while running")
	assert.Regexp(t, `^\d{2}:\d{2}$`, updates[0])
}

func TestTick_StopsAfterStop(t *testing.T) {
	var mu sync.Mutex
	count := 0

	tm := New(
		WithTickInterval(5*time.Millisecond),
		WithDisplay(func(string, float64) {
			mu.Lock()
			count++
			mu.Unlock()
		}),
	)

	tm.Start(meeting.CategoryMen)
	time.Sleep(30 * time.Millisecond)
	tm.Stop()

	mu.Lock()
	after := count
	mu.Unlock()

	time.Sleep(50 * time.Millisecond)

	mu.Lock()
	final := count
	mu.Unlock()
	assert.Equal(t, after, final, "no ticks may fire after Stop")
}

func TestFormatTime(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00"},
		{5.4, "00:05"},
		{59.9, "00:59"},
		{60, "01:00"},
		{125, "02:05"},
		{3600, "60:00"},
		{-1, "00:00"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, FormatTime(tt.seconds))
	}
}
