// Package timer implements the speaking stopwatch: it measures one
// open-ended interval at a time and pushes formatted elapsed time to a
// display sink on a fixed cadence.
package timer

import (
	"fmt"
	"sync"
	"time"

	"github.com/airtimehq/airtime/pkg/meeting"
)

// DefaultTickInterval is the display refresh cadence.
const DefaultTickInterval = 100 * time.Millisecond

// DefaultDisplay is shown when no interval is running.
const DefaultDisplay = "00:00"

// Clock returns the current wall-clock time. Injected for tests.
type Clock func() time.Time

// DisplayFunc receives periodic elapsed-time updates while running.
type DisplayFunc func(formatted string, seconds float64)

// SpeakingTimer tracks a single open interval (start instant to now).
// It has no knowledge of windows or messaging; committing the measured
// duration is the caller's job.
type SpeakingTimer struct {
	mu       sync.Mutex
	clock    Clock
	tick     time.Duration
	display  DisplayFunc
	start    time.Time // zero when idle
	category meeting.Category
	stopTick chan struct{}
}

// Option configures a SpeakingTimer.
type Option func(*SpeakingTimer)

// WithClock injects a clock.
func WithClock(clock Clock) Option {
	return func(t *SpeakingTimer) { t.clock = clock }
}

// WithTickInterval overrides the display cadence.
func WithTickInterval(d time.Duration) Option {
	return func(t *SpeakingTimer) {
		if d > 0 {
			t.tick = d
		}
	}
}

// WithDisplay registers the display sink. A nil sink disables ticking.
func WithDisplay(fn DisplayFunc) Option {
	return func(t *SpeakingTimer) { t.display = fn }
}

// New creates an idle SpeakingTimer.
func New(opts ...Option) *SpeakingTimer {
	t := &SpeakingTimer{
		clock: time.Now,
		tick:  DefaultTickInterval,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Start begins a fresh interval for the category. If an interval is
// already running it is discarded; callers that need its duration must
// call Stop first.
func (t *SpeakingTimer) Start(category meeting.Category) {
	t.startFrom(category, t.clock())
}

// ResumeWithOffset begins an interval whose elapsed time is already
// elapsedSeconds, so a display attaching mid-interval shows the correct
// running time instead of restarting from zero.
func (t *SpeakingTimer) ResumeWithOffset(category meeting.Category, elapsedSeconds float64) {
	offset := time.Duration(elapsedSeconds * float64(time.Second))
	t.startFrom(category, t.clock().Add(-offset))
}

// ResumeFrom begins an interval anchored at a known start instant.
// Used when a restarted primary picks up a persisted in-progress turn.
// An instant in the future is ignored and the interval restarts from now.
func (t *SpeakingTimer) ResumeFrom(category meeting.Category, start time.Time) {
	now := t.clock()
	if start.After(now) {
		start = now
	}
	t.startFrom(category, start)
}

func (t *SpeakingTimer) startFrom(category meeting.Category, start time.Time) {
	t.mu.Lock()
	t.stopTickLocked()
	t.start = start
	t.category = category
	var stop chan struct{}
	if t.display != nil {
		stop = make(chan struct{})
		t.stopTick = stop
	}
	t.mu.Unlock()

	if stop != nil {
		go t.run(stop)
	}
}

// Stop ends the current interval and returns its duration in seconds.
// Stopping an idle timer is a no-op and returns ok=false, which guards
// against double-stop from racing events.
func (t *SpeakingTimer) Stop() (seconds float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.start.IsZero() {
		return 0, false
	}

	seconds = t.clock().Sub(t.start).Seconds()
	t.start = time.Time{}
	t.category = ""
	t.stopTickLocked()
	return seconds, true
}

// CurrentDuration returns the elapsed seconds of the running interval,
// or ok=false when idle.
func (t *SpeakingTimer) CurrentDuration() (seconds float64, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.start.IsZero() {
		return 0, false
	}
	return t.clock().Sub(t.start).Seconds(), true
}

// Running returns the current category, or ok=false when idle.
func (t *SpeakingTimer) Running() (meeting.Category, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.start.IsZero() {
		return "", false
	}
	return t.category, true
}

// StartInstant returns the wall-clock instant the running interval began,
// or ok=false when idle. The primary persists this for crash recovery.
func (t *SpeakingTimer) StartInstant() (time.Time, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.start.IsZero() {
		return time.Time{}, false
	}
	return t.start, true
}

// Close stops any running interval without reporting its duration and
// terminates the tick goroutine. Safe to call repeatedly.
func (t *SpeakingTimer) Close() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.start = time.Time{}
	t.category = ""
	t.stopTickLocked()
}

// stopTickLocked cancels the tick goroutine. Caller must hold t.mu.
func (t *SpeakingTimer) stopTickLocked() {
	if t.stopTick != nil {
		close(t.stopTick)
		t.stopTick = nil
	}
}

// run is the tick loop. Cancellation is not instantaneous, so every tick
// re-checks the running state before touching the display.
func (t *SpeakingTimer) run(stop chan struct{}) {
	ticker := time.NewTicker(t.tick)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.mu.Lock()
			if t.start.IsZero() || t.stopTick == nil {
				t.mu.Unlock()
				return
			}
			elapsed := t.clock().Sub(t.start).Seconds()
			display := t.display
			t.mu.Unlock()

			if display != nil {
				display(FormatTime(elapsed), elapsed)
			}
		}
	}
}

// FormatTime renders seconds as MM:SS with leading zeros.
func FormatTime(seconds float64) string {
	if seconds < 0 {
		return DefaultDisplay
	}
	total := int(seconds)
	return fmt.Sprintf("%02d:%02d", total/60, total%60)
}
