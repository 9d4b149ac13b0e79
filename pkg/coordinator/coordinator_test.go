package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/airtimehq/airtime/pkg/channel"
	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/logging"
	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/observability"
	"github.com/airtimehq/airtime/pkg/stats"
	"github.com/airtimehq/airtime/pkg/store"
	"github.com/airtimehq/airtime/pkg/timer"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)}
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

func newActiveMeeting() *meeting.Meeting {
	m := meeting.New("Retro", "2025-04-01")
	m.SetParticipants(3, 2, 0)
	m.Active = true
	return m
}

type fixture struct {
	clock     *fakeClock
	meeting   *meeting.Meeting
	store     store.Store
	primary   *Primary
	primaryTr *channel.Loopback
	popoutTr  *channel.Loopback
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	clock := newFakeClock()
	m := newActiveMeeting()
	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	primaryTr, popoutTr := channel.NewLoopbackPair()

	p, err := NewPrimary(PrimaryDeps{
		Meeting:   m,
		Timer:     timer.New(timer.WithClock(clock.Now)),
		Store:     st,
		Transport: primaryTr,
		Logger:    logging.NewNopLogger(),
		Metrics:   observability.NewTimerMetrics(prometheus.NewRegistry()),
	})
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = primaryTr.Close()
		_ = popoutTr.Close()
	})

	return &fixture{
		clock:     clock,
		meeting:   m,
		store:     st,
		primary:   p,
		primaryTr: primaryTr,
		popoutTr:  popoutTr,
	}
}

func (f *fixture) newSecondary(t *testing.T) (*Secondary, *timer.SpeakingTimer) {
	t.Helper()
	tmr := timer.New(timer.WithClock(f.clock.Now))
	s, err := NewSecondary(SecondaryDeps{
		Session:   f.meeting.Session,
		Timer:     tmr,
		Store:     f.store,
		Transport: f.popoutTr,
		Logger:    logging.NewNopLogger(),
		EndDelay:  time.Millisecond,
	})
	require.NoError(t, err)
	return s, tmr
}

func recv(t *testing.T, tr channel.Transport) channel.Envelope {
	t.Helper()
	select {
	case env, ok := <-tr.Receive():
		require.True(t, ok, "transport closed")
		return env
	case <-time.After(time.Second):
		t.Fatal("no envelope received")
	}
	return channel.Envelope{}
}

func assertNoEnvelope(t *testing.T, tr channel.Transport) {
	t.Helper()
	select {
	case env := <-tr.Receive():
		t.Fatalf("unexpected envelope %q", env.Type)
	default:
	}
}

func TestPrimaryStartPauseCommitsSample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryMen, false))
	f.clock.Advance(65 * time.Second)
	require.NoError(t, f.primary.PauseSpeaking(ctx, false))

	snap := f.primary.Snapshot()
	require.Len(t, snap.SpeakingData[meeting.CategoryMen], 1)
	assert.InDelta(t, 65.0, snap.SpeakingData[meeting.CategoryMen][0], 0.01)
	assert.Nil(t, snap.CurrentSpeaker)
	assert.Nil(t, snap.StartTime)
}

func TestPrimarySwitchCommitsPriorSample(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryMen, false))
	f.clock.Advance(30 * time.Second)
	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryWomen, false))

	snap := f.primary.Snapshot()
	require.Len(t, snap.SpeakingData[meeting.CategoryMen], 1)
	assert.InDelta(t, 30.0, snap.SpeakingData[meeting.CategoryMen][0], 0.01)
	assert.Empty(t, snap.SpeakingData[meeting.CategoryWomen])
	require.NotNil(t, snap.CurrentSpeaker)
	assert.Equal(t, meeting.CategoryWomen, *snap.CurrentSpeaker)

	// The committed sample and in-progress speaker reached the store
	// before any notification could have gone out.
	persisted, err := f.store.LoadCurrentMeeting(ctx)
	require.NoError(t, err)
	require.Len(t, persisted.SpeakingData[meeting.CategoryMen], 1)
	require.NotNil(t, persisted.CurrentSpeaker)
	assert.Equal(t, meeting.CategoryWomen, *persisted.CurrentSpeaker)
	require.NotNil(t, persisted.StartTime)
}

func TestPrimaryRejectsEmptyCategory(t *testing.T) {
	f := newFixture(t)

	err := f.primary.StartSpeaking(context.Background(), meeting.CategoryNonbinary, false)
	assert.True(t, aterrors.IsValidation(err))

	snap := f.primary.Snapshot()
	assert.Nil(t, snap.CurrentSpeaker)
}

func TestPrimaryDuplicateStartIsNoop(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryMen, false))
	f.clock.Advance(10 * time.Second)
	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryMen, false))

	snap := f.primary.Snapshot()
	assert.Empty(t, snap.SpeakingData[meeting.CategoryMen])
	require.NotNil(t, snap.CurrentSpeaker)
	assert.Equal(t, meeting.CategoryMen, *snap.CurrentSpeaker)
}

func TestPrimaryPauseWhileIdleIsNoop(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.primary.PauseSpeaking(context.Background(), false))

	snap := f.primary.Snapshot()
	for _, c := range meeting.Categories() {
		assert.Empty(t, snap.SpeakingData[c])
	}
}

func TestPrimaryEndMeeting(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryWomen, false))
	f.clock.Advance(42 * time.Second)
	require.NoError(t, f.primary.EndMeeting(ctx, false))

	snap := f.primary.Snapshot()
	assert.False(t, snap.Active)
	require.Len(t, snap.SpeakingData[meeting.CategoryWomen], 1)
	assert.InDelta(t, 42.0, snap.SpeakingData[meeting.CategoryWomen][0], 0.01)

	completed, err := f.store.LoadCompletedMeeting(ctx)
	require.NoError(t, err)
	assert.False(t, completed.Active)

	select {
	case <-f.primary.Ended():
	default:
		t.Fatal("Ended not signalled")
	}

	err = f.primary.EndMeeting(ctx, false)
	assert.True(t, aterrors.IsMeetingEnded(err))
	err = f.primary.StartSpeaking(ctx, meeting.CategoryMen, false)
	assert.True(t, aterrors.IsMeetingEnded(err))
}

func TestPrimaryNotifySendsSpeakerChanged(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.primary.StartSpeaking(context.Background(), meeting.CategoryMen, true))

	env := recv(t, f.popoutTr)
	assert.Equal(t, channel.KindSpeakerChanged, env.Type)
	assert.Equal(t, f.meeting.Session, env.Origin)

	msg, err := channel.Decode(env, f.meeting.Session)
	require.NoError(t, err)
	assert.Equal(t, meeting.CategoryMen, msg.SpeakerChanged.Gender)
}

func TestPrimaryRepliesToWindowReady(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryMen, false))
	f.clock.Advance(25 * time.Second)

	ready, err := channel.NewEnvelope(channel.KindWindowReady, f.meeting.Session, nil)
	require.NoError(t, err)
	require.NoError(t, f.primary.HandleMessage(ctx, ready))

	env := recv(t, f.popoutTr)
	require.Equal(t, channel.KindWindowInit, env.Type)
	msg, err := channel.Decode(env, f.meeting.Session)
	require.NoError(t, err)

	assert.Equal(t, "Retro", msg.Init.MeetingName)
	assert.True(t, msg.Init.VisibleButtons[meeting.CategoryMen])
	assert.True(t, msg.Init.VisibleButtons[meeting.CategoryWomen])
	assert.False(t, msg.Init.VisibleButtons[meeting.CategoryNonbinary])
	require.NotNil(t, msg.Init.CurrentSpeaker)
	assert.Equal(t, meeting.CategoryMen, *msg.Init.CurrentSpeaker)
	assert.InDelta(t, 25.0, msg.Init.ElapsedTime, 0.01)
}

func TestPrimaryDropsWrongOrigin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := channel.NewEnvelope(channel.KindSpeakerChanged, "intruder",
		channel.SpeakerChangedData{Gender: meeting.CategoryMen})
	require.NoError(t, err)

	err = f.primary.HandleMessage(ctx, env)
	assert.True(t, aterrors.IsOriginMismatch(err))

	snap := f.primary.Snapshot()
	assert.Nil(t, snap.CurrentSpeaker)
	assertNoEnvelope(t, f.popoutTr)
}

func TestPrimaryDropsUnknownKind(t *testing.T) {
	f := newFixture(t)

	env, err := channel.NewEnvelope(channel.Kind("window.destroy"), f.meeting.Session, nil)
	require.NoError(t, err)

	err = f.primary.HandleMessage(context.Background(), env)
	assert.True(t, aterrors.IsMalformed(err))
}

func TestPrimaryAppliesPopoutActionWithoutEcho(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	env, err := channel.NewEnvelope(channel.KindSpeakerChanged, f.meeting.Session,
		channel.SpeakerChangedData{Gender: meeting.CategoryWomen})
	require.NoError(t, err)
	require.NoError(t, f.primary.HandleMessage(ctx, env))

	snap := f.primary.Snapshot()
	require.NotNil(t, snap.CurrentSpeaker)
	assert.Equal(t, meeting.CategoryWomen, *snap.CurrentSpeaker)

	// The transition came from the popout; it must not be echoed back.
	assertNoEnvelope(t, f.popoutTr)
}

func TestPrimaryResumesPersistedTurn(t *testing.T) {
	clock := newFakeClock()
	m := newActiveMeeting()
	cat := meeting.CategoryMen
	start := clock.Now().Add(-40 * time.Second)
	m.CurrentSpeaker = &cat
	m.StartTime = &start

	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	primaryTr, _ := channel.NewLoopbackPair()
	tm := timer.New(timer.WithClock(clock.Now))

	p, err := NewPrimary(PrimaryDeps{
		Meeting:   m,
		Timer:     tm,
		Store:     st,
		Transport: primaryTr,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)

	elapsed, ok := tm.CurrentDuration()
	require.True(t, ok)
	assert.InDelta(t, 40.0, elapsed, 0.01)

	clock.Advance(20 * time.Second)
	require.NoError(t, p.PauseSpeaking(context.Background(), false))
	snap := p.Snapshot()
	require.Len(t, snap.SpeakingData[meeting.CategoryMen], 1)
	assert.InDelta(t, 60.0, snap.SpeakingData[meeting.CategoryMen][0], 0.01)
}

func TestPrimaryResumeClampsFutureStart(t *testing.T) {
	clock := newFakeClock()
	m := newActiveMeeting()
	cat := meeting.CategoryWomen
	future := clock.Now().Add(time.Hour)
	m.CurrentSpeaker = &cat
	m.StartTime = &future

	st, err := store.NewFileStore(t.TempDir())
	require.NoError(t, err)
	primaryTr, _ := channel.NewLoopbackPair()
	tm := timer.New(timer.WithClock(clock.Now))

	_, err = NewPrimary(PrimaryDeps{
		Meeting:   m,
		Timer:     tm,
		Store:     st,
		Transport: primaryTr,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)

	elapsed, ok := tm.CurrentDuration()
	require.True(t, ok)
	assert.InDelta(t, 0.0, elapsed, 0.01)
}

func TestSecondaryInitAppliesState(t *testing.T) {
	f := newFixture(t)
	s, tmr := f.newSecondary(t)
	ctx := context.Background()

	cat := meeting.CategoryMen
	init, err := channel.NewEnvelope(channel.KindWindowInit, f.meeting.Session, channel.InitData{
		MeetingName: "Retro",
		VisibleButtons: map[meeting.Category]bool{
			meeting.CategoryMen:   true,
			meeting.CategoryWomen: true,
		},
		CurrentSpeaker: &cat,
		ElapsedTime:    17.5,
	})
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(ctx, init))

	assert.Equal(t, "Retro", s.MeetingName())
	cur, ok := s.CurrentSpeaker()
	require.True(t, ok)
	assert.Equal(t, meeting.CategoryMen, cur)
	assert.True(t, s.VisibleCategories()[meeting.CategoryWomen])
	assert.False(t, s.VisibleCategories()[meeting.CategoryNonbinary])

	// A late-attaching popout picks up mid-turn: its display continues
	// from the primary's elapsed time rather than restarting at zero.
	elapsed, running := tmr.CurrentDuration()
	require.True(t, running)
	assert.InDelta(t, 17.5, elapsed, 0.01)

	f.clock.Advance(3 * time.Second)
	elapsed, running = tmr.CurrentDuration()
	require.True(t, running)
	assert.InDelta(t, 20.5, elapsed, 0.01)
}

func TestSecondaryForwardsActions(t *testing.T) {
	f := newFixture(t)
	s, _ := f.newSecondary(t)
	ctx := context.Background()

	require.NoError(t, s.StartSpeaking(ctx, meeting.CategoryWomen))
	env := recv(t, f.primaryTr)
	assert.Equal(t, channel.KindSpeakerChanged, env.Type)

	cur, ok := s.CurrentSpeaker()
	require.True(t, ok)
	assert.Equal(t, meeting.CategoryWomen, cur)

	require.NoError(t, s.PauseSpeaking(ctx))
	env = recv(t, f.primaryTr)
	assert.Equal(t, channel.KindSpeakerPaused, env.Type)
	_, ok = s.CurrentSpeaker()
	assert.False(t, ok)
}

func TestSecondaryDropsWrongOrigin(t *testing.T) {
	f := newFixture(t)
	s, _ := f.newSecondary(t)

	env, err := channel.NewEnvelope(channel.KindWindowInit, "intruder",
		channel.InitData{MeetingName: "Spoofed"})
	require.NoError(t, err)

	err = s.HandleMessage(context.Background(), env)
	assert.True(t, aterrors.IsOriginMismatch(err))
	assert.Empty(t, s.MeetingName())
}

func TestSecondaryMeetingEndedShutsDown(t *testing.T) {
	f := newFixture(t)
	s, _ := f.newSecondary(t)

	env, err := channel.NewEnvelope(channel.KindMeetingEnded, f.meeting.Session, nil)
	require.NoError(t, err)
	require.NoError(t, s.HandleMessage(context.Background(), env))

	select {
	case <-s.Ended():
	default:
		t.Fatal("Ended not signalled")
	}
}

func TestSecondaryFallbackFromStore(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	require.NoError(t, f.store.SaveCurrentMeeting(ctx, f.meeting))

	s, _ := f.newSecondary(t)
	require.NoError(t, s.FallbackFromStore(ctx))
	assert.Equal(t, "Retro", s.MeetingName())

	other, err := NewSecondary(SecondaryDeps{
		Session:   "some-other-session",
		Timer:     timer.New(timer.WithClock(f.clock.Now)),
		Store:     f.store,
		Transport: f.popoutTr,
		Logger:    logging.NewNopLogger(),
	})
	require.NoError(t, err)
	err = other.FallbackFromStore(ctx)
	assert.True(t, aterrors.IsOriginMismatch(err))
}

// Full handshake and meeting flow over the loopback channel, driven from
// both sides, finishing with the fairness report.
func TestMeetingFlowEndToEnd(t *testing.T) {
	f := newFixture(t)
	s, _ := f.newSecondary(t)
	ctx := context.Background()

	// Popout attaches mid-turn.
	require.NoError(t, f.primary.StartSpeaking(ctx, meeting.CategoryMen, false))
	f.clock.Advance(20 * time.Second)

	require.NoError(t, s.Announce(ctx))
	require.NoError(t, f.primary.HandleMessage(ctx, recv(t, f.primaryTr)))
	require.NoError(t, s.HandleMessage(ctx, recv(t, f.popoutTr)))

	cur, ok := s.CurrentSpeaker()
	require.True(t, ok)
	assert.Equal(t, meeting.CategoryMen, cur)

	// Popout switches the speaker; primary commits the men turn.
	f.clock.Advance(10 * time.Second)
	require.NoError(t, s.StartSpeaking(ctx, meeting.CategoryWomen))
	require.NoError(t, f.primary.HandleMessage(ctx, recv(t, f.primaryTr)))
	assertNoEnvelope(t, f.popoutTr)

	// Primary pauses; popout mirrors.
	f.clock.Advance(45 * time.Second)
	require.NoError(t, f.primary.PauseSpeaking(ctx, true))
	require.NoError(t, s.HandleMessage(ctx, recv(t, f.popoutTr)))
	_, ok = s.CurrentSpeaker()
	assert.False(t, ok)

	// Popout ends the meeting; primary finalizes.
	require.NoError(t, s.EndMeeting(ctx))
	require.NoError(t, f.primary.HandleMessage(ctx, recv(t, f.primaryTr)))
	assert.False(t, f.primary.Active())

	completed, err := f.store.LoadCompletedMeeting(ctx)
	require.NoError(t, err)

	report := stats.Calculate(completed)
	assert.InDelta(t, 75.0, report.TotalTime, 0.01)
	require.Len(t, report.Categories, 2)
	assert.Equal(t, meeting.CategoryWomen, report.Categories[0].Category)
	assert.InDelta(t, 45.0, report.Categories[0].SpeakingTime, 0.01)
	assert.InDelta(t, 30.0, report.Categories[0].FairShare, 0.01)
	assert.Equal(t, meeting.CategoryMen, report.Categories[1].Category)
	assert.InDelta(t, 30.0, report.Categories[1].SpeakingTime, 0.01)
	assert.InDelta(t, 45.0, report.Categories[1].FairShare, 0.01)
}
