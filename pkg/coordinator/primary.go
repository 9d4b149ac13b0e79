package coordinator

import (
	"context"
	"fmt"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/airtimehq/airtime/pkg/channel"
	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/logging"
	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/observability"
	"github.com/airtimehq/airtime/pkg/store"
	"github.com/airtimehq/airtime/pkg/timer"
)

// PrimaryDeps holds the dependencies for a Primary coordinator.
type PrimaryDeps struct {
	Meeting   *meeting.Meeting
	Timer     *timer.SpeakingTimer
	Store     store.Store
	Transport channel.Transport
	Logger    logging.Logger
	Metrics   *observability.TimerMetrics
	Tracer    *observability.Tracer
}

// Primary is the authoritative coordinator. It owns the meeting record:
// all speaking samples are committed here and nowhere else, and it is the
// only writer of the current-meeting record while the meeting is active.
type Primary struct {
	mu        sync.Mutex
	meeting   *meeting.Meeting
	timer     *timer.SpeakingTimer
	store     store.Store
	transport channel.Transport
	log       logging.Logger
	metrics   *observability.TimerMetrics
	tracer    *observability.Tracer

	ended     chan struct{}
	endedOnce sync.Once
}

// NewPrimary creates the primary coordinator over an active meeting.
//
// If the meeting record carries an in-progress turn (a crash or restart
// mid-interval), the timer resumes from the persisted start instant so no
// speaking time is lost.
func NewPrimary(deps PrimaryDeps) (*Primary, error) {
	if deps.Meeting == nil {
		return nil, fmt.Errorf("%w: meeting is required", aterrors.ErrValidation)
	}
	if err := deps.Meeting.Validate(); err != nil {
		return nil, err
	}
	if !deps.Meeting.Active {
		return nil, fmt.Errorf("%w: meeting %q is not active", aterrors.ErrMeetingEnded, deps.Meeting.Name)
	}
	if deps.Timer == nil || deps.Store == nil || deps.Transport == nil {
		return nil, fmt.Errorf("%w: timer, store and transport are required", aterrors.ErrValidation)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}

	p := &Primary{
		meeting:   deps.Meeting,
		timer:     deps.Timer,
		store:     deps.Store,
		transport: deps.Transport,
		log:       deps.Logger.With(logging.F("role", string(channel.RolePrimary))),
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		ended:     make(chan struct{}),
	}

	if cur := p.meeting.CurrentSpeaker; cur != nil {
		if p.meeting.StartTime != nil {
			p.timer.ResumeFrom(*cur, *p.meeting.StartTime)
		} else {
			p.timer.Start(*cur)
		}
		p.log.Info("resumed in-progress turn",
			logging.F("category", string(*cur)))
	}
	p.setGauge()

	return p, nil
}

// StartSpeaking makes category the current speaker. A running turn for
// another speaker is committed first, then the new interval starts, the
// meeting is persisted, and only then is the peer notified. notify=false
// is used for transitions triggered by a peer message, so the peer never
// receives an echo of its own action.
func (p *Primary) StartSpeaking(ctx context.Context, category meeting.Category, notify bool) error {
	ctx, span := p.tracer.StartTransitionSpan(ctx, observability.SpanStartSpeaking,
		p.meeting.Session, string(category), notify)
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.meeting.Active {
		err := fmt.Errorf("%w: cannot start speaking", aterrors.ErrMeetingEnded)
		observability.RecordError(span, err)
		return err
	}
	if !p.meeting.Selectable(category) {
		err := fmt.Errorf("%w: category %q has no participants", aterrors.ErrValidation, category)
		observability.RecordError(span, err)
		return err
	}
	if cur := p.meeting.CurrentSpeaker; cur != nil && *cur == category {
		// Already speaking; duplicate start from a racing message.
		return nil
	}

	p.commitLocked(span)

	p.timer.Start(category)
	cat := category
	p.meeting.CurrentSpeaker = &cat
	if start, ok := p.timer.StartInstant(); ok {
		p.meeting.StartTime = &start
	}
	p.setGauge()
	p.persistLocked(ctx)

	p.log.Info("speaker started", logging.F("category", string(category)))

	if notify {
		env, err := channel.NewEnvelope(channel.KindSpeakerChanged, p.meeting.Session,
			channel.SpeakerChangedData{Gender: category})
		if err == nil {
			send(ctx, p.transport, channel.RolePrimary, env, p.log, p.metrics)
		}
	}
	return nil
}

// PauseSpeaking commits the current turn and returns to idle. Pausing
// while idle is a no-op.
func (p *Primary) PauseSpeaking(ctx context.Context, notify bool) error {
	ctx, span := p.tracer.StartTransitionSpan(ctx, observability.SpanPauseSpeaking,
		p.meeting.Session, "", notify)
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.meeting.Active {
		err := fmt.Errorf("%w: cannot pause", aterrors.ErrMeetingEnded)
		observability.RecordError(span, err)
		return err
	}

	committed := p.commitLocked(span)
	p.setGauge()
	p.persistLocked(ctx)

	if committed {
		p.log.Info("speaker paused")
	}

	if notify {
		env, err := channel.NewEnvelope(channel.KindSpeakerPaused, p.meeting.Session, nil)
		if err == nil {
			send(ctx, p.transport, channel.RolePrimary, env, p.log, p.metrics)
		}
	}
	return nil
}

// EndMeeting commits any running turn, finalizes the meeting record, and
// notifies the peer. Ending twice returns ErrMeetingEnded.
func (p *Primary) EndMeeting(ctx context.Context, notify bool) error {
	ctx, span := p.tracer.StartTransitionSpan(ctx, observability.SpanEndMeeting,
		p.meeting.Session, "", notify)
	defer span.End()

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.meeting.Active {
		err := fmt.Errorf("%w: already ended", aterrors.ErrMeetingEnded)
		observability.RecordError(span, err)
		return err
	}

	p.commitLocked(span)
	p.meeting.Active = false
	p.setGauge()

	p.persistLocked(ctx)
	if err := p.store.SaveCompletedMeeting(ctx, p.meeting); err != nil {
		p.log.Error("completed meeting not saved, statistics may be unavailable", logging.Err(err))
		if p.metrics != nil {
			p.metrics.StoreWritesTotal.WithLabelValues(store.KeyCompletedMeeting, "error").Inc()
		}
	} else if p.metrics != nil {
		p.metrics.StoreWritesTotal.WithLabelValues(store.KeyCompletedMeeting, "ok").Inc()
	}

	turns := 0
	for _, c := range meeting.Categories() {
		turns += p.meeting.TurnCount(c)
	}
	p.log.Info("meeting ended",
		logging.F("totalSeconds", p.meeting.AllSpeakingTime()),
		logging.F("turns", turns))

	if notify {
		env, err := channel.NewEnvelope(channel.KindMeetingEnded, p.meeting.Session, nil)
		if err == nil {
			send(ctx, p.transport, channel.RolePrimary, env, p.log, p.metrics)
		}
	}

	p.endedOnce.Do(func() { close(p.ended) })
	return nil
}

// HandleMessage applies one inbound envelope. Envelopes from the wrong
// origin and malformed payloads are dropped without touching state.
func (p *Primary) HandleMessage(ctx context.Context, env channel.Envelope) error {
	ctx, span := p.tracer.StartMessageSpan(ctx, string(channel.RolePrimary), string(env.Type))
	defer span.End()

	msg, err := channel.Decode(env, p.meeting.Session)
	if err != nil {
		reason := recordDrop(err, channel.RolePrimary, p.metrics)
		p.log.Warn("dropped inbound message",
			logging.F("reason", reason),
			logging.Err(err))
		observability.RecordError(span, err)
		return err
	}
	if p.metrics != nil {
		p.metrics.MessagesReceivedTotal.WithLabelValues(string(msg.Kind), string(channel.RolePrimary)).Inc()
	}

	switch msg.Kind {
	case channel.KindWindowReady:
		return p.sendInit(ctx)

	case channel.KindSpeakerChanged:
		return p.StartSpeaking(ctx, msg.SpeakerChanged.Gender, false)

	case channel.KindSpeakerPaused:
		return p.PauseSpeaking(ctx, false)

	case channel.KindMeetingEnded:
		return p.EndMeeting(ctx, false)
	}

	// window.init is popout-bound; a primary receiving one ignores it.
	return nil
}

// sendInit replies to window.ready with the full display state.
func (p *Primary) sendInit(ctx context.Context) error {
	p.mu.Lock()
	data := channel.InitData{
		MeetingName:    p.meeting.Name,
		VisibleButtons: p.meeting.VisibleCategories(),
		CurrentSpeaker: p.meeting.CurrentSpeaker,
	}
	if p.meeting.CurrentSpeaker != nil {
		if elapsed, ok := p.timer.CurrentDuration(); ok {
			data.ElapsedTime = elapsed
		}
	}
	p.mu.Unlock()

	env, err := channel.NewEnvelope(channel.KindWindowInit, p.meeting.Session, data)
	if err != nil {
		return err
	}
	send(ctx, p.transport, channel.RolePrimary, env, p.log, p.metrics)
	p.log.Info("popout attached, state sent")
	return nil
}

// Run pumps inbound envelopes into HandleMessage until the transport
// closes or the context is cancelled.
func (p *Primary) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-p.transport.Receive():
			if !ok {
				return
			}
			// Drop errors are already logged and counted.
			_ = p.HandleMessage(ctx, env)
		}
	}
}

// Ended is closed once the meeting has been finalized.
func (p *Primary) Ended() <-chan struct{} {
	return p.ended
}

// Active reports whether the meeting is still in progress.
func (p *Primary) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meeting.Active
}

// Snapshot returns an independent copy of the meeting record.
func (p *Primary) Snapshot() *meeting.Meeting {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.meeting.Clone()
}

// commitLocked stops the running interval, if any, and appends its
// duration to the current speaker's samples. Caller must hold p.mu.
// Returns true when a sample was committed.
func (p *Primary) commitLocked(span trace.Span) bool {
	cur := p.meeting.CurrentSpeaker
	seconds, ok := p.timer.Stop()
	if !ok || cur == nil {
		p.meeting.CurrentSpeaker = nil
		p.meeting.StartTime = nil
		return false
	}

	p.meeting.AddSample(*cur, seconds)
	p.meeting.CurrentSpeaker = nil
	p.meeting.StartTime = nil

	if p.metrics != nil {
		p.metrics.SamplesCommittedTotal.WithLabelValues(string(*cur)).Inc()
		p.metrics.SpeakingSeconds.WithLabelValues(string(*cur)).Observe(seconds)
	}
	observability.RecordCommit(span, string(*cur), seconds)
	p.log.Debug("sample committed",
		logging.F("category", string(*cur)),
		logging.F("seconds", seconds))
	return true
}

// persistLocked writes the meeting record. A failed write is logged and
// counted but never blocks the transition: the in-memory record stays
// authoritative and the next transition retries the write.
func (p *Primary) persistLocked(ctx context.Context) {
	if err := p.store.SaveCurrentMeeting(ctx, p.meeting); err != nil {
		p.log.Error("meeting record not persisted", logging.Err(err))
		if p.metrics != nil {
			p.metrics.StoreWritesTotal.WithLabelValues(store.KeyCurrentMeeting, "error").Inc()
		}
		return
	}
	if p.metrics != nil {
		p.metrics.StoreWritesTotal.WithLabelValues(store.KeyCurrentMeeting, "ok").Inc()
	}
}

func (p *Primary) setGauge() {
	if p.metrics == nil {
		return
	}
	active := ""
	if p.meeting.Active && p.meeting.CurrentSpeaker != nil {
		active = string(*p.meeting.CurrentSpeaker)
	}
	p.metrics.SetActiveSpeaker(categoryNames(), active)
}
