package coordinator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/airtimehq/airtime/pkg/channel"
	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/logging"
	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/observability"
	"github.com/airtimehq/airtime/pkg/store"
	"github.com/airtimehq/airtime/pkg/timer"
)

// SecondaryDeps holds the dependencies for a Secondary coordinator.
type SecondaryDeps struct {
	// Session is the origin token of the meeting this popout belongs to.
	Session string
	Timer   *timer.SpeakingTimer
	// Store is read once at cold start when no init reply arrives.
	Store     store.Store
	Transport channel.Transport
	Logger    logging.Logger
	Metrics   *observability.TimerMetrics
	Tracer    *observability.Tracer

	// EndDelay overrides the shutdown delay after sending meeting.ended.
	EndDelay time.Duration
}

// Secondary is the popout remote control. It never owns the meeting
// record: its timer exists purely for display, every user action is
// forwarded to the primary fire-and-forget, and it never commits a
// speaking sample or writes the current-meeting record. If the channel
// dies the secondary keeps showing its last known state; it never
// promotes itself to primary.
type Secondary struct {
	mu        sync.Mutex
	session   string
	timer     *timer.SpeakingTimer
	store     store.Store
	transport channel.Transport
	log       logging.Logger
	metrics   *observability.TimerMetrics
	tracer    *observability.Tracer
	endDelay  time.Duration

	meetingName    string
	visible        map[meeting.Category]bool
	currentSpeaker *meeting.Category
	initialized    bool

	ended     chan struct{}
	endedOnce sync.Once
}

// NewSecondary creates a popout coordinator. Call Announce to request the
// display state from the primary.
func NewSecondary(deps SecondaryDeps) (*Secondary, error) {
	if deps.Session == "" {
		return nil, fmt.Errorf("%w: session token is required", aterrors.ErrValidation)
	}
	if deps.Timer == nil || deps.Transport == nil {
		return nil, fmt.Errorf("%w: timer and transport are required", aterrors.ErrValidation)
	}
	if deps.Logger == nil {
		deps.Logger = logging.NewNopLogger()
	}
	if deps.Tracer == nil {
		deps.Tracer = observability.NewTracer()
	}
	if deps.EndDelay <= 0 {
		deps.EndDelay = EndDelay
	}

	return &Secondary{
		session:   deps.Session,
		timer:     deps.Timer,
		store:     deps.Store,
		transport: deps.Transport,
		log:       deps.Logger.With(logging.F("role", string(channel.RolePopout))),
		metrics:   deps.Metrics,
		tracer:    deps.Tracer,
		endDelay:  deps.EndDelay,
		visible:   make(map[meeting.Category]bool),
		ended:     make(chan struct{}),
	}, nil
}

// Announce publishes window.ready so the primary replies with the full
// display state. Safe to call again if the reply never arrives.
func (s *Secondary) Announce(ctx context.Context) error {
	env, err := channel.NewEnvelope(channel.KindWindowReady, s.session, nil)
	if err != nil {
		return err
	}
	if !send(ctx, s.transport, channel.RolePopout, env, s.log, s.metrics) {
		return fmt.Errorf("%w: ready announcement not sent", aterrors.ErrTransport)
	}
	return nil
}

// FallbackFromStore primes the display from the persisted meeting record.
// Used at cold start when no init reply has arrived; whatever it loads
// may be stale and is overwritten by the first window.init.
func (s *Secondary) FallbackFromStore(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("%w: no store configured", aterrors.ErrNotFound)
	}
	m, err := s.store.LoadCurrentMeeting(ctx)
	if err != nil {
		return err
	}
	if m.Session != s.session {
		return fmt.Errorf("%w: persisted meeting belongs to another session", aterrors.ErrOriginMismatch)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.initialized {
		return nil
	}
	s.meetingName = m.Name
	s.visible = m.VisibleCategories()
	s.applySpeakerLocked(m.CurrentSpeaker, 0)
	s.log.Info("display primed from persisted meeting, awaiting live state")
	return nil
}

// StartSpeaking is a user action in the popout: the local display starts
// immediately and the primary is told to make it authoritative.
func (s *Secondary) StartSpeaking(ctx context.Context, category meeting.Category) error {
	ctx, span := s.tracer.StartTransitionSpan(ctx, observability.SpanStartSpeaking,
		s.session, string(category), true)
	defer span.End()

	s.mu.Lock()
	if len(s.visible) > 0 && !s.visible[category] {
		s.mu.Unlock()
		err := fmt.Errorf("%w: category %q has no participants", aterrors.ErrValidation, category)
		observability.RecordError(span, err)
		return err
	}
	s.applySpeakerLocked(&category, 0)
	s.mu.Unlock()

	env, err := channel.NewEnvelope(channel.KindSpeakerChanged, s.session,
		channel.SpeakerChangedData{Gender: category})
	if err != nil {
		return err
	}
	send(ctx, s.transport, channel.RolePopout, env, s.log, s.metrics)
	return nil
}

// PauseSpeaking is a user action in the popout: stop the local display
// and tell the primary to commit the turn.
func (s *Secondary) PauseSpeaking(ctx context.Context) error {
	ctx, span := s.tracer.StartTransitionSpan(ctx, observability.SpanPauseSpeaking,
		s.session, "", true)
	defer span.End()

	s.mu.Lock()
	s.applySpeakerLocked(nil, 0)
	s.mu.Unlock()

	env, err := channel.NewEnvelope(channel.KindSpeakerPaused, s.session, nil)
	if err != nil {
		return err
	}
	send(ctx, s.transport, channel.RolePopout, env, s.log, s.metrics)
	return nil
}

// EndMeeting asks the primary to finalize the meeting, waits briefly so
// the fire-and-forget send can flush, then shuts the popout down. The
// primary commits the final turn; this side only displays.
func (s *Secondary) EndMeeting(ctx context.Context) error {
	ctx, span := s.tracer.StartTransitionSpan(ctx, observability.SpanEndMeeting,
		s.session, "", true)
	defer span.End()

	env, err := channel.NewEnvelope(channel.KindMeetingEnded, s.session, nil)
	if err != nil {
		return err
	}
	send(ctx, s.transport, channel.RolePopout, env, s.log, s.metrics)

	select {
	case <-time.After(s.endDelay):
	case <-ctx.Done():
	}

	s.shutdown()
	return nil
}

// HandleMessage applies one inbound envelope to the local display.
// Envelopes from the wrong origin and malformed payloads are dropped.
func (s *Secondary) HandleMessage(ctx context.Context, env channel.Envelope) error {
	_, span := s.tracer.StartMessageSpan(ctx, string(channel.RolePopout), string(env.Type))
	defer span.End()

	msg, err := channel.Decode(env, s.session)
	if err != nil {
		reason := recordDrop(err, channel.RolePopout, s.metrics)
		s.log.Warn("dropped inbound message",
			logging.F("reason", reason),
			logging.Err(err))
		observability.RecordError(span, err)
		return err
	}
	if s.metrics != nil {
		s.metrics.MessagesReceivedTotal.WithLabelValues(string(msg.Kind), string(channel.RolePopout)).Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	switch msg.Kind {
	case channel.KindWindowInit:
		s.meetingName = msg.Init.MeetingName
		if msg.Init.VisibleButtons != nil {
			s.visible = msg.Init.VisibleButtons
		}
		s.applySpeakerLocked(msg.Init.CurrentSpeaker, msg.Init.ElapsedTime)
		s.initialized = true
		s.log.Info("display state received",
			logging.F("meeting", s.meetingName))

	case channel.KindSpeakerChanged:
		s.applySpeakerLocked(&msg.SpeakerChanged.Gender, 0)

	case channel.KindSpeakerPaused:
		s.applySpeakerLocked(nil, 0)

	case channel.KindMeetingEnded:
		s.currentSpeaker = nil
		s.shutdown()

	case channel.KindWindowReady:
		// Primary-bound; a popout receiving one ignores it.
	}

	return nil
}

// Run pumps inbound envelopes into HandleMessage until the transport
// closes or the context is cancelled.
func (s *Secondary) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-s.transport.Receive():
			if !ok {
				s.log.Warn("channel closed, display frozen at last known state")
				return
			}
			_ = s.HandleMessage(ctx, env)
		}
	}
}

// Ended is closed once the meeting has ended or the popout shut down.
func (s *Secondary) Ended() <-chan struct{} {
	return s.ended
}

// MeetingName returns the mirrored meeting title.
func (s *Secondary) MeetingName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.meetingName
}

// CurrentSpeaker returns the mirrored current speaker, or ok=false when
// the display shows no one speaking.
func (s *Secondary) CurrentSpeaker() (meeting.Category, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSpeaker == nil {
		return "", false
	}
	return *s.currentSpeaker, true
}

// VisibleCategories returns the mirrored button visibility.
func (s *Secondary) VisibleCategories() map[meeting.Category]bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[meeting.Category]bool, len(s.visible))
	for c, v := range s.visible {
		out[c] = v
	}
	return out
}

// applySpeakerLocked updates the mirrored speaker and the display timer.
// elapsed > 0 resumes mid-interval. Caller must hold s.mu.
func (s *Secondary) applySpeakerLocked(cat *meeting.Category, elapsed float64) {
	if cat == nil {
		s.currentSpeaker = nil
		s.timer.Stop()
	} else {
		c := *cat
		s.currentSpeaker = &c
		if elapsed > 0 {
			s.timer.ResumeWithOffset(c, elapsed)
		} else {
			s.timer.Start(c)
		}
	}

	if s.metrics != nil {
		active := ""
		if s.currentSpeaker != nil {
			active = string(*s.currentSpeaker)
		}
		s.metrics.SetActiveSpeaker(categoryNames(), active)
	}
}

func (s *Secondary) shutdown() {
	s.endedOnce.Do(func() {
		s.timer.Close()
		close(s.ended)
	})
}
