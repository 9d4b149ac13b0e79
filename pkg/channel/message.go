// Package channel carries the cross-process protocol between the primary
// meeting session and the popout remote control. Delivery is best-effort
// and fire-and-forget: no acknowledgment, no retry, no ordering guarantee
// beyond what the transport happens to provide. Each side's local state
// must stay self-consistent if every message after the first is lost.
package channel

import (
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
	"github.com/airtimehq/airtime/pkg/meeting"
)

// Kind identifies a message type. The set is closed; unknown kinds are
// rejected at the decode boundary.
type Kind string

const (
	// KindWindowReady is sent by the popout once it is listening.
	KindWindowReady Kind = "window.ready"
	// KindWindowInit is the primary's reply to window.ready, carrying the
	// full display state so a late-attaching popout synchronizes.
	KindWindowInit Kind = "window.init"
	// KindSpeakerChanged announces a new current speaker.
	KindSpeakerChanged Kind = "speaker.changed"
	// KindSpeakerPaused announces that speaking paused.
	KindSpeakerPaused Kind = "speaker.paused"
	// KindMeetingEnded announces the end of the meeting.
	KindMeetingEnded Kind = "meeting.ended"
)

// Envelope is the wire form of every message.
type Envelope struct {
	ID     string          `json:"id"`
	Type   Kind            `json:"type"`
	Origin string          `json:"origin"`
	Data   json.RawMessage `json:"data"`
}

// InitData is the payload of window.init.
type InitData struct {
	MeetingName    string                    `json:"meetingName"`
	VisibleButtons map[meeting.Category]bool `json:"visibleButtons"`
	CurrentSpeaker *meeting.Category         `json:"currentSpeaker"`
	ElapsedTime    float64                   `json:"elapsedTime"`
}

// SpeakerChangedData is the payload of speaker.changed.
type SpeakerChangedData struct {
	Gender meeting.Category `json:"gender"`
}

// Message is the decoded, validated form handed to coordinator logic.
// Exactly one payload field matching Kind is set.
type Message struct {
	Kind           Kind
	Init           *InitData
	SpeakerChanged *SpeakerChangedData
}

// NewEnvelope builds an envelope with a fresh ID and the sender's origin
// token. payload may be nil for kinds without data.
func NewEnvelope(kind Kind, origin string, payload interface{}) (Envelope, error) {
	data := json.RawMessage("{}")
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return Envelope{}, fmt.Errorf("encoding %s payload: %w", kind, err)
		}
		data = encoded
	}
	return Envelope{
		ID:     uuid.NewString(),
		Type:   kind,
		Origin: origin,
		Data:   data,
	}, nil
}

// Decode validates an inbound envelope against the expected origin token
// and the closed kind set, and decodes the kind-specific payload.
//
// Origin is checked first: an envelope from any other origin is rejected
// with ErrOriginMismatch before its payload is even looked at. This is the
// security boundary every receive point must enforce.
func Decode(env Envelope, expectedOrigin string) (Message, error) {
	if env.Origin != expectedOrigin {
		return Message{}, fmt.Errorf("%w: got %q", aterrors.ErrOriginMismatch, env.Origin)
	}

	switch env.Type {
	case KindWindowReady, KindSpeakerPaused, KindMeetingEnded:
		return Message{Kind: env.Type}, nil

	case KindWindowInit:
		var data InitData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Message{}, fmt.Errorf("%w: %s payload: %v", aterrors.ErrMalformed, env.Type, err)
		}
		if data.CurrentSpeaker != nil {
			if _, err := meeting.ParseCategory(string(*data.CurrentSpeaker)); err != nil {
				return Message{}, fmt.Errorf("%w: %s payload: %v", aterrors.ErrMalformed, env.Type, err)
			}
		}
		return Message{Kind: env.Type, Init: &data}, nil

	case KindSpeakerChanged:
		var data SpeakerChangedData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			return Message{}, fmt.Errorf("%w: %s payload: %v", aterrors.ErrMalformed, env.Type, err)
		}
		if _, err := meeting.ParseCategory(string(data.Gender)); err != nil {
			return Message{}, fmt.Errorf("%w: %s payload: %v", aterrors.ErrMalformed, env.Type, err)
		}
		return Message{Kind: env.Type, SpeakerChanged: &data}, nil
	}

	return Message{}, fmt.Errorf("%w: unknown message kind %q", aterrors.ErrMalformed, env.Type)
}
