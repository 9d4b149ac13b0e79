// Package store persists meeting state between processes and across
// restarts. It is the handoff medium between the setup flow, the primary
// coordinator, the popout's cold-start fallback, and the statistics
// report.
//
// Only the primary coordinator writes the current meeting while one is
// active; every other reader must treat what it loads as possibly stale.
package store

import (
	"context"

	"github.com/airtimehq/airtime/pkg/meeting"
)

// Record keys. These name the three persisted records regardless of
// backend.
const (
	KeyCurrentMeeting   = "current-meeting"
	KeySetupMeetingData = "setup-meeting-data"
	KeyCompletedMeeting = "completed-meeting"
)

// SetupData is the record the setup flow hands to meeting construction.
type SetupData struct {
	Name         string                   `json:"name"`
	Date         string                   `json:"date"`
	Participants map[meeting.Category]int `json:"participants"`
}

// Store is the persistence port shared by both coordinators.
type Store interface {
	// SaveCurrentMeeting persists the in-progress meeting.
	SaveCurrentMeeting(ctx context.Context, m *meeting.Meeting) error

	// LoadCurrentMeeting returns the in-progress meeting,
	// errors.ErrNotFound when none exists, or errors.ErrMalformed when
	// the stored data cannot be decoded.
	LoadCurrentMeeting(ctx context.Context) (*meeting.Meeting, error)

	// SaveCompletedMeeting persists the finalized meeting for the
	// statistics report.
	SaveCompletedMeeting(ctx context.Context, m *meeting.Meeting) error

	// LoadCompletedMeeting returns the finalized meeting.
	LoadCompletedMeeting(ctx context.Context) (*meeting.Meeting, error)

	// SaveSetupData persists the setup record.
	SaveSetupData(ctx context.Context, data *SetupData) error

	// LoadSetupData returns the setup record.
	LoadSetupData(ctx context.Context) (*SetupData, error)

	// Clear removes all meeting records. Used once statistics have been
	// consumed or when a new meeting supersedes the old one.
	Clear(ctx context.Context) error
}

// MeetingFromSetup builds a fresh meeting from a setup record.
func MeetingFromSetup(data *SetupData) *meeting.Meeting {
	m := meeting.New(data.Name, data.Date)
	for c, count := range data.Participants {
		m.Participants[c] = count
	}
	m.Normalize()
	return m
}
