// Package meeting defines the shared meeting record tracked during a live
// session: participant counts per category, accumulated speaking samples,
// and the in-progress speaker.
package meeting

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	aterrors "github.com/airtimehq/airtime/pkg/errors"
)

// Category is a participant classification over which speaking time is
// tracked. The set is closed and fixed at setup.
type Category string

// The fixed category set. The wire and storage name for the speaker field
// is "gender", matching the persisted schema.
const (
	CategoryMen       Category = "men"
	CategoryWomen     Category = "women"
	CategoryNonbinary Category = "nonbinary"
)

// Categories returns the closed category set in canonical order.
func Categories() []Category {
	return []Category{CategoryMen, CategoryWomen, CategoryNonbinary}
}

// ParseCategory validates a string against the closed category set.
func ParseCategory(s string) (Category, error) {
	switch Category(s) {
	case CategoryMen, CategoryWomen, CategoryNonbinary:
		return Category(s), nil
	}
	return "", fmt.Errorf("%w: unknown category %q", aterrors.ErrValidation, s)
}

// Meeting is the shared data record for one meeting. The primary
// coordinator owns the canonical copy; everything else reads snapshots.
type Meeting struct {
	// Name and Date identify the meeting; set once at setup.
	Name string `json:"name"`
	Date string `json:"date"`

	// Session is the origin token stamped on every cross-process message
	// for this meeting. Minted once at creation, never changes.
	Session string `json:"session"`

	// Participants holds the per-category head count fixed at setup.
	Participants map[Category]int `json:"participants"`

	// SpeakingData holds one duration sample (seconds) per completed
	// speaking turn, appended in turn order. Append-only while active.
	SpeakingData map[Category][]float64 `json:"speakingData"`

	// Active is true from meeting start until the end-meeting commit.
	Active bool `json:"active"`

	// CurrentSpeaker is the in-progress, uncommitted speaker, or nil
	// when paused. Its elapsed time is not in SpeakingData yet.
	CurrentSpeaker *Category `json:"currentSpeaker"`

	// StartTime is the wall-clock instant the in-progress interval began,
	// persisted so a restarted primary can resume mid-interval.
	StartTime *time.Time `json:"startTime,omitempty"`
}

// New creates a meeting with zeroed counts and empty speaking data.
func New(name, date string) *Meeting {
	m := &Meeting{
		Name:         name,
		Date:         date,
		Session:      uuid.NewString(),
		Participants: make(map[Category]int, len(Categories())),
		SpeakingData: make(map[Category][]float64, len(Categories())),
	}
	for _, c := range Categories() {
		m.Participants[c] = 0
		m.SpeakingData[c] = []float64{}
	}
	return m
}

// SetParticipants sets the per-category head counts.
func (m *Meeting) SetParticipants(men, women, nonbinary int) {
	m.Participants[CategoryMen] = men
	m.Participants[CategoryWomen] = women
	m.Participants[CategoryNonbinary] = nonbinary
}

// TotalParticipants returns the head count across all categories.
func (m *Meeting) TotalParticipants() int {
	total := 0
	for _, count := range m.Participants {
		total += count
	}
	return total
}

// TotalSpeakingTime returns the committed speaking seconds for one category.
func (m *Meeting) TotalSpeakingTime(c Category) float64 {
	total := 0.0
	for _, d := range m.SpeakingData[c] {
		total += d
	}
	return total
}

// AllSpeakingTime returns the committed speaking seconds across categories.
func (m *Meeting) AllSpeakingTime() float64 {
	total := 0.0
	for _, c := range Categories() {
		total += m.TotalSpeakingTime(c)
	}
	return total
}

// AddSample appends one completed speaking turn for a category.
func (m *Meeting) AddSample(c Category, seconds float64) {
	if m.SpeakingData == nil {
		m.SpeakingData = make(map[Category][]float64)
	}
	m.SpeakingData[c] = append(m.SpeakingData[c], seconds)
}

// Selectable reports whether a category may be chosen as speaker.
// A category with no participants must not be selectable.
func (m *Meeting) Selectable(c Category) bool {
	return m.Participants[c] > 0
}

// VisibleCategories maps each category to whether it should be offered in
// the UI, derived from the participant counts.
func (m *Meeting) VisibleCategories() map[Category]bool {
	visible := make(map[Category]bool, len(Categories()))
	for _, c := range Categories() {
		visible[c] = m.Selectable(c)
	}
	return visible
}

// Validate checks the invariants a meeting must satisfy before it starts.
func (m *Meeting) Validate() error {
	if m.Name == "" {
		return fmt.Errorf("%w: meeting name required", aterrors.ErrValidation)
	}
	if m.Date == "" {
		return fmt.Errorf("%w: meeting date required", aterrors.ErrValidation)
	}
	if _, err := time.Parse("2006-01-02", m.Date); err != nil {
		return fmt.Errorf("%w: date must be YYYY-MM-DD", aterrors.ErrValidation)
	}
	for c, count := range m.Participants {
		if count < 0 {
			return fmt.Errorf("%w: negative participant count for %s", aterrors.ErrValidation, c)
		}
	}
	if m.TotalParticipants() < 2 {
		return fmt.Errorf("%w: a meeting needs at least two participants", aterrors.ErrValidation)
	}
	if m.CurrentSpeaker != nil && !m.Selectable(*m.CurrentSpeaker) {
		return fmt.Errorf("%w: current speaker %s has no participants", aterrors.ErrValidation, *m.CurrentSpeaker)
	}
	return nil
}

// Normalize fills defaults for fields missing from stored data, so partial
// or older records round-trip into a usable meeting.
func (m *Meeting) Normalize() {
	if m.Session == "" {
		m.Session = uuid.NewString()
	}
	if m.Participants == nil {
		m.Participants = make(map[Category]int, len(Categories()))
	}
	if m.SpeakingData == nil {
		m.SpeakingData = make(map[Category][]float64, len(Categories()))
	}
	for _, c := range Categories() {
		if _, ok := m.Participants[c]; !ok {
			m.Participants[c] = 0
		}
		if _, ok := m.SpeakingData[c]; !ok {
			m.SpeakingData[c] = []float64{}
		}
	}
	if m.CurrentSpeaker == nil {
		m.StartTime = nil
	}
}

// TurnCount returns the number of completed speaking turns for a category.
func (m *Meeting) TurnCount(c Category) int {
	return len(m.SpeakingData[c])
}

// Clone returns a deep copy, safe to hand to another goroutine.
func (m *Meeting) Clone() *Meeting {
	cp := *m
	cp.Participants = make(map[Category]int, len(m.Participants))
	for c, n := range m.Participants {
		cp.Participants[c] = n
	}
	cp.SpeakingData = make(map[Category][]float64, len(m.SpeakingData))
	for c, samples := range m.SpeakingData {
		cp.SpeakingData[c] = append([]float64(nil), samples...)
	}
	if m.CurrentSpeaker != nil {
		speaker := *m.CurrentSpeaker
		cp.CurrentSpeaker = &speaker
	}
	if m.StartTime != nil {
		start := *m.StartTime
		cp.StartTime = &start
	}
	return &cp
}
