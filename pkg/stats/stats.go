// Package stats derives fairness statistics from a finalized meeting:
// how speaking time was actually distributed across categories versus how
// participant counts alone would have distributed it.
package stats

import (
	"fmt"
	"sort"
	"strings"

	"github.com/airtimehq/airtime/pkg/meeting"
	"github.com/airtimehq/airtime/pkg/timer"
)

// CategoryStats holds the derived numbers for one category.
type CategoryStats struct {
	Category           meeting.Category `json:"category" yaml:"category"`
	Participants       int              `json:"participants" yaml:"participants"`
	SpeakingTime       float64          `json:"speakingTime" yaml:"speakingTime"`
	Statements         int              `json:"statements" yaml:"statements"`
	AverageStatement   float64          `json:"averageStatement" yaml:"averageStatement"`
	TimePerParticipant float64          `json:"timePerParticipant" yaml:"timePerParticipant"`
	FairShare          float64          `json:"fairShare" yaml:"fairShare"`
	ActualShare        float64          `json:"actualShare" yaml:"actualShare"`
}

// Report is the full fairness report for one meeting.
type Report struct {
	MeetingName       string          `json:"meetingName" yaml:"meetingName"`
	MeetingDate       string          `json:"meetingDate" yaml:"meetingDate"`
	TotalTime         float64         `json:"totalTime" yaml:"totalTime"`
	TotalParticipants int             `json:"totalParticipants" yaml:"totalParticipants"`
	Categories        []CategoryStats `json:"categories" yaml:"categories"`
}

// Calculate derives the report from a finalized meeting. It is a pure
// function of the meeting record.
//
// Categories with zero participants are excluded entirely: they cannot
// have spoken, they get no row, and no per-participant average ever
// divides by their zero count.
func Calculate(m *meeting.Meeting) *Report {
	report := &Report{
		MeetingName:       m.Name,
		MeetingDate:       m.Date,
		TotalTime:         m.AllSpeakingTime(),
		TotalParticipants: m.TotalParticipants(),
	}

	for _, c := range meeting.Categories() {
		count := m.Participants[c]
		if count == 0 {
			continue
		}

		cs := CategoryStats{
			Category:     c,
			Participants: count,
			SpeakingTime: m.TotalSpeakingTime(c),
			Statements:   m.TurnCount(c),
		}
		if cs.Statements > 0 {
			cs.AverageStatement = cs.SpeakingTime / float64(cs.Statements)
		}
		cs.TimePerParticipant = cs.SpeakingTime / float64(count)
		if report.TotalParticipants > 0 {
			cs.FairShare = report.TotalTime * float64(count) / float64(report.TotalParticipants)
		}
		if report.TotalTime > 0 {
			cs.ActualShare = cs.SpeakingTime / report.TotalTime
		}

		report.Categories = append(report.Categories, cs)
	}

	sort.Slice(report.Categories, func(i, j int) bool {
		return report.Categories[i].SpeakingTime > report.Categories[j].SpeakingTime
	})

	return report
}

// RenderText formats the report for terminal output.
func (r *Report) RenderText() string {
	var b strings.Builder

	fmt.Fprintf(&b, "Meeting:  %s (%s)\n", r.MeetingName, r.MeetingDate)
	fmt.Fprintf(&b, "Total speaking time: %s across %d participants\n\n",
		timer.FormatTime(r.TotalTime), r.TotalParticipants)

	if len(r.Categories) == 0 {
		b.WriteString("No categories with participants.\n")
		return b.String()
	}

	fmt.Fprintf(&b, "%-10s %9s %11s %6s %9s %10s %9s\n",
		"CATEGORY", "SPOKE", "SHARE", "TURNS", "AVG/TURN", "PER-HEAD", "FAIR")
	for _, cs := range r.Categories {
		fmt.Fprintf(&b, "%-10s %9s %10.1f%% %6d %9s %10s %9s\n",
			cs.Category,
			timer.FormatTime(cs.SpeakingTime),
			cs.ActualShare*100,
			cs.Statements,
			timer.FormatTime(cs.AverageStatement),
			timer.FormatTime(cs.TimePerParticipant),
			timer.FormatTime(cs.FairShare),
		)
	}

	return b.String()
}
