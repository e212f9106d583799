// Package milestone defines the closed set of lifecycle stages a company moves
// through during an engagement.
//
// The set is flat: any milestone may follow any other. Every write path
// (interactive update, bulk import) and the export filter validate against
// this package so the allowed values cannot drift between call sites.
package milestone

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalid is returned when a value is not one of the known milestones.
var ErrInvalid = errors.New("invalid milestone")

// Milestone is a stage in the lead journey.
type Milestone string

const (
	NotContacted     Milestone = "not_contacted"
	FirstCall        Milestone = "first_call"
	NotInterested    Milestone = "not_interested"
	EmailSent        Milestone = "email_sent"
	MeetingArranged  Milestone = "meeting_arranged"
	WaitingOnContact Milestone = "waiting_on_contact"
	Successful       Milestone = "successful"
)

// ordered lists milestones in their declared order.
var ordered = []Milestone{
	NotContacted,
	FirstCall,
	NotInterested,
	EmailSent,
	MeetingArranged,
	WaitingOnContact,
	Successful,
}

var labels = map[Milestone]string{
	NotContacted:     "Not yet contacted",
	FirstCall:        "First Call",
	NotInterested:    "Not interested",
	EmailSent:        "Email sent",
	MeetingArranged:  "Meeting arranged",
	WaitingOnContact: "Waiting on Contact",
	Successful:       "Successful",
}

var emojis = map[Milestone]string{
	NotContacted:     "⚪",
	FirstCall:        "🔵",
	NotInterested:    "🔴",
	EmailSent:        "📧",
	MeetingArranged:  "📅",
	WaitingOnContact: "⏳",
	Successful:       "✅",
}

// Default returns the milestone assigned to newly created companies.
func Default() Milestone {
	return NotContacted
}

// All returns every milestone in declared order. The slice is a copy.
func All() []Milestone {
	out := make([]Milestone, len(ordered))
	copy(out, ordered)
	return out
}

// Keys returns the raw values of all milestones in declared order.
func Keys() []string {
	keys := make([]string, len(ordered))
	for i, m := range ordered {
		keys[i] = string(m)
	}
	return keys
}

// IsValid reports whether value is exactly one of the milestone keys.
// Matching is case-sensitive.
func IsValid(value string) bool {
	return Milestone(value).Valid()
}

// Valid reports whether m is one of the defined constants.
func (m Milestone) Valid() bool {
	_, ok := labels[m]
	return ok
}

// Label returns the human-readable name. Unknown values render as-is.
func (m Milestone) Label() string {
	if l, ok := labels[m]; ok {
		return l
	}
	return string(m)
}

// Emoji returns the indicator shown next to the label in the dashboard.
func (m Milestone) Emoji() string {
	if e, ok := emojis[m]; ok {
		return e
	}
	return emojis[NotContacted]
}

// DisplayWithEmoji returns the label prefixed with its indicator.
func (m Milestone) DisplayWithEmoji() string {
	return m.Emoji() + " " + m.Label()
}

// String implements fmt.Stringer.
func (m Milestone) String() string {
	return string(m)
}

// Parse validates value and returns it as a Milestone. The error lists the
// valid options so it can be shown to the caller unchanged.
func Parse(value string) (Milestone, error) {
	m := Milestone(value)
	if !m.Valid() {
		return "", fmt.Errorf("%w %q: must be one of %s", ErrInvalid, value, strings.Join(Keys(), ", "))
	}
	return m, nil
}
