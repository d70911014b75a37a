package model

import "time"

// Frequency is the numeric recurrence frequency used by Discord scheduled
// events.
type Frequency int

const (
	FrequencyYearly  Frequency = 0
	FrequencyMonthly Frequency = 1
	FrequencyWeekly  Frequency = 2
	FrequencyDaily   Frequency = 3
)

// FallbackFrequency is the stepping used for frequency codes we do not
// recognize. Older payloads carry such codes and are treated as weekly.
const FallbackFrequency = FrequencyWeekly

// Known reports whether f is one of the four supported codes.
func (f Frequency) Known() bool {
	switch f {
	case FrequencyYearly, FrequencyMonthly, FrequencyWeekly, FrequencyDaily:
		return true
	}
	return false
}

// Effective returns f, or FallbackFrequency for unknown codes.
func (f Frequency) Effective() Frequency {
	if f.Known() {
		return f
	}
	return FallbackFrequency
}

func (f Frequency) String() string {
	switch f {
	case FrequencyYearly:
		return "yearly"
	case FrequencyMonthly:
		return "monthly"
	case FrequencyWeekly:
		return "weekly"
	case FrequencyDaily:
		return "daily"
	default:
		return "unknown"
	}
}

// RecurrenceRule describes a simple-interval recurrence.
//
// Start is the anchor occurrences are stepped from. It is independent of
// the owning event's Start and must be honored on its own.
//
// The By* refinements and Count are carried so that records round-trip,
// but expansion does not consume them.
type RecurrenceRule struct {
	Start     time.Time
	End       *time.Time
	Frequency Frequency
	Interval  int

	ByWeekday  []int
	ByNWeekday []NWeekday
	ByMonth    []int
	ByMonthDay []int
	ByYearDay  []int
	Count      *int
}

// NWeekday is the "n-th weekday of the month" refinement.
type NWeekday struct {
	N   int
	Day int
}

// EffectiveInterval returns the interval, defaulting to 1.
func (r RecurrenceRule) EffectiveInterval() int {
	if r.Interval <= 0 {
		return 1
	}
	return r.Interval
}

// EventException is an organizer override of one occurrence of a recurring
// event: either a new time or a cancellation.
type EventException struct {
	ID       string
	EventID  string
	Start    time.Time
	End      time.Time
	Canceled bool
}

// Event is a scheduled event before recurrence expansion.
type Event struct {
	ID        string
	GuildID   string
	ChannelID string // empty when the event is not bound to a channel

	// Location is the free-text location of external events.
	Location string

	Name        string
	Description string

	Start time.Time
	// End is optional; a configured default duration applies when nil.
	End *time.Time

	Recurrence *RecurrenceRule
	Exceptions []EventException
}

// Duration returns End - Start, or def when the event has no end.
func (e Event) Duration(def time.Duration) time.Duration {
	if e.End == nil {
		return def
	}
	return e.End.Sub(e.Start)
}

// Occurrence is a single concrete instance of an event after expansion and
// timezone formatting.
type Occurrence struct {
	// Start / End are the absolute instants of this occurrence.
	Start time.Time
	End   time.Time

	// StartText / EndText are formatted for the document's timezone.
	StartText string
	EndText   string

	IsException bool
	ExceptionID string

	// Canceled mirrors the matched exception's flag. Cancellation does not
	// suppress the slot; it is rendered like any other occurrence.
	Canceled bool
}
