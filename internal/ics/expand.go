package ics

import (
	"fmt"
	"time"

	"github.com/teambition/rrule-go"

	appLog "discordcal/internal/log"
	"discordcal/internal/model"
)

const (
	// DefaultMaxOccurrences caps how many instances of one recurring event
	// are emitted per document.
	DefaultMaxOccurrences = 15

	// DefaultEventDuration applies to events without an end time.
	DefaultEventDuration = 4 * time.Hour

	// maxFastForwardSteps bounds the skip loop for rules anchored far in the
	// past with tiny steps.
	maxFastForwardSteps = 1_000_000

	// maxStepDays bounds a single step so that date arithmetic stays inside
	// the years time.Date handles without wrapping.
	maxStepDays = 9999 * 366
)

// ExpandConfig controls recurrence expansion.
type ExpandConfig struct {
	// Formatter renders occurrence times. If nil, plain UTC is used.
	Formatter *DateFormatter

	// DefaultDuration is used when an event has no end. If zero,
	// DefaultEventDuration is used.
	DefaultDuration time.Duration

	// MaxOccurrences is taken literally: zero yields no occurrences for
	// recurring events. Negative values select DefaultMaxOccurrences.
	MaxOccurrences int
}

// Expander turns event records into concrete occurrences.
type Expander struct {
	cfg ExpandConfig
}

// NewExpander fills defaults into cfg.
func NewExpander(cfg ExpandConfig) *Expander {
	if cfg.Formatter == nil {
		cfg.Formatter = MustDateFormatter("UTC")
	}
	if cfg.DefaultDuration <= 0 {
		cfg.DefaultDuration = DefaultEventDuration
	}
	if cfg.MaxOccurrences < 0 {
		cfg.MaxOccurrences = DefaultMaxOccurrences
	}
	return &Expander{cfg: cfg}
}

// Expand returns the occurrences of ev that start at or after now.
//
//   - Non-recurring events yield exactly one occurrence at their own start,
//     regardless of now.
//   - Recurring events step from the rule's own start, skip every position
//     before now, then record up to MaxOccurrences positions.
//   - Each exception replaces the slot whose nominal start is nearest to the
//     exception's start. Ties go to the earliest slot. The replacement keeps
//     the event's duration.
//
// The result is in chronological order of the nominal slots.
func (x *Expander) Expand(ev model.Event, now time.Time) ([]model.Occurrence, error) {
	if err := validateEvent(ev); err != nil {
		return nil, err
	}

	duration := ev.Duration(x.cfg.DefaultDuration)

	if ev.Recurrence == nil {
		return []model.Occurrence{x.occurrence(ev.Start, duration)}, nil
	}

	rule := *ev.Recurrence
	appLog.Debug("expanding recurring event",
		"event_id", ev.ID,
		"rrule", RuleString(rule),
		"exceptions", len(ev.Exceptions),
	)

	slots, err := x.regularSlots(rule, now)
	if err != nil {
		return nil, &EventError{EventID: ev.ID, Field: "recurrence_rule", Err: err}
	}

	overrides := matchExceptions(slots, ev.Exceptions)

	out := make([]model.Occurrence, 0, len(slots))
	for i, slot := range slots {
		exc, ok := overrides[i]
		if !ok {
			out = append(out, x.occurrence(slot, duration))
			continue
		}
		occ := x.occurrence(exc.Start, duration)
		occ.IsException = true
		occ.ExceptionID = exc.ID
		occ.Canceled = exc.Canceled
		out = append(out, occ)
	}
	return out, nil
}

func (x *Expander) occurrence(start time.Time, duration time.Duration) model.Occurrence {
	end := start.Add(duration)
	return model.Occurrence{
		Start:     start,
		End:       end,
		StartText: x.cfg.Formatter.Format(start),
		EndText:   x.cfg.Formatter.Format(end),
	}
}

// regularSlots computes the nominal start of every emitted slot.
func (x *Expander) regularSlots(rule model.RecurrenceRule, now time.Time) ([]time.Time, error) {
	interval := rule.EffectiveInterval()
	freq := rule.Frequency.Effective()
	if stepDays(freq, interval) > maxStepDays {
		return nil, fmt.Errorf("%w: interval %d too large for %s stepping", ErrDateOverflow, interval, freq)
	}

	cursor := rule.Start.UTC()

	// Fast-forward past history without emitting anything.
	for steps := 0; cursor.Before(now); steps++ {
		if steps >= maxFastForwardSteps {
			return nil, fmt.Errorf("%w: rule start %s did not reach %s within %d steps",
				ErrDateOverflow, rule.Start.Format(time.RFC3339), now.Format(time.RFC3339), maxFastForwardSteps)
		}
		next, err := advance(cursor, freq, interval)
		if err != nil {
			return nil, err
		}
		cursor = next
	}

	slots := make([]time.Time, 0, x.cfg.MaxOccurrences)
	for len(slots) < x.cfg.MaxOccurrences {
		slots = append(slots, cursor)
		if len(slots) == x.cfg.MaxOccurrences {
			break
		}
		next, err := advance(cursor, freq, interval)
		if err != nil {
			return nil, err
		}
		cursor = next
	}
	return slots, nil
}

// advance moves t forward by one interval step in UTC. Day-of-month
// overflow normalizes the way time.Date does (Jan 31 + 1 month = Mar 3).
func advance(t time.Time, freq model.Frequency, interval int) (time.Time, error) {
	var next time.Time
	switch freq {
	case model.FrequencyYearly:
		next = t.AddDate(interval, 0, 0)
	case model.FrequencyMonthly:
		next = t.AddDate(0, interval, 0)
	case model.FrequencyDaily:
		next = t.AddDate(0, 0, interval)
	default:
		next = t.AddDate(0, 0, 7*interval)
	}
	if y := next.Year(); y < 1 || y > 9999 || !next.After(t) {
		return time.Time{}, fmt.Errorf("%w: stepping %s from %s", ErrDateOverflow, freq, t.Format(time.RFC3339))
	}
	return next, nil
}

// stepDays approximates the length of one step in days.
func stepDays(freq model.Frequency, interval int) int {
	switch freq {
	case model.FrequencyYearly:
		if interval > maxStepDays/366 {
			return maxStepDays + 1
		}
		return interval * 366
	case model.FrequencyMonthly:
		if interval > maxStepDays/31 {
			return maxStepDays + 1
		}
		return interval * 31
	case model.FrequencyDaily:
		return interval
	default:
		if interval > maxStepDays/7 {
			return maxStepDays + 1
		}
		return interval * 7
	}
}

// matchExceptions maps slot index to the exception that overrides it.
// A later exception landing on the same slot replaces an earlier one.
func matchExceptions(slots []time.Time, exceptions []model.EventException) map[int]model.EventException {
	out := make(map[int]model.EventException, len(exceptions))
	if len(slots) == 0 {
		return out
	}
	for _, exc := range exceptions {
		best := 0
		bestDiff := absDuration(slots[0].Sub(exc.Start))
		for i := 1; i < len(slots); i++ {
			if d := absDuration(slots[i].Sub(exc.Start)); d < bestDiff {
				best, bestDiff = i, d
			}
		}
		out[best] = exc
	}
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}

func validateEvent(ev model.Event) error {
	switch {
	case ev.Name == "":
		return &EventError{EventID: ev.ID, Field: "name", Err: fmt.Errorf("%w: missing name", ErrInvalidEvent)}
	case ev.Start.IsZero():
		return &EventError{EventID: ev.ID, Field: "scheduled_start_time", Err: fmt.Errorf("%w: missing start time", ErrInvalidEvent)}
	case ev.Recurrence != nil && ev.Recurrence.Start.IsZero():
		return &EventError{EventID: ev.ID, Field: "recurrence_rule.start", Err: fmt.Errorf("%w: missing rule start", ErrInvalidEvent)}
	}
	return nil
}

// RuleString describes rule as the RFC 5545 rule it is equivalent to. It
// is used for diagnostics only.
func RuleString(rule model.RecurrenceRule) string {
	freq := map[model.Frequency]rrule.Frequency{
		model.FrequencyYearly:  rrule.YEARLY,
		model.FrequencyMonthly: rrule.MONTHLY,
		model.FrequencyWeekly:  rrule.WEEKLY,
		model.FrequencyDaily:   rrule.DAILY,
	}[rule.Frequency.Effective()]

	r, err := rrule.NewRRule(rrule.ROption{
		Freq:     freq,
		Interval: rule.EffectiveInterval(),
		Dtstart:  rule.Start.UTC(),
	})
	if err != nil {
		return ""
	}
	return r.String()
}
