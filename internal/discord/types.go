package discord

import (
	"fmt"
	"time"

	"discordcal/internal/model"
)

// Guild is the subset of GET /guilds/{id} we use.
type Guild struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Channel is the subset of GET /channels/{id} we use.
type Channel struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EntityMetadata carries the location of external events.
type EntityMetadata struct {
	Location string `json:"location,omitempty"`
}

// NWeekday is Discord's {n, day} refinement.
type NWeekday struct {
	N   int `json:"n"`
	Day int `json:"day"`
}

// RecurrenceRule mirrors the wire form of a scheduled event's recurrence.
type RecurrenceRule struct {
	Start      string     `json:"start"`
	End        *string    `json:"end,omitempty"`
	Frequency  int        `json:"frequency"`
	Interval   int        `json:"interval"`
	ByWeekday  []int      `json:"by_weekday,omitempty"`
	ByNWeekday []NWeekday `json:"by_n_weekday,omitempty"`
	ByMonth    []int      `json:"by_month,omitempty"`
	ByMonthDay []int      `json:"by_month_day,omitempty"`
	ByYearDay  []int      `json:"by_year_day,omitempty"`
	Count      *int       `json:"count,omitempty"`
}

// EventException mirrors guild_scheduled_event_exceptions entries.
type EventException struct {
	EventExceptionID   string `json:"event_exception_id"`
	EventID            string `json:"event_id"`
	GuildID            string `json:"guild_id"`
	ScheduledStartTime string `json:"scheduled_start_time"`
	ScheduledEndTime   string `json:"scheduled_end_time"`
	IsCanceled         bool   `json:"is_canceled"`
}

// ScheduledEvent mirrors a guild scheduled event.
type ScheduledEvent struct {
	ID                 string           `json:"id"`
	GuildID            string           `json:"guild_id"`
	ChannelID          *string          `json:"channel_id"`
	CreatorID          string           `json:"creator_id,omitempty"`
	Name               string           `json:"name"`
	Description        string           `json:"description,omitempty"`
	ScheduledStartTime string           `json:"scheduled_start_time"`
	ScheduledEndTime   *string          `json:"scheduled_end_time"`
	PrivacyLevel       int              `json:"privacy_level"`
	Status             int              `json:"status"`
	EntityType         int              `json:"entity_type"`
	EntityID           *string          `json:"entity_id"`
	EntityMetadata     *EntityMetadata  `json:"entity_metadata"`
	UserCount          int              `json:"user_count,omitempty"`
	RecurrenceRule     *RecurrenceRule  `json:"recurrence_rule"`
	Exceptions         []EventException `json:"guild_scheduled_event_exceptions,omitempty"`
}

// ToModel converts the wire event into the generator's input record. A
// missing start time is left zero so the generator can report it; any
// other unparsable timestamp is an error.
func (e ScheduledEvent) ToModel() (model.Event, error) {
	out := model.Event{
		ID:          e.ID,
		GuildID:     e.GuildID,
		Name:        e.Name,
		Description: e.Description,
	}
	if e.ChannelID != nil {
		out.ChannelID = *e.ChannelID
	}
	if e.EntityMetadata != nil {
		out.Location = e.EntityMetadata.Location
	}

	var err error
	if out.Start, err = parseOptionalTime(e.ScheduledStartTime); err != nil {
		return out, fmt.Errorf("event %s: scheduled_start_time: %w", e.ID, err)
	}
	if e.ScheduledEndTime != nil && *e.ScheduledEndTime != "" {
		end, err := parseTime(*e.ScheduledEndTime)
		if err != nil {
			return out, fmt.Errorf("event %s: scheduled_end_time: %w", e.ID, err)
		}
		out.End = &end
	}

	if r := e.RecurrenceRule; r != nil {
		rule := &model.RecurrenceRule{
			Frequency:  model.Frequency(r.Frequency),
			Interval:   r.Interval,
			ByWeekday:  r.ByWeekday,
			ByMonth:    r.ByMonth,
			ByMonthDay: r.ByMonthDay,
			ByYearDay:  r.ByYearDay,
			Count:      r.Count,
		}
		for _, nw := range r.ByNWeekday {
			rule.ByNWeekday = append(rule.ByNWeekday, model.NWeekday{N: nw.N, Day: nw.Day})
		}
		if rule.Start, err = parseOptionalTime(r.Start); err != nil {
			return out, fmt.Errorf("event %s: recurrence_rule.start: %w", e.ID, err)
		}
		if r.End != nil && *r.End != "" {
			end, err := parseTime(*r.End)
			if err != nil {
				return out, fmt.Errorf("event %s: recurrence_rule.end: %w", e.ID, err)
			}
			rule.End = &end
		}
		out.Recurrence = rule
	}

	for _, x := range e.Exceptions {
		start, err := parseTime(x.ScheduledStartTime)
		if err != nil {
			return out, fmt.Errorf("event %s: exception %s: scheduled_start_time: %w", e.ID, x.EventExceptionID, err)
		}
		exc := model.EventException{
			ID:       x.EventExceptionID,
			EventID:  x.EventID,
			Start:    start,
			Canceled: x.IsCanceled,
		}
		if x.ScheduledEndTime != "" {
			if exc.End, err = parseTime(x.ScheduledEndTime); err != nil {
				return out, fmt.Errorf("event %s: exception %s: scheduled_end_time: %w", e.ID, x.EventExceptionID, err)
			}
		}
		out.Exceptions = append(out.Exceptions, exc)
	}
	return out, nil
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}

func parseOptionalTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return parseTime(s)
}
