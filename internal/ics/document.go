package ics

import (
	"errors"
	"strings"
	"time"

	appLog "discordcal/internal/log"
	"discordcal/internal/model"
)

// LineBreak terminates every content line.
const LineBreak = "\r\n"

// InvalidEventPolicy decides what Build does with events it cannot expand.
type InvalidEventPolicy string

const (
	// SkipInvalid drops the event, logs it and reports it in BuildResult.
	SkipInvalid InvalidEventPolicy = "skip"
	// FailFast aborts the build with the first *EventError.
	FailFast InvalidEventPolicy = "fail"
)

// BuilderConfig configures document generation.
type BuilderConfig struct {
	Formatter       *DateFormatter
	DefaultDuration time.Duration
	MaxOccurrences  int

	// HexColor is written as X-APPLE-CALENDAR-COLOR when non-empty.
	HexColor string

	// InvalidEvents defaults to SkipInvalid.
	InvalidEvents InvalidEventPolicy

	// Clock supplies the generation time when BuildInput.Now is zero.
	// Defaults to time.Now.
	Clock func() time.Time
}

// BuildInput is everything one document is generated from.
type BuildInput struct {
	Events    []model.Event
	GuildID   string
	GuildName string
	// Channels maps channel ID to display name.
	Channels map[string]string
	// Now is the "generate from" instant. Zero means the builder's clock.
	Now time.Time
}

// BuildResult is the generated document plus bookkeeping.
type BuildResult struct {
	Document string
	Entries  int
	// Skipped lists events dropped under SkipInvalid.
	Skipped []*EventError
}

// Builder composes calendar documents.
type Builder struct {
	cfg      BuilderConfig
	expander *Expander
}

// NewBuilder fills defaults into cfg.
func NewBuilder(cfg BuilderConfig) *Builder {
	if cfg.Formatter == nil {
		cfg.Formatter = MustDateFormatter("UTC")
	}
	if cfg.InvalidEvents == "" {
		cfg.InvalidEvents = SkipInvalid
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	return &Builder{
		cfg: cfg,
		expander: NewExpander(ExpandConfig{
			Formatter:       cfg.Formatter,
			DefaultDuration: cfg.DefaultDuration,
			MaxOccurrences:  cfg.MaxOccurrences,
		}),
	}
}

// Build renders the full document: header, one VEVENT per occurrence of
// every event (event order, then occurrence order) and footer. An empty
// event list is not an error and yields header and footer only.
func (b *Builder) Build(in BuildInput) (BuildResult, error) {
	var result BuildResult

	now := in.Now
	if now.IsZero() {
		now = b.cfg.Clock()
	}

	renderer := &EntryRenderer{Formatter: b.cfg.Formatter, Stamp: now}
	lines := b.header(in.GuildName)

	for _, ev := range in.Events {
		occurrences, err := b.expander.Expand(ev, now)
		if err != nil {
			evErr := asEventError(ev, err)
			if b.cfg.InvalidEvents == FailFast {
				return BuildResult{}, evErr
			}
			appLog.Error("skipping event", evErr, "event_id", ev.ID, "field", evErr.Field)
			result.Skipped = append(result.Skipped, evErr)
			continue
		}
		for i, occ := range occurrences {
			lines = append(lines, renderer.Render(ev, occ, i, in.Channels, in.GuildID)...)
			result.Entries++
		}
	}

	lines = append(lines, "END:VCALENDAR")

	var sb strings.Builder
	for i, line := range lines {
		for j, part := range FoldLine(line) {
			if i > 0 || j > 0 {
				sb.WriteString(LineBreak)
			}
			sb.WriteString(part)
		}
	}
	result.Document = sb.String()
	return result, nil
}

func (b *Builder) header(guildName string) []string {
	lines := []string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//" + EscapeText(guildName) + "//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:" + EscapeText(guildName),
	}
	if b.cfg.Formatter.Named() {
		lines = append(lines, "X-WR-TIMEZONE:"+b.cfg.Formatter.Zone())
	}
	if b.cfg.HexColor != "" {
		lines = append(lines, "X-APPLE-CALENDAR-COLOR:"+b.cfg.HexColor)
	}
	return append(lines, "X-PUBLISHED-TTL:PT1H")
}

func asEventError(ev model.Event, err error) *EventError {
	var evErr *EventError
	if errors.As(err, &evErr) {
		return evErr
	}
	return &EventError{EventID: ev.ID, Err: err}
}
