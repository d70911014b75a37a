package ics

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"discordcal/internal/model"
)

func newTestBuilder(tz string, policy InvalidEventPolicy) *Builder {
	return NewBuilder(BuilderConfig{
		Formatter:       MustDateFormatter(tz),
		DefaultDuration: 4 * time.Hour,
		MaxOccurrences:  15,
		HexColor:        "#6D87BE",
		InvalidEvents:   policy,
	})
}

func TestBuild_Empty(t *testing.T) {
	b := newTestBuilder("America/New_York", SkipInvalid)

	res, err := b.Build(BuildInput{GuildID: "guild123", GuildName: "Test Guild", Now: utc(2025, 12, 1, 0, 0)})
	require.NoError(t, err)

	want := strings.Join([]string{
		"BEGIN:VCALENDAR",
		"VERSION:2.0",
		"PRODID:-//Test Guild//EN",
		"CALSCALE:GREGORIAN",
		"METHOD:PUBLISH",
		"X-WR-CALNAME:Test Guild",
		"X-WR-TIMEZONE:America/New_York",
		"X-APPLE-CALENDAR-COLOR:#6D87BE",
		"X-PUBLISHED-TTL:PT1H",
		"END:VCALENDAR",
	}, "\r\n")
	assert.Equal(t, want, res.Document)
	assert.Zero(t, res.Entries)
	assert.Empty(t, res.Skipped)
}

func TestBuild_UTCHeaderOmitsTimezone(t *testing.T) {
	b := NewBuilder(BuilderConfig{Formatter: MustDateFormatter("UTC")})
	res, err := b.Build(BuildInput{GuildName: "G", Now: utc(2025, 12, 1, 0, 0)})
	require.NoError(t, err)
	assert.NotContains(t, res.Document, "X-WR-TIMEZONE")
	assert.NotContains(t, res.Document, "X-APPLE-CALENDAR-COLOR")
}

func TestBuild_SingleEventScenario(t *testing.T) {
	b := newTestBuilder("America/New_York", SkipInvalid)
	ev := model.Event{
		ID:          "12345",
		Name:        "Sync",
		Description: "This is a test event.",
		ChannelID:   "67890",
		Start:       utc(2025, 12, 15, 10, 0),
		End:         ptr(utc(2025, 12, 15, 12, 0)),
	}

	res, err := b.Build(BuildInput{
		Events:    []model.Event{ev},
		GuildID:   "guild123",
		GuildName: "Test Guild",
		Channels:  map[string]string{"67890": "Test Channel"},
		Now:       utc(2025, 12, 1, 0, 0),
	})
	require.NoError(t, err)
	doc := res.Document

	assert.Equal(t, 1, res.Entries)
	assert.Contains(t, doc, "\r\nDTSTART;TZID=America/New_York:20251215T050000\r\n")
	assert.Contains(t, doc, "\r\nDTEND;TZID=America/New_York:20251215T070000\r\n")
	assert.Contains(t, doc, "\r\nSUMMARY:Sync\r\n")
	assert.Contains(t, doc, "\r\nDESCRIPTION:This is a test event.\r\n")
	assert.Contains(t, doc, "\r\nLOCATION:Channel: Test Channel\r\n")
	assert.Contains(t, doc, "\r\nUID:f01f37a0@discord-events\r\n")
	assert.True(t, strings.HasPrefix(doc, "BEGIN:VCALENDAR\r\n"))
	assert.True(t, strings.HasSuffix(doc, "\r\nEND:VEVENT\r\nEND:VCALENDAR"))
}

func TestBuild_WeeklyScenario(t *testing.T) {
	b := newTestBuilder("UTC", SkipInvalid)
	ev := weeklyEvent(utc(2025, 12, 1, 9, 0))
	ev.ChannelID = "channel789"

	res, err := b.Build(BuildInput{
		Events:    []model.Event{ev},
		GuildID:   "guild123",
		GuildName: "Test Guild",
		Channels:  map[string]string{"channel789": "Recurrent Channel"},
		Now:       utc(2025, 12, 1, 0, 0),
	})
	require.NoError(t, err)

	assert.Equal(t, 15, strings.Count(res.Document, "BEGIN:VEVENT"))
	assert.Equal(t, 15, res.Entries)
	first := strings.Index(res.Document, "DTSTART:20251201T090000Z")
	second := strings.Index(res.Document, "DTSTART:20251208T090000Z")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)
}

func TestBuild_EventOrderThenOccurrenceOrder(t *testing.T) {
	b := NewBuilder(BuilderConfig{Formatter: MustDateFormatter("UTC"), MaxOccurrences: 2})
	later := model.Event{ID: "b", Name: "Later", Start: utc(2026, 1, 1, 0, 0)}
	series := weeklyEvent(utc(2025, 12, 1, 9, 0))

	res, err := b.Build(BuildInput{Events: []model.Event{later, series}, GuildName: "G", Now: utc(2025, 11, 1, 0, 0)})
	require.NoError(t, err)

	doc := res.Document
	i1 := strings.Index(doc, "SUMMARY:Later")
	i2 := strings.Index(doc, "DTSTART:20251201T090000Z")
	i3 := strings.Index(doc, "DTSTART:20251208T090000Z")
	assert.True(t, i1 < i2 && i2 < i3, "got order %d %d %d", i1, i2, i3)
}

func TestBuild_InvalidEventPolicy(t *testing.T) {
	good := model.Event{ID: "ok", Name: "Fine", Start: utc(2025, 12, 15, 10, 0)}
	bad := model.Event{ID: "bad", Start: utc(2025, 12, 15, 10, 0)}
	overflow := weeklyEvent(utc(2025, 1, 1, 0, 0))
	overflow.ID = "huge"
	overflow.Recurrence.Interval = 1 << 50
	in := BuildInput{Events: []model.Event{bad, good, overflow}, GuildName: "G", Now: utc(2025, 12, 1, 0, 0)}

	t.Run("skip", func(t *testing.T) {
		res, err := newTestBuilder("UTC", SkipInvalid).Build(in)
		require.NoError(t, err)
		assert.Equal(t, 1, res.Entries)
		require.Len(t, res.Skipped, 2)
		assert.Equal(t, "bad", res.Skipped[0].EventID)
		assert.ErrorIs(t, res.Skipped[0], ErrInvalidEvent)
		assert.Equal(t, "huge", res.Skipped[1].EventID)
		assert.ErrorIs(t, res.Skipped[1], ErrDateOverflow)
		assert.Contains(t, res.Document, "SUMMARY:Fine")
	})

	t.Run("fail fast", func(t *testing.T) {
		res, err := newTestBuilder("UTC", FailFast).Build(in)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidEvent)
		assert.Empty(t, res.Document)
	})
}

func TestBuild_FoldsLongLines(t *testing.T) {
	b := newTestBuilder("UTC", SkipInvalid)
	ev := model.Event{
		ID:          "long",
		Name:        strings.Repeat("Long title, with commas; ", 6),
		Description: strings.Repeat("description text ", 20),
		Start:       utc(2025, 12, 15, 10, 0),
	}
	res, err := b.Build(BuildInput{Events: []model.Event{ev}, GuildName: "G", Now: utc(2025, 12, 1, 0, 0)})
	require.NoError(t, err)

	lines := strings.Split(res.Document, "\r\n")
	continuations := 0
	for _, l := range lines {
		assert.LessOrEqual(t, len(l), 75, "line %q", l)
		assert.NotContains(t, l, "\n")
		if strings.HasPrefix(l, " ") {
			continuations++
		}
	}
	assert.Greater(t, continuations, 2)

	unfolded := strings.ReplaceAll(res.Document, "\r\n ", "")
	assert.Contains(t, unfolded, "SUMMARY:"+EscapeText(ev.Name)+"\r\n")
}

func TestBuild_UsesClockWhenNowIsZero(t *testing.T) {
	clock := func() time.Time { return utc(2025, 12, 10, 0, 0) }
	b := NewBuilder(BuilderConfig{Formatter: MustDateFormatter("UTC"), MaxOccurrences: 1, Clock: clock})

	res, err := b.Build(BuildInput{Events: []model.Event{weeklyEvent(utc(2025, 12, 1, 9, 0))}, GuildName: "G"})
	require.NoError(t, err)
	assert.Contains(t, res.Document, "DTSTART:20251215T090000Z")
	assert.Contains(t, res.Document, "DTSTAMP:20251210T000000Z")

	again, err := b.Build(BuildInput{Events: []model.Event{weeklyEvent(utc(2025, 12, 1, 9, 0))}, GuildName: "G"})
	require.NoError(t, err)
	assert.Equal(t, res.Document, again.Document)
}

func TestVerify(t *testing.T) {
	b := newTestBuilder("America/New_York", SkipInvalid)
	ev := weeklyEvent(utc(2025, 12, 1, 9, 0))
	ev.Description = strings.Repeat("folded, escaped; text ", 10)

	res, err := b.Build(BuildInput{Events: []model.Event{ev}, GuildName: "Test Guild", Now: utc(2025, 12, 1, 0, 0)})
	require.NoError(t, err)

	sum, err := Verify(res.Document)
	require.NoError(t, err)
	assert.Equal(t, 15, sum.Events)
	assert.Equal(t, "Test Guild", sum.CalendarName)
	assert.Equal(t, "America/New_York", sum.Timezone)
	assert.Len(t, sum.UIDs, 15)
	assert.Empty(t, sum.DuplicateUIDs)

	_, err = Verify("this is not a calendar\r\n")
	assert.ErrorIs(t, err, ErrMalformedDocument)
}

func TestBuild_InvalidUTF8DoesNotStallBuild(t *testing.T) {
	b := newTestBuilder("UTC", SkipInvalid)
	ev := model.Event{
		ID:          "raw",
		Name:        strings.Repeat("\xbf", 120),
		Description: "ok",
		Start:       utc(2025, 12, 15, 10, 0),
	}

	done := make(chan BuildResult, 1)
	go func() {
		res, _ := b.Build(BuildInput{Events: []model.Event{ev}, GuildName: "G", Now: utc(2025, 12, 1, 0, 0)})
		done <- res
	}()

	select {
	case res := <-done:
		assert.Equal(t, 1, res.Entries)
		for _, l := range strings.Split(res.Document, "\r\n") {
			assert.LessOrEqual(t, len(l), 75)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Build did not return on invalid UTF-8 title")
	}
}

func TestAsEventError_Wrapped(t *testing.T) {
	inner := &EventError{EventID: "inner", Field: "name", Err: ErrInvalidEvent}
	wrapped := fmt.Errorf("expand: %w", inner)

	got := asEventError(model.Event{ID: "outer"}, wrapped)
	assert.Same(t, inner, got)

	plain := asEventError(model.Event{ID: "outer"}, errors.New("boom"))
	assert.Equal(t, "outer", plain.EventID)
	assert.EqualError(t, plain.Err, "boom")
}
