package ics

import (
	"fmt"
	"strings"
	"time"
)

const (
	localLayout = "20060102T150405"
	utcLayout   = "20060102T150405Z"
)

// DateFormatter renders instants in the document's local-time form.
//
// A named zone produces "YYYYMMDDTHHMMSS" text that is meant to be paired
// with a TZID parameter. UTC produces the same digits with a trailing "Z"
// and no TZID.
type DateFormatter struct {
	loc *time.Location
	utc bool
}

// NewDateFormatter resolves tz once. An empty name or "UTC" selects the
// plain-UTC form; anything else must be a valid IANA zone name.
func NewDateFormatter(tz string) (*DateFormatter, error) {
	tz = strings.TrimSpace(tz)
	if tz == "" || strings.EqualFold(tz, "UTC") || tz == "Etc/UTC" {
		return &DateFormatter{loc: time.UTC, utc: true}, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("%w: %q: %v", ErrInvalidTimezone, tz, err)
	}
	return &DateFormatter{loc: loc}, nil
}

// MustDateFormatter is NewDateFormatter for zone names known to be valid.
func MustDateFormatter(tz string) *DateFormatter {
	f, err := NewDateFormatter(tz)
	if err != nil {
		panic(err)
	}
	return f
}

// Format converts t into the configured zone, applying the offset in effect
// at that instant.
func (f *DateFormatter) Format(t time.Time) string {
	if f.utc {
		return t.UTC().Format(utcLayout)
	}
	return t.In(f.loc).Format(localLayout)
}

// Named reports whether output is qualified with a TZID.
func (f *DateFormatter) Named() bool {
	return !f.utc
}

// Zone returns the IANA name, or "UTC".
func (f *DateFormatter) Zone() string {
	if f.utc {
		return "UTC"
	}
	return f.loc.String()
}

// Location returns the resolved zone.
func (f *DateFormatter) Location() *time.Location {
	return f.loc
}
