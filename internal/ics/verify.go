package ics

import (
	"fmt"
	"strings"

	ical "github.com/arran4/golang-ical"
)

// Summary describes a parsed calendar document.
type Summary struct {
	CalendarName string
	Timezone     string
	Events       int
	UIDs         []string
	// DuplicateUIDs lists UIDs seen more than once.
	DuplicateUIDs []string
}

// Verify parses doc back with an independent iCalendar parser and checks
// that every VEVENT carries a UID and a DTSTART. It is run on each
// generated document before it is persisted.
func Verify(doc string) (Summary, error) {
	var sum Summary

	if !strings.HasSuffix(doc, LineBreak) {
		doc += LineBreak
	}
	cal, err := ical.ParseCalendar(strings.NewReader(doc))
	if err != nil {
		return sum, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}

	for _, p := range cal.CalendarProperties {
		switch p.IANAToken {
		case "X-WR-CALNAME":
			sum.CalendarName = p.Value
		case "X-WR-TIMEZONE":
			sum.Timezone = p.Value
		}
	}

	seen := make(map[string]int)
	for i, ve := range cal.Events() {
		uidProp := ve.GetProperty(ical.ComponentPropertyUniqueId)
		if uidProp == nil || uidProp.Value == "" {
			return sum, fmt.Errorf("%w: vevent %d: missing UID", ErrMalformedDocument, i)
		}
		if p := ve.GetProperty(ical.ComponentPropertyDtStart); p == nil || p.Value == "" {
			return sum, fmt.Errorf("%w: vevent %s: missing DTSTART", ErrMalformedDocument, uidProp.Value)
		}
		seen[uidProp.Value]++
		if seen[uidProp.Value] == 2 {
			sum.DuplicateUIDs = append(sum.DuplicateUIDs, uidProp.Value)
		}
		sum.UIDs = append(sum.UIDs, uidProp.Value)
		sum.Events++
	}
	return sum, nil
}
