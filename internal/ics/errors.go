package ics

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidEvent marks an event record missing a required field.
	ErrInvalidEvent = errors.New("ics: invalid event")

	// ErrDateOverflow marks recurrence arithmetic that left the representable
	// date range or never reached the generation window.
	ErrDateOverflow = errors.New("ics: date arithmetic overflow")

	// ErrInvalidTimezone is returned when the configured timezone cannot be
	// loaded. It is a configuration error.
	ErrInvalidTimezone = errors.New("ics: invalid timezone")

	// ErrMalformedDocument is returned by Verify when the generated document
	// does not parse back.
	ErrMalformedDocument = errors.New("ics: malformed document")
)

// EventError describes a failure tied to one event record.
type EventError struct {
	EventID string
	Field   string
	Err     error
}

func (e *EventError) Error() string {
	id := e.EventID
	if id == "" {
		id = "<no id>"
	}
	if e.Field == "" {
		return fmt.Sprintf("event %s: %v", id, e.Err)
	}
	return fmt.Sprintf("event %s: field %s: %v", id, e.Field, e.Err)
}

func (e *EventError) Unwrap() error {
	return e.Err
}

// IsEventError reports whether err carries an *EventError.
func IsEventError(err error) bool {
	var evErr *EventError
	return errors.As(err, &evErr)
}
