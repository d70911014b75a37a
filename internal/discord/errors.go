package discord

import (
	"errors"
	"fmt"
	"time"
)

// ErrRetriesExhausted wraps the last failure once every attempt is used up.
var ErrRetriesExhausted = errors.New("discord: retries exhausted")

// APIError is a non-2xx, non-429 response from the Discord API.
type APIError struct {
	Method     string
	Path       string
	StatusCode int
	// Code and Message come from Discord's JSON error body when present.
	Code    int
	Message string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("discord: %s %s: %d %s (code %d)", e.Method, e.Path, e.StatusCode, e.Message, e.Code)
	}
	return fmt.Sprintf("discord: %s %s: status %d", e.Method, e.Path, e.StatusCode)
}

// RateLimitError is returned for a 429 response.
type RateLimitError struct {
	Path       string
	RetryAfter time.Duration
	Global     bool
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("discord: rate limited on %s, retry after %s", e.Path, e.RetryAfter)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}
