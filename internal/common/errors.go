// Package common defines sentinel errors shared by the relay components.
// Callers should use errors.Is / errors.As to match these values.
package common

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrParseEmpty is reported when a batch source yields no links.
	ErrParseEmpty = errors.New("no valid video links found")

	// ErrUnauthorized is returned for callers outside the allow-list.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned by the user directory for unknown IDs.
	ErrNotFound = errors.New("not found")
)

// RateLimitError is returned by the messaging transport when it asks the
// caller to back off for Wait before retrying the same request.
type RateLimitError struct {
	Wait time.Duration
	Err  error
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited: retry after %s", e.Wait)
}

func (e *RateLimitError) Unwrap() error {
	return e.Err
}

// RetryAfter extracts the mandated wait from a rate-limit error.
func RetryAfter(err error) (time.Duration, bool) {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.Wait, true
	}
	return 0, false
}
