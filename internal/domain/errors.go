package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

var (
	// ErrUnauthorized signals the backend rejected the credential (HTTP 401).
	ErrUnauthorized = errors.New("credential rejected")
	// ErrRenewalFailed signals a renewal call errored or returned no session.
	ErrRenewalFailed = errors.New("session renewal failed")
	// ErrConfigurationMissing signals the backend client could not be
	// constructed. Terminal, never retried.
	ErrConfigurationMissing = errors.New("auth backend configuration missing")
)

// ThrottledError signals the backend rate-limited the client. RetryAfter
// carries the backend's Retry-After hint, or zero if none was supplied.
type ThrottledError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottledError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("throttled by backend: %v", e.Cause)
	}
	return "throttled by backend"
}

func (e *ThrottledError) Unwrap() error { return e.Cause }

// AsThrottled returns the ThrottledError in err's chain, if any.
func AsThrottled(err error) (*ThrottledError, bool) {
	var te *ThrottledError
	ok := errors.As(err, &te)
	return te, ok
}

var rateLimitPattern = regexp.MustCompile(`(?i)rate limit|too many requests`)

// IsRateLimitMessage reports whether a backend error message carries the
// textual rate-limit marker some responses use instead of a 429 status.
func IsRateLimitMessage(msg string) bool {
	return rateLimitPattern.MatchString(msg)
}
