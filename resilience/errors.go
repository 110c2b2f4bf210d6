package resilience

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for resilience operations.
var (
	// ErrCircuitOpen matches any *CircuitOpenError via errors.Is.
	ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

	// ErrRateLimitExceeded is returned when the local rate limiter cannot
	// grant a slot before the caller's context ends.
	ErrRateLimitExceeded = errors.New("resilience: rate limit exceeded")
)

// CircuitOpenError is produced locally when the breaker rejects a call
// without contacting the upstream. It is distinct from any upstream error
// so callers can tell "upstream is down" from "upstream rejected this call".
type CircuitOpenError struct {
	// ReopenAt is when the breaker will next admit a probe call.
	ReopenAt time.Time
}

func (e *CircuitOpenError) Error() string {
	return fmt.Sprintf("resilience: circuit breaker is open until %s", e.ReopenAt.Format(time.RFC3339))
}

// Is reports whether target is ErrCircuitOpen.
func (e *CircuitOpenError) Is(target error) bool {
	return target == ErrCircuitOpen
}

// APIError is an upstream failure described by its HTTP status, an
// optional upstream error code (e.g. "rate_limited") and an optional
// Retry-After hint. Transport layers may return their own error types
// instead; anything implementing StatusCoder, ErrorCoder or
// RetryAfterHinter is classified the same way.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
	RetryAfter time.Duration
}

func (e *APIError) Error() string {
	switch {
	case e.Code != "" && e.Message != "":
		return fmt.Sprintf("api error %d (%s): %s", e.StatusCode, e.Code, e.Message)
	case e.Code != "":
		return fmt.Sprintf("api error %d (%s)", e.StatusCode, e.Code)
	case e.Message != "":
		return fmt.Sprintf("api error %d: %s", e.StatusCode, e.Message)
	default:
		return fmt.Sprintf("api error %d", e.StatusCode)
	}
}

// HTTPStatus returns the HTTP status code.
func (e *APIError) HTTPStatus() int { return e.StatusCode }

// ErrorCode returns the upstream error code.
func (e *APIError) ErrorCode() string { return e.Code }

// RetryAfterHint returns the server supplied wait, or 0.
func (e *APIError) RetryAfterHint() time.Duration { return e.RetryAfter }

// StatusCoder is implemented by errors carrying an HTTP status.
type StatusCoder interface {
	HTTPStatus() int
}

// ErrorCoder is implemented by errors carrying an upstream or network error
// code such as "rate_limited" or "ECONNRESET".
type ErrorCoder interface {
	ErrorCode() string
}

// RetryAfterHinter is implemented by errors carrying a Retry-After hint.
type RetryAfterHinter interface {
	RetryAfterHint() time.Duration
}

var (
	_ StatusCoder      = (*APIError)(nil)
	_ ErrorCoder       = (*APIError)(nil)
	_ RetryAfterHinter = (*APIError)(nil)
)
