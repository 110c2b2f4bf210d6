package resilience

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// Class is the retry classification of an error.
type Class int

const (
	// ClassTerminal errors are returned immediately: client errors,
	// malformed input, programmer errors.
	ClassTerminal Class = iota
	// ClassRetryable errors are transient: network failures, 5xx, 408,
	// 429 and named upstream transient codes.
	ClassRetryable
	// ClassCircuitOpen errors were produced locally by an open breaker.
	ClassCircuitOpen
)

// String returns the string representation of the class.
func (c Class) String() string {
	switch c {
	case ClassTerminal:
		return "terminal"
	case ClassRetryable:
		return "retryable"
	case ClassCircuitOpen:
		return "circuit-open"
	default:
		return "unknown"
	}
}

// NetworkErrorCodes are error codes that identify a connection level
// failure with no HTTP status.
var NetworkErrorCodes = []string{"ECONNRESET", "ETIMEDOUT", "ENOTFOUND", "ECONNREFUSED", "EAI_AGAIN"}

// Classify sorts err into the retry taxonomy using cfg's retryable sets.
//
// Rules, first match wins:
//  1. circuit-open errors are ClassCircuitOpen;
//  2. context.Canceled is terminal;
//  3. network failures without an HTTP status are retryable;
//  4. a status in cfg.RetryableStatusCodes is retryable;
//  5. any other 4xx is terminal, whatever its error code;
//  6. an error code in cfg.RetryableErrorCodes is retryable;
//  7. everything else is terminal.
func Classify(err error, cfg RetryConfig) Class {
	if err == nil {
		return ClassTerminal
	}
	if errors.Is(err, ErrCircuitOpen) {
		return ClassCircuitOpen
	}
	if errors.Is(err, context.Canceled) {
		return ClassTerminal
	}

	status := StatusOf(err)
	if status == 0 && isNetworkError(err) {
		return ClassRetryable
	}
	if status != 0 && slices.Contains(cfg.RetryableStatusCodes, status) {
		return ClassRetryable
	}
	if status >= 400 && status < 500 {
		return ClassTerminal
	}
	if code := CodeOf(err); code != "" && slices.Contains(cfg.RetryableErrorCodes, code) {
		return ClassRetryable
	}
	return ClassTerminal
}

// IsRetryable reports whether Classify returns ClassRetryable.
func IsRetryable(err error, cfg RetryConfig) bool {
	return Classify(err, cfg) == ClassRetryable
}

// StatusOf returns the HTTP status carried by err, or 0.
func StatusOf(err error) int {
	var sc StatusCoder
	if errors.As(err, &sc) {
		return sc.HTTPStatus()
	}
	return 0
}

// CodeOf returns the error code carried by err, or "".
func CodeOf(err error) string {
	var ec ErrorCoder
	if errors.As(err, &ec) {
		return ec.ErrorCode()
	}
	return ""
}

// RetryAfterOf returns the Retry-After hint carried by err, or 0.
func RetryAfterOf(err error) time.Duration {
	var h RetryAfterHinter
	if errors.As(err, &h) {
		return h.RetryAfterHint()
	}
	return 0
}

func isNetworkError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, io.ErrUnexpectedEOF) {
		return true
	}

	if code := CodeOf(err); code != "" && slices.Contains(NetworkErrorCodes, code) {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		switch errno {
		case syscall.ECONNREFUSED, syscall.ECONNRESET, syscall.ECONNABORTED,
			syscall.EHOSTUNREACH, syscall.ENETUNREACH, syscall.ETIMEDOUT, syscall.EPIPE:
			return true
		}
	}

	var opErr *net.OpError
	return errors.As(err, &opErr)
}

// ParseRetryAfter parses a Retry-After header value in either
// delta-seconds or HTTP-date form. Invalid or past values yield 0.
func ParseRetryAfter(value string, now time.Time) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}

	if seconds, err := strconv.ParseFloat(value, 64); err == nil {
		if seconds <= 0 {
			return 0
		}
		return time.Duration(seconds * float64(time.Second))
	}

	if t, err := http.ParseTime(value); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// maxErrorBody bounds how much of an error response is decoded.
const maxErrorBody = 64 << 10

// APIErrorFromResponse builds an APIError from a non-2xx response: the
// status, the Retry-After header and, when the body is a JSON object, its
// "code" and "message" fields. The body is read but not closed.
func APIErrorFromResponse(resp *http.Response) *APIError {
	apiErr := &APIError{
		StatusCode: resp.StatusCode,
		RetryAfter: ParseRetryAfter(resp.Header.Get("Retry-After"), time.Now()),
	}

	if resp.Body == nil {
		return apiErr
	}

	var payload struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	if err == nil && json.Unmarshal(data, &payload) == nil {
		apiErr.Code = payload.Code
		apiErr.Message = payload.Message
	}
	if apiErr.Message == "" {
		apiErr.Message = http.StatusText(resp.StatusCode)
	}
	return apiErr
}
