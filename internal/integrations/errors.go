package integrations

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"
)

// CallError describes a failed external system call with enough context for
// the saga engine's retry policy: which system, whether the failure class is
// retryable, and an optional server-provided retry-after hint.
type CallError struct {
	System     string
	Operation  string
	StatusCode int
	Retryable  bool
	RetryAfter time.Duration
	Err        error
}

func (e *CallError) Error() string {
	if e == nil {
		return "<nil>"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.System, e.Operation, e.Err)
	}
	return fmt.Sprintf("%s: %s: status %d", e.System, e.Operation, e.StatusCode)
}

func (e *CallError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// NewCallError wraps a transport-level failure (timeout, connection reset) as
// retryable.
func NewCallError(system, operation string, err error) *CallError {
	return &CallError{
		System:    system,
		Operation: operation,
		Retryable: true,
		Err:       err,
	}
}

// FromStatus classifies an HTTP response status. Timeouts, 5xx, and 429 are
// retryable; auth failures and not-found are not.
func FromStatus(system, operation string, status int, retryAfter string) *CallError {
	call := &CallError{
		System:     system,
		Operation:  operation,
		StatusCode: status,
	}

	switch {
	case status == http.StatusTooManyRequests:
		call.Retryable = true
		call.RetryAfter = parseRetryAfter(retryAfter)
	case status >= 500, status == http.StatusRequestTimeout:
		call.Retryable = true
	}

	return call
}

// IsRetryable reports whether the error is an external call failure worth
// retrying.
func IsRetryable(err error) bool {
	var call *CallError
	if errors.As(err, &call) {
		return call.Retryable
	}
	return false
}

// RetryAfterHint extracts the server-provided backoff hint, if any.
func RetryAfterHint(err error) time.Duration {
	var call *CallError
	if errors.As(err, &call) {
		return call.RetryAfter
	}
	return 0
}

func parseRetryAfter(value string) time.Duration {
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds > 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if wait := time.Until(at); wait > 0 {
			return wait
		}
	}
	return 0
}
