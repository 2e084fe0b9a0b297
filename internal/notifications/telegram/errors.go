package telegram

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError is returned when the Bot API answers 429.
type RateLimitError struct {
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s: %s", e.RetryAfter, e.Message)
}

// IsRetryable always returns true.
func (e *RateLimitError) IsRetryable() bool { return true }

// PermanentError is a failure that will not succeed on retry.
type PermanentError struct {
	Code    int
	Message string
}

func (e *PermanentError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsRetryable always returns false.
func (e *PermanentError) IsRetryable() bool { return false }

// RetryableError is a transient failure (network, 5xx).
type RetryableError struct {
	Code    int
	Message string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("telegram error %d: %s", e.Code, e.Message)
}

// IsRetryable always returns true.
func (e *RetryableError) IsRetryable() bool { return true }

// IsRetryable reports whether err is a retryable telegram error.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return false
}

// GetRetryAfter returns the delay requested by a rate limit error, or zero.
func GetRetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
