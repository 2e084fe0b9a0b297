package notifications

import (
	"errors"
	"math"
	"time"
)

// RetryPolicy decides how often and how soon a failed delivery is retried.
type RetryPolicy struct {
	MaxAttempts       int
	InitialBackoff    time.Duration
	MaxBackoff        time.Duration
	BackoffMultiplier float64
}

// DefaultRetryPolicy returns three attempts with doubling backoff from one
// second, capped at five minutes.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:       3,
		InitialBackoff:    time.Second,
		MaxBackoff:        5 * time.Minute,
		BackoffMultiplier: 2,
	}
}

// Backoff returns the wait before retry number attempt (1-based).
func (p RetryPolicy) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	mult := p.BackoffMultiplier
	if mult < 1 {
		mult = 1
	}
	d := float64(p.InitialBackoff) * math.Pow(mult, float64(attempt-1))
	if p.MaxBackoff > 0 && d > float64(p.MaxBackoff) {
		return p.MaxBackoff
	}
	return time.Duration(d)
}

// Exhausted reports whether an item that has already been tried attempts
// times may not be tried again.
func (p RetryPolicy) Exhausted(attempts, itemMax int) bool {
	limit := itemMax
	if limit <= 0 {
		limit = p.MaxAttempts
	}
	return attempts >= limit
}

// isRetryable reports whether a sender failure is transient. Errors that do
// not say otherwise are retried.
func isRetryable(err error) bool {
	var r interface{ IsRetryable() bool }
	if errors.As(err, &r) {
		return r.IsRetryable()
	}
	return true
}

// RetryableError marks a sender failure as transient or permanent.
type RetryableError struct {
	Err       error
	Retryable bool
}

func (e *RetryableError) Error() string { return e.Err.Error() }

func (e *RetryableError) Unwrap() error { return e.Err }

// IsRetryable returns whether the failure is transient.
func (e *RetryableError) IsRetryable() bool { return e.Retryable }

// NewRetryableError wraps a transient failure.
func NewRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: true}
}

// NewNonRetryableError wraps a permanent failure.
func NewNonRetryableError(err error) *RetryableError {
	return &RetryableError{Err: err, Retryable: false}
}
