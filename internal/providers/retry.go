package providers

import (
	"context"
	"errors"
	"log/slog"
	"time"
)

// RetryConfig controls transient-failure retries on model calls.
type RetryConfig struct {
	MaxAttempts int
	BaseDelay   time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond}
}

// retryableError marks errors worth retrying (429, 5xx, connection resets).
type retryableError struct{ err error }

func (e *retryableError) Error() string { return e.err.Error() }
func (e *retryableError) Unwrap() error { return e.err }

func retryable(err error) error { return &retryableError{err: err} }

// retryDo runs fn up to cfg.MaxAttempts times with exponential backoff,
// retrying only errors wrapped by retryable. Context cancellation stops
// the retry loop immediately.
func retryDo[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error

	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		var re *retryableError
		if !errors.As(err, &re) || attempt == cfg.MaxAttempts {
			return zero, err
		}

		delay := cfg.BaseDelay * time.Duration(1<<(attempt-1))
		slog.Debug("model call retry", "attempt", attempt, "delay", delay, "error", err)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return zero, ctx.Err()
		}
	}
	return zero, lastErr
}
