package errors

import (
	"context"
	"fmt"
	"math/rand"
	"time"
)

// Backoff selects how the delay grows between attempts.
type Backoff int

const (
	// BackoffLinear waits InitialDelay * attempt.
	BackoffLinear Backoff = iota
	// BackoffExponential multiplies the delay by Multiplier after each attempt.
	BackoffExponential
)

// RetryConfig configures retry behavior.
type RetryConfig struct {
	// MaxAttempts is the total number of attempts including the first one.
	MaxAttempts int

	// InitialDelay is the delay before the second attempt.
	InitialDelay time.Duration

	// MaxDelay caps the delay between attempts.
	MaxDelay time.Duration

	// Backoff selects linear or exponential growth.
	Backoff Backoff

	// Multiplier is the exponential growth factor.
	Multiplier float64

	// Jitter adds randomness to delay to prevent thundering herd.
	Jitter bool

	// ShouldRetry classifies failures. Defaults to IsRetryable.
	ShouldRetry func(error) bool
}

// DefaultRetryConfig returns the linear policy used for provider calls.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     10 * time.Second,
		Backoff:      BackoffLinear,
		Multiplier:   2.0,
	}
}

// delayFor returns the wait before attempt n+1 (n is 1-based).
func (c RetryConfig) delayFor(n int, err error) time.Duration {
	var d time.Duration
	switch c.Backoff {
	case BackoffExponential:
		d = c.InitialDelay
		for i := 1; i < n; i++ {
			d = time.Duration(float64(d) * c.Multiplier)
		}
	default:
		d = c.InitialDelay * time.Duration(n)
	}
	if c.MaxDelay > 0 && d > c.MaxDelay {
		d = c.MaxDelay
	}
	if c.Jitter && d > 0 {
		d = time.Duration(float64(d) * (0.5 + rand.Float64()*0.5))
	}
	// Retry-After from the provider wins when it asks for longer.
	if ra := RetryAfterOf(err); ra > d {
		d = ra
	}
	return d
}

// Retry executes fn until it succeeds, fails with a non-retryable error,
// or MaxAttempts is exhausted. Cancellation of ctx returns a Cancelled error.
func Retry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	_, err := RetryWithResult(ctx, cfg, func() (struct{}, error) {
		return struct{}{}, fn()
	})
	return err
}

// RetryWithResult is Retry for functions that return a value.
// A non-retryable failure is returned as-is; exhausting attempts wraps the
// last error so its kind survives errors.As.
func RetryWithResult[T any](ctx context.Context, cfg RetryConfig, fn func() (T, error)) (T, error) {
	var zero T
	attempts := cfg.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	shouldRetry := cfg.ShouldRetry
	if shouldRetry == nil {
		shouldRetry = IsRetryable
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, FromContext(err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if !shouldRetry(err) || attempt == attempts {
			break
		}

		select {
		case <-ctx.Done():
			return zero, FromContext(ctx.Err())
		case <-time.After(cfg.delayFor(attempt, err)):
		}
	}

	if attempts > 1 && shouldRetry(lastErr) {
		return zero, fmt.Errorf("failed after %d attempts: %w", attempts, lastErr)
	}
	return zero, lastErr
}
