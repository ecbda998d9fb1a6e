// Package retry implements bounded retry with exponential backoff. The gate
// only ever retries idempotent facilitator reads (GET /supported); verify and
// settle are called exactly once per request.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts counts the initial attempt.
	MaxAttempts int

	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
}

// DefaultConfig retries twice more after the initial attempt.
var DefaultConfig = Config{
	MaxAttempts:  3,
	InitialDelay: 100 * time.Millisecond,
	MaxDelay:     5 * time.Second,
	Multiplier:   2.0,
}

// Do runs fn until it succeeds, the attempts are exhausted, or ctx is done.
// retryable decides whether a failure is worth another attempt; a nil
// retryable treats every error as transient.
func Do[T any](ctx context.Context, config Config, retryable func(error) bool, fn func() (T, error)) (T, error) {
	var zero T
	var lastErr error
	delay := config.InitialDelay

	for attempt := 0; attempt < config.MaxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, fmt.Errorf("context cancelled: %w", err)
		}

		result, err := fn()
		if err == nil {
			return result, nil
		}
		lastErr = err

		if retryable != nil && !retryable(err) {
			return zero, err
		}

		if attempt < config.MaxAttempts-1 {
			select {
			case <-time.After(delay):
				delay = time.Duration(float64(delay) * config.Multiplier)
				if delay > config.MaxDelay {
					delay = config.MaxDelay
				}
			case <-ctx.Done():
				return zero, ctx.Err()
			}
		}
	}

	return zero, fmt.Errorf("max retries exceeded: %w", lastErr)
}
