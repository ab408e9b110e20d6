// Package retry runs an operation with exponential backoff.
package retry

import (
	"context"
	"errors"
	"net"
	"time"
)

// Config configures exponential backoff retry behavior
type Config struct {
	Attempts   int           // Total attempts, including the first
	BaseDelay  time.Duration // Delay before the second attempt
	MaxDelay   time.Duration // Upper bound on any single delay
	Multiplier float64       // Growth factor between delays

	// Retryable decides whether an error is worth another attempt.
	// A nil Retryable retries every error.
	Retryable func(error) bool
}

// Default returns the backoff used for remote model calls: three attempts
// starting at 100ms and doubling up to 5s.
func Default() Config {
	return Config{
		Attempts:   3,
		BaseDelay:  100 * time.Millisecond,
		MaxDelay:   5 * time.Second,
		Multiplier: 2,
	}
}

// Once returns a config that retries a failed call exactly once after delay.
func Once(delay time.Duration) Config {
	return Config{
		Attempts:   2,
		BaseDelay:  delay,
		MaxDelay:   delay,
		Multiplier: 1,
	}
}

// Do calls fn until it succeeds, the attempts are spent, the error is not
// retryable, or ctx is done. The last error is returned on failure.
func Do[T any](ctx context.Context, cfg Config, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T
	var lastErr error
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}
	backoff := cfg.BaseDelay

	for attempt := 0; attempt < attempts; attempt++ {
		result, err := fn(ctx)
		if err == nil {
			return result, nil
		}
		lastErr = err

		if ctx.Err() != nil {
			return zero, ctx.Err()
		}
		if cfg.Retryable != nil && !cfg.Retryable(err) {
			return zero, err
		}

		if attempt < attempts-1 {
			timer := time.NewTimer(backoff)
			select {
			case <-ctx.Done():
				timer.Stop()
				return zero, ctx.Err()
			case <-timer.C:
			}
			if cfg.Multiplier > 0 {
				backoff = time.Duration(float64(backoff) * cfg.Multiplier)
			}
			if cfg.MaxDelay > 0 && backoff > cfg.MaxDelay {
				backoff = cfg.MaxDelay
			}
		}
	}

	return zero, lastErr
}

// IsTimeout reports whether err is a deadline or network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
