package infra

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// RetryConfig bounds an exponential backoff. It also serves as a pure delay
// schedule via Delay, which the reconnect supervisor uses without WithRetry.
type RetryConfig struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Multiplier   float64
	// OnRetry, when set, is called before each wait with the failed attempt
	// number, its error and the upcoming delay.
	OnRetry func(attempt int, err error, wait time.Duration)
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts:  3,
		InitialDelay: 100 * time.Millisecond,
		MaxDelay:     5 * time.Second,
		Multiplier:   2.0,
	}
}

// Delay returns the wait after the given 1-based attempt. A multiplier of 1
// (or less) keeps the delay fixed at InitialDelay.
func (c RetryConfig) Delay(attempt int) time.Duration {
	delay := c.InitialDelay
	if c.Multiplier > 1 {
		for i := 1; i < attempt; i++ {
			delay = time.Duration(float64(delay) * c.Multiplier)
			if c.MaxDelay > 0 && delay >= c.MaxDelay {
				return c.MaxDelay
			}
		}
	}
	if c.MaxDelay > 0 && delay > c.MaxDelay {
		return c.MaxDelay
	}
	return delay
}

// WithRetry runs fn until it succeeds, returns a Permanent error, the context
// ends, or MaxAttempts is used up. Context errors from fn are never retried.
func WithRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	attempts := max(cfg.MaxAttempts, 1)

	var lastErr error
	for attempt := 1; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var perm *PermanentError
		if errors.As(err, &perm) {
			return perm.Err
		}
		if attempt >= attempts {
			return lastErr
		}

		wait := cfg.Delay(attempt)
		if cfg.OnRetry != nil {
			cfg.OnRetry(attempt, err, wait)
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// PermanentError stops WithRetry immediately.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

func Permanent(err error) error {
	return &PermanentError{Err: err}
}

// IsRetryableHTTPStatus reports whether a response status is worth another
// attempt: throttling and server-side failures.
func IsRetryableHTTPStatus(statusCode int) bool {
	return statusCode == http.StatusTooManyRequests ||
		statusCode == http.StatusRequestTimeout ||
		statusCode >= 500
}
