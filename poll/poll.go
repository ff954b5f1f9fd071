// Package poll implements the bounded retry primitive used to wait for
// remote swap state to become visible, such as a counterparty lockup or a
// revealed preimage. The underlying events are time-locked rather than load
// dependent, so the wait between attempts is constant instead of an
// exponential backoff.
package poll

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrRetryable marks a failure as transient. Operations wrap this
	// sentinel (or return it directly) to request another attempt; any
	// other error aborts the retry loop immediately.
	ErrRetryable = errors.New("retryable")
)

// TimeoutError is returned when an operation remains retryable for the full
// attempt budget.
type TimeoutError struct {
	// Waiting describes what the poller was waiting for.
	Waiting string

	// Attempts is the number of attempts made.
	Attempts int

	// LastErr is the final retryable failure.
	LastErr error
}

// Error implements the error interface.
func (e *TimeoutError) Error() string {
	return fmt.Sprintf("timed out waiting for %s after %d attempts: %v",
		e.Waiting, e.Attempts, e.LastErr)
}

// Unwrap returns the final retryable failure.
func (e *TimeoutError) Unwrap() error {
	return e.LastErr
}

// Config bounds a retry loop.
type Config struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int

	// MinWait is the wait between attempts.
	MinWait time.Duration

	// MaxWait caps the wait between attempts. Zero means MinWait is
	// used as-is.
	MaxWait time.Duration
}

// wait returns the delay applied between attempts.
func (c Config) wait() time.Duration {
	wait := c.MinWait
	if c.MaxWait > 0 && wait > c.MaxWait {
		wait = c.MaxWait
	}

	return wait
}

// validate checks the config for usable bounds.
func (c Config) validate() error {
	if c.MaxAttempts <= 0 {
		return errors.New("retry requires at least one attempt")
	}

	if c.MinWait < 0 || c.MaxWait < 0 {
		return errors.New("retry wait must not be negative")
	}

	return nil
}

// Retry invokes op until it succeeds, fails with a non-retryable error, the
// attempt budget is exhausted, or the context is canceled. The waiting
// argument names the awaited condition for the timeout error. Cancellation
// aborts promptly between attempts and never mutates state on its own.
func Retry[T any](ctx context.Context, waiting string, cfg Config,
	op func(context.Context) (T, error)) (T, error) {

	var zero T

	if err := cfg.validate(); err != nil {
		return zero, err
	}

	var lastErr error
	for attempt := 1; ; attempt++ {
		result, err := op(ctx)
		if err == nil {
			return result, nil
		}

		// Anything other than the retryable marker propagates
		// immediately, without burning further attempts.
		if !errors.Is(err, ErrRetryable) {
			return zero, err
		}

		lastErr = err

		if attempt >= cfg.MaxAttempts {
			return zero, &TimeoutError{
				Waiting:  waiting,
				Attempts: attempt,
				LastErr:  lastErr,
			}
		}

		timer := time.NewTimer(cfg.wait())
		select {
		case <-timer.C:

		case <-ctx.Done():
			timer.Stop()

			return zero, ctx.Err()
		}
	}
}
