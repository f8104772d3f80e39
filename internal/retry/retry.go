// Package retry provides a bounded retry policy with exponential backoff.
// Only errors explicitly marked retryable are retried; everything else
// surfaces immediately.
package retry

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrBudgetExhausted is returned when all attempts have been used up.
var ErrBudgetExhausted = errors.New("retry: attempt budget exhausted")

// Policy defines a bounded retry budget with exponential backoff.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// BaseBackoff is the delay before the second attempt; it doubles
	// after every subsequent failure.
	BaseBackoff time.Duration
}

// DefaultPolicy returns the policy used by the segment fetcher.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 3,
		BaseBackoff: 2 * time.Second,
	}
}

// Do runs fn until it succeeds, returns a non-retryable error, or the
// attempt budget is exhausted. Exhaustion wraps both ErrBudgetExhausted
// and the last error encountered.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	backoff := p.BaseBackoff

	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("retry: context cancelled: %w", ctx.Err())
			case <-time.After(backoff):
				backoff *= 2 // Exponential backoff
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}

		if !IsRetryable(err) {
			return err
		}

		lastErr = err
	}

	return fmt.Errorf("%w after %d attempts: %w", ErrBudgetExhausted, attempts, lastErr)
}

// retryableError wraps errors that should be retried.
type retryableError struct {
	err error
}

func (e *retryableError) Error() string {
	return e.err.Error()
}

func (e *retryableError) Unwrap() error {
	return e.err
}

// Mark wraps err so the policy will retry it. A nil err returns nil.
func Mark(err error) error {
	if err == nil {
		return nil
	}
	return &retryableError{err: err}
}

// IsRetryable returns true if the error was marked with Mark.
func IsRetryable(err error) bool {
	var re *retryableError
	return errors.As(err, &re)
}
