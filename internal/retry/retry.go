// Package retry provides the shared retry policy used for remote calls.
// The same two-attempt, fixed-backoff policy that individual handlers used
// to copy around is configured once here and applied uniformly.
package retry

import (
	"context"
	"time"
)

// Policy describes how an operation is retried.
type Policy struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts int
	// Backoff is the fixed delay between attempts.
	Backoff time.Duration
	// Retryable decides whether an error is worth another attempt.
	// A nil predicate retries every error.
	Retryable func(error) bool
}

// DefaultPolicy matches the bounded retry the service applies to
// authentication-exchange races: two attempts with a short fixed backoff.
func DefaultPolicy() Policy {
	return Policy{
		MaxAttempts: 2,
		Backoff:     250 * time.Millisecond,
	}
}

// Do runs fn until it succeeds, the policy is exhausted, or the context is
// cancelled. The last error is returned unmodified.
func (p Policy) Do(ctx context.Context, fn func(context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(p.Backoff):
			}
		}

		lastErr = fn(ctx)
		if lastErr == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(lastErr) {
			return lastErr
		}
	}
	return lastErr
}
