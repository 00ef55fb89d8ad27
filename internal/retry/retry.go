// Package retry runs an operation under a bounded attempt budget with backoff.
package retry

import (
	"context"
	"fmt"
	"time"
)

// Backoff returns the wait before the given retry attempt (1-based).
type Backoff func(attempt int) time.Duration

// Linear waits step, 2*step, 3*step, ...
func Linear(step time.Duration) Backoff {
	return func(attempt int) time.Duration {
		return step * time.Duration(attempt)
	}
}

// Policy describes how often and when an operation is retried.
// A nil Retryable treats every error as retryable.
type Policy struct {
	MaxAttempts int
	Backoff     Backoff
	Retryable   func(error) bool

	// Sleep is replaced in tests.
	Sleep func(ctx context.Context, d time.Duration) error
}

// ExhaustedError is returned when every attempt failed with a retryable error.
type ExhaustedError struct {
	Attempts int
	Err      error
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("gave up after %d attempts: %v", e.Attempts, e.Err)
}

func (e *ExhaustedError) Unwrap() error { return e.Err }

// Do calls op until it succeeds, fails terminally, or the budget runs out.
// Terminal errors are returned unchanged.
func (p Policy) Do(ctx context.Context, op func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}
	sleep := p.Sleep
	if sleep == nil {
		sleep = sleepContext
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if p.Retryable != nil && !p.Retryable(err) {
			return err
		}
		lastErr = err

		if attempt == attempts {
			break
		}
		var wait time.Duration
		if p.Backoff != nil {
			wait = p.Backoff(attempt)
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return &ExhaustedError{Attempts: attempts, Err: lastErr}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
