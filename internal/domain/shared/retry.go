package shared

import (
	"context"
	"math/rand/v2"
	"time"
)

// RetryPolicy bounds the read-modify-write loop around an optimistically locked save
type RetryPolicy struct {
	// MaxRetries is the number of extra attempts after the first one
	MaxRetries int
	// Backoff is the base delay; attempt n waits n*Backoff plus up to Backoff of jitter
	Backoff time.Duration
}

// DefaultRetryPolicy returns the default conflict retry policy
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 5, Backoff: 20 * time.Millisecond}
}

// RetryOnConflict runs fn until it succeeds, fails with anything other than a
// ConflictError, or the retries are exhausted. fn must reload the aggregate on
// every call. onRetry, when set, is called before each new attempt.
func (p RetryPolicy) RetryOnConflict(ctx context.Context, fn func(attempt int) error, onRetry func(attempt int, err error)) error {
	var err error
	for attempt := 0; attempt <= p.MaxRetries; attempt++ {
		if attempt > 0 {
			if onRetry != nil {
				onRetry(attempt, err)
			}
			if waitErr := p.wait(ctx, attempt); waitErr != nil {
				return waitErr
			}
		}
		err = fn(attempt)
		if err == nil || !IsConflict(err) {
			return err
		}
	}
	return err
}

func (p RetryPolicy) wait(ctx context.Context, attempt int) error {
	if p.Backoff <= 0 {
		return ctx.Err()
	}
	delay := time.Duration(attempt)*p.Backoff + rand.N(p.Backoff)
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
