package pipeline

import (
	"context"
	"errors"
	"time"
)

// Policy is the retry behavior for one stage: up to Retries additional
// attempts after the first, delayed by Delay with either linear or
// exponential growth. Terminal failures stop retrying immediately.
type Policy struct {
	Retries     int
	Delay       time.Duration
	Exponential bool
}

// backoff returns the delay before retry attempt n (1-based).
func (p Policy) backoff(n int) time.Duration {
	if p.Exponential {
		d := p.Delay
		for i := 1; i < n; i++ {
			d *= 2
		}
		return d
	}
	return p.Delay * time.Duration(n)
}

// execute runs fn under the policy with a per-attempt timeout. Each
// attempt reports through onAttempt before running, so callers can
// persist the attempt counter. Retries stop on context cancellation and
// on terminal failures.
func execute(
	ctx context.Context,
	policy Policy,
	timeout time.Duration,
	onAttempt func(n int),
	fn func(ctx context.Context) error,
) error {
	var lastErr error

	for attempt := 1; attempt <= policy.Retries+1; attempt++ {
		if onAttempt != nil {
			onAttempt(attempt)
		}

		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := fn(attemptCtx)
		cancel()

		if err == nil {
			return nil
		}
		lastErr = err

		if errors.Is(err, ErrTerminal) || ctx.Err() != nil {
			return err
		}
		if attempt > policy.Retries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.backoff(attempt)):
		}
	}

	return lastErr
}
