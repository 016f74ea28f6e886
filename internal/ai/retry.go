package ai

import (
	"context"
	"math/rand"
	"time"
)

// RetryPolicy bounds the attempt loop around provider calls. Delays grow
// exponentially from BaseDelay, capped at MaxDelay, with jitter so parallel
// jobs hitting the same rate limit do not retry in lockstep.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
}

// Do runs fn up to MaxAttempts times. Only transient errors are retried;
// any other error, or context cancellation, ends the loop immediately.
func (p RetryPolicy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := p.MaxAttempts
	if attempts < 1 {
		attempts = 1
	}

	var err error
	for attempt := 1; attempt <= attempts; attempt++ {
		err = fn(ctx)
		if err == nil || !Transient(err) {
			return err
		}
		if attempt == attempts {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.delay(attempt)):
		}
	}
	return err
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	d := p.BaseDelay << (attempt - 1)
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if d <= 0 {
		return 0
	}
	// Full jitter: anywhere in (0, d].
	return time.Duration(rand.Int63n(int64(d))) + 1
}
