package saga

import (
	"context"
	"math/rand"
	"time"

	"github.com/crewdeckhq/crewdeck/internal/integrations"
)

// RetryPolicy bounds how often a step is re-attempted after a retryable
// external failure. Non-retryable failures surface immediately.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	// Jitter is the fraction of the computed delay added as random noise,
	// in [0, Jitter).
	Jitter float64

	// sleep is swapped out in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// DefaultRetryPolicy matches what a chat-triggered workflow can tolerate:
// three attempts within a few seconds.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   500 * time.Millisecond,
		MaxDelay:    10 * time.Second,
		Jitter:      0.2,
	}
}

func (p RetryPolicy) withDefaults() RetryPolicy {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = 500 * time.Millisecond
	}
	if p.MaxDelay <= 0 {
		p.MaxDelay = 10 * time.Second
	}
	if p.sleep == nil {
		p.sleep = sleepContext
	}
	return p
}

// Do invokes fn until it succeeds, fails non-retryably, or attempts run out.
// A Retry-After hint from the upstream service overrides the computed
// backoff for that attempt.
func (p RetryPolicy) Do(ctx context.Context, fn func() error) error {
	p = p.withDefaults()

	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		if !integrations.IsRetryable(err) || attempt >= p.MaxAttempts {
			return err
		}

		delay := p.backoff(attempt)
		if hint := integrations.RetryAfterHint(err); hint > delay {
			delay = hint
		}
		if sleepErr := p.sleep(ctx, delay); sleepErr != nil {
			return err
		}
	}
}

func (p RetryPolicy) backoff(attempt int) time.Duration {
	delay := p.BaseDelay << (attempt - 1)
	if delay > p.MaxDelay || delay <= 0 {
		delay = p.MaxDelay
	}
	if p.Jitter > 0 {
		delay += time.Duration(rand.Float64() * p.Jitter * float64(delay))
	}
	return delay
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
