package ratelimit

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/crewdeckhq/crewdeck/pkg/errors"
)

// Rate describes a token bucket: sustained tokens per second and burst size.
type Rate struct {
	PerSecond float64
	Burst     int
}

func (r Rate) valid() bool {
	return r.PerSecond > 0 && r.Burst > 0
}

// Limiter gates calls to external systems with one token bucket per system.
// Buckets are independent, so exhausting the tracker's quota never blocks
// calls to the chat platform. Safe for concurrent use.
type Limiter struct {
	mu       sync.Mutex
	buckets  map[string]*bucket
	rates    map[string]Rate
	fallback Rate
	clock    func() time.Time
}

type bucket struct {
	tokens   float64
	lastFill time.Time
	rate     Rate
}

// Option customises the Limiter.
type Option func(*Limiter)

// WithClock injects a custom clock, primarily for testing.
func WithClock(clock func() time.Time) Option {
	return func(l *Limiter) {
		if clock != nil {
			l.clock = clock
		}
	}
}

// WithSystemRate overrides the bucket rate for a specific system.
func WithSystemRate(system string, rate Rate) Option {
	return func(l *Limiter) {
		if rate.valid() {
			l.rates[system] = rate
		}
	}
}

// New constructs a Limiter with the supplied default rate for systems that
// have no explicit override.
func New(fallback Rate, opts ...Option) *Limiter {
	if !fallback.valid() {
		fallback = Rate{PerSecond: 5, Burst: 5}
	}

	limiter := &Limiter{
		buckets:  make(map[string]*bucket),
		rates:    make(map[string]Rate),
		fallback: fallback,
		clock:    time.Now,
	}
	for _, opt := range opts {
		opt(limiter)
	}
	return limiter
}

// Acquire blocks until a token for the system is available or the context is
// cancelled.
func (l *Limiter) Acquire(ctx context.Context, system string) error {
	for {
		wait, ok := l.take(system)
		if ok {
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return apperrors.ErrRateLimit.WithInternal(ctx.Err())
		case <-timer.C:
		}
	}
}

// TryAcquire takes a token without blocking, reporting whether one was available.
func (l *Limiter) TryAcquire(system string) bool {
	_, ok := l.take(system)
	return ok
}

// take refills the bucket for the system and either consumes a token or
// returns how long to wait before the next one accrues.
func (l *Limiter) take(system string) (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.clock()

	b, ok := l.buckets[system]
	if !ok {
		rate, found := l.rates[system]
		if !found {
			rate = l.fallback
		}
		b = &bucket{tokens: float64(rate.Burst), lastFill: now, rate: rate}
		l.buckets[system] = b
	}

	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed > 0 {
		b.tokens += elapsed * b.rate.PerSecond
		if limit := float64(b.rate.Burst); b.tokens > limit {
			b.tokens = limit
		}
		b.lastFill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return 0, true
	}

	deficit := 1 - b.tokens
	wait := time.Duration(deficit / b.rate.PerSecond * float64(time.Second))
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}
