// Package ratelimit provides per-client admission control for the chat endpoint.
package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// Limiter decides whether a request from a client key is admitted.
type Limiter interface {
	Admit(ctx context.Context, key string) (Decision, error)
}

// Decision is the outcome of one admission check.
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
}

type bucket struct {
	count   int
	resetAt time.Time
}

// FixedWindow counts admissions per key in fixed windows held in process memory.
type FixedWindow struct {
	window time.Duration
	max    int
	now    func() time.Time

	mu      sync.Mutex
	buckets map[string]*bucket
}

// Option customises a FixedWindow.
type Option func(*FixedWindow)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(l *FixedWindow) {
		l.now = now
	}
}

// NewFixedWindow constructs a limiter admitting max requests per window for each key.
func NewFixedWindow(window time.Duration, max int, opts ...Option) *FixedWindow {
	l := &FixedWindow{
		window:  window,
		max:     max,
		now:     time.Now,
		buckets: make(map[string]*bucket),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Admit checks and updates the bucket for key as one atomic step.
func (l *FixedWindow) Admit(_ context.Context, key string) (Decision, error) {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	b, ok := l.buckets[key]
	if !ok || !now.Before(b.resetAt) {
		b = &bucket{count: 1, resetAt: now.Add(l.window)}
		l.buckets[key] = b
		return l.decision(true, b, now), nil
	}

	if b.count >= l.max {
		return l.decision(false, b, now), nil
	}

	b.count++
	return l.decision(true, b, now), nil
}

func (l *FixedWindow) decision(allowed bool, b *bucket, now time.Time) Decision {
	d := Decision{
		Allowed:   allowed,
		Limit:     l.max,
		Remaining: max(0, l.max-b.count),
		ResetAt:   b.resetAt,
	}
	if !allowed {
		d.RetryAfter = max(0, b.resetAt.Sub(now))
	}
	return d
}

// Sweep drops buckets whose window has ended and reports how many were removed.
func (l *FixedWindow) Sweep() int {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	removed := 0
	for key, b := range l.buckets {
		if !now.Before(b.resetAt) {
			delete(l.buckets, key)
			removed++
		}
	}
	return removed
}

// Len reports the number of live buckets.
func (l *FixedWindow) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.buckets)
}

// Run sweeps expired buckets every interval until ctx is cancelled.
func (l *FixedWindow) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if removed := l.Sweep(); removed > 0 {
				log.Debug().Int("removed", removed).Int("live", l.Len()).Msg("swept expired rate limit buckets")
			}
		}
	}
}
