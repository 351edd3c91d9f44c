package pricefeed

import (
	"context"
	"sync"
	"time"

	"trade-outcome-lab/internal/observability"
)

// SlidingWindowLimiter admits at most limit calls in any rolling window.
// Callers over the limit block until the oldest call ages out or their
// context is done.
type SlidingWindowLimiter struct {
	limit  int
	window time.Duration

	mu    sync.Mutex
	calls []time.Time // admission times, oldest first
	now   func() time.Time
}

// NewSlidingWindowLimiter creates a limiter. limit ≤ 0 disables limiting.
func NewSlidingWindowLimiter(limit int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		limit:  limit,
		window: window,
		now:    time.Now,
	}
}

// Wait blocks until a slot is free and claims it.
func (l *SlidingWindowLimiter) Wait(ctx context.Context) error {
	if l == nil || l.limit <= 0 {
		return ctx.Err()
	}
	started := l.now()
	for {
		wait, ok := l.tryAcquire()
		if ok {
			observability.RecordRateLimitWait(l.now().Sub(started).Seconds())
			return nil
		}

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// tryAcquire claims a slot, or reports how long until the oldest call expires.
func (l *SlidingWindowLimiter) tryAcquire() (time.Duration, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)
	drop := 0
	for drop < len(l.calls) && !l.calls[drop].After(cutoff) {
		drop++
	}
	l.calls = l.calls[drop:]

	if len(l.calls) < l.limit {
		l.calls = append(l.calls, now)
		return 0, true
	}
	wait := l.calls[0].Add(l.window).Sub(now)
	if wait <= 0 {
		wait = time.Millisecond
	}
	return wait, false
}

// InFlight returns the number of calls admitted within the current window.
func (l *SlidingWindowLimiter) InFlight() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	n := 0
	for _, t := range l.calls {
		if t.After(cutoff) {
			n++
		}
	}
	return n
}
