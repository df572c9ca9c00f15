package qpu

import (
	"context"
	"sync"
	"time"

	"github.com/teranos/sentinel/errors"
)

// Limiter enforces max submissions per time window using a sliding window.
// A limit of zero or less disables limiting.
type Limiter struct {
	maxPerMinute int
	window       time.Duration
	mu           sync.Mutex
	callTimes    []time.Time
	timeNow      func() time.Time // Injectable for testing
}

// NewLimiter creates a submission limiter with real time
func NewLimiter(maxPerMinute int) *Limiter {
	return NewLimiterWithClock(maxPerMinute, time.Now)
}

// NewLimiterWithClock creates a submission limiter with injectable clock (for testing)
func NewLimiterWithClock(maxPerMinute int, timeNow func() time.Time) *Limiter {
	capacity := maxPerMinute
	if capacity < 0 {
		capacity = 0
	}
	return &Limiter{
		maxPerMinute: maxPerMinute,
		window:       time.Minute,
		callTimes:    make([]time.Time, 0, capacity),
		timeNow:      timeNow,
	}
}

// Allow records a submission if the window has room, otherwise returns an
// error marked ErrRateLimited.
func (r *Limiter) Allow() error {
	if r.maxPerMinute <= 0 {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.timeNow()
	r.removeExpired(now)

	if len(r.callTimes) >= r.maxPerMinute {
		err := errors.Newf("submission rate limit exceeded: %d submissions per minute (limit: %d)",
			len(r.callTimes), r.maxPerMinute)
		err = errors.WithDetailf(err, "Oldest submission in window: %s", r.callTimes[0].Format(time.RFC3339))
		err = errors.WithHint(err, "raise backend.max_submits_per_minute or lower the dispatch cadence")
		return errors.Mark(err, errors.ErrRateLimited)
	}

	r.callTimes = append(r.callTimes, now)
	return nil
}

// Wait blocks until a submission is allowed or ctx is done.
func (r *Limiter) Wait(ctx context.Context) error {
	for {
		if err := r.Allow(); err == nil {
			return nil
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(100 * time.Millisecond):
		}
	}
}

// removeExpired drops timestamps outside the window. Must be called with lock held.
func (r *Limiter) removeExpired(now time.Time) {
	cutoff := now.Add(-r.window)

	expired := 0
	for _, t := range r.callTimes {
		if t.After(cutoff) {
			break
		}
		expired++
	}
	r.callTimes = r.callTimes[expired:]
}

// Stats returns the submissions in the current window and the remaining capacity.
func (r *Limiter) Stats() (inWindow int, remaining int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.removeExpired(r.timeNow())

	inWindow = len(r.callTimes)
	remaining = r.maxPerMinute - inWindow
	if remaining < 0 {
		remaining = 0
	}
	return inWindow, remaining
}
