package heartbeat

import (
	"sync"
	"time"
)

// RateLimiter bounds advisor invocations process-wide. TryAcquire must be
// called exactly once per attempted advisor consultation.
type RateLimiter interface {
	TryAcquire() bool
	Remaining() int
}

// SlidingWindowLimiter allows at most max acquisitions in any trailing
// window. It is the only cross-symbol shared state in the heartbeat and is
// protected by a single mutex.
type SlidingWindowLimiter struct {
	mu     sync.Mutex
	max    int
	window time.Duration
	stamps []time.Time
	now    func() time.Time
}

var _ RateLimiter = (*SlidingWindowLimiter)(nil)

// NewSlidingWindowLimiter creates a limiter for max acquisitions per window.
func NewSlidingWindowLimiter(max int, window time.Duration) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		max:    max,
		window: window,
		now:    time.Now,
	}
}

// WithClock overrides the time source (used by tests).
func (l *SlidingWindowLimiter) WithClock(now func() time.Time) *SlidingWindowLimiter {
	l.now = now
	return l
}

// TryAcquire consumes one slot when available.
func (l *SlidingWindowLimiter) TryAcquire() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())
	if len(l.stamps) >= l.max {
		return false
	}
	l.stamps = append(l.stamps, l.now())
	return true
}

// Remaining returns the slots left in the current window.
func (l *SlidingWindowLimiter) Remaining() int {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.evict(l.now())
	return l.max - len(l.stamps)
}

func (l *SlidingWindowLimiter) evict(now time.Time) {
	cutoff := now.Add(-l.window)
	keep := l.stamps[:0]
	for _, ts := range l.stamps {
		if ts.After(cutoff) {
			keep = append(keep, ts)
		}
	}
	l.stamps = keep
}
