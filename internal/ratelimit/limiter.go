package ratelimit

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// SlidingWindowLimiter counts events per key in a rolling window.
type SlidingWindowLimiter struct {
	clock clockwork.Clock

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewSlidingWindowLimiter creates a limiter using the given clock.
func NewSlidingWindowLimiter(clock clockwork.Clock) *SlidingWindowLimiter {
	return &SlidingWindowLimiter{
		clock:  clock,
		events: make(map[string][]time.Time),
	}
}

// Allow records an event for key and reports whether it stayed within
// maxEvents per period.
func (l *SlidingWindowLimiter) Allow(key string, maxEvents int, period time.Duration) bool {
	now := l.clock.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	kept := prune(l.events[key], now.Add(-period))
	if len(kept) >= maxEvents {
		l.events[key] = kept
		return false
	}
	l.events[key] = append(kept, now)
	return true
}

// ViolationTracker counts suspicious actions in a rolling window.
type ViolationTracker struct {
	clock clockwork.Clock

	mu     sync.Mutex
	events map[string][]time.Time
}

// NewViolationTracker creates a tracker using the given clock.
func NewViolationTracker(clock clockwork.Clock) *ViolationTracker {
	return &ViolationTracker{
		clock:  clock,
		events: make(map[string][]time.Time),
	}
}

// Record adds a violation for key and returns the count within period.
func (t *ViolationTracker) Record(key string, period time.Duration) int {
	now := t.clock.Now()

	t.mu.Lock()
	defer t.mu.Unlock()

	kept := append(prune(t.events[key], now.Add(-period)), now)
	t.events[key] = kept
	return len(kept)
}

func prune(events []time.Time, cutoff time.Time) []time.Time {
	idx := 0
	for idx < len(events) && events[idx].Before(cutoff) {
		idx++
	}
	return events[idx:]
}
