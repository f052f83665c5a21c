package service

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Rate-limit defaults: 5 actions per 10-second sliding window, applied to
// the two highest-volume write paths (message sends and DM sends).
const (
	DefaultRateLimitMax    = 5
	DefaultRateLimitWindow = 10 * time.Second
)

// RateLimiter is a per-user sliding-window counter. A user multiplexed
// across devices shares one budget.
type RateLimiter struct {
	max    int
	window time.Duration

	mu      sync.Mutex
	buckets map[uuid.UUID][]time.Time
}

// NewRateLimiter creates a RateLimiter permitting max actions per window.
func NewRateLimiter(max int, window time.Duration) *RateLimiter {
	if max <= 0 {
		max = DefaultRateLimitMax
	}
	if window <= 0 {
		window = DefaultRateLimitWindow
	}
	return &RateLimiter{
		max:     max,
		window:  window,
		buckets: make(map[uuid.UUID][]time.Time),
	}
}

// Allow records one action for the user and reports whether it fits in
// the window. A rejected action does not consume a slot.
func (l *RateLimiter) Allow(userID uuid.UUID) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	cutoff := now.Add(-l.window)

	stamps := l.buckets[userID]
	kept := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}

	if len(kept) >= l.max {
		l.buckets[userID] = kept
		return false
	}

	l.buckets[userID] = append(kept, now)
	return true
}

// Reset clears the user's window. Used when rebuilding state after a
// crash; the limiter is explicitly non-authoritative.
func (l *RateLimiter) Reset(userID uuid.UUID) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.buckets, userID)
}
