// Package ratelimit implements an in-memory sliding-window rate limiter
// keyed by arbitrary string identities. It is shared by the check-in flow,
// the face-verification step, and the admin login endpoint, each with its
// own configured window.
//
// Unlike a token bucket, the sliding window gives an exact guarantee:
// at most MaxAttempts events per key in any trailing window. Timestamps
// are monotonic-clock readings (time.Now retains a monotonic component,
// and pruning uses time.Since), so wall-clock adjustments cannot widen
// or collapse a window.
//
// The limiter is process-local and safe for concurrent use.
package ratelimit

import (
	"sync"
	"time"
)

// Limiter tracks events per key within a sliding window.
// Example: New(5, 5*time.Minute) allows 5 events per key in any
// 5-minute window.
type Limiter struct {
	maxAttempts int
	window      time.Duration

	mu    sync.Mutex
	store map[string][]time.Time

	// Idle keys are swept opportunistically so memory stays bounded
	// for long-lived processes with churning identities.
	sweepN uint64
}

// New constructs a Limiter allowing maxAttempts events per key within
// window. maxAttempts values below 1 are coerced to 1.
func New(maxAttempts int, window time.Duration) *Limiter {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Limiter{
		maxAttempts: maxAttempts,
		window:      window,
		store:       make(map[string][]time.Time),
	}
}

// prune drops expired timestamps for key and deletes the key when empty.
// Callers must hold l.mu.
func (l *Limiter) prune(key string) []time.Time {
	events := l.store[key]
	kept := events[:0]
	for _, t := range events {
		if time.Since(t) < l.window {
			kept = append(kept, t)
		}
	}
	if len(kept) == 0 {
		delete(l.store, key)
		return nil
	}
	l.store[key] = kept
	return kept
}

// sweep walks all keys and prunes them. Runs every ~5000 lockings so a key
// that stops arriving does not pin its window forever. Callers must hold l.mu.
func (l *Limiter) sweep() {
	l.sweepN++
	if l.sweepN < 5000 {
		return
	}
	l.sweepN = 0
	for key := range l.store {
		l.prune(key)
	}
}

// IsAllowed reports whether the key is still under its limit. It has no
// side effect; do not pair it with Record under concurrency. Use Hit,
// which performs the check and the recording in one critical section.
func (l *Limiter) IsAllowed(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	return len(l.prune(key)) < l.maxAttempts
}

// Record notes an event for the key regardless of the limit.
func (l *Limiter) Record(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	l.store[key] = append(l.prune(key), time.Now())
}

// Hit atomically checks and records: it returns false and records nothing
// when the key is already at capacity, otherwise records the event and
// returns true. Call sites that must be correct under concurrent access to
// the same key use Hit, never IsAllowed followed by Record.
func (l *Limiter) Hit(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweep()
	events := l.prune(key)
	if len(events) >= l.maxAttempts {
		return false
	}
	l.store[key] = append(events, time.Now())
	return true
}

// Remaining returns how many events the key may still record in the
// current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := l.maxAttempts - len(l.prune(key))
	if n < 0 {
		return 0
	}
	return n
}
