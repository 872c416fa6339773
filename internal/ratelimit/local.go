package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type localEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// LocalLimiter keeps one token bucket per caller in process memory.
// Suitable for single-instance deployments; use RedisLimiter when
// running replicas.
type LocalLimiter struct {
	mu      sync.Mutex
	entries map[string]*localEntry
	rate    rate.Limit
	burst   int
}

// NewLocalLimiter allows requests calls per key per window.
func NewLocalLimiter(requests int, window time.Duration) *LocalLimiter {
	l := &LocalLimiter{
		entries: make(map[string]*localEntry),
		rate:    rate.Limit(float64(requests) / window.Seconds()),
		burst:   requests,
	}

	go l.cleanupLoop(window)

	return l
}

// Allow reports whether the caller is within its budget. It never
// returns an error.
func (l *LocalLimiter) Allow(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	entry, ok := l.entries[key]
	if !ok {
		entry = &localEntry{limiter: rate.NewLimiter(l.rate, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = time.Now()
	l.mu.Unlock()

	return entry.limiter.Allow(), nil
}

// cleanupLoop drops buckets for callers that have gone quiet, keeping
// the map from growing with one entry per key ever seen.
func (l *LocalLimiter) cleanupLoop(window time.Duration) {
	interval := 5 * time.Minute
	if window > interval {
		interval = window
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for range ticker.C {
		cutoff := time.Now().Add(-2 * interval)
		l.mu.Lock()
		for key, entry := range l.entries {
			if entry.lastSeen.Before(cutoff) {
				delete(l.entries, key)
			}
		}
		l.mu.Unlock()
	}
}

var _ Limiter = (*LocalLimiter)(nil)
