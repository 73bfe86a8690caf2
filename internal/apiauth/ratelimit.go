package apiauth

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter is a per-identity token bucket limiter. Each identity (a
// token name or JWT subject) gets its own bucket, created lazily on first
// use and reclaimed once idle.
type RateLimiter struct {
	buckets sync.Map // identity -> *bucket
	limit   rate.Limit
	burst   int
	window  time.Duration
}

type bucket struct {
	limiter    *rate.Limiter
	lastAccess int64 // unix nano
}

// NewRateLimiter builds a limiter allowing perMinute requests per identity,
// bursting up to the full per-minute allowance.
func NewRateLimiter(perMinute int) *RateLimiter {
	rl := &RateLimiter{
		limit:  rate.Limit(float64(perMinute) / 60.0),
		burst:  perMinute,
		window: 15 * time.Minute,
	}
	go rl.cleanupLoop()
	return rl
}

// Allow reports whether a request for identity may proceed.
func (rl *RateLimiter) Allow(identity string) bool {
	now := time.Now().UnixNano()

	entry, loaded := rl.buckets.Load(identity)
	if !loaded {
		newEntry := &bucket{limiter: rate.NewLimiter(rl.limit, rl.burst), lastAccess: now}
		entry, _ = rl.buckets.LoadOrStore(identity, newEntry)
	}

	b := entry.(*bucket)
	b.lastAccess = now
	return b.limiter.Allow()
}

func (rl *RateLimiter) cleanupLoop() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()
	for range ticker.C {
		rl.cleanup()
	}
}

func (rl *RateLimiter) cleanup() {
	cutoff := time.Now().Add(-rl.window).UnixNano()
	rl.buckets.Range(func(key, value any) bool {
		if value.(*bucket).lastAccess < cutoff {
			rl.buckets.Delete(key)
		}
		return true
	})
}
