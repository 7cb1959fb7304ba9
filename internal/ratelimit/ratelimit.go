// Package ratelimit implements per-user mutation rate limiting with
// lazy-refill token buckets.
package ratelimit

import (
	"sync"
	"time"

	"github.com/juju/clock"
)

// staleAfter is how long an idle limiter is kept before Sweep drops it.
const staleAfter = 10 * time.Minute

// Result is the outcome of a rate limit check.
type Result struct {
	Allowed           bool
	Limit             int64
	Remaining         int64
	RetryAfterSeconds float64
}

// Bucket is a token bucket with lazy refill (no background goroutine).
type Bucket struct {
	tokens   float64
	max      float64
	rate     float64 // tokens per second
	lastFill time.Time
}

func newBucket(perMinute int64, now time.Time) *Bucket {
	return &Bucket{
		tokens:   float64(perMinute),
		max:      float64(perMinute),
		rate:     float64(perMinute) / 60.0,
		lastFill: now,
	}
}

// refill adds tokens based on elapsed time since last refill.
func (b *Bucket) refill(now time.Time) {
	elapsed := now.Sub(b.lastFill).Seconds()
	if elapsed <= 0 {
		return
	}
	b.tokens = min(b.max, b.tokens+elapsed*b.rate)
	b.lastFill = now
}

// tryConsume attempts to consume one token.
func (b *Bucket) tryConsume(now time.Time) (remaining int64, allowed bool) {
	b.refill(now)
	if b.tokens >= 1 {
		b.tokens--
		return int64(b.tokens), true
	}
	return 0, false
}

// retryAfter returns seconds until one token is available.
func (b *Bucket) retryAfter() float64 {
	if b.tokens >= 1 {
		return 0
	}
	return (1 - b.tokens) / b.rate
}

// Limiter is the bucket of a single user.
type Limiter struct {
	mu       sync.Mutex
	bucket   *Bucket
	limit    int64
	lastUsed time.Time
}

// allow consumes one token at now.
func (l *Limiter) allow(now time.Time) Result {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lastUsed = now

	remaining, ok := l.bucket.tryConsume(now)
	if ok {
		return Result{Allowed: true, Limit: l.limit, Remaining: remaining}
	}
	return Result{
		Allowed:           false,
		Limit:             l.limit,
		RetryAfterSeconds: l.bucket.retryAfter(),
	}
}

// Registry holds one limiter per user, all sharing a per-minute limit.
type Registry struct {
	clock clock.Clock
	limit int64 // 0 = unlimited

	mu       sync.RWMutex
	limiters map[string]*Limiter
}

// NewRegistry creates a registry allowing perMinute requests per key.
// perMinute <= 0 disables limiting. A nil clk selects the wall clock.
func NewRegistry(perMinute int64, clk clock.Clock) *Registry {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Registry{
		clock:    clk,
		limit:    max(perMinute, 0),
		limiters: make(map[string]*Limiter),
	}
}

// Name identifies the registry to the sweeper.
func (r *Registry) Name() string { return "ratelimit" }

// Limit returns the per-minute limit, 0 if unlimited.
func (r *Registry) Limit() int64 { return r.limit }

// Allow consumes one request for key.
func (r *Registry) Allow(key string) Result {
	if r.limit == 0 {
		return Result{Allowed: true}
	}
	now := r.clock.Now()
	return r.get(key, now).allow(now)
}

func (r *Registry) get(key string, now time.Time) *Limiter {
	r.mu.RLock()
	l, ok := r.limiters[key]
	r.mu.RUnlock()
	if ok {
		return l
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	// Double-check after acquiring write lock.
	if l, ok := r.limiters[key]; ok {
		return l
	}
	l = &Limiter{bucket: newBucket(r.limit, now), limit: r.limit, lastUsed: now}
	r.limiters[key] = l
	return l
}

// EvictStale removes limiters not used since cutoff.
func (r *Registry) EvictStale(cutoff time.Time) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	evicted := 0
	for k, l := range r.limiters {
		l.mu.Lock()
		stale := l.lastUsed.Before(cutoff)
		l.mu.Unlock()
		if stale {
			delete(r.limiters, k)
			evicted++
		}
	}
	return evicted
}

// Sweep drops limiters idle for longer than ten minutes. An idle limiter is
// full again by then, so dropping it changes no outcome.
func (r *Registry) Sweep() int {
	return r.EvictStale(r.clock.Now().Add(-staleAfter))
}
