// Package ratelimit provides per-user request limiting for the migration
// endpoints. Two implementations exist: an in-process token bucket for
// single-instance deployments and a Redis fixed-window counter for
// multi-instance ones.
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Result is the outcome of one admission check.
type Result struct {
	// Allowed reports whether the request may proceed.
	Allowed bool

	// RetryAfter is how long the caller should wait before trying again.
	// Zero when Allowed is true.
	RetryAfter time.Duration
}

// Limiter admits or rejects one request for a user.
type Limiter interface {
	Allow(ctx context.Context, userID int64) (Result, error)
}

// bucket holds one user's remaining tokens and the last refill instant.
type bucket struct {
	tokens     float64
	lastRefill time.Time
}

// TokenBucket is an in-process per-user token bucket. Each user gets
// capacity tokens; one token refills every refillInterval. Unknown users
// start with a full bucket.
type TokenBucket struct {
	capacity       float64
	refillInterval time.Duration

	mu      sync.Mutex
	buckets map[int64]*bucket

	// now is swappable so tests can control time.
	now func() time.Time
}

// NewTokenBucket constructs a [TokenBucket] limiter.
func NewTokenBucket(capacity int, refillInterval time.Duration) *TokenBucket {
	return &TokenBucket{
		capacity:       float64(capacity),
		refillInterval: refillInterval,
		buckets:        make(map[int64]*bucket),
		now:            time.Now,
	}
}

// Allow implements [Limiter]. It never returns an error; the signature
// matches the Redis-backed variant.
func (t *TokenBucket) Allow(_ context.Context, userID int64) (Result, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()

	b, ok := t.buckets[userID]
	if !ok {
		b = &bucket{tokens: t.capacity, lastRefill: now}
		t.buckets[userID] = b
	}

	elapsed := now.Sub(b.lastRefill)
	if refilled := float64(elapsed) / float64(t.refillInterval); refilled > 0 {
		b.tokens += refilled
		if b.tokens > t.capacity {
			b.tokens = t.capacity
		}
		b.lastRefill = now
	}

	if b.tokens >= 1 {
		b.tokens--
		return Result{Allowed: true}, nil
	}

	deficit := 1 - b.tokens
	retryAfter := time.Duration(deficit * float64(t.refillInterval))

	return Result{Allowed: false, RetryAfter: retryAfter}, nil
}
