package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a fixed-window per-user counter backed by Redis, for
// deployments where several instances share the limit. The window key is
// "rate_limit:user:<id>"; the first INCR in a window sets the expiry.
type RedisLimiter struct {
	client *redis.Client
	limit  int64
	window time.Duration
}

// NewRedisLimiter constructs a [RedisLimiter] allowing limit requests per
// user per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  int64(limit),
		window: window,
	}
}

// Allow implements [Limiter].
func (r *RedisLimiter) Allow(ctx context.Context, userID int64) (Result, error) {
	key := fmt.Sprintf("rate_limit:user:%d", userID)

	count, err := r.client.Incr(ctx, key).Result()
	if err != nil {
		return Result{}, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if count == 1 {
		if err = r.client.Expire(ctx, key, r.window).Err(); err != nil {
			return Result{}, fmt.Errorf("failed to set rate limit window: %w", err)
		}
	}

	if count <= r.limit {
		return Result{Allowed: true}, nil
	}

	ttl, err := r.client.TTL(ctx, key).Result()
	if err != nil || ttl < 0 {
		ttl = r.window
	}

	return Result{Allowed: false, RetryAfter: ttl}, nil
}
