package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisCounterPrefix = "ragchat:ratelimit:"

// RedisLimiter counts requests in fixed windows shared across
// replicas. The first request in a window creates the counter and sets
// its expiry; the window starts when the first request lands.
type RedisLimiter struct {
	client *redis.Client
	limit  int
	window time.Duration
}

// NewRedisLimiter allows limit calls per key per window.
func NewRedisLimiter(client *redis.Client, limit int, window time.Duration) *RedisLimiter {
	return &RedisLimiter{
		client: client,
		limit:  limit,
		window: window,
	}
}

// Allow increments the caller's window counter and compares it to the
// limit. Backend errors are returned to the caller.
func (l *RedisLimiter) Allow(ctx context.Context, key string) (bool, error) {
	counterKey := redisCounterPrefix + key

	count, err := l.client.Incr(ctx, counterKey).Result()
	if err != nil {
		return false, fmt.Errorf("failed to increment rate counter: %w", err)
	}

	if count == 1 {
		if err := l.client.Expire(ctx, counterKey, l.window).Err(); err != nil {
			return false, fmt.Errorf("failed to set rate counter expiry: %w", err)
		}
	}

	return count <= int64(l.limit), nil
}

var _ Limiter = (*RedisLimiter)(nil)
