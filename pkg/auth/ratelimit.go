package auth

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RateLimiter counts requests per (identifier, action) pair in fixed
// windows backed by Redis. The first hit of a window sets the key's
// expiry; once the count exceeds the ceiling the pair is rejected until
// the window rolls over.
type RateLimiter struct {
	client *redis.Client
	window time.Duration
	max    int
}

func NewRateLimiter(client *redis.Client, window time.Duration, max int) *RateLimiter {
	return &RateLimiter{client: client, window: window, max: max}
}

// Allow records one request and reports whether it fits in the current
// window.
func (l *RateLimiter) Allow(ctx context.Context, identifier, action string) (bool, error) {
	windowStart := time.Now().Unix() / int64(l.window.Seconds())
	key := fmt.Sprintf("ratelimit:%s:%s:%d", identifier, action, windowStart)

	count, err := l.client.Incr(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("failed to count request: %w", err)
	}
	if count == 1 {
		if err := l.client.Expire(ctx, key, l.window).Err(); err != nil {
			return false, fmt.Errorf("failed to expire window: %w", err)
		}
	}

	return count <= int64(l.max), nil
}
