package rateLimit

import (
	"context"
	"time"

	redisadapter "github.com/openticket/seat-reservations/internal/adapters/redis"
)

type RateLimiter struct {
	redis *redisadapter.Cache
}

func NewRateLimiter(redis *redisadapter.Cache) *RateLimiter {
	return &RateLimiter{redis: redis}
}

// Allow applies a fixed-window counter per key. Fails closed when redis is
// unreachable.
func (rl *RateLimiter) Allow(ctx context.Context, key string, rate int, period time.Duration) bool {
	count, err := rl.redis.IncrWindow(ctx, "rl:"+key, period)
	if err != nil {
		return false
	}
	return count <= int64(rate)
}
