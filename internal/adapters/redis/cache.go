package redis

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

type Cache struct {
	client *redis.Client
}

func NewCache(client *redis.Client) *Cache {
	return &Cache{client: client}
}

func (c *Cache) Client() *redis.Client {
	return c.client
}

// SetSeatSnapshot caches a rendered seat map for an event; invalidated on
// every seat-state change.
func (c *Cache) SetSeatSnapshot(ctx context.Context, eventID string, payload []byte, ttl time.Duration) error {
	return c.client.Set(ctx, "seats:"+eventID, payload, ttl).Err()
}

func (c *Cache) GetSeatSnapshot(ctx context.Context, eventID string) ([]byte, error) {
	val, err := c.client.Get(ctx, "seats:"+eventID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	return val, err
}

func (c *Cache) InvalidateSeatSnapshot(ctx context.Context, eventID string) error {
	return c.client.Del(ctx, "seats:"+eventID).Err()
}

// IncrWindow bumps a fixed-window counter and returns its value; the key
// expires after period.
func (c *Cache) IncrWindow(ctx context.Context, key string, period time.Duration) (int64, error) {
	pipe := c.client.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, period)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}
