package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/olyamironova/matching-engine/internal/domain"
	"github.com/olyamironova/matching-engine/internal/port"
	"github.com/redis/go-redis/v9"
)

type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

var _ port.BookCache = (*RedisCache)(nil)

// Connect parses a redis:// URL and pings the server.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

func NewRedisCache(client *redis.Client, ttl time.Duration) *RedisCache {
	return &RedisCache{
		client: client,
		ttl:    ttl,
	}
}

func key(pair string) string { return "ob:" + pair }

func (c *RedisCache) SetBook(ctx context.Context, update *domain.BookUpdate) error {
	b, err := json.Marshal(update)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, key(update.Pair), b, c.ttl).Err()
}

func (c *RedisCache) GetBook(ctx context.Context, pair string) (*domain.BookUpdate, error) {
	b, err := c.client.Get(ctx, key(pair)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var u domain.BookUpdate
	if err := json.Unmarshal(b, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *RedisCache) Invalidate(ctx context.Context, pair string) error {
	return c.client.Del(ctx, key(pair)).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
