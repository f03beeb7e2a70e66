package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const tokenKeyPrefix = "ical:token:"

// RedisTokenCache shares subscription tokens across instances using key expiry.
type RedisTokenCache struct {
	client *redis.Client
}

// NewRedisTokenCache wraps client.
func NewRedisTokenCache(client *redis.Client) *RedisTokenCache {
	return &RedisTokenCache{client: client}
}

// Get returns the stored value for key.
func (c *RedisTokenCache) Get(ctx context.Context, key string) (string, bool, error) {
	value, err := c.client.Get(ctx, tokenKeyPrefix+key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("redis get token: %w", err)
	}
	return value, true, nil
}

// Set stores value with an expiry of ttl.
func (c *RedisTokenCache) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	if err := c.client.Set(ctx, tokenKeyPrefix+key, value, ttl).Err(); err != nil {
		return fmt.Errorf("redis set token: %w", err)
	}
	return nil
}

// Evict removes key.
func (c *RedisTokenCache) Evict(ctx context.Context, key string) error {
	if err := c.client.Del(ctx, tokenKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete token: %w", err)
	}
	return nil
}
