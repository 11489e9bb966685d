package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"portfolio/pkg/domain"
)

// DefaultProfileCacheTTL bounds how stale a cached author can get.
const DefaultProfileCacheTTL = 10 * time.Minute

// RedisProfileCache stores author projections as JSON strings with a TTL.
type RedisProfileCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisProfileCache builds a Redis-backed profile cache.
func NewRedisProfileCache(addr, password string, ttl time.Duration) *RedisProfileCache {
	if ttl <= 0 {
		ttl = DefaultProfileCacheTTL
	}
	return &RedisProfileCache{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
		}),
		ttl: ttl,
	}
}

// Ping checks connectivity.
func (c *RedisProfileCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close releases the client.
func (c *RedisProfileCache) Close() error {
	return c.client.Close()
}

// GetAuthors returns the cached authors among ids. Misses are simply absent.
func (c *RedisProfileCache) GetAuthors(ctx context.Context, ids []string) (map[string]domain.Author, error) {
	res := make(map[string]domain.Author, len(ids))
	if len(ids) == 0 {
		return res, nil
	}
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, profileKey(id))
	}
	vals, err := c.client.MGet(ctx, keys...).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, err
	}
	for _, v := range vals {
		raw, ok := v.(string)
		if !ok {
			continue
		}
		var author domain.Author
		if err := json.Unmarshal([]byte(raw), &author); err != nil || author.ID == "" {
			continue
		}
		res[author.ID] = author
	}
	return res, nil
}

// SetAuthors caches authors until the TTL elapses.
func (c *RedisProfileCache) SetAuthors(ctx context.Context, authors []domain.Author) error {
	if len(authors) == 0 {
		return nil
	}
	pipe := c.client.Pipeline()
	for _, a := range authors {
		if a.ID == "" {
			continue
		}
		raw, err := json.Marshal(a)
		if err != nil {
			return err
		}
		pipe.Set(ctx, profileKey(a.ID), raw, c.ttl)
	}
	_, err := pipe.Exec(ctx)
	return err
}

// Invalidate drops a cached author.
func (c *RedisProfileCache) Invalidate(ctx context.Context, userID string) error {
	if err := c.client.Del(ctx, profileKey(userID)).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return err
	}
	return nil
}

func profileKey(userID string) string {
	return "profile:" + userID
}
