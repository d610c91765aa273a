package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"muniapi/pkg/domain"
	"muniapi/pkg/platform/sentinel"
)

// RedisCache shares fingerprints between gateway replicas. Entries never
// expire: a fingerprint stays valid until the entity is refreshed again.
type RedisCache struct {
	client redis.Cmdable
	prefix string
}

func NewRedisCache(client redis.Cmdable, prefix string) *RedisCache {
	return &RedisCache{client: client, prefix: prefix}
}

func (c *RedisCache) key(id domain.CanonicalID) string {
	return c.prefix + string(id)
}

func (c *RedisCache) Put(ctx context.Context, id domain.CanonicalID, hash string) error {
	if err := c.client.Set(ctx, c.key(id), hash, 0).Err(); err != nil {
		return fmt.Errorf("store fingerprint: %w: %v", sentinel.ErrUnavailable, err)
	}
	return nil
}

func (c *RedisCache) Get(ctx context.Context, id domain.CanonicalID) (string, bool, error) {
	hash, err := c.client.Get(ctx, c.key(id)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("load fingerprint: %w: %v", sentinel.ErrUnavailable, err)
	}
	return hash, true, nil
}
