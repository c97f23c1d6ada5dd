package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/distribution/pkginstall/digest"
)

const redisKeyPrefix = "pkginstall:depkey:"

// redisValue is the JSON shape stored under each Redis key. Entries are
// content-addressed through dgst and never need an expiry: a changed
// package integrity changes the key's associated digest, so a stale
// entry is simply never looked up again once its depKey moves on.
type redisValue struct {
	Metadata string        `json:"metadata"`
	Digest   digest.Digest `json:"digest"`
}

// RedisCache is a MetadataCache backed by a shared Redis instance,
// letting a second pkginstall process on the same host reuse a cache
// hit from a prior run.
type RedisCache struct {
	client *redis.Client
}

// NewRedisCache wraps an existing go-redis client.
func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) (string, digest.Digest, bool, error) {
	raw, err := c.client.Get(ctx, redisKeyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return "", "", false, nil
	}
	if err != nil {
		return "", "", false, fmt.Errorf("store/cache: redis get %q: %w", key, err)
	}

	var v redisValue
	if err := json.Unmarshal(raw, &v); err != nil {
		return "", "", false, fmt.Errorf("store/cache: decode cached value for %q: %w", key, err)
	}
	return v.Metadata, v.Digest, true, nil
}

func (c *RedisCache) Set(ctx context.Context, key, metadata string, dgst digest.Digest) error {
	raw, err := json.Marshal(redisValue{Metadata: metadata, Digest: dgst})
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, redisKeyPrefix+key, raw, 0).Err(); err != nil {
		return fmt.Errorf("store/cache: redis set %q: %w", key, err)
	}
	return nil
}
