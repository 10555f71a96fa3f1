// Package redis implements the artifact cache on a shared Redis instance,
// letting multiple gateway replicas serve each other's screenshot fetches.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/siteinsight/analyzer-gateway/internal/cache"
)

const keyPrefix = "gateway:artifact:"

// wireEntry is the stored representation; the body travels base64-encoded
// through encoding/json's []byte handling.
type wireEntry struct {
	Body        []byte `json:"body"`
	ContentType string `json:"content_type"`
}

// Cache stores entries under a TTL using SET NX so concurrent fetchers of
// the same artifact never clobber each other.
type Cache struct {
	client redis.UniversalClient
	ttl    time.Duration
}

// New constructs a redis-backed cache.
func New(client redis.UniversalClient, ttl time.Duration) *Cache {
	return &Cache{client: client, ttl: ttl}
}

// Get returns the cached entry, a miss for absent keys.
func (c *Cache) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("redis get: %w", err)
	}
	var stored wireEntry
	if err := json.Unmarshal(raw, &stored); err != nil {
		return cache.Entry{}, false, fmt.Errorf("decode cached artifact: %w", err)
	}
	return cache.Entry{Body: stored.Body, ContentType: stored.ContentType}, true, nil
}

// Set stores the entry if the key is absent; the TTL starts then.
func (c *Cache) Set(ctx context.Context, key string, entry cache.Entry) error {
	raw, err := json.Marshal(wireEntry{Body: entry.Body, ContentType: entry.ContentType})
	if err != nil {
		return fmt.Errorf("encode artifact for cache: %w", err)
	}
	if err := c.client.SetNX(ctx, keyPrefix+key, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis setnx: %w", err)
	}
	return nil
}
