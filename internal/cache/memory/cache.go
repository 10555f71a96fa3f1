// Package memory implements an in-process artifact cache for development
// and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/siteinsight/analyzer-gateway/internal/cache"
)

type record struct {
	entry     cache.Entry
	expiresAt time.Time
}

// Cache stores entries in a map guarded by a mutex. Expired records are
// dropped lazily on read.
type Cache struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   cache.Clock
	records map[string]record
}

// New constructs a memory cache with the given TTL.
func New(ttl time.Duration, clock cache.Clock) *Cache {
	return &Cache{
		ttl:     ttl,
		clock:   clock,
		records: make(map[string]record),
	}
}

// Get returns the entry if present and unexpired.
func (c *Cache) Get(_ context.Context, key string) (cache.Entry, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	rec, ok := c.records[key]
	if !ok {
		return cache.Entry{}, false, nil
	}
	if c.clock.Now().After(rec.expiresAt) {
		delete(c.records, key)
		return cache.Entry{}, false, nil
	}
	return rec.entry, true, nil
}

// Set inserts the entry unless an unexpired record already exists.
func (c *Cache) Set(_ context.Context, key string, entry cache.Entry) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.clock.Now()
	if rec, ok := c.records[key]; ok && now.Before(rec.expiresAt) {
		return nil
	}
	c.records[key] = record{
		entry: cache.Entry{
			Body:        append([]byte(nil), entry.Body...),
			ContentType: entry.ContentType,
		},
		expiresAt: now.Add(c.ttl),
	}
	return nil
}
