// Package gcs implements the artifact cache on a Google Cloud Storage
// bucket. Useful when cached screenshots should outlive gateway restarts.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"github.com/siteinsight/analyzer-gateway/internal/cache"
)

// Cache stores each artifact as one object; expiry is enforced on read by
// comparing the object creation time against the TTL. Bucket lifecycle
// rules can reap stale objects out of band.
type Cache struct {
	client *storage.Client
	bucket string
	prefix string
	ttl    time.Duration
	clock  cache.Clock
}

// New verifies bucket access and returns the cache. Authentication uses
// Application Default Credentials.
func New(ctx context.Context, bucket, prefix string, ttl time.Duration, clock cache.Clock) (*Cache, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create gcs client: %w", err)
	}
	if _, err := client.Bucket(bucket).Attrs(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("probe gcs bucket %q: %w", bucket, err)
	}
	return &Cache{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		ttl:    ttl,
		clock:  clock,
	}, nil
}

// Get reads the object if it exists and is younger than the TTL.
func (c *Cache) Get(ctx context.Context, key string) (cache.Entry, bool, error) {
	obj := c.client.Bucket(c.bucket).Object(c.objectName(key))
	attrs, err := obj.Attrs(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return cache.Entry{}, false, nil
		}
		return cache.Entry{}, false, fmt.Errorf("gcs attrs: %w", err)
	}
	if c.clock.Now().Sub(attrs.Created) > c.ttl {
		return cache.Entry{}, false, nil
	}
	reader, err := obj.NewReader(ctx)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("gcs open: %w", err)
	}
	defer func() { _ = reader.Close() }()
	body, err := io.ReadAll(reader)
	if err != nil {
		return cache.Entry{}, false, fmt.Errorf("gcs read: %w", err)
	}
	return cache.Entry{Body: body, ContentType: attrs.ContentType}, true, nil
}

// Set writes the object with its content type. GCS writes are atomic per
// object, and entries are immutable, so a concurrent duplicate write is
// harmless.
func (c *Cache) Set(ctx context.Context, key string, entry cache.Entry) error {
	obj := c.client.Bucket(c.bucket).Object(c.objectName(key))
	w := obj.NewWriter(ctx)
	w.ContentType = entry.ContentType
	if _, err := w.Write(entry.Body); err != nil {
		_ = w.Close()
		return fmt.Errorf("gcs write %s: %w", key, err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("gcs finalize %s: %w", key, err)
	}
	return nil
}

// Close releases the underlying client.
func (c *Cache) Close() error {
	return c.client.Close()
}

func (c *Cache) objectName(key string) string {
	if c.prefix == "" {
		return key
	}
	return c.prefix + "/" + key
}
