// Package cache defines the artifact cache consumed by the screenshot
// proxy. Entries are immutable once written, since a screenshot never
// changes after its job reaches a terminal state, so providers only need
// insert-if-absent semantics plus TTL expiry.
package cache

import (
	"context"
	"time"
)

// Entry is one cached artifact.
type Entry struct {
	Body        []byte
	ContentType string
}

// Cache stores artifacts keyed by "<job_id>/<device>".
type Cache interface {
	// Get returns the entry and whether the key was present and unexpired.
	Get(ctx context.Context, key string) (Entry, bool, error)
	// Set stores the entry for the configured TTL. Writing a key that is
	// already present is a no-op.
	Set(ctx context.Context, key string, entry Entry) error
}

// Clock supplies the current time; injected so expiry is testable.
type Clock interface {
	Now() time.Time
}

// Noop is a Cache that stores nothing, for running without caching.
type Noop struct{}

// Get always misses.
func (Noop) Get(context.Context, string) (Entry, bool, error) {
	return Entry{}, false, nil
}

// Set discards the entry.
func (Noop) Set(context.Context, string, Entry) error {
	return nil
}
