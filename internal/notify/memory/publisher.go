// Package memory contains an in-memory publisher implementation for tests.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/siteinsight/analyzer-gateway/internal/notify"
)

// Publisher stores published events for inspection.
type Publisher struct {
	mu     sync.RWMutex
	events []notify.TerminalEvent
}

// New returns a memory Publisher.
func New() *Publisher {
	return &Publisher{}
}

// Publish records the event and returns a pseudo ID.
func (p *Publisher) Publish(_ context.Context, event notify.TerminalEvent) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return fmt.Sprintf("memory-%d", len(p.events)), nil
}

// Events returns the recorded publishes.
func (p *Publisher) Events() []notify.TerminalEvent {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]notify.TerminalEvent, len(p.events))
	copy(out, p.events)
	return out
}

// Close is a no-op.
func (p *Publisher) Close() error { return nil }
