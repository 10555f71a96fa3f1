// Package notify emits terminal-state events for analysis jobs. Delivery
// is best-effort; a failed publish never affects the observed stream.
package notify

import (
	"context"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
)

// TerminalEvent is the payload published when a job reaches a terminal
// status.
type TerminalEvent struct {
	JobID  string          `json:"job_id"`
	Status analysis.Status `json:"status"`
	URL    string          `json:"url,omitempty"`
	Error  string          `json:"error,omitempty"`
}

// Publisher delivers terminal events to some sink.
type Publisher interface {
	// Publish sends the event and returns a provider-assigned message ID.
	Publish(ctx context.Context, event TerminalEvent) (string, error)
	// Close releases any underlying resources.
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, TerminalEvent) (string, error) { return "", nil }
func (Noop) Close() error                                           { return nil }
