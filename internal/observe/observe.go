// Package observe implements the job status synchronizer: given a job id it
// produces a finite, ordered sequence of snapshots ending in exactly one
// terminal state. Two transports exist behind the same contract, a pull
// poller and a push stream consumer, so callers stay transport-agnostic.
package observe

import (
	"context"
	"sync"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
)

// Observer produces snapshot streams for jobs.
type Observer interface {
	Observe(ctx context.Context, jobID string) (Stream, error)
}

// Stream delivers snapshots for one job. The channel closes after the
// terminal snapshot or a failure; Err is meaningful only once it closes.
// Close cancels the underlying transport and is safe from any goroutine;
// after a terminal emission it is a no-op.
type Stream interface {
	Snapshots() <-chan analysis.Snapshot
	Err() error
	Close()
}

// stream is the shared Stream implementation used by both transports.
type stream struct {
	ch     chan analysis.Snapshot
	cancel context.CancelFunc

	mu  sync.Mutex
	err error

	closeOnce sync.Once
}

func newStream(cancel context.CancelFunc) *stream {
	return &stream{
		ch:     make(chan analysis.Snapshot, 1),
		cancel: cancel,
	}
}

func (s *stream) Snapshots() <-chan analysis.Snapshot {
	return s.ch
}

func (s *stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *stream) Close() {
	s.closeOnce.Do(s.cancel)
}

// emit delivers one snapshot, giving up if the consumer went away.
func (s *stream) emit(ctx context.Context, snap analysis.Snapshot) bool {
	select {
	case s.ch <- snap:
		return true
	case <-ctx.Done():
		return false
	}
}

// finish records the outcome and closes the snapshot channel. Called
// exactly once by the producing goroutine on every exit path.
func (s *stream) finish(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
	close(s.ch)
	s.cancel()
}
