// Package gateway orchestrates the public surface: job submission, status
// lookups, and live observation, all expressed in the normalized client
// schema.
package gateway

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
	"github.com/siteinsight/analyzer-gateway/internal/notify"
	"github.com/siteinsight/analyzer-gateway/internal/observe"
)

// BackendClient is the slice of the backend API the service needs;
// backend.Client satisfies it.
type BackendClient interface {
	Submit(ctx context.Context, target string) (string, error)
	Status(ctx context.Context, jobID string) (analysis.Snapshot, error)
}

// Snapshot is the client-facing view of a job at a point in time. A
// completed snapshot carries a normalized result; a failed one carries an
// error message; the two never coexist.
type Snapshot struct {
	JobID        string                     `json:"job_id"`
	Status       analysis.Status            `json:"status"`
	Result       *analysis.NormalizedResult `json:"result,omitempty"`
	ErrorMessage string                     `json:"error_message,omitempty"`
}

// publishTimeout bounds the best-effort terminal-event publish so a slow
// broker never holds an observation stream open.
const publishTimeout = 5 * time.Second

// Service wires submission, observation, and notification together.
type Service struct {
	backend  BackendClient
	observer observe.Observer
	notifier notify.Publisher
	logger   *zap.Logger
}

// NewService constructs a Service. A nil notifier disables terminal-event
// publishing.
func NewService(backend BackendClient, observer observe.Observer, notifier notify.Publisher, logger *zap.Logger) *Service {
	if notifier == nil {
		notifier = notify.Noop{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		backend:  backend,
		observer: observer,
		notifier: notifier,
		logger:   logger,
	}
}

// StartAnalysis validates the target URL and submits it to the backend,
// returning the job ID. Validation happens before any network call.
func (s *Service) StartAnalysis(ctx context.Context, target string) (string, error) {
	if err := analysis.ValidateTargetURL(target); err != nil {
		return "", err
	}
	jobID, err := s.backend.Submit(ctx, target)
	if err != nil {
		return "", fmt.Errorf("submit analysis: %w", err)
	}
	s.logger.Info("analysis submitted",
		zap.String("job_id", jobID),
		zap.String("url", target),
	)
	return jobID, nil
}

// Status performs a single-shot lookup and returns the normalized view.
func (s *Service) Status(ctx context.Context, jobID string) (Snapshot, error) {
	raw, err := s.backend.Status(ctx, jobID)
	if err != nil {
		return Snapshot{}, err
	}
	return s.translate(raw), nil
}

// Stream delivers client-facing snapshots until the job reaches a terminal
// status or the underlying transport gives out. After the channel closes,
// Err reports why: nil on a clean terminal finish.
type Stream interface {
	Snapshots() <-chan Snapshot
	Err() error
	Close()
}

type serviceStream struct {
	inner observe.Stream
	ch    chan Snapshot
	done  chan struct{}
	once  sync.Once
}

func (st *serviceStream) Snapshots() <-chan Snapshot { return st.ch }
func (st *serviceStream) Err() error                 { return st.inner.Err() }

// Close releases the transport and unblocks the translation goroutine
// even when the consumer stops draining.
func (st *serviceStream) Close() {
	st.once.Do(func() {
		close(st.done)
		st.inner.Close()
	})
}

// Observe starts observing jobID and returns the translated stream. Each
// completed snapshot is normalized on the way through, and the first
// terminal snapshot triggers a best-effort notification.
func (s *Service) Observe(ctx context.Context, jobID string) (Stream, error) {
	inner, err := s.observer.Observe(ctx, jobID)
	if err != nil {
		return nil, err
	}
	st := &serviceStream{
		inner: inner,
		ch:    make(chan Snapshot, 1),
		done:  make(chan struct{}),
	}
	go s.pump(st)
	return st, nil
}

func (s *Service) pump(st *serviceStream) {
	defer close(st.ch)
	for raw := range st.inner.Snapshots() {
		select {
		case <-st.done:
			return
		default:
		}
		snap := s.translate(raw)
		if snap.Status.Terminal() {
			s.publishTerminal(raw)
		}
		select {
		case st.ch <- snap:
		case <-st.done:
			return
		}
	}
}

func (s *Service) translate(raw analysis.Snapshot) Snapshot {
	metrics.ObserveSnapshot(string(raw.Status))
	snap := Snapshot{
		JobID:        raw.JobID,
		Status:       raw.Status,
		ErrorMessage: raw.ErrorMessage,
	}
	if raw.Status == analysis.StatusCompleted && raw.Result != nil {
		norm := analysis.Normalize(*raw.Result)
		metrics.ObserveNormalizationDrops(norm.Diagnostics.DroppedIssues)
		snap.Result = &norm
	}
	return snap
}

func (s *Service) publishTerminal(raw analysis.Snapshot) {
	event := notify.TerminalEvent{
		JobID:  raw.JobID,
		Status: raw.Status,
		Error:  raw.ErrorMessage,
	}
	if raw.Result != nil {
		event.URL = raw.Result.URL
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if _, err := s.notifier.Publish(ctx, event); err != nil {
		s.logger.Warn("terminal event publish failed",
			zap.String("job_id", raw.JobID),
			zap.String("status", string(raw.Status)),
			zap.Error(err),
		)
	}
}
