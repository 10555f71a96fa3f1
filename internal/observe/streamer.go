package observe

import (
	"context"
	"errors"
	"fmt"
	"io"

	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
)

// SnapshotReader is one open push stream. Next blocks for the following
// frame and returns io.EOF when the backend closes the stream.
type SnapshotReader interface {
	Next() (analysis.Snapshot, error)
	Close() error
}

// OpenStreamFunc opens the backend push stream for a job. Wrap
// backend.Client.StreamStatus in a closure to satisfy it.
type OpenStreamFunc func(ctx context.Context, jobID string) (SnapshotReader, error)

// Streamer implements Observer over the backend's push stream. Every frame
// is forwarded and there is no local retry: a transport failure before the
// terminal frame surfaces as a lost connection, and the caller decides
// whether to observe again.
type Streamer struct {
	open   OpenStreamFunc
	logger *zap.Logger
}

// NewStreamer constructs a Streamer.
func NewStreamer(open OpenStreamFunc, logger *zap.Logger) *Streamer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Streamer{open: open, logger: logger}
}

// Observe opens the push stream for jobID and forwards its frames. Opening
// failures are returned directly, classified by the transport.
func (st *Streamer) Observe(ctx context.Context, jobID string) (Stream, error) {
	runCtx, cancel := context.WithCancel(ctx)
	reader, err := st.open(runCtx, jobID)
	if err != nil {
		cancel()
		return nil, err
	}
	s := newStream(cancel)
	go st.run(runCtx, jobID, reader, s)
	return s, nil
}

func (st *Streamer) run(ctx context.Context, jobID string, reader SnapshotReader, s *stream) {
	defer func() {
		if err := reader.Close(); err != nil {
			st.logger.Debug("close status stream failed", zap.String("job_id", jobID), zap.Error(err))
		}
	}()

	for {
		snap, err := reader.Next()
		if err != nil {
			if ctx.Err() != nil {
				s.finish(ctx.Err())
				return
			}
			metrics.ObserveConnectionLost("stream")
			if errors.Is(err, io.EOF) {
				s.finish(fmt.Errorf("%w: stream closed before terminal snapshot", analysis.ErrConnectionLost))
			} else {
				s.finish(fmt.Errorf("%w: %v", analysis.ErrConnectionLost, err))
			}
			return
		}
		if !s.emit(ctx, snap) {
			s.finish(ctx.Err())
			return
		}
		if snap.Status.Terminal() {
			s.finish(nil)
			return
		}
	}
}
