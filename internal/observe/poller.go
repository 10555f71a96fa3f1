package observe

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
)

// StatusFetcher fetches the current snapshot for a job; backend.Client
// satisfies it.
type StatusFetcher interface {
	Status(ctx context.Context, jobID string) (analysis.Snapshot, error)
}

const (
	defaultPollInterval     = 5 * time.Second
	defaultFailureThreshold = 3
)

// PollerConfig tunes the pull transport.
type PollerConfig struct {
	// Interval between status queries (default 5s).
	Interval time.Duration
	// FailureThreshold is how many consecutive failed polls are tolerated
	// before the stream fails with a lost connection (default 3).
	FailureThreshold int
}

// Poller implements Observer by re-querying the backend at a fixed
// interval. A snapshot is emitted only when the state differs from the
// last emitted one, except the terminal snapshot which is always emitted,
// covering a terminal state seen on the very first query.
type Poller struct {
	fetcher StatusFetcher
	cfg     PollerConfig
	logger  *zap.Logger
}

// NewPoller constructs a Poller.
func NewPoller(fetcher StatusFetcher, cfg PollerConfig, logger *zap.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultPollInterval
	}
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = defaultFailureThreshold
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Poller{fetcher: fetcher, cfg: cfg, logger: logger}
}

// Observe starts polling jobID. The first query fires immediately.
func (p *Poller) Observe(ctx context.Context, jobID string) (Stream, error) {
	runCtx, cancel := context.WithCancel(ctx)
	s := newStream(cancel)
	go p.run(runCtx, jobID, s)
	return s, nil
}

func (p *Poller) run(ctx context.Context, jobID string, s *stream) {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	var lastEmitted analysis.Status
	failures := 0

	for {
		snap, err := p.fetcher.Status(ctx, jobID)
		if err != nil {
			if ctx.Err() != nil {
				s.finish(ctx.Err())
				return
			}
			failures++
			p.logger.Debug("status poll failed",
				zap.String("job_id", jobID),
				zap.Int("consecutive_failures", failures),
				zap.Error(err),
			)
			if failures >= p.cfg.FailureThreshold {
				metrics.ObserveConnectionLost("poll")
				s.finish(fmt.Errorf("%w: %d consecutive polls failed: %v",
					analysis.ErrConnectionLost, failures, err))
				return
			}
		} else {
			failures = 0
			if snap.Status.Terminal() {
				// Always emitted, even when unchanged from the last tick.
				if !s.emit(ctx, snap) {
					s.finish(ctx.Err())
					return
				}
				s.finish(nil)
				return
			}
			if snap.Status != lastEmitted {
				if !s.emit(ctx, snap) {
					s.finish(ctx.Err())
					return
				}
				lastEmitted = snap.Status
			}
		}

		select {
		case <-ctx.Done():
			s.finish(ctx.Err())
			return
		case <-ticker.C:
		}
	}
}
