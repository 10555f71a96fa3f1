// Package screenshot proxies job screenshots from the analysis backend,
// caching successes and degrading every failure to a placeholder so the
// caller always has something renderable.
package screenshot

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/backend"
	"github.com/siteinsight/analyzer-gateway/internal/cache"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
)

// Fetcher retrieves screenshot bytes from the backend; backend.Client
// satisfies it.
type Fetcher interface {
	Screenshot(ctx context.Context, jobID, device string) ([]byte, string, error)
}

// Artifact is the proxy's answer: either real bytes or the placeholder.
type Artifact struct {
	Body        []byte
	ContentType string
	Placeholder bool
}

// ValidDevice reports whether device names a supported device class.
func ValidDevice(device string) bool {
	switch device {
	case "desktop", "tablet", "mobile":
		return true
	}
	return false
}

const defaultFetchTimeout = 10 * time.Second

// Config tunes the Proxy.
type Config struct {
	// FetchTimeout bounds one backend screenshot fetch (default 10s).
	FetchTimeout time.Duration
}

// Proxy serves artifacts with a read-before-fetch cache. The cache is
// injected so tests run against an in-memory stub.
type Proxy struct {
	fetcher Fetcher
	cache   cache.Cache
	timeout time.Duration
	logger  *zap.Logger
}

// NewProxy constructs a Proxy. A nil cache disables caching.
func NewProxy(fetcher Fetcher, artifactCache cache.Cache, cfg Config, logger *zap.Logger) *Proxy {
	if artifactCache == nil {
		artifactCache = cache.Noop{}
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Proxy{
		fetcher: fetcher,
		cache:   artifactCache,
		timeout: cfg.FetchTimeout,
		logger:  logger,
	}
}

// Fetch returns the screenshot for (jobID, device). Only an invalid device
// class is an error; every backend failure degrades to the placeholder,
// with the not-found path kept distinguishable in logs and metrics from
// genuine backend trouble.
func (p *Proxy) Fetch(ctx context.Context, jobID, device string) (Artifact, error) {
	if !ValidDevice(device) {
		return Artifact{}, fmt.Errorf("%w: unknown device class %q", analysis.ErrInvalidInput, device)
	}
	key := jobID + "/" + device

	if entry, ok, err := p.cache.Get(ctx, key); err != nil {
		p.logger.Warn("artifact cache read failed", zap.String("key", key), zap.Error(err))
	} else if ok {
		metrics.ObserveArtifact(metrics.ArtifactHit)
		return Artifact{Body: entry.Body, ContentType: entry.ContentType}, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()
	body, contentType, err := p.fetcher.Screenshot(fetchCtx, jobID, device)
	if err != nil {
		// The client folds transport errors into its own taxonomy, so a
		// fired deadline is only visible on the fetch context.
		timedOut := errors.Is(fetchCtx.Err(), context.DeadlineExceeded)
		return p.degrade(jobID, device, err, timedOut), nil
	}

	if err := p.cache.Set(ctx, key, cache.Entry{Body: body, ContentType: contentType}); err != nil {
		p.logger.Warn("artifact cache write failed", zap.String("key", key), zap.Error(err))
	}
	metrics.ObserveArtifact(metrics.ArtifactFetched)
	return Artifact{Body: body, ContentType: contentType}, nil
}

func (p *Proxy) degrade(jobID, device string, err error, timedOut bool) Artifact {
	switch {
	case errors.Is(err, backend.ErrArtifactNotFound):
		metrics.ObserveArtifact(metrics.ArtifactNotFound)
		p.logger.Debug("screenshot missing upstream",
			zap.String("job_id", jobID),
			zap.String("device", device),
		)
	case timedOut:
		metrics.ObserveArtifact(metrics.ArtifactTimeout)
		p.logger.Warn("screenshot fetch timed out",
			zap.String("job_id", jobID),
			zap.String("device", device),
		)
	default:
		metrics.ObserveArtifact(metrics.ArtifactBackendError)
		p.logger.Warn("screenshot fetch failed",
			zap.String("job_id", jobID),
			zap.String("device", device),
			zap.Error(err),
		)
	}
	return Placeholder()
}
