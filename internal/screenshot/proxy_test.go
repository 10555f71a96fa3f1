package screenshot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/backend"
	"github.com/siteinsight/analyzer-gateway/internal/cache/memory"
)

type stubFetcher struct {
	body        []byte
	contentType string
	err         error
	calls       int
}

func (s *stubFetcher) Screenshot(_ context.Context, _, _ string) ([]byte, string, error) {
	s.calls++
	if s.err != nil {
		return nil, "", s.err
	}
	return s.body, s.contentType, nil
}

type stubClock struct{ now time.Time }

func (c *stubClock) Now() time.Time { return c.now }

func TestProxyRejectsUnknownDevice(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{}
	proxy := NewProxy(fetcher, nil, Config{}, nil)

	_, err := proxy.Fetch(context.Background(), "job-1", "watch")
	require.ErrorIs(t, err, analysis.ErrInvalidInput)
	require.Zero(t, fetcher.calls, "invalid device must not reach the backend")
}

func TestProxyFetchesAndCaches(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{body: []byte("png-bytes"), contentType: "image/png"}
	store := memory.New(time.Hour, &stubClock{now: time.Unix(1000, 0)})
	proxy := NewProxy(fetcher, store, Config{}, nil)

	art, err := proxy.Fetch(context.Background(), "job-1", "desktop")
	require.NoError(t, err)
	require.False(t, art.Placeholder)
	require.Equal(t, []byte("png-bytes"), art.Body)
	require.Equal(t, "image/png", art.ContentType)

	// Second fetch must be served from cache.
	art, err = proxy.Fetch(context.Background(), "job-1", "desktop")
	require.NoError(t, err)
	require.False(t, art.Placeholder)
	require.Equal(t, []byte("png-bytes"), art.Body)
	require.Equal(t, 1, fetcher.calls)
}

func TestProxyMissingUpstreamServesPlaceholder(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: backend.ErrArtifactNotFound}
	proxy := NewProxy(fetcher, nil, Config{}, nil)

	art, err := proxy.Fetch(context.Background(), "job-1", "mobile")
	require.NoError(t, err)
	require.True(t, art.Placeholder)
	require.Equal(t, "image/svg+xml", art.ContentType)
	require.Contains(t, string(art.Body), "screenshot unavailable")
}

type slowFetcher struct{}

func (slowFetcher) Screenshot(ctx context.Context, _, _ string) ([]byte, string, error) {
	<-ctx.Done()
	return nil, "", ctx.Err()
}

func TestProxyTimeoutServesPlaceholder(t *testing.T) {
	t.Parallel()

	proxy := NewProxy(slowFetcher{}, nil, Config{FetchTimeout: 10 * time.Millisecond}, nil)

	art, err := proxy.Fetch(context.Background(), "job-1", "desktop")
	require.NoError(t, err)
	require.True(t, art.Placeholder)
}

func TestProxyBackendFailureServesPlaceholder(t *testing.T) {
	t.Parallel()

	fetcher := &stubFetcher{err: errors.New("connection reset")}
	store := memory.New(time.Hour, &stubClock{now: time.Unix(1000, 0)})
	proxy := NewProxy(fetcher, store, Config{}, nil)

	art, err := proxy.Fetch(context.Background(), "job-1", "tablet")
	require.NoError(t, err)
	require.True(t, art.Placeholder)

	// Placeholders are never cached; a later fetch retries the backend.
	fetcher.err = nil
	fetcher.body = []byte("real")
	fetcher.contentType = "image/png"
	art, err = proxy.Fetch(context.Background(), "job-1", "tablet")
	require.NoError(t, err)
	require.False(t, art.Placeholder)
	require.Equal(t, 2, fetcher.calls)
}
