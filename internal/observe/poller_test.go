package observe

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
)

// scriptedFetcher returns one canned response per call, repeating the last.
type scriptedFetcher struct {
	mu    sync.Mutex
	steps []fetchStep
	calls int
}

type fetchStep struct {
	snap analysis.Snapshot
	err  error
}

func (f *scriptedFetcher) Status(_ context.Context, _ string) (analysis.Snapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	if idx >= len(f.steps) {
		idx = len(f.steps) - 1
	}
	f.calls++
	step := f.steps[idx]
	return step.snap, step.err
}

func (f *scriptedFetcher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func collect(t *testing.T, s Stream) []analysis.Snapshot {
	t.Helper()
	var out []analysis.Snapshot
	timeout := time.After(5 * time.Second)
	for {
		select {
		case snap, ok := <-s.Snapshots():
			if !ok {
				return out
			}
			out = append(out, snap)
		case <-timeout:
			t.Fatal("stream did not terminate")
		}
	}
}

func fastPoller(fetcher StatusFetcher, threshold int) *Poller {
	return NewPoller(fetcher, PollerConfig{
		Interval:         time.Millisecond,
		FailureThreshold: threshold,
	}, nil)
}

func TestPoller_EmitsTransitionsThenTerminal(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{snap: analysis.PendingSnapshot("job-1")},
		{snap: analysis.ProcessingSnapshot("job-1")},
		{snap: analysis.CompletedSnapshot("job-1", analysis.Result{OverallScore: 85})},
	}}
	s, err := fastPoller(fetcher, 3).Observe(context.Background(), "job-1")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, snaps, 3)
	require.Equal(t, analysis.StatusPending, snaps[0].Status)
	require.Equal(t, analysis.StatusProcessing, snaps[1].Status)
	require.Equal(t, analysis.StatusCompleted, snaps[2].Status)
	require.NotNil(t, snaps[2].Result)
	require.Equal(t, float64(85), snaps[2].Result.OverallScore)
}

func TestPoller_SuppressesUnchangedStates(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{snap: analysis.ProcessingSnapshot("job-2")},
		{snap: analysis.ProcessingSnapshot("job-2")},
		{snap: analysis.ProcessingSnapshot("job-2")},
		{snap: analysis.FailedSnapshot("job-2", "analysis crashed")},
	}}
	s, err := fastPoller(fetcher, 3).Observe(context.Background(), "job-2")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, snaps, 2)
	require.Equal(t, analysis.StatusProcessing, snaps[0].Status)
	require.Equal(t, analysis.StatusFailed, snaps[1].Status)
	require.Equal(t, "analysis crashed", snaps[1].ErrorMessage)
}

func TestPoller_TerminalOnFirstQuery(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{snap: analysis.NotFoundSnapshot("job-gone")},
	}}
	s, err := fastPoller(fetcher, 3).Observe(context.Background(), "job-gone")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, snaps, 1)
	require.Equal(t, analysis.StatusNotFound, snaps[0].Status)
}

func TestPoller_TransientFailureBelowThresholdIsRetried(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{err: errors.New("connection refused")},
		{snap: analysis.CompletedSnapshot("job-3", analysis.Result{})},
	}}
	s, err := fastPoller(fetcher, 3).Observe(context.Background(), "job-3")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, snaps, 1)
	require.Equal(t, analysis.StatusCompleted, snaps[0].Status)
	require.GreaterOrEqual(t, fetcher.callCount(), 2)
}

func TestPoller_ConsecutiveFailuresEscalateToConnectionLost(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{err: errors.New("timeout")},
	}}
	s, err := fastPoller(fetcher, 2).Observe(context.Background(), "job-4")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.Empty(t, snaps)
	require.ErrorIs(t, s.Err(), analysis.ErrConnectionLost)
	require.Equal(t, 2, fetcher.callCount())
}

// hookFetcher runs a callback before each scripted response.
type hookFetcher struct {
	inner  *scriptedFetcher
	onCall func(call int)
}

func (f *hookFetcher) Status(ctx context.Context, jobID string) (analysis.Snapshot, error) {
	f.onCall(f.inner.callCount())
	return f.inner.Status(ctx, jobID)
}

func TestPoller_CanceledTerminalEmitIsNotACleanFinish(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// First poll parks a snapshot in the stream buffer that nobody reads;
	// cancellation lands before the terminal snapshot can be delivered.
	fetcher := &hookFetcher{
		inner: &scriptedFetcher{steps: []fetchStep{
			{snap: analysis.ProcessingSnapshot("job-8")},
			{snap: analysis.CompletedSnapshot("job-8", analysis.Result{})},
		}},
		onCall: func(call int) {
			if call == 1 {
				cancel()
			}
		},
	}
	s, err := fastPoller(fetcher, 3).Observe(ctx, "job-8")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.Error(t, s.Err(), "undelivered terminal snapshot must not look like a clean finish")
	require.ErrorIs(t, s.Err(), context.Canceled)
	for _, snap := range snaps {
		require.False(t, snap.Status.Terminal())
	}
}

func TestPoller_CancellationStopsPolling(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{snap: analysis.ProcessingSnapshot("job-5")},
	}}
	ctx, cancel := context.WithCancel(context.Background())
	s, err := fastPoller(fetcher, 3).Observe(ctx, "job-5")
	require.NoError(t, err)

	// Drain the first snapshot, then cancel mid-stream.
	select {
	case <-s.Snapshots():
	case <-time.After(time.Second):
		t.Fatal("no snapshot before cancel")
	}
	cancel()

	collect(t, s)
	require.ErrorIs(t, s.Err(), context.Canceled)
}

func TestPoller_CloseReleasesTheStream(t *testing.T) {
	t.Parallel()

	fetcher := &scriptedFetcher{steps: []fetchStep{
		{snap: analysis.ProcessingSnapshot("job-6")},
	}}
	s, err := fastPoller(fetcher, 3).Observe(context.Background(), "job-6")
	require.NoError(t, err)

	select {
	case <-s.Snapshots():
	case <-time.After(time.Second):
		t.Fatal("no snapshot before close")
	}
	s.Close()

	collect(t, s)
	require.Error(t, s.Err())
}
