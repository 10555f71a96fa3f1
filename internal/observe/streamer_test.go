package observe

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
)

// scriptedReader plays back frames, then a final error.
type scriptedReader struct {
	mu       sync.Mutex
	frames   []analysis.Snapshot
	finalErr error
	idx      int
	closed   bool
}

func (r *scriptedReader) Next() (analysis.Snapshot, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.idx >= len(r.frames) {
		if r.finalErr != nil {
			return analysis.Snapshot{}, r.finalErr
		}
		return analysis.Snapshot{}, io.EOF
	}
	frame := r.frames[r.idx]
	r.idx++
	return frame, nil
}

func (r *scriptedReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *scriptedReader) wasClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}

func openerFor(reader *scriptedReader, err error) OpenStreamFunc {
	return func(context.Context, string) (SnapshotReader, error) {
		if err != nil {
			return nil, err
		}
		return reader, nil
	}
}

func TestStreamer_ForwardsFramesUntilTerminal(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{frames: []analysis.Snapshot{
		analysis.PendingSnapshot("job-1"),
		analysis.ProcessingSnapshot("job-1"),
		analysis.CompletedSnapshot("job-1", analysis.Result{OverallScore: 91}),
	}}
	st := NewStreamer(openerFor(reader, nil), nil)
	s, err := st.Observe(context.Background(), "job-1")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.NoError(t, s.Err())
	require.Len(t, snaps, 3)
	require.Equal(t, analysis.StatusCompleted, snaps[2].Status)
	require.Eventually(t, reader.wasClosed, time.Second, 5*time.Millisecond)
}

func TestStreamer_EOFBeforeTerminalIsConnectionLost(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{frames: []analysis.Snapshot{
		analysis.ProcessingSnapshot("job-2"),
	}}
	st := NewStreamer(openerFor(reader, nil), nil)
	s, err := st.Observe(context.Background(), "job-2")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.Len(t, snaps, 1)
	require.ErrorIs(t, s.Err(), analysis.ErrConnectionLost)
}

func TestStreamer_TransportErrorIsConnectionLost(t *testing.T) {
	t.Parallel()

	reader := &scriptedReader{finalErr: errors.New("connection reset")}
	st := NewStreamer(openerFor(reader, nil), nil)
	s, err := st.Observe(context.Background(), "job-3")
	require.NoError(t, err)

	snaps := collect(t, s)
	require.Empty(t, snaps)
	require.ErrorIs(t, s.Err(), analysis.ErrConnectionLost)
}

func TestStreamer_OpenFailureIsReturnedDirectly(t *testing.T) {
	t.Parallel()

	openErr := analysis.ErrUpstreamUnreachable
	st := NewStreamer(openerFor(nil, openErr), nil)
	_, err := st.Observe(context.Background(), "job-4")
	require.ErrorIs(t, err, analysis.ErrUpstreamUnreachable)
}

func TestStreamer_CloseTearsDownReader(t *testing.T) {
	t.Parallel()

	// A reader that blocks until its context-backed close.
	block := make(chan struct{})
	reader := &blockingReader{unblock: block}
	st := NewStreamer(func(context.Context, string) (SnapshotReader, error) {
		return reader, nil
	}, nil)
	s, err := st.Observe(context.Background(), "job-5")
	require.NoError(t, err)

	s.Close()
	close(block)
	collect(t, s)
	require.Eventually(t, reader.wasClosed, time.Second, 5*time.Millisecond)
}

type blockingReader struct {
	mu      sync.Mutex
	unblock chan struct{}
	closed  bool
}

func (r *blockingReader) Next() (analysis.Snapshot, error) {
	<-r.unblock
	return analysis.Snapshot{}, io.EOF
}

func (r *blockingReader) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *blockingReader) wasClosed() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closed
}
