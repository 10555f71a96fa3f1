package backend

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
)

// streamScanBufferBytes caps a single SSE line; completed results with full
// issue lists comfortably fit.
const streamScanBufferBytes = 1 << 20

// StatusStream reads server-sent status frames for one job. Next blocks for
// the following frame; Close releases the underlying connection.
type StatusStream struct {
	jobID   string
	body    io.ReadCloser
	scanner *bufio.Scanner
}

// StreamStatus opens the backend's push stream for a job. The stream stays
// live until the context is canceled, the backend closes it, or the caller
// invokes Close. No per-call timeout applies; the caller owns the lifetime.
func (c *Client) StreamStatus(ctx context.Context, jobID string) (*StatusStream, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.statusURL(jobID), nil)
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", analysis.ErrUpstreamUnreachable, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		defer closeBody(resp, c.logger)
		return nil, upstreamRejection(resp)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 4096), streamScanBufferBytes)
	return &StatusStream{jobID: jobID, body: resp.Body, scanner: scanner}, nil
}

// Next returns the next snapshot frame. It reports io.EOF when the backend
// closes the stream, which callers treat as a lost connection unless a
// terminal snapshot already arrived.
func (s *StatusStream) Next() (analysis.Snapshot, error) {
	for s.scanner.Scan() {
		line := strings.TrimSpace(s.scanner.Text())
		if !strings.HasPrefix(line, "data:") {
			// Comments, event names, and keepalive blank lines.
			continue
		}
		payload := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if payload == "" {
			continue
		}
		snap, err := analysis.DecodeStatusPayload([]byte(payload))
		if err != nil {
			return analysis.Snapshot{}, fmt.Errorf("%w: %v", analysis.ErrUpstreamUnavailable, err)
		}
		if snap.JobID == "" {
			snap.JobID = s.jobID
		}
		return snap, nil
	}
	if err := s.scanner.Err(); err != nil {
		return analysis.Snapshot{}, fmt.Errorf("%w: %v", analysis.ErrUpstreamUnreachable, err)
	}
	return analysis.Snapshot{}, io.EOF
}

// Close releases the stream's connection. Safe after EOF.
func (s *StatusStream) Close() error {
	return s.body.Close()
}
