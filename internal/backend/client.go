// Package backend implements the HTTP client for the external analysis
// service: job submission, status reads (single poll and push stream), and
// screenshot retrieval.
package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
)

// ErrArtifactNotFound reports a screenshot the backend has no bytes for.
// Callers degrade to a placeholder rather than propagating this.
var ErrArtifactNotFound = errors.New("artifact not found")

const defaultRequestTimeout = 10 * time.Second

// maxErrorBodyBytes bounds how much of an upstream error body is retained.
const maxErrorBodyBytes = 4 << 10

// Config controls Client behavior.
type Config struct {
	// BaseURL is the backend API root, e.g. "http://localhost:8000/api/v1".
	BaseURL string
	// RequestTimeout bounds each individual call (submit, one poll, one
	// screenshot fetch). It does not apply to long-lived status streams.
	RequestTimeout time.Duration
}

// Client talks to the analysis backend over HTTP. All methods classify
// failures into the gateway error taxonomy.
type Client struct {
	base    string
	httpc   *http.Client
	timeout time.Duration
	logger  *zap.Logger
}

// NewClient constructs a Client for the given backend root.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, errors.New("backend base url is required")
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Client{
		base:    base,
		httpc:   &http.Client{},
		timeout: timeout,
		logger:  logger,
	}, nil
}

type submitRequest struct {
	URL string `json:"url"`
}

type submitResponse struct {
	JobID string `json:"job_id"`
}

// Submit issues a single create-job request and returns the backend-minted
// job id. The target URL is assumed validated by the caller; every call
// creates a new job, even for a repeated URL.
func (c *Client) Submit(ctx context.Context, target string) (string, error) {
	body, err := json.Marshal(submitRequest{URL: target})
	if err != nil {
		return "", fmt.Errorf("marshal submit request: %w", err)
	}
	start := time.Now()
	resp, err := c.do(ctx, http.MethodPost, c.base+"/analyze", bytes.NewReader(body))
	metrics.ObserveBackendRequest("submit", time.Since(start), err == nil)
	if err != nil {
		return "", err
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", upstreamRejection(resp)
	}
	var decoded submitResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return "", fmt.Errorf("%w: malformed submit response: %v", analysis.ErrUpstreamUnavailable, err)
	}
	if decoded.JobID == "" {
		return "", fmt.Errorf("%w: submit response missing job id", analysis.ErrUpstreamUnavailable)
	}
	return decoded.JobID, nil
}

// Status fetches the current snapshot for a job. An HTTP 404 is folded into
// the synthetic NotFound snapshot; the backend may equally report NOT_FOUND
// in a 200 body.
func (c *Client) Status(ctx context.Context, jobID string) (analysis.Snapshot, error) {
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, c.statusURL(jobID), nil)
	metrics.ObserveBackendRequest("status", time.Since(start), err == nil)
	if err != nil {
		return analysis.Snapshot{}, err
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode == http.StatusNotFound {
		return analysis.NotFoundSnapshot(jobID), nil
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return analysis.Snapshot{}, upstreamRejection(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return analysis.Snapshot{}, fmt.Errorf("%w: read status response: %v", analysis.ErrUpstreamUnreachable, err)
	}
	snap, err := analysis.DecodeStatusPayload(body)
	if err != nil {
		return analysis.Snapshot{}, fmt.Errorf("%w: %v", analysis.ErrUpstreamUnavailable, err)
	}
	if snap.JobID == "" {
		snap.JobID = jobID
	}
	return snap, nil
}

// Screenshot retrieves the named artifact for a job and device class. It
// returns the image bytes and content type, ErrArtifactNotFound on a 404,
// or a classified upstream error otherwise.
func (c *Client) Screenshot(ctx context.Context, jobID, device string) ([]byte, string, error) {
	target := fmt.Sprintf("%s/screenshot/%s/%s", c.base, jobID, device)
	start := time.Now()
	resp, err := c.do(ctx, http.MethodGet, target, nil)
	metrics.ObserveBackendRequest("screenshot", time.Since(start), err == nil)
	if err != nil {
		return nil, "", err
	}
	defer closeBody(resp, c.logger)

	if resp.StatusCode == http.StatusNotFound {
		return nil, "", ErrArtifactNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, "", upstreamRejection(resp)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("%w: read screenshot body: %v", analysis.ErrUpstreamUnreachable, err)
	}
	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "image/png"
	}
	return body, contentType, nil
}

func (c *Client) statusURL(jobID string) string {
	return fmt.Sprintf("%s/status/%s", c.base, jobID)
}

// do runs one bounded request. The per-call timeout is layered under the
// caller's context so a canceled observe still wins.
func (c *Client) do(ctx context.Context, method, target string, body io.Reader) (*http.Response, error) {
	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	req, err := http.NewRequestWithContext(reqCtx, method, target, body)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build %s request: %w", method, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("%w: %v", analysis.ErrUpstreamUnreachable, err)
	}
	// Tie the cancel to body close so the response stays readable.
	resp.Body = &cancelingBody{ReadCloser: resp.Body, cancel: cancel}
	return resp, nil
}

// upstreamRejection folds a non-2xx response into ErrUpstreamUnavailable,
// carrying the backend's error text when it sent any.
func upstreamRejection(resp *http.Response) error {
	text := readErrorText(resp.Body)
	if text == "" {
		return fmt.Errorf("%w: backend returned %d", analysis.ErrUpstreamUnavailable, resp.StatusCode)
	}
	return fmt.Errorf("%w: backend returned %d: %s", analysis.ErrUpstreamUnavailable, resp.StatusCode, text)
}

func readErrorText(r io.Reader) string {
	raw, err := io.ReadAll(io.LimitReader(r, maxErrorBodyBytes))
	if err != nil {
		return ""
	}
	var payload struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if err := json.Unmarshal(raw, &payload); err == nil {
		if payload.Error != "" {
			return payload.Error
		}
		if payload.Detail != "" {
			return payload.Detail
		}
	}
	return strings.TrimSpace(string(raw))
}

func closeBody(resp *http.Response, logger *zap.Logger) {
	if err := resp.Body.Close(); err != nil {
		logger.Debug("close response body failed", zap.Error(err))
	}
}

type cancelingBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelingBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}
