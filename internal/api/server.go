// Package api exposes the HTTP interface for the analyzer gateway.
package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
	"github.com/siteinsight/analyzer-gateway/internal/gateway"
	"github.com/siteinsight/analyzer-gateway/internal/metrics"
	"github.com/siteinsight/analyzer-gateway/internal/screenshot"
)

const (
	requestTimeout = 30 * time.Second
	// artifactMaxAge matches the backend's screenshot retention window.
	artifactMaxAge = 3600
)

// Service is the slice of the gateway the HTTP layer needs;
// gateway.Service satisfies it.
type Service interface {
	StartAnalysis(ctx context.Context, target string) (string, error)
	Status(ctx context.Context, jobID string) (gateway.Snapshot, error)
	Observe(ctx context.Context, jobID string) (gateway.Stream, error)
}

// ArtifactFetcher is the slice of the screenshot proxy the HTTP layer
// needs; screenshot.Proxy satisfies it.
type ArtifactFetcher interface {
	Fetch(ctx context.Context, jobID, device string) (screenshot.Artifact, error)
}

// Server wires HTTP handlers to the gateway service and artifact proxy.
type Server struct {
	router chi.Router
	svc    Service
	proxy  ArtifactFetcher
	logger *zap.Logger
}

// NewServer constructs a Server with middleware and routes. Status
// streaming routes skip the request timeout; everything else is bounded.
func NewServer(svc Service, proxy ArtifactFetcher, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{svc: svc, proxy: proxy, logger: logger}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(metricsMiddleware)
	r.Use(s.recoverMiddleware)

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		// SSE connections outlive any sane request timeout.
		r.Get("/status/{job_id}", s.streamStatus)

		r.Group(func(r chi.Router) {
			r.Use(timeoutMiddleware(requestTimeout))
			r.Post("/analyze", s.startAnalysis)
			r.Get("/jobs/{job_id}", s.getJob)
			r.Get("/screenshot/{job_id}/{device}", s.getScreenshot)
		})
	})

	s.router = r
	return s
}

// Handler returns the router for use with http.Server.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	// The gateway holds no connections at rest; readiness mirrors health.
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

type analyzeRequest struct {
	URL string `json:"url"`
}

func (s *Server) startAnalysis(w http.ResponseWriter, r *http.Request) {
	var req analyzeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	jobID, err := s.svc.StartAnalysis(r.Context(), req.URL)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"job_id": jobID})
}

func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	snap, err := s.svc.Status(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	if snap.Status == analysis.StatusNotFound {
		writeJSON(w, http.StatusNotFound, snap)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) getScreenshot(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "job_id")
	device := chi.URLParam(r, "device")
	art, err := s.proxy.Fetch(r.Context(), jobID, device)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", art.ContentType)
	if art.Placeholder {
		w.Header().Set("Cache-Control", "no-store")
		w.Header().Set("X-Gateway-Placeholder", "true")
	} else {
		w.Header().Set("Cache-Control", fmt.Sprintf("public, max-age=%d", artifactMaxAge))
	}
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(art.Body); err != nil {
		s.logger.Debug("screenshot write failed", zap.Error(err))
	}
}

// writeServiceError maps the sentinel taxonomy onto HTTP statuses.
func (s *Server) writeServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, analysis.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, analysis.ErrUpstreamUnavailable):
		writeError(w, http.StatusBadGateway, err.Error())
	case errors.Is(err, analysis.ErrUpstreamUnreachable):
		writeError(w, http.StatusServiceUnavailable, "analysis backend unreachable")
	default:
		s.logger.Error("request failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.NewString()
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)
		s.logger.Info("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
		)
	})
}

func metricsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(ww, r)

		route := chi.RouteContext(r.Context()).RoutePattern()
		if route == "" {
			route = "unknown"
		}
		metrics.ObserveHTTPRequest(r.Method, route, ww.status, time.Since(start))
	})
}

func (s *Server) recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", zap.Any("error", rec))
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("hijacker not supported")
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Encode errors mean the client went away mid-write; nothing actionable.
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
