package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/siteinsight/analyzer-gateway/internal/analysis"
)

// streamStatus handles GET /api/status/{job_id}: a server-sent event stream
// of job snapshots. Each snapshot is one "data:" frame. The stream ends
// after the first terminal snapshot; if the backend link dies first, a
// final frame reports connection_lost so the client can fall back to
// polling.
func (s *Server) streamStatus(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	jobID := chi.URLParam(r, "job_id")

	st, err := s.svc.Observe(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	defer st.Close()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for snap := range st.Snapshots() {
		if !s.writeFrame(w, flusher, snap) {
			return
		}
	}

	if err := st.Err(); err != nil {
		s.logger.Warn("status stream ended early",
			zap.String("job_id", jobID),
			zap.Error(err),
		)
		if errors.Is(err, analysis.ErrConnectionLost) {
			s.writeFrame(w, flusher, map[string]string{
				"job_id": jobID,
				"error":  "connection_lost",
			})
		}
	}
}

// writeFrame emits one SSE data frame and reports whether the client is
// still connected.
func (s *Server) writeFrame(w http.ResponseWriter, flusher http.Flusher, payload any) bool {
	data, err := json.Marshal(payload)
	if err != nil {
		s.logger.Error("marshal SSE frame failed", zap.Error(err))
		return false
	}
	if _, err := w.Write(append(append([]byte("data: "), data...), '\n', '\n')); err != nil {
		return false
	}
	flusher.Flush()
	return true
}
