// Package metrics exposes Prometheus collectors for the analyzer gateway.
package metrics

import (
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	snapshotsTotal          *prometheus.CounterVec
	normalizationDropsTotal prometheus.Counter
	artifactFetchesTotal    *prometheus.CounterVec
	backendRequestSeconds   *prometheus.HistogramVec
	observeFailuresTotal    *prometheus.CounterVec
	httpRequestSeconds      *prometheus.HistogramVec

	once sync.Once
)

// Artifact fetch outcomes recorded by ObserveArtifact. The not_found path
// must stay distinguishable from other degradations.
const (
	ArtifactHit          = "hit"
	ArtifactFetched      = "fetched"
	ArtifactNotFound     = "not_found"
	ArtifactTimeout      = "timeout"
	ArtifactBackendError = "backend_error"
)

// Init registers the gateway collectors against the default registry.
// It is safe to call multiple times.
func Init() {
	once.Do(func() {
		snapshotsTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_snapshots_total",
				Help: "Total job snapshots delivered to clients, labeled by status.",
			},
			[]string{"status"},
		)

		normalizationDropsTotal = promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "gateway_normalization_dropped_issues_total",
				Help: "Total issues dropped during normalization for matching no display bucket.",
			},
		)

		artifactFetchesTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_artifact_fetches_total",
				Help: "Screenshot proxy results, labeled by outcome.",
			},
			[]string{"outcome"},
		)

		backendRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_backend_request_duration_seconds",
				Help:    "Latency of individual analysis backend calls, labeled by operation and result.",
				Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
			},
			[]string{"op", "result"},
		)

		observeFailuresTotal = promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "gateway_observe_failures_total",
				Help: "Observe streams that ended without a terminal snapshot, labeled by transport.",
			},
			[]string{"transport"},
		)

		httpRequestSeconds = promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "gateway_http_request_duration_seconds",
				Help:    "Latency of handled HTTP requests, labeled by method, route, and status code.",
				Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2, 5, 30},
			},
			[]string{"method", "route", "status"},
		)
	})
}

// Handler returns an http.Handler exposing the Prometheus metrics.
func Handler() http.Handler {
	return promhttp.Handler()
}

// ObserveSnapshot counts one snapshot delivered to a client.
func ObserveSnapshot(status string) {
	if snapshotsTotal == nil {
		return
	}
	snapshotsTotal.WithLabelValues(status).Inc()
}

// ObserveNormalizationDrops counts issues excluded from both display buckets.
func ObserveNormalizationDrops(n int) {
	if normalizationDropsTotal == nil || n <= 0 {
		return
	}
	normalizationDropsTotal.Add(float64(n))
}

// ObserveArtifact records one screenshot proxy outcome.
func ObserveArtifact(outcome string) {
	if artifactFetchesTotal == nil {
		return
	}
	artifactFetchesTotal.WithLabelValues(outcome).Inc()
}

// ObserveBackendRequest records latency for one backend call.
func ObserveBackendRequest(op string, duration time.Duration, ok bool) {
	if backendRequestSeconds == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	backendRequestSeconds.WithLabelValues(op, result).Observe(duration.Seconds())
}

// ObserveHTTPRequest records latency for one handled HTTP request.
func ObserveHTTPRequest(method, route string, status int, duration time.Duration) {
	if httpRequestSeconds == nil {
		return
	}
	httpRequestSeconds.WithLabelValues(method, route, strconv.Itoa(status)).Observe(duration.Seconds())
}

// ObserveConnectionLost counts an observe call that failed before terminal.
func ObserveConnectionLost(transport string) {
	if observeFailuresTotal == nil {
		return
	}
	observeFailuresTotal.WithLabelValues(transport).Inc()
}
