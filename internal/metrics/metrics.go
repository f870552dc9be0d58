// Package metrics exposes the Prometheus collectors for the compose and job
// pipelines. Collectors register with the default registry at init.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "stylebff"

var (
	Compositions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compositions_total",
			Help:      "Total number of compose runs by kind and result",
		},
		[]string{"kind", "result"},
	)

	ComposeDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "compose_duration_seconds",
			Help:      "Wall time of a compose run including fetch and upload",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2, 4, 8, 16, 32},
		},
		[]string{"kind"},
	)

	DroppedLayers = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "compose_dropped_layers_total",
			Help:      "Layers omitted from a composite because fetch or transform failed",
		},
	)

	FetchCacheHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "image_fetch_cache_total",
			Help:      "Image fetch cache lookups by result",
		},
		[]string{"result"}, // "hit", "miss"
	)

	PollAttempts = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_poll_attempts_total",
			Help:      "Provider status fetches issued by the poller",
		},
		[]string{"kind"},
	)

	JobOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "job_outcomes_total",
			Help:      "Observed job outcomes by kind",
		},
		[]string{"kind", "outcome"}, // succeeded, failed, canceled, content_policy, timeout
	)

	Reconciliations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ledger_reconciliations_total",
			Help:      "Ledger reconciliation results",
		},
		[]string{"outcome"},
	)

	ProviderBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "provider_circuit_state",
			Help:      "Circuit breaker state per provider (0 closed, 1 half-open, 2 open)",
		},
		[]string{"provider"},
	)

	APIRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "api_requests_total",
			Help:      "Total number of API requests",
		},
		[]string{"method", "endpoint", "status_code"},
	)

	APIRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "api_request_duration_seconds",
			Help:      "API request duration in seconds",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 30, 120},
		},
		[]string{"method", "endpoint"},
	)
)

// RecordCompose records one compose run.
func RecordCompose(kind string, duration time.Duration, dropped int, err error) {
	result := "ok"
	if err != nil {
		result = "error"
	}
	Compositions.WithLabelValues(kind, result).Inc()
	ComposeDuration.WithLabelValues(kind).Observe(duration.Seconds())
	if dropped > 0 {
		DroppedLayers.Add(float64(dropped))
	}
}

// RecordAPIRequest records a served request under its route pattern.
func RecordAPIRequest(method, endpoint string, statusCode int, duration time.Duration) {
	APIRequestsTotal.WithLabelValues(method, endpoint, strconv.Itoa(statusCode)).Inc()
	APIRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// Handler serves the default registry.
func Handler() http.Handler {
	return promhttp.Handler()
}
