package metrics

import (
	"time"

	"mercator-hq/cursorgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// UpstreamMetrics tracks calls to the vendor endpoint.
//
// Metrics:
//   - cursorgate_upstream_requests_total: calls by endpoint and status
//   - cursorgate_upstream_latency_seconds: time until response headers
//   - cursorgate_upstream_errors_total: failures by endpoint and kind
type UpstreamMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	errors   *prometheus.CounterVec
}

// NewUpstreamMetrics creates and registers upstream metrics with registry.
func NewUpstreamMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *UpstreamMetrics {
	um := &UpstreamMetrics{
		requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_requests_total",
				Help:      "Total number of vendor calls by endpoint and status",
			},
			[]string{"endpoint", "status"},
		),

		latency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_latency_seconds",
				Help:      "Vendor call latency until response headers in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"endpoint"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "upstream_errors_total",
				Help:      "Total number of vendor call failures by kind",
			},
			[]string{"endpoint", "kind"},
		),
	}

	registry.MustRegister(um.requests, um.latency, um.errors)
	return um
}

// RecordCall records one vendor call.
func (um *UpstreamMetrics) RecordCall(endpoint, status string, latency time.Duration) {
	um.requests.WithLabelValues(endpoint, status).Inc()
	um.latency.WithLabelValues(endpoint).Observe(latency.Seconds())
}

// RecordError counts one failure.
func (um *UpstreamMetrics) RecordError(endpoint, kind string) {
	um.errors.WithLabelValues(endpoint, kind).Inc()
}
