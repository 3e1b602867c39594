package metrics

import (
	"time"

	"mercator-hq/cursorgate/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// RequestMetrics tracks inbound gateway requests.
//
// Metrics:
//   - cursorgate_requests_total: requests by format, model and final state
//   - cursorgate_request_duration_seconds: request duration histogram
//   - cursorgate_stream_frames_total: text frames written to streams
//   - cursorgate_auth_failures_total: rejected API keys by kind
//   - cursorgate_rate_limited_total: requests refused by the rate limiter
type RequestMetrics struct {
	requestsTotal   *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	framesTotal     *prometheus.CounterVec
	authFailures    *prometheus.CounterVec
	rateLimited     prometheus.Counter
}

// NewRequestMetrics creates and registers request metrics with registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	rm := &RequestMetrics{
		requestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "requests_total",
				Help:      "Total number of chat requests by final relay state",
			},
			[]string{"format", "model", "status"},
		),

		requestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Name:      "request_duration_seconds",
				Help:      "Duration of chat requests in seconds",
				Buckets:   cfg.RequestDurationBuckets,
			},
			[]string{"format", "model"},
		),

		framesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "stream_frames_total",
				Help:      "Total number of text frames written to streaming responses",
			},
			[]string{"format"},
		),

		authFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "auth_failures_total",
				Help:      "Total number of rejected API keys by kind",
			},
			[]string{"kind"},
		),

		rateLimited: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Name:      "rate_limited_total",
				Help:      "Total number of requests refused by the per-key rate limiter",
			},
		),
	}

	registry.MustRegister(
		rm.requestsTotal,
		rm.requestDuration,
		rm.framesTotal,
		rm.authFailures,
		rm.rateLimited,
	)

	return rm
}

// RecordRequest records a finished request.
func (rm *RequestMetrics) RecordRequest(format, model, status string, duration time.Duration) {
	rm.requestsTotal.WithLabelValues(format, model, status).Inc()
	rm.requestDuration.WithLabelValues(format, model).Observe(duration.Seconds())
}

// RecordFrames adds n written text frames.
func (rm *RequestMetrics) RecordFrames(format string, n int) {
	if n > 0 {
		rm.framesTotal.WithLabelValues(format).Add(float64(n))
	}
}

// RecordAuthFailure counts one rejected key.
func (rm *RequestMetrics) RecordAuthFailure(kind string) {
	rm.authFailures.WithLabelValues(kind).Inc()
}

// RecordRateLimited counts one refused request.
func (rm *RequestMetrics) RecordRateLimited() {
	rm.rateLimited.Inc()
}
