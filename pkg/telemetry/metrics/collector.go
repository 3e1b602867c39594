package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"

	"github.com/prometheus/client_golang/prometheus"
)

// otherModel replaces model labels once the cardinality limit is reached.
const otherModel = "other"

// Collector owns every gateway metric. All methods are no-ops when metrics
// are disabled, so callers never need to check.
type Collector struct {
	config   *config.MetricsConfig
	enabled  bool
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	upstreamMetrics *UpstreamMetrics
	poolMetrics     *PoolMetrics

	cardinalityLimiter *CardinalityLimiter
}

var _ credentials.Observer = (*Collector)(nil)

// NewCollector creates a collector registered with registry. A nil registry
// gets a fresh one.
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		cfg.RequestDurationBuckets = append([]float64(nil), config.DefaultRequestDurationBuckets...)
	}

	c := &Collector{
		config:             cfg,
		enabled:            cfg.MetricsEnabled(),
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.upstreamMetrics = NewUpstreamMetrics(cfg, registry)
	c.poolMetrics = NewPoolMetrics(cfg, registry)

	return c
}

// RecordRequest records a finished gateway request.
//
// Parameters:
//   - format: "openai" or "anthropic"
//   - model: requested model name
//   - status: final relay state ("completed", "failed", "rejected")
//   - duration: time from request start to the terminal signal
func (c *Collector) RecordRequest(format, model, status string, duration time.Duration) {
	if !c.enabled {
		return
	}
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("%s:%s", format, model)) {
		model = otherModel
	}
	c.requestMetrics.RecordRequest(format, model, status, duration)
}

// RecordFrames adds n text frames written to a stream.
func (c *Collector) RecordFrames(format string, n int) {
	if !c.enabled {
		return
	}
	c.requestMetrics.RecordFrames(format, n)
}

// RecordAuthFailure counts a rejected API key by kind ("missing", "invalid").
func (c *Collector) RecordAuthFailure(kind string) {
	if !c.enabled {
		return
	}
	c.requestMetrics.RecordAuthFailure(kind)
}

// RecordRateLimited counts a request refused by the rate limiter.
func (c *Collector) RecordRateLimited() {
	if !c.enabled {
		return
	}
	c.requestMetrics.RecordRateLimited()
}

// RecordUpstreamCall records one vendor call.
//
// Parameters:
//   - endpoint: "AvailableModels" or "StreamChat"
//   - status: HTTP status code as text, or "error" when no response arrived
//   - latency: time until response headers
func (c *Collector) RecordUpstreamCall(endpoint, status string, latency time.Duration) {
	if !c.enabled {
		return
	}
	c.upstreamMetrics.RecordCall(endpoint, status, latency)
}

// RecordUpstreamError counts a classified upstream failure.
func (c *Collector) RecordUpstreamError(endpoint, kind string) {
	if !c.enabled {
		return
	}
	c.upstreamMetrics.RecordError(endpoint, kind)
}

// PoolRotated implements credentials.Observer.
func (c *Collector) PoolRotated(stats credentials.PoolStats, invalid int) {
	if !c.enabled {
		return
	}
	c.poolMetrics.Update(stats, invalid)
}

// CookieInvalidated implements credentials.Observer.
func (c *Collector) CookieInvalidated() {
	if !c.enabled {
		return
	}
	c.poolMetrics.RecordInvalidation()
}

// Enabled reports whether metrics are recorded.
func (c *Collector) Enabled() bool {
	return c.enabled
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter caps the number of distinct label sets a metric may
// grow to. Model names come from callers and are otherwise unbounded.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter allowing maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits under the
// limit, remembering it in the latter case.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
