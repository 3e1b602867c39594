package metrics

import (
	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"

	"github.com/prometheus/client_golang/prometheus"
)

// PoolMetrics tracks the credential pool.
//
// Metrics:
//   - cursorgate_pool_keys: API keys with at least one usable cookie
//   - cursorgate_pool_cookies: usable cookies across all keys
//   - cursorgate_invalid_cookies: cookies in the invalid set
//   - cursorgate_pool_rotations_total: pool rebuilds
//   - cursorgate_cookies_invalidated_total: cookies newly marked invalid
type PoolMetrics struct {
	keys        prometheus.Gauge
	cookies     prometheus.Gauge
	invalid     prometheus.Gauge
	rotations   prometheus.Counter
	invalidated prometheus.Counter
}

// NewPoolMetrics creates and registers pool metrics with registry.
func NewPoolMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PoolMetrics {
	pm := &PoolMetrics{
		keys: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "pool_keys",
			Help:      "Number of API keys with at least one usable cookie",
		}),
		cookies: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "pool_cookies",
			Help:      "Number of usable cookies across all API keys",
		}),
		invalid: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: cfg.Namespace,
			Name:      "invalid_cookies",
			Help:      "Number of cookies in the invalid set",
		}),
		rotations: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "pool_rotations_total",
			Help:      "Total number of pool rebuilds",
		}),
		invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Name:      "cookies_invalidated_total",
			Help:      "Total number of cookies newly marked invalid",
		}),
	}

	registry.MustRegister(pm.keys, pm.cookies, pm.invalid, pm.rotations, pm.invalidated)
	return pm
}

// Update records a rotation.
func (pm *PoolMetrics) Update(stats credentials.PoolStats, invalid int) {
	pm.keys.Set(float64(stats.Keys))
	pm.cookies.Set(float64(stats.Cookies))
	pm.invalid.Set(float64(invalid))
	pm.rotations.Inc()
}

// RecordInvalidation counts one newly invalid cookie.
func (pm *PoolMetrics) RecordInvalidation() {
	pm.invalidated.Inc()
}
