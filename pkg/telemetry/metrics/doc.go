// Package metrics provides Prometheus metrics for the gateway.
//
// # Metrics Categories
//
//   - Request metrics: chat requests by format, model and final relay
//     state, durations, streamed frames, auth failures, rate limiting
//   - Upstream metrics: vendor calls, latency and classified failures
//   - Pool metrics: usable keys and cookies, the invalid set size,
//     rotations and invalidations
//
// The Collector implements credentials.Observer so the Store reports pool
// changes directly:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	store, err := credentials.Open(ctx, credentials.Options{Observer: collector, ...})
//
// Model labels pass through a CardinalityLimiter; once the limit is reached
// new models are recorded as "other".
package metrics
