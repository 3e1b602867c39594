// Package telemetry groups the gateway's observability packages.
//
//   - logging: slog setup, request-scoped fields and credential redaction
//   - metrics: Prometheus collector for requests, upstream calls and the pool
//   - tracing: OpenTelemetry spans exported over OTLP gRPC
//   - health: liveness, readiness and version endpoints
//
// Each package is wired in cmd/cursorgate; none of them depends on another
// except through pkg/config.
package telemetry
