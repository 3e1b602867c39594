// Package tracing provides OpenTelemetry tracing for the gateway.
//
// A Tracer is built from telemetry.tracing. When enabled, spans are exported
// over OTLP gRPC with a parent-based sampler ("always", "never" or "ratio")
// and W3C trace context is extracted from inbound requests by
// HTTPMiddleware. When disabled, every span is a noop.
//
// The relay opens one span per call and the upstream client opens a child
// span per vendor request:
//
//	ctx, span := tracer.Start(ctx, "relay.serve")
//	defer span.End()
//	tracing.SetRequestAttributes(span, requestID, logging.Redact(apiKey), "openai", model, true)
package tracing
