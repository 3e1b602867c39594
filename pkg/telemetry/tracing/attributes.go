package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Attribute keys set on gateway spans.
const (
	AttrRequestID = "cursorgate.request_id"
	AttrAPIKey    = "cursorgate.api_key"
	AttrFormat    = "cursorgate.format"
	AttrModel     = "cursorgate.model"
	AttrStream    = "cursorgate.stream"

	AttrUpstreamEndpoint = "cursorgate.upstream.endpoint"
	AttrUpstreamStatus   = "cursorgate.upstream.status"

	AttrRelayState  = "cursorgate.relay.state"
	AttrRelayFrames = "cursorgate.relay.frames"

	AttrErrorKind    = "cursorgate.error.kind"
	AttrErrorMessage = "error.message"
)

// SetRequestAttributes tags a span with the inbound call. apiKey must
// already be redacted.
func SetRequestAttributes(span trace.Span, requestID, apiKey, format, model string, stream bool) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrAPIKey, apiKey),
		attribute.String(AttrFormat, format),
		attribute.String(AttrModel, model),
		attribute.Bool(AttrStream, stream),
	)
}

// SetUpstreamAttributes tags a span with an upstream call result.
func SetUpstreamAttributes(span trace.Span, endpoint string, status int) {
	span.SetAttributes(
		attribute.String(AttrUpstreamEndpoint, endpoint),
		attribute.Int(AttrUpstreamStatus, status),
	)
}

// SetRelayOutcome records the final relay state and the number of text
// frames written.
func SetRelayOutcome(span trace.Span, state string, frames int) {
	span.SetAttributes(
		attribute.String(AttrRelayState, state),
		attribute.Int(AttrRelayFrames, frames),
	)
}

// SetErrorKind records the classified kind of a failure.
func SetErrorKind(span trace.Span, kind string) {
	span.SetAttributes(attribute.String(AttrErrorKind, kind))
}
