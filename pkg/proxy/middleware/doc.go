// Package middleware provides the HTTP middleware of the gateway.
//
// The server composes them outermost first:
//
//	RecoveryMiddleware     panic → 500 envelope in the path's format
//	RequestIDMiddleware    X-Request-ID in context and response
//	tracing.HTTPMiddleware span context from traceparent, X-Trace-ID
//	LoggingMiddleware      one line per request
//	CORSMiddleware         when server.cors.enabled
//	RateLimitMiddleware    per-API-key token bucket when limits.enabled
//
// Error responses written here go through proxy.WriteError so callers of
// /v1/messages get Anthropic envelopes and everyone else OpenAI envelopes.
// LoggingMiddleware's writer forwards Flush so SSE frames are not held back.
package middleware
