// Package upstream is the HTTP client for the vendor's connect endpoints.
//
// A Session carries the per-request identity headers: the bearer token, a
// checksum, and fresh client key and session ids. The Client issues two
// calls per chat request:
//
//   - AvailableModels, a best-effort metadata call whose body is discarded
//   - StreamChat, which returns the connect-framed response body
//
// StreamChat enforces two timeouts. The connect timeout covers dialing and
// waiting for response headers. The read timeout is an idle timer reset on
// every body read. Both surface as *UpstreamError with Kind KindTimeout.
package upstream
