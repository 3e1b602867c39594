package proxy

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"mercator-hq/cursorgate/pkg/translate"
)

const (
	// DefaultMaxRequestBodySize is the request body limit when none is
	// configured (10MB).
	DefaultMaxRequestBodySize = 10 * 1024 * 1024

	// AuthorizationHeader carries "Bearer <api-key>".
	AuthorizationHeader = "Authorization"

	// APIKeyHeader carries the bare API key, as Anthropic clients send it.
	APIKeyHeader = "X-Api-Key"

	// ChecksumHeader lets a caller supply its own vendor checksum.
	ChecksumHeader = "X-Cursor-Checksum"

	// RequestIDHeader is the HTTP header for request ID propagation.
	RequestIDHeader = "X-Request-ID"
)

// Error codes carried in OpenAI envelopes.
const (
	CodeInvalidJSON     = "invalid_json"
	CodeRequestTooLarge = "request_too_large"
	CodeInvalidAPIKey   = "invalid_api_key"
	CodeRateLimited     = "rate_limit_exceeded"
	CodeUpstreamError   = "upstream_error"
	CodeUpstreamTimeout = "upstream_timeout"
)

// ReadBody reads the request body up to limit bytes. A larger body yields a
// 413 *RequestError; an empty one a 400.
func ReadBody(r *http.Request, limit int64) ([]byte, error) {
	if limit <= 0 {
		limit = DefaultMaxRequestBodySize
	}

	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, limit))
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, &RequestError{
				Message: fmt.Sprintf("request body exceeds maximum size of %d bytes", limit),
				Code:    CodeRequestTooLarge,
				Param:   "body",
				Status:  http.StatusRequestEntityTooLarge,
			}
		}
		return nil, &RequestError{
			Message: fmt.Sprintf("failed to read request body: %v", err),
			Code:    CodeInvalidJSON,
			Param:   "body",
			Status:  http.StatusBadRequest,
		}
	}

	if len(strings.TrimSpace(string(body))) == 0 {
		return nil, &RequestError{
			Message: "request body is empty",
			Code:    CodeInvalidJSON,
			Param:   "body",
			Status:  http.StatusBadRequest,
		}
	}

	return body, nil
}

// ExtractAPIKey returns the key from "Authorization: Bearer <key>", falling
// back to the x-api-key header. It returns "" when neither is present.
func ExtractAPIKey(r *http.Request) string {
	if authHeader := r.Header.Get(AuthorizationHeader); authHeader != "" {
		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
			if key := strings.TrimSpace(parts[1]); key != "" {
				return key
			}
		}
	}
	return strings.TrimSpace(r.Header.Get(APIKeyHeader))
}

// ExtractChecksum returns the caller-supplied x-cursor-checksum header.
func ExtractChecksum(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get(ChecksumHeader))
}

// ExtractRequestID extracts the request ID from the X-Request-ID header.
func ExtractRequestID(r *http.Request) string {
	return r.Header.Get(RequestIDHeader)
}

// FormatForPath returns the wire format served at path. Anything other
// than the Messages endpoint answers in the OpenAI format.
func FormatForPath(path string) translate.Format {
	if strings.HasPrefix(path, "/v1/messages") {
		return translate.FormatAnthropic
	}
	return translate.FormatOpenAI
}

// RequestError represents a request that was rejected before reaching the
// relay.
type RequestError struct {
	Message string
	Code    string
	Param   string
	Status  int
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	return e.Message
}

// RateLimitError reports a request refused by the per-key limiter.
type RateLimitError struct {
	Message string
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	if e.Message == "" {
		return "rate limit exceeded"
	}
	return e.Message
}
