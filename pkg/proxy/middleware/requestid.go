package middleware

import (
	"context"
	"net/http"

	"mercator-hq/cursorgate/pkg/proxy"
	"mercator-hq/cursorgate/pkg/telemetry/logging"

	"github.com/google/uuid"
)

// RequestIDMiddleware assigns each request an ID, reusing the caller's
// X-Request-ID when present. The ID is stored in the request context for
// logging and echoed in the response header.
//
// Example usage:
//
//	handler = RequestIDMiddleware(handler)
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := proxy.ExtractRequestID(r)
		if requestID == "" {
			requestID = uuid.NewString()
		}

		w.Header().Set(proxy.RequestIDHeader, requestID)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), requestID)))
	})
}

// GetRequestID returns the request ID set by RequestIDMiddleware, or "".
func GetRequestID(ctx context.Context) string {
	return logging.GetRequestID(ctx)
}
