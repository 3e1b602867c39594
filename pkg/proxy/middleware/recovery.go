package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"mercator-hq/cursorgate/pkg/proxy"
)

// RecoveryMiddleware turns a handler panic into a 500 envelope in the
// format of the request path. The panic and its stack are logged; nothing
// of either reaches the caller. http.ErrAbortHandler is re-raised so the
// server can drop the connection as intended.
//
// Example usage:
//
//	handler = RecoveryMiddleware(handler)
func RecoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			slog.ErrorContext(r.Context(), "panic in handler",
				"error", rec,
				"request_id", GetRequestID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"stack", string(debug.Stack()),
			)

			proxy.WriteError(w, fmt.Errorf("panic: %v", rec), proxy.FormatForPath(r.URL.Path))
		}()

		next.ServeHTTP(w, r)
	})
}
