// Package logging configures log/slog for cursorgate.
//
// The handler adds request-scoped fields (request_id, api_key, model,
// session) from the context passed to the *Context logging calls, and masks
// the values of credential attributes (api_key, cookie, token,
// authorization):
//
//	logger, err := logging.Setup(cfg.Telemetry.Logging, os.Stdout)
//	ctx = logging.WithRequestID(ctx, id)
//	slog.InfoContext(ctx, "request completed", "status", 200)
package logging
