// Package server provides the gateway's HTTP server.
//
// It routes the two public chat formats, the model list, health and metrics
// endpoints through the middleware chain and owns the listener lifecycle.
//
//	srv := server.NewServer(cfg, server.Dependencies{
//	    Relay:   relay.New(opts),
//	    Health:  checker,
//	    Metrics: collector,
//	})
//	if err := srv.Start(ctx); err != nil {
//	    return err
//	}
//
// Start returns after a graceful Shutdown once ctx is canceled, SIGINT or
// SIGTERM arrives, or Stop is called. Open streams get server.shutdown_timeout
// to finish.
//
// With server.tls.enabled the listener serves HTTPS; the certificate comes
// from a security/tls reloader that runs for the lifetime of Start.
//
// # Routes
//
//	POST /v1/chat/completions   OpenAI chat completions
//	POST /v1/messages           Anthropic Messages
//	GET  /v1/models             configured models
//	GET  /health                liveness
//	GET  /ready                 readiness checks
//	GET  /version               build information
//	GET  /metrics               Prometheus exposition, when enabled
//
// Anything else gets a 404 error envelope.
package server
