// Package relay drives one inbound chat call from the caller's API key to
// the last byte written back.
//
// A call passes through these states:
//
//	Authenticating → RequestingMetadata → Streaming → Completed | Failed
//
// Authentication resolves the API key to a pooled cookie; a failure writes a
// 401 envelope and no upstream call is made. The metadata call runs in its
// own goroutine on a context detached from the request and is never awaited.
// The chat call streams connect frames through a translate.FrameReader.
// Text deltas are written as SSE frames (stream mode) or collected into a
// single JSON body (batch mode).
//
// In stream mode every failure, including one that happens before the first
// upstream byte, is written as an error frame followed by the terminal
// marker, and exactly one terminal signal is written per call. In batch mode
// failures are written as error envelopes through proxy.WriteError.
//
// A 401 or 403 from the chat call quarantines the cookie: it is marked
// invalid and the pool is rotated at once, so no later call resolves to it.
//
// Basic usage:
//
//	r := relay.New(relay.Options{
//	    Resolver:    credentials.NewResolver(store),
//	    Upstream:    upstream.NewClient(cfg.Upstream),
//	    Invalidator: store,
//	    Metrics:     collector,
//	})
//	state := r.Serve(ctx, w, relay.Call{APIKey: key, Format: translate.FormatOpenAI, Request: req})
package relay
