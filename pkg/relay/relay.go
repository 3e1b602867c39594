package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"
	"mercator-hq/cursorgate/pkg/proxy"
	"mercator-hq/cursorgate/pkg/telemetry/logging"
	"mercator-hq/cursorgate/pkg/telemetry/tracing"
	"mercator-hq/cursorgate/pkg/translate"
	"mercator-hq/cursorgate/pkg/upstream"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
)

// readChunkSize is the buffer used for each read of the upstream body.
const readChunkSize = 32 << 10

// errStopped ends pump early once a delta handler has seen enough.
var errStopped = errors.New("relay: stopped by handler")

// Resolver maps an API key to an upstream credential.
type Resolver interface {
	Resolve(ctx context.Context, apiKey string) (credentials.Credential, error)
}

// Upstream is the vendor client.
type Upstream interface {
	NewSession(token, headerChecksum string) upstream.Session
	AvailableModels(ctx context.Context, s upstream.Session) error
	StreamChat(ctx context.Context, s upstream.Session, body []byte) (io.ReadCloser, error)
}

// Invalidator quarantines a cookie rejected upstream. After Quarantine
// returns, the resolver must no longer hand the cookie out.
// *credentials.Store implements it.
type Invalidator interface {
	Quarantine(cookie string) (bool, error)
}

// Metrics receives relay outcomes. *metrics.Collector implements it.
type Metrics interface {
	RecordRequest(format, model, status string, duration time.Duration)
	RecordFrames(format string, n int)
	RecordAuthFailure(kind string)
}

// Options configures a Relay. Resolver and Upstream are required.
type Options struct {
	Resolver    Resolver
	Upstream    Upstream
	Invalidator Invalidator
	Metrics     Metrics
	Tracer      *tracing.Tracer
	Logger      *slog.Logger

	// MetadataTimeout bounds the background metadata call.
	// Default: config.DefaultUpstreamMetadataTimeout
	MetadataTimeout time.Duration

	// Compress gzips the chat request envelope.
	Compress bool

	// Now and NewID fix the clock and the id source, mainly for tests.
	Now   func() time.Time
	NewID func() string
}

// Call is one inbound chat request.
type Call struct {
	// APIKey is the caller's key as sent, possibly empty.
	APIKey string

	// Checksum is the caller's x-cursor-checksum header, possibly empty.
	Checksum string

	// Format selects the response format.
	Format translate.Format

	// Request is the decoded request. It is not modified.
	Request *translate.ChatRequest
}

// Relay serves chat calls. It is safe for concurrent use.
type Relay struct {
	resolver        Resolver
	upstream        Upstream
	invalidator     Invalidator
	metrics         Metrics
	tracer          *tracing.Tracer
	logger          *slog.Logger
	metadataTimeout time.Duration
	compress        bool
	now             func() time.Time
	newID           func() string

	background sync.WaitGroup
}

// New creates a Relay from opts.
func New(opts Options) *Relay {
	r := &Relay{
		resolver:        opts.Resolver,
		upstream:        opts.Upstream,
		invalidator:     opts.Invalidator,
		metrics:         opts.Metrics,
		tracer:          opts.Tracer,
		logger:          opts.Logger,
		metadataTimeout: opts.MetadataTimeout,
		compress:        opts.Compress,
		now:             opts.Now,
		newID:           opts.NewID,
	}
	if r.metrics == nil {
		r.metrics = noopMetrics{}
	}
	if r.tracer == nil {
		r.tracer = tracing.Noop()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	if r.metadataTimeout <= 0 {
		r.metadataTimeout = config.DefaultUpstreamMetadataTimeout
	}
	if r.now == nil {
		r.now = time.Now
	}
	if r.newID == nil {
		r.newID = uuid.NewString
	}
	return r
}

// Serve relays call and writes the whole response to w. It returns the
// terminal state, Completed or Failed. Serve never returns an error: every
// failure is written to w in the caller's format, except a caller
// disconnect, after which nothing more is written.
func (r *Relay) Serve(ctx context.Context, w http.ResponseWriter, call Call) State {
	start := r.now()
	req := call.Request
	format := call.Format.String()

	ctx, span := r.tracer.Start(ctx, "relay.Serve")
	defer span.End()
	tracing.SetRequestAttributes(span, logging.GetRequestID(ctx), logging.Redact(call.APIKey), format, req.Model, req.Stream)

	ctx = logging.WithModel(ctx, req.Model)

	state, frames := r.serve(ctx, w, call, span)

	duration := r.now().Sub(start)
	tracing.SetRelayOutcome(span, state.String(), frames)
	r.metrics.RecordRequest(format, req.Model, state.String(), duration)
	if req.Stream {
		r.metrics.RecordFrames(format, frames)
	}

	r.logger.InfoContext(ctx, "chat request finished",
		"format", format,
		"model", req.Model,
		"stream", req.Stream,
		"state", state.String(),
		"frames", frames,
		"duration_ms", duration.Milliseconds(),
	)
	return state
}

// Wait blocks until every background metadata call has returned.
func (r *Relay) Wait() {
	r.background.Wait()
}

func (r *Relay) serve(ctx context.Context, w http.ResponseWriter, call Call, span trace.Span) (State, int) {
	// Authenticating
	cred, err := r.resolver.Resolve(ctx, call.APIKey)
	if err != nil {
		kind := "unknown"
		var authErr *credentials.AuthError
		if errors.As(err, &authErr) {
			kind = authErr.Kind.String()
		}
		r.metrics.RecordAuthFailure(kind)
		tracing.SetErrorKind(span, "auth_"+kind)
		tracing.SetError(span, err)

		r.logger.WarnContext(ctx, "authentication failed",
			"api_key", logging.Redact(call.APIKey),
			"kind", kind,
		)
		proxy.WriteError(w, err, call.Format)
		return Failed, 0
	}
	ctx = logging.WithAPIKey(ctx, cred.APIKey)

	session := r.upstream.NewSession(cred.Token, call.Checksum)
	ctx = logging.WithSession(ctx, session.SessionID)

	// RequestingMetadata
	r.requestMetadata(ctx, session)

	// Streaming
	meta := translate.ResponseMeta{
		ID:      r.responseID(call.Format),
		Model:   call.Request.Model,
		Created: r.now().Unix(),
	}

	body, err := translate.EncodeChatBody(call.Request, translate.EncodeOptions{
		Compress: r.compress,
		NewID:    r.newID,
	})
	if err != nil {
		return r.fail(ctx, w, call, meta, span, err), 0
	}

	rc, err := r.upstream.StreamChat(ctx, session, body)
	if err != nil {
		if upstream.IsAuth(err) {
			r.invalidate(ctx, cred.Cookie)
		}
		return r.fail(ctx, w, call, meta, span, err), 0
	}
	defer rc.Close()

	if call.Request.Stream {
		return r.stream(ctx, w, call.Format, meta, span, rc)
	}
	return r.batch(ctx, w, call.Format, meta, span, rc), 0
}

// requestMetadata fires the metadata call. Its outcome is logged and
// otherwise ignored.
func (r *Relay) requestMetadata(ctx context.Context, s upstream.Session) {
	mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.metadataTimeout)

	r.background.Add(1)
	go func() {
		defer r.background.Done()
		defer cancel()

		if err := r.upstream.AvailableModels(mctx, s); err != nil {
			r.logger.WarnContext(mctx, "metadata request failed", "error", err)
		}
	}()
}

func (r *Relay) stream(ctx context.Context, w http.ResponseWriter, format translate.Format, meta translate.ResponseMeta, span trace.Span, rc io.Reader) (State, int) {
	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)

	s := translate.NewStream(w, translate.NewFramer(format, meta))

	var writeErr error
	err := pump(rc, func(d translate.Delta) bool {
		switch d.Kind {
		case translate.ErrorDelta:
			r.logger.WarnContext(ctx, "upstream stream returned an error", "message", d.ErrorMessage)
			tracing.SetErrorKind(span, "stream")
			if _, werr := s.Fail(d.ErrorMessage); werr != nil {
				writeErr = werr
			}
			return false
		default:
			if werr := s.Text(d.Text); werr != nil {
				writeErr = werr
				return false
			}
			return true
		}
	})

	switch {
	case writeErr != nil:
		r.logger.WarnContext(ctx, "failed to write stream frame", "error", writeErr, "frames", s.Frames())
		return Failed, s.Frames()
	case errors.Is(err, errStopped):
		return Failed, s.Frames()
	case err == nil:
		if _, werr := s.Finish(); werr != nil {
			r.logger.WarnContext(ctx, "failed to write stream terminator", "error", werr)
			return Failed, s.Frames()
		}
		return Completed, s.Frames()
	case ctx.Err() != nil:
		r.logger.InfoContext(ctx, "client disconnected during streaming", "frames", s.Frames())
		return Failed, s.Frames()
	default:
		r.recordFailure(ctx, span, err)
		if _, werr := s.Fail(upstreamMessage(err)); werr != nil {
			r.logger.WarnContext(ctx, "failed to write stream error", "error", werr)
		}
		return Failed, s.Frames()
	}
}

func (r *Relay) batch(ctx context.Context, w http.ResponseWriter, format translate.Format, meta translate.ResponseMeta, span trace.Span, rc io.Reader) State {
	var deltas []translate.Delta
	err := pump(rc, func(d translate.Delta) bool {
		deltas = append(deltas, d)
		return d.Kind != translate.ErrorDelta
	})
	if err != nil && !errors.Is(err, errStopped) {
		if ctx.Err() != nil {
			r.logger.InfoContext(ctx, "client disconnected before the response completed")
			return Failed
		}
		r.recordFailure(ctx, span, err)
		proxy.WriteError(w, err, format)
		return Failed
	}

	text, err := translate.Collect(deltas)
	if err != nil {
		r.logger.WarnContext(ctx, "upstream stream returned an error", "error", err)
		tracing.SetErrorKind(span, "stream")
		tracing.SetError(span, err)
		proxy.WriteError(w, err, format)
		return Failed
	}

	if err := proxy.WriteJSONResponse(w, http.StatusOK, translate.ResponseBody(format, meta, translate.CleanText(text))); err != nil {
		r.logger.WarnContext(ctx, "failed to write response", "error", err)
		return Failed
	}
	return Completed
}

// fail reports an error raised before any upstream byte was read.
func (r *Relay) fail(ctx context.Context, w http.ResponseWriter, call Call, meta translate.ResponseMeta, span trace.Span, err error) State {
	if ctx.Err() != nil {
		r.logger.InfoContext(ctx, "client disconnected before the upstream call completed")
		return Failed
	}
	r.recordFailure(ctx, span, err)

	if !call.Request.Stream {
		proxy.WriteError(w, err, call.Format)
		return Failed
	}

	proxy.SetSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	s := translate.NewStream(w, translate.NewFramer(call.Format, meta))
	if _, werr := s.Fail(upstreamMessage(err)); werr != nil {
		r.logger.WarnContext(ctx, "failed to write stream error", "error", werr)
	}
	return Failed
}

func (r *Relay) recordFailure(ctx context.Context, span trace.Span, err error) {
	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) {
		tracing.SetErrorKind(span, upErr.Kind.String())
	}
	tracing.SetError(span, err)
	r.logger.ErrorContext(ctx, "upstream chat failed", "error", err)
}

func (r *Relay) invalidate(ctx context.Context, cookie string) {
	if r.invalidator == nil {
		return
	}
	added, err := r.invalidator.Quarantine(cookie)
	if err != nil {
		r.logger.ErrorContext(ctx, "failed to mark cookie invalid",
			"cookie", logging.Redact(cookie),
			"error", err,
		)
		return
	}
	if added {
		r.logger.WarnContext(ctx, "cookie rejected upstream and marked invalid",
			"cookie", logging.Redact(cookie),
		)
	}
}

// responseID returns "chatcmpl-<uuid>" for OpenAI and a bare uuid for
// Anthropic, matching what each client family expects.
func (r *Relay) responseID(format translate.Format) string {
	if format == translate.FormatOpenAI {
		return "chatcmpl-" + r.newID()
	}
	return r.newID()
}

// pump reads rc in chunks, decodes connect frames and hands every delta to
// fn in order. It returns nil at end of body, errStopped when fn returns
// false, a protocol *upstream.UpstreamError for undecodable frames, or the
// read error.
func pump(rc io.Reader, fn func(translate.Delta) bool) error {
	fr := translate.NewFrameReader()
	buf := make([]byte, readChunkSize)

	for {
		n, readErr := rc.Read(buf)
		if n > 0 {
			deltas, err := fr.Feed(buf[:n])
			for _, d := range deltas {
				if !fn(d) {
					return errStopped
				}
			}
			if err != nil {
				return &upstream.UpstreamError{
					Kind:     upstream.KindProtocol,
					Endpoint: upstream.EndpointStreamChat,
					Message:  "malformed response frame",
					Err:      err,
				}
			}
		}
		if readErr != nil {
			if errors.Is(readErr, io.EOF) {
				return nil
			}
			return readErr
		}
	}
}

// upstreamMessage is the text placed in a stream error frame.
func upstreamMessage(err error) string {
	var upErr *upstream.UpstreamError
	if errors.As(err, &upErr) && upErr.Message != "" {
		return upErr.Message
	}
	return translate.ErrorMessage(err)
}

type noopMetrics struct{}

func (noopMetrics) RecordRequest(string, string, string, time.Duration) {}
func (noopMetrics) RecordFrames(string, int)                            {}
func (noopMetrics) RecordAuthFailure(string)                            {}
