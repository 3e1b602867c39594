package handlers

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"mercator-hq/cursorgate/pkg/credentials"
	"mercator-hq/cursorgate/pkg/proxy"
	"mercator-hq/cursorgate/pkg/relay"
	"mercator-hq/cursorgate/pkg/telemetry/logging"
	"mercator-hq/cursorgate/pkg/translate"
)

// statusRejected labels requests refused before reaching the relay.
const statusRejected = "rejected"

// Relayer serves a decoded chat call. *relay.Relay implements it.
type Relayer interface {
	Serve(ctx context.Context, w http.ResponseWriter, call relay.Call) relay.State
}

// Recorder counts requests rejected by the handler. *metrics.Collector
// implements it.
type Recorder interface {
	RecordRequest(format, model, status string, duration time.Duration)
}

// Authenticator rejects unknown API keys before a request body is read.
// *credentials.Resolver implements it.
type Authenticator interface {
	Check(apiKey string) error
}

// decoder turns a request body into the canonical request.
type decoder func(body []byte) (*translate.ChatRequest, error)

// ChatHandler serves one inbound chat format. Use NewChatHandler for
// /v1/chat/completions and NewMessagesHandler for /v1/messages.
type ChatHandler struct {
	relay       Relayer
	recorder    Recorder
	auth        Authenticator
	format      translate.Format
	decode      decoder
	maxBodySize int64
}

// NewChatHandler creates the OpenAI chat completions handler.
func NewChatHandler(r Relayer, recorder Recorder, maxBodySize int64) *ChatHandler {
	return &ChatHandler{
		relay:       r,
		recorder:    recorder,
		format:      translate.FormatOpenAI,
		decode:      translate.DecodeOpenAI,
		maxBodySize: maxBodySize,
	}
}

// NewMessagesHandler creates the Anthropic Messages handler.
func NewMessagesHandler(r Relayer, recorder Recorder, maxBodySize int64) *ChatHandler {
	return &ChatHandler{
		relay:       r,
		recorder:    recorder,
		format:      translate.FormatAnthropic,
		decode:      translate.DecodeAnthropic,
		maxBodySize: maxBodySize,
	}
}

// WithAuthenticator makes h reject unknown keys with 401 before reading the
// body. Without one only a missing key is rejected up front.
func (h *ChatHandler) WithAuthenticator(a Authenticator) *ChatHandler {
	h.auth = a
	return h
}

// ServeHTTP implements http.Handler.
func (h *ChatHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		h.reject(ctx, w, start, &proxy.RequestError{
			Message: fmt.Sprintf("Method %s not allowed. Use POST instead.", r.Method),
			Code:    "method_not_allowed",
			Param:   "method",
			Status:  http.StatusMethodNotAllowed,
		})
		return
	}

	apiKey := proxy.ExtractAPIKey(r)
	if err := h.authenticate(apiKey); err != nil {
		h.reject(ctx, w, start, err)
		return
	}

	body, err := proxy.ReadBody(r, h.maxBodySize)
	if err != nil {
		h.reject(ctx, w, start, err)
		return
	}

	req, err := h.decode(body)
	if err != nil {
		h.reject(ctx, w, start, err)
		return
	}

	slog.DebugContext(ctx, "decoded chat request",
		"format", h.format.String(),
		"model", req.Model,
		"messages", len(req.Messages),
		"stream", req.Stream,
	)

	h.relay.Serve(ctx, w, relay.Call{
		APIKey:   apiKey,
		Checksum: proxy.ExtractChecksum(r),
		Format:   h.format,
		Request:  req,
	})
}

func (h *ChatHandler) authenticate(apiKey string) error {
	if apiKey == "" {
		return credentials.ErrMissingAPIKey
	}
	if h.auth != nil {
		return h.auth.Check(apiKey)
	}
	return nil
}

func (h *ChatHandler) reject(ctx context.Context, w http.ResponseWriter, start time.Time, err error) {
	slog.WarnContext(ctx, "rejected chat request",
		"format", h.format.String(),
		"request_id", logging.GetRequestID(ctx),
		"error", err,
	)
	if h.recorder != nil {
		h.recorder.RecordRequest(h.format.String(), "", statusRejected, time.Since(start))
	}
	proxy.WriteError(w, err, h.format)
}
