package relay

import (
	"bufio"
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"testing/iotest"
	"time"

	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/credentials"
	"mercator-hq/cursorgate/pkg/translate"
	"mercator-hq/cursorgate/pkg/upstream"

	"google.golang.org/protobuf/encoding/protowire"
)

const (
	modelsPath = "/aiserver.v1.AiService/AvailableModels"
	chatPath   = "/aiserver.v1.AiService/StreamChat"
)

// fakeResolver resolves keys from a fixed table.
type fakeResolver struct {
	creds map[string]credentials.Credential
}

func (f *fakeResolver) Resolve(_ context.Context, apiKey string) (credentials.Credential, error) {
	if apiKey == "" {
		return credentials.Credential{}, &credentials.AuthError{Kind: credentials.AuthMissing, Message: "API key is missing"}
	}
	cred, ok := f.creds[apiKey]
	if !ok {
		return credentials.Credential{}, &credentials.AuthError{Kind: credentials.AuthMissing, Message: "Invalid API key"}
	}
	return cred, nil
}

type fakeInvalidator struct {
	mu      sync.Mutex
	cookies []string
}

func (f *fakeInvalidator) Quarantine(cookie string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cookies = append(f.cookies, cookie)
	return true, nil
}

func (f *fakeInvalidator) marked() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.cookies...)
}

type fakeMetrics struct {
	mu           sync.Mutex
	requests     []string
	frames       int
	authFailures []string
}

func (f *fakeMetrics) RecordRequest(format, model, status string, _ time.Duration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, format+"/"+model+"/"+status)
}

func (f *fakeMetrics) RecordFrames(_ string, n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames += n
}

func (f *fakeMetrics) RecordAuthFailure(kind string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.authFailures = append(f.authFailures, kind)
}

// vendor is a fake upstream recording the calls it receives.
type vendor struct {
	mu         sync.Mutex
	calls      map[string]int
	authHeader string
	chatBody   []byte

	models http.HandlerFunc
	chat   http.HandlerFunc
}

func (v *vendor) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	v.mu.Lock()
	v.calls[r.URL.Path]++
	if r.URL.Path == chatPath {
		v.authHeader = r.Header.Get("Authorization")
		v.chatBody = body
	}
	v.mu.Unlock()

	switch r.URL.Path {
	case modelsPath:
		if v.models != nil {
			v.models(w, r)
			return
		}
		w.WriteHeader(http.StatusOK)
	case chatPath:
		v.chat(w, r)
	default:
		http.NotFound(w, r)
	}
}

func (v *vendor) count(path string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls[path]
}

type harness struct {
	relay       *Relay
	vendor      *vendor
	invalidator *fakeInvalidator
	metrics     *fakeMetrics
}

func newHarness(t *testing.T, chat http.HandlerFunc, opts ...func(*config.UpstreamConfig, *Options)) *harness {
	t.Helper()

	v := &vendor{calls: make(map[string]int), chat: chat}
	srv := httptest.NewServer(v)
	t.Cleanup(srv.Close)

	cfg := config.UpstreamConfig{
		BaseURL:        srv.URL,
		ClientVersion:  config.DefaultUpstreamClientVersion,
		Timezone:       config.DefaultUpstreamTimezone,
		ConnectTimeout: 2 * time.Second,
		ReadTimeout:    2 * time.Second,
	}
	h := &harness{
		vendor:      v,
		invalidator: &fakeInvalidator{},
		metrics:     &fakeMetrics{},
	}
	o := Options{
		Resolver: &fakeResolver{creds: map[string]credentials.Credential{
			"sk-test": {APIKey: "sk-test", Cookie: "user_01::tok-1", Token: "tok-1"},
		}},
		Invalidator:     h.invalidator,
		Metrics:         h.metrics,
		MetadataTimeout: time.Second,
		Now:             func() time.Time { return time.Unix(1700000000, 0) },
		NewID:           func() string { return "fixed-id" },
	}
	for _, opt := range opts {
		opt(&cfg, &o)
	}
	o.Upstream = upstream.NewClient(cfg)

	h.relay = New(o)
	t.Cleanup(h.relay.Wait)
	return h
}

func textFrame(t *testing.T, text string) []byte {
	t.Helper()
	payload := protowire.AppendTag(nil, 1, protowire.BytesType)
	payload = protowire.AppendString(payload, text)
	frame, err := translate.EncodeEnvelope(payload, false)
	if err != nil {
		t.Fatalf("EncodeEnvelope() error = %v", err)
	}
	return frame
}

func trailerFrame(body string) []byte {
	frame := make([]byte, 5+len(body))
	frame[0] = 0x02
	binary.BigEndian.PutUint32(frame[1:5], uint32(len(body)))
	copy(frame[5:], body)
	return frame
}

// replying returns a chat handler that writes frames in order.
func replying(frames ...[]byte) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/connect+proto")
		w.WriteHeader(http.StatusOK)
		for _, f := range frames {
			_, _ = w.Write(f)
			if fl, ok := w.(http.Flusher); ok {
				fl.Flush()
			}
		}
	}
}

func call(format translate.Format, stream bool) Call {
	return Call{
		APIKey: "sk-test",
		Format: format,
		Request: &translate.ChatRequest{
			Model:    "claude-3.5-sonnet",
			Messages: []translate.Message{{Role: "user", Content: "hi"}},
			Stream:   stream,
		},
	}
}

// events splits an SSE body into its data payloads.
func events(t *testing.T, body string) []string {
	t.Helper()
	var out []string
	sc := bufio.NewScanner(strings.NewReader(body))
	for sc.Scan() {
		if data, ok := strings.CutPrefix(sc.Text(), "data: "); ok {
			out = append(out, data)
		}
	}
	return out
}

func countDone(evs []string) int {
	n := 0
	for _, e := range evs {
		if e == "[DONE]" {
			n++
		}
	}
	return n
}

func TestServe_StreamOpenAI(t *testing.T) {
	h := newHarness(t, nil)
	h.vendor.chat = replying(textFrame(t, "Hello"), textFrame(t, ""), textFrame(t, " world"), trailerFrame("{}"))

	rec := httptest.NewRecorder()
	state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, true))

	if state != Completed {
		t.Fatalf("state = %v, want completed", state)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "text/event-stream" {
		t.Errorf("Content-Type = %q", ct)
	}

	evs := events(t, rec.Body.String())
	if len(evs) != 3 {
		t.Fatalf("events = %q, want 2 chunks and [DONE]", evs)
	}
	var texts []string
	for _, e := range evs[:2] {
		var chunk struct {
			ID      string `json:"id"`
			Object  string `json:"object"`
			Created int64  `json:"created"`
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal([]byte(e), &chunk); err != nil {
			t.Fatalf("Unmarshal(%q) error = %v", e, err)
		}
		if chunk.ID != "chatcmpl-fixed-id" || chunk.Object != "chat.completion.chunk" || chunk.Created != 1700000000 {
			t.Errorf("chunk = %+v", chunk)
		}
		texts = append(texts, chunk.Choices[0].Delta.Content)
	}
	if strings.Join(texts, "") != "Hello world" {
		t.Errorf("texts = %q", texts)
	}
	if evs[2] != "[DONE]" {
		t.Errorf("last event = %q, want [DONE]", evs[2])
	}

	if h.vendor.authHeader != "Bearer tok-1" {
		t.Errorf("Authorization = %q", h.vendor.authHeader)
	}
	if len(h.vendor.chatBody) < 5 || h.vendor.chatBody[0] != 0 {
		t.Errorf("chat body is not an uncompressed envelope: % x", h.vendor.chatBody)
	}
	if h.metrics.frames != 2 {
		t.Errorf("frames = %d, want 2", h.metrics.frames)
	}
}

func TestServe_StreamAnthropic(t *testing.T) {
	h := newHarness(t, nil)
	h.vendor.chat = replying(textFrame(t, "Hi"))

	rec := httptest.NewRecorder()
	if state := h.relay.Serve(context.Background(), rec, call(translate.FormatAnthropic, true)); state != Completed {
		t.Fatalf("state = %v, want completed", state)
	}

	evs := events(t, rec.Body.String())
	if len(evs) != 3 {
		t.Fatalf("events = %q", evs)
	}
	if !strings.Contains(evs[0], `"type":"content_block_delta"`) || !strings.Contains(evs[0], `"text":"Hi"`) {
		t.Errorf("delta event = %s", evs[0])
	}
	var stop struct {
		Type    string `json:"type"`
		Message struct {
			ID         string `json:"id"`
			StopReason string `json:"stop_reason"`
		} `json:"message"`
	}
	if err := json.Unmarshal([]byte(evs[1]), &stop); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if stop.Type != "message_stop" || stop.Message.ID != "fixed-id" || stop.Message.StopReason != "end_turn" {
		t.Errorf("stop event = %+v", stop)
	}
	if evs[2] != "[DONE]" {
		t.Errorf("last event = %q", evs[2])
	}
}

func TestServe_Batch(t *testing.T) {
	tests := []struct {
		name   string
		format translate.Format
		frames []string
		want   string
	}{
		{name: "openai plain", format: translate.FormatOpenAI, frames: []string{"Hello", " world"}, want: "Hello world"},
		{name: "anthropic plain", format: translate.FormatAnthropic, frames: []string{"Hello"}, want: "Hello"},
		{name: "prompt echo removed", format: translate.FormatOpenAI, frames: []string{"echo<|END_USER|>", "\n\nAnswer "}, want: "Answer"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil)
			var frames [][]byte
			for _, f := range tt.frames {
				frames = append(frames, textFrame(t, f))
			}
			h.vendor.chat = replying(frames...)

			rec := httptest.NewRecorder()
			if state := h.relay.Serve(context.Background(), rec, call(tt.format, false)); state != Completed {
				t.Fatalf("state = %v, want completed", state)
			}
			if rec.Code != http.StatusOK {
				t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
			}

			var got string
			if tt.format == translate.FormatOpenAI {
				var body translate.OpenAICompletion
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("Unmarshal() error = %v", err)
				}
				if body.ID != "chatcmpl-fixed-id" {
					t.Errorf("id = %q", body.ID)
				}
				got = body.Choices[0].Message.Content
			} else {
				var body translate.AnthropicMessageResponse
				if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
					t.Fatalf("Unmarshal() error = %v", err)
				}
				if body.ID != "fixed-id" {
					t.Errorf("id = %q", body.ID)
				}
				got = body.Content[0].Text
			}
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestServe_AuthFailureMakesNoUpstreamCall(t *testing.T) {
	tests := []struct {
		name   string
		apiKey string
		format translate.Format
	}{
		{name: "missing key openai", apiKey: "", format: translate.FormatOpenAI},
		{name: "unknown key anthropic", apiKey: "sk-nope", format: translate.FormatAnthropic},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, replying())

			c := call(tt.format, true)
			c.APIKey = tt.apiKey
			rec := httptest.NewRecorder()
			if state := h.relay.Serve(context.Background(), rec, c); state != Failed {
				t.Fatalf("state = %v, want failed", state)
			}
			h.relay.Wait()

			if rec.Code != http.StatusUnauthorized {
				t.Errorf("status = %d, want 401", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), "authentication_error") {
				t.Errorf("body = %s", rec.Body.String())
			}
			if n := h.vendor.count(chatPath) + h.vendor.count(modelsPath); n != 0 {
				t.Errorf("upstream calls = %d, want 0", n)
			}
			if len(h.metrics.authFailures) != 1 || h.metrics.authFailures[0] != "missing" {
				t.Errorf("auth failures = %v", h.metrics.authFailures)
			}
		})
	}
}

func TestServe_UpstreamRejectsCookie(t *testing.T) {
	rejecting := func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}

	t.Run("stream", func(t *testing.T) {
		h := newHarness(t, rejecting)
		rec := httptest.NewRecorder()
		if state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, true)); state != Failed {
			t.Fatalf("state = %v, want failed", state)
		}

		evs := events(t, rec.Body.String())
		if len(evs) != 2 || evs[1] != "[DONE]" {
			t.Fatalf("events = %q", evs)
		}
		var frame translate.OpenAIErrorBody
		if err := json.Unmarshal([]byte(evs[0]), &frame); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if frame.Error.Message != translate.UpstreamErrorMessage("unauthorized") {
			t.Errorf("message = %q", frame.Error.Message)
		}
		if got := h.invalidator.marked(); len(got) != 1 || got[0] != "user_01::tok-1" {
			t.Errorf("marked = %v", got)
		}
	})

	t.Run("batch", func(t *testing.T) {
		h := newHarness(t, rejecting)
		rec := httptest.NewRecorder()
		h.relay.Serve(context.Background(), rec, call(translate.FormatAnthropic, false))

		if rec.Code != http.StatusBadGateway {
			t.Errorf("status = %d, want 502", rec.Code)
		}
		if got := h.invalidator.marked(); len(got) != 1 {
			t.Errorf("marked = %v", got)
		}
	})
}

func TestServe_RejectedCookieLeavesRotation(t *testing.T) {
	store, err := credentials.Open(context.Background(), credentials.Options{
		InvalidFile: t.TempDir() + "/invalid.json",
		Source:      map[string][]string{"sk-test": {"user_01::tok-1", "user_02::tok-2"}},
	})
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	resolver := credentials.NewResolver(store)

	h := newHarness(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
	}, func(_ *config.UpstreamConfig, o *Options) {
		o.Resolver = resolver
		o.Invalidator = store
	})

	h.relay.Serve(context.Background(), httptest.NewRecorder(), call(translate.FormatOpenAI, false))

	h.vendor.mu.Lock()
	rejected := strings.TrimPrefix(h.vendor.authHeader, "Bearer ")
	h.vendor.mu.Unlock()
	if rejected == "" {
		t.Fatal("chat call was not made")
	}

	for i := 0; i < 4; i++ {
		cred, err := resolver.Resolve(context.Background(), "sk-test")
		if err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
		if cred.Token == rejected {
			t.Fatalf("Resolve() #%d returned rejected token %q", i+1, rejected)
		}
		if store.IsInvalid(cred.Cookie) {
			t.Fatalf("Resolve() #%d returned invalid cookie %q", i+1, cred.Cookie)
		}
	}
}

func TestServe_ServerErrorKeepsCookie(t *testing.T) {
	h := newHarness(t, func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	rec := httptest.NewRecorder()
	h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, false))

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if got := h.invalidator.marked(); len(got) != 0 {
		t.Errorf("marked = %v, want none", got)
	}
}

func TestServe_TrailerError(t *testing.T) {
	trailer := `{"error":{"code":"resource_exhausted","message":"quota exceeded"}}`

	t.Run("stream ends once", func(t *testing.T) {
		h := newHarness(t, nil)
		h.vendor.chat = replying(textFrame(t, "partial"), trailerFrame(trailer), textFrame(t, "late"))

		rec := httptest.NewRecorder()
		if state := h.relay.Serve(context.Background(), rec, call(translate.FormatAnthropic, true)); state != Failed {
			t.Fatalf("state = %v, want failed", state)
		}

		evs := events(t, rec.Body.String())
		if countDone(evs) != 1 {
			t.Errorf("events = %q, want exactly one [DONE]", evs)
		}
		if strings.Contains(rec.Body.String(), "late") {
			t.Error("text after the terminal signal was written")
		}
		var frame translate.AnthropicErrorBody
		if err := json.Unmarshal([]byte(evs[1]), &frame); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if frame.Error.Message != translate.UpstreamErrorMessage("quota exceeded") {
			t.Errorf("message = %q", frame.Error.Message)
		}
	})

	t.Run("batch", func(t *testing.T) {
		h := newHarness(t, nil)
		h.vendor.chat = replying(textFrame(t, "partial"), trailerFrame(trailer))

		rec := httptest.NewRecorder()
		if state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, false)); state != Failed {
			t.Fatalf("state = %v, want failed", state)
		}
		if rec.Code != http.StatusInternalServerError {
			t.Errorf("status = %d, want 500", rec.Code)
		}
		var body translate.OpenAIErrorBody
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("Unmarshal() error = %v", err)
		}
		if body.Error.Type != translate.ErrorTypeServer {
			t.Errorf("type = %q", body.Error.Type)
		}
	})
}

func TestServe_MalformedFrame(t *testing.T) {
	h := newHarness(t, nil)
	// A data frame whose payload is a truncated varint tag.
	h.vendor.chat = replying([]byte{0x00, 0, 0, 0, 1, 0xff})

	rec := httptest.NewRecorder()
	if state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, false)); state != Failed {
		t.Fatalf("state = %v, want failed", state)
	}
	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
}

func TestServe_IdleTimeout(t *testing.T) {
	stalling := func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	}
	shortRead := func(cfg *config.UpstreamConfig, _ *Options) {
		cfg.ReadTimeout = 50 * time.Millisecond
	}

	t.Run("batch", func(t *testing.T) {
		h := newHarness(t, stalling, shortRead)
		rec := httptest.NewRecorder()
		if state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, false)); state != Failed {
			t.Fatalf("state = %v, want failed", state)
		}
		if rec.Code != http.StatusGatewayTimeout {
			t.Errorf("status = %d, want 504", rec.Code)
		}
	})

	t.Run("stream", func(t *testing.T) {
		h := newHarness(t, stalling, shortRead)
		rec := httptest.NewRecorder()
		if state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, true)); state != Failed {
			t.Fatalf("state = %v, want failed", state)
		}
		evs := events(t, rec.Body.String())
		if len(evs) != 2 || evs[1] != "[DONE]" || !strings.Contains(evs[0], "server_error") {
			t.Errorf("events = %q", evs)
		}
	})
}

func TestServe_MetadataNeverBlocksChat(t *testing.T) {
	tests := []struct {
		name   string
		models http.HandlerFunc
	}{
		{
			name: "metadata fails",
			models: func(w http.ResponseWriter, _ *http.Request) {
				http.Error(w, "nope", http.StatusInternalServerError)
			},
		},
		{
			name: "metadata hangs",
			models: func(w http.ResponseWriter, r *http.Request) {
				select {
				case <-r.Context().Done():
				case <-time.After(5 * time.Second):
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, nil, func(_ *config.UpstreamConfig, o *Options) {
				o.MetadataTimeout = 200 * time.Millisecond
			})
			h.vendor.models = tt.models
			h.vendor.chat = replying(textFrame(t, "ok"))

			rec := httptest.NewRecorder()
			start := time.Now()
			if state := h.relay.Serve(context.Background(), rec, call(translate.FormatOpenAI, false)); state != Completed {
				t.Fatalf("state = %v, want completed", state)
			}
			if elapsed := time.Since(start); elapsed > 2*time.Second {
				t.Errorf("Serve took %v", elapsed)
			}

			h.relay.Wait()
			if n := h.vendor.count(modelsPath); n != 1 {
				t.Errorf("metadata calls = %d, want 1", n)
			}
		})
	}
}

// cancelOnWrite cancels the request context after the first write.
type cancelOnWrite struct {
	*httptest.ResponseRecorder
	cancel context.CancelFunc
}

func (c *cancelOnWrite) Write(p []byte) (int, error) {
	n, err := c.ResponseRecorder.Write(p)
	c.cancel()
	return n, err
}

func TestServe_CallerDisconnect(t *testing.T) {
	first := textFrame(t, "first")
	h := newHarness(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(first)
		w.(http.Flusher).Flush()
		select {
		case <-r.Context().Done():
		case <-time.After(5 * time.Second):
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w := &cancelOnWrite{ResponseRecorder: httptest.NewRecorder(), cancel: cancel}

	if state := h.relay.Serve(ctx, w, call(translate.FormatOpenAI, true)); state != Failed {
		t.Fatalf("state = %v, want failed", state)
	}
	if countDone(events(t, w.Body.String())) != 0 {
		t.Errorf("body = %q, want no terminal signal after disconnect", w.Body.String())
	}
}

func TestServe_RecordsOutcome(t *testing.T) {
	h := newHarness(t, nil)
	h.vendor.chat = replying(textFrame(t, "ok"))

	h.relay.Serve(context.Background(), httptest.NewRecorder(), call(translate.FormatAnthropic, false))

	want := "anthropic/claude-3.5-sonnet/completed"
	if len(h.metrics.requests) != 1 || h.metrics.requests[0] != want {
		t.Errorf("requests = %v, want [%s]", h.metrics.requests, want)
	}
}

func TestPump_SplitsAcrossReads(t *testing.T) {
	var stream []byte
	stream = append(stream, textFrame(t, "a")...)
	stream = append(stream, textFrame(t, "b")...)

	var got []string
	err := pump(iotest.OneByteReader(bytes.NewReader(stream)), func(d translate.Delta) bool {
		got = append(got, d.Text)
		return true
	})
	if err != nil {
		t.Fatalf("pump() error = %v", err)
	}
	if strings.Join(got, "") != "ab" {
		t.Errorf("got = %q", got)
	}
}

func TestPump_ReadError(t *testing.T) {
	want := errors.New("reset")
	err := pump(errReader{err: want}, func(translate.Delta) bool { return true })
	if !errors.Is(err, want) {
		t.Errorf("pump() error = %v, want %v", err, want)
	}
}

type errReader struct{ err error }

func (r errReader) Read([]byte) (int, error) { return 0, r.err }

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{Authenticating, "authenticating"},
		{RequestingMetadata, "requesting_metadata"},
		{Streaming, "streaming"},
		{Completed, "completed"},
		{Failed, "failed"},
		{State(42), "State(42)"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
	if !Completed.Terminal() || !Failed.Terminal() || Streaming.Terminal() {
		t.Error("Terminal() mismatch")
	}
}
