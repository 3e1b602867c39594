package upstream

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/telemetry/tracing"

	"github.com/google/uuid"
)

// Vendor methods.
const (
	EndpointAvailableModels = "AvailableModels"
	EndpointStreamChat      = "StreamChat"
)

const (
	servicePath     = "/aiserver.v1.AiService/"
	streamUserAgent = "connect-es/1.6.1"

	// maxErrorBody bounds how much of a failed response is kept as the
	// error message.
	maxErrorBody = 4 << 10
)

// Recorder receives upstream call metrics. *metrics.Collector implements it.
type Recorder interface {
	RecordUpstreamCall(endpoint, status string, latency time.Duration)
	RecordUpstreamError(endpoint, kind string)
}

// Option configures a Client.
type Option func(*Client)

// WithTracer sets the tracer used for upstream spans.
func WithTracer(t *tracing.Tracer) Option {
	return func(c *Client) { c.tracer = t }
}

// WithRecorder sets the metrics recorder.
func WithRecorder(r Recorder) Option {
	return func(c *Client) { c.recorder = r }
}

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithClock sets the clock used for generated checksums.
func WithClock(now func() time.Time) Option {
	return func(c *Client) { c.now = now }
}

// Client calls the vendor endpoints.
type Client struct {
	cfg      config.UpstreamConfig
	baseURL  string
	http     *http.Client
	tracer   *tracing.Tracer
	recorder Recorder
	now      func() time.Time
}

// NewClient creates a Client for cfg. The transport dials with
// cfg.ConnectTimeout; no overall client timeout is set because chat
// responses stream for as long as the vendor keeps producing output.
func NewClient(cfg config.UpstreamConfig, opts ...Option) *Client {
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   cfg.ConnectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout: cfg.ConnectTimeout,
		MaxIdleConns:        100,
		MaxIdleConnsPerHost: 20,
		IdleConnTimeout:     90 * time.Second,
		ForceAttemptHTTP2:   true,
	}

	c := &Client{
		cfg:     cfg,
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Transport: transport},
		tracer:  tracing.Noop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// AvailableModels performs the metadata call. The response body is drained
// and discarded.
func (c *Client) AvailableModels(ctx context.Context, s Session) error {
	ctx, span := c.tracer.Start(ctx, "upstream."+EndpointAvailableModels)
	defer span.End()

	h := c.headers(s)
	h.Set("Content-Type", "application/proto")
	h.Set("User-Agent", fmt.Sprintf(
		"Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Cursor/%s Chrome/132.0.6834.210 Electron/34.3.4 Safari/537.36",
		c.cfg.ClientVersion,
	))

	resp, err := c.do(ctx, EndpointAvailableModels, h, nil)
	if err != nil {
		tracing.SetError(span, err)
		return err
	}
	defer resp.Body.Close()
	tracing.SetUpstreamAttributes(span, EndpointAvailableModels, resp.StatusCode)

	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		uerr := &UpstreamError{Kind: KindTransport, Endpoint: EndpointAvailableModels, Message: "failed to read response", Err: err}
		c.recordError(uerr)
		tracing.SetError(span, uerr)
		return uerr
	}
	return nil
}

// StreamChat posts body, an encoded connect envelope, and returns the
// response body. Reads from the returned body fail with a KindTimeout
// *UpstreamError if no bytes arrive within the configured read timeout.
// Closing the body cancels the call.
func (c *Client) StreamChat(ctx context.Context, s Session, body []byte) (io.ReadCloser, error) {
	ctx, cancel := context.WithCancel(ctx)

	spanCtx, span := c.tracer.Start(ctx, "upstream."+EndpointStreamChat)
	defer span.End()

	h := c.headers(s)
	h.Set("Content-Type", "application/connect+proto")
	h.Set("Connect-Accept-Encoding", "gzip")
	h.Set("Connect-Content-Encoding", "gzip")
	h.Set("User-Agent", streamUserAgent)

	var connectTimedOut atomic.Bool
	var timer *time.Timer
	if c.cfg.ConnectTimeout > 0 {
		timer = time.AfterFunc(c.cfg.ConnectTimeout, func() {
			connectTimedOut.Store(true)
			cancel()
		})
	}

	resp, err := c.doWithTimer(spanCtx, EndpointStreamChat, h, body, &connectTimedOut)
	if timer != nil {
		timer.Stop()
	}
	if err != nil {
		cancel()
		tracing.SetError(span, err)
		return nil, err
	}
	tracing.SetUpstreamAttributes(span, EndpointStreamChat, resp.StatusCode)

	return newIdleReader(resp.Body, c.cfg.ReadTimeout, cancel), nil
}

func (c *Client) do(ctx context.Context, endpoint string, h http.Header, body []byte) (*http.Response, error) {
	var timedOut atomic.Bool
	return c.doWithTimer(ctx, endpoint, h, body, &timedOut)
}

// doWithTimer sends one request and turns transport failures and non-2xx
// statuses into *UpstreamError. timedOut is set by the caller's connect
// timer.
func (c *Client) doWithTimer(ctx context.Context, endpoint string, h http.Header, body []byte, timedOut *atomic.Bool) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+servicePath+endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header = h

	slog.DebugContext(ctx, "sending upstream request",
		"endpoint", endpoint,
		"body_bytes", len(body),
	)

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		uerr := transportError(endpoint, err, timedOut.Load())
		c.record(endpoint, "error", latency)
		c.recordError(uerr)
		return nil, uerr
	}
	c.record(endpoint, strconv.Itoa(resp.StatusCode), latency)

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	excerpt, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	resp.Body.Close()

	kind := KindTransport
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		kind = KindAuth
	}
	uerr := &UpstreamError{
		Kind:       kind,
		Endpoint:   endpoint,
		StatusCode: resp.StatusCode,
		Message:    strings.TrimSpace(string(excerpt)),
	}
	if uerr.Message == "" {
		uerr.Message = http.StatusText(resp.StatusCode)
	}
	c.recordError(uerr)
	return nil, uerr
}

// headers returns the identity headers common to both calls.
func (c *Client) headers(s Session) http.Header {
	h := make(http.Header)
	h.Set("Authorization", "Bearer "+s.Token)
	h.Set("Connect-Protocol-Version", "1")
	h.Set("X-Amzn-Trace-Id", "Root="+uuid.NewString())
	h.Set("X-Client-Key", s.ClientKey)
	h.Set("X-Cursor-Checksum", s.Checksum)
	h.Set("X-Cursor-Client-Version", c.cfg.ClientVersion)
	h.Set("X-Cursor-Timezone", c.cfg.Timezone)
	h.Set("X-Ghost-Mode", strconv.FormatBool(c.cfg.GhostModeEnabled()))
	h.Set("X-Request-Id", uuid.NewString())
	h.Set("X-Session-Id", s.SessionID)
	return h
}

func (c *Client) record(endpoint, status string, latency time.Duration) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamCall(endpoint, status, latency)
	}
}

func (c *Client) recordError(err *UpstreamError) {
	if c.recorder != nil {
		c.recorder.RecordUpstreamError(err.Endpoint, err.Kind.String())
	}
}

// idleReader fails a Read that waits longer than timeout for data.
type idleReader struct {
	rc      io.ReadCloser
	timeout time.Duration
	cancel  context.CancelFunc

	timer    *time.Timer
	timedOut atomic.Bool
	once     sync.Once
}

func newIdleReader(rc io.ReadCloser, timeout time.Duration, cancel context.CancelFunc) *idleReader {
	r := &idleReader{rc: rc, timeout: timeout, cancel: cancel}
	if timeout > 0 {
		r.timer = time.AfterFunc(timeout, func() {
			r.timedOut.Store(true)
			cancel()
		})
		r.timer.Stop()
	}
	return r
}

func (r *idleReader) Read(p []byte) (int, error) {
	if r.timer != nil {
		r.timer.Reset(r.timeout)
	}
	n, err := r.rc.Read(p)
	if r.timer != nil {
		r.timer.Stop()
	}

	if err != nil && !errors.Is(err, io.EOF) && r.timedOut.Load() {
		return n, &UpstreamError{
			Kind:     KindTimeout,
			Endpoint: EndpointStreamChat,
			Message:  fmt.Sprintf("no data received for %s", r.timeout),
			Err:      err,
		}
	}
	return n, err
}

func (r *idleReader) Close() error {
	var err error
	r.once.Do(func() {
		if r.timer != nil {
			r.timer.Stop()
		}
		r.cancel()
		err = r.rc.Close()
	})
	return err
}
