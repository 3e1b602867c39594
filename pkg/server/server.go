package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"mercator-hq/cursorgate/pkg/config"
	"mercator-hq/cursorgate/pkg/proxy"
	"mercator-hq/cursorgate/pkg/proxy/handlers"
	"mercator-hq/cursorgate/pkg/proxy/middleware"
	gatetls "mercator-hq/cursorgate/pkg/security/tls"
	"mercator-hq/cursorgate/pkg/telemetry/health"
	"mercator-hq/cursorgate/pkg/telemetry/metrics"
	"mercator-hq/cursorgate/pkg/telemetry/tracing"
)

// Route paths.
const (
	PathChatCompletions = "/v1/chat/completions"
	PathMessages        = "/v1/messages"
	PathModels          = "/v1/models"
)

// Dependencies are the components the server routes to.
type Dependencies struct {
	// Relay serves decoded chat calls. Required.
	Relay handlers.Relayer

	// Keys rejects unknown API keys before the body is read. Optional; the
	// relay still authenticates every call.
	Keys handlers.Authenticator

	// Health backs /health and /ready. Nil serves an empty checker.
	Health *health.Checker

	// Metrics backs the metrics path and request counters. Optional.
	Metrics *metrics.Collector

	// Version is reported on /version.
	Version health.VersionInfo

	// Started is reported as the creation time of every model.
	Started time.Time
}

// Server is the gateway's HTTP server.
type Server struct {
	config       *config.Config
	deps         Dependencies
	httpServer   *http.Server
	listener     net.Listener
	shutdownChan chan struct{}
	stopOnce     sync.Once
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// NewServer creates a server for cfg.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	if deps.Started.IsZero() {
		deps.Started = time.Now()
	}
	return &Server{
		config:       cfg,
		deps:         deps,
		shutdownChan: make(chan struct{}),
	}
}

// Start listens on server.listen_address and blocks until ctx is canceled,
// SIGINT or SIGTERM arrives, Stop is called, or serving fails. Every path
// except a serve failure ends in a graceful Shutdown.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	var (
		tlsConfig *tls.Config
		reloader  *gatetls.CertificateReloader
	)
	if s.config.Server.TLS.Enabled {
		var err error
		tlsConfig, reloader, err = gatetls.NewServerConfig(s.config.Server.TLS)
		if err != nil {
			s.mu.Unlock()
			return fmt.Errorf("failed to configure TLS: %w", err)
		}
	}

	ln, err := net.Listen("tcp", s.config.Server.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.Server.ListenAddress, err)
	}

	s.listener = ln
	s.httpServer = &http.Server{
		Handler:           s.setupRoutes(),
		ReadTimeout:       s.config.Server.ReadTimeout,
		ReadHeaderTimeout: s.config.Server.ReadTimeout,
		WriteTimeout:      s.config.Server.WriteTimeout,
		IdleTimeout:       s.config.Server.IdleTimeout,
		MaxHeaderBytes:    s.config.Server.MaxHeaderBytes,
		TLSConfig:         tlsConfig,
	}
	s.isRunning = true
	httpServer := s.httpServer
	s.mu.Unlock()

	if reloader != nil {
		reloadCtx, cancelReload := context.WithCancel(context.Background())
		defer cancelReload()
		go reloader.Start(reloadCtx)
	}

	errChan := make(chan error, 1)
	go func() {
		slog.Info("starting gateway server", "address", ln.Addr().String(), "tls", tlsConfig != nil)
		var err error
		if tlsConfig != nil {
			err = httpServer.ServeTLS(ln, "", "")
		} else {
			err = httpServer.Serve(ln)
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	select {
	case <-ctx.Done():
		slog.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case sig := <-sigChan:
		slog.Info("received shutdown signal", "signal", sig.String())
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	case <-s.shutdownChan:
		slog.Info("shutdown requested")
		return s.Shutdown(context.Background())
	}
}

// Stop asks a running Start to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.shutdownChan) })
}

// Shutdown drains in-flight requests for at most server.shutdown_timeout.
// Streaming responses still open when the timeout expires are cut off.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running, httpServer := s.isRunning, s.httpServer
		s.mu.RUnlock()
		if !running {
			return
		}

		slog.Info("initiating graceful shutdown", "timeout", s.config.Server.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.Server.ShutdownTimeout)
		defer cancel()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			slog.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			_ = httpServer.Close()
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		slog.Info("gateway server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Handler returns the routed handler with the full middleware chain.
func (s *Server) Handler() http.Handler {
	return s.setupRoutes()
}

func (s *Server) setupRoutes() http.Handler {
	mux := http.NewServeMux()

	var (
		recorder    handlers.Recorder
		rateLimited middleware.RateLimitRecorder
	)
	if s.deps.Metrics != nil {
		recorder = s.deps.Metrics
		rateLimited = s.deps.Metrics
	}

	maxBody := s.config.Server.MaxRequestBodySize
	chat := handlers.NewChatHandler(s.deps.Relay, recorder, maxBody)
	messages := handlers.NewMessagesHandler(s.deps.Relay, recorder, maxBody)
	if s.deps.Keys != nil {
		chat.WithAuthenticator(s.deps.Keys)
		messages.WithAuthenticator(s.deps.Keys)
	}
	mux.Handle(PathChatCompletions, chat)
	mux.Handle(PathMessages, messages)
	mux.Handle(PathModels, handlers.NewModelsHandler(s.config.Models, s.deps.Started))
	health.Register(mux, s.deps.Health, s.deps.Version)

	if s.deps.Metrics != nil && s.config.Telemetry.Metrics.MetricsEnabled() {
		mux.Handle(s.config.Telemetry.Metrics.Path, s.deps.Metrics.Handler())
	}

	mux.HandleFunc("/", notFound)

	var handler http.Handler = mux
	handler = middleware.RateLimitMiddleware(s.config.Limits, rateLimited)(handler)
	handler = middleware.CORSMiddleware(s.config.Server.CORS)(handler)
	handler = middleware.LoggingMiddleware(handler)
	handler = tracing.HTTPMiddleware(handler)
	handler = middleware.RequestIDMiddleware(handler)
	handler = middleware.RecoveryMiddleware(handler)

	return handler
}

func notFound(w http.ResponseWriter, r *http.Request) {
	proxy.WriteError(w, &proxy.RequestError{
		Message: fmt.Sprintf("Unknown route %s %s", r.Method, r.URL.Path),
		Code:    "not_found",
		Status:  http.StatusNotFound,
	}, proxy.FormatForPath(r.URL.Path))
}
