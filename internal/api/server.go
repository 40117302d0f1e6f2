package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/easelhq/easel/internal/canvas"
	"github.com/easelhq/easel/internal/enrich"
	"github.com/easelhq/easel/internal/stream"
)

const (
	// ReadHeaderTimeout bounds header reads to stop Slowloris attacks.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout bounds reading a full request.
	ReadTimeout = 30 * time.Second

	// IdleTimeout closes keep-alive connections that go quiet.
	IdleTimeout = 120 * time.Second

	// ShutdownTimeout is how long in-flight requests get to finish.
	ShutdownTimeout = 10 * time.Second

	// DefaultStreamTimeout bounds one assistant reply generation.
	DefaultStreamTimeout = 5 * time.Minute

	defaultRateRPS   = 10
	defaultRateBurst = 20
)

// ServerConfig configures the API server. Sessions and Canvas are
// required; everything else has a working default.
type ServerConfig struct {
	Logger   *slog.Logger
	Sessions SessionStore
	Canvas   *canvas.Manager

	// Source produces assistant replies. Nil uses the built-in simulated
	// source, which needs no credentials.
	Source stream.Source

	// Enricher unfurls URLs pasted into chat messages. Nil disables it.
	Enricher *enrich.Enricher

	// Pool backs the /ready probe. Nil reports not ready.
	Pool *pgxpool.Pool

	CORSOrigins []string
	TrustProxy  bool
	RateRPS     float64
	RateBurst   int

	// StreamMaxBuffer caps the held-back tail of a streaming message.
	StreamMaxBuffer int

	// StreamTimeout bounds one reply generation.
	StreamTimeout time.Duration

	// HistoryWindow is how many recent turns the reply source sees as
	// context.
	HistoryWindow int32

	// IsDev disables HSTS for plain-HTTP local development.
	IsDev bool
}

// Server is the easel HTTP server: REST routes for sessions and canvas,
// SSE for chat, probes and metrics outside the middleware stack.
type Server struct {
	handler http.Handler
	logger  *slog.Logger
}

// NewServer validates the configuration and builds the route tree.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Sessions == nil {
		return nil, errors.New("api: session store is required")
	}
	if cfg.Canvas == nil {
		return nil, errors.New("api: canvas manager is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Source == nil {
		cfg.Source = &stream.SimSource{}
	}
	if cfg.RateRPS <= 0 {
		cfg.RateRPS = defaultRateRPS
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.StreamMaxBuffer <= 0 {
		cfg.StreamMaxBuffer = stream.DefaultMaxBuffer
	}
	if cfg.StreamTimeout <= 0 {
		cfg.StreamTimeout = DefaultStreamTimeout
	}
	if cfg.HistoryWindow <= 0 {
		cfg.HistoryWindow = defaultHistoryWindow
	}

	s := &Server{logger: cfg.Logger}
	s.handler = s.routes(cfg)
	return s, nil
}

// routes builds the API mux, wraps it in the middleware stack and mounts
// probes and metrics beside it, outside the stack.
func (s *Server) routes(cfg ServerConfig) http.Handler {
	sessions := &sessionHandler{store: cfg.Sessions, canvas: cfg.Canvas, logger: cfg.Logger}
	canvases := &canvasHandler{manager: cfg.Canvas, store: cfg.Sessions, logger: cfg.Logger}
	chat := &chatHandler{
		sessions:      cfg.Sessions,
		canvas:        cfg.Canvas,
		source:        cfg.Source,
		enricher:      cfg.Enricher,
		maxBuffer:     cfg.StreamMaxBuffer,
		timeout:       cfg.StreamTimeout,
		historyWindow: cfg.HistoryWindow,
		logger:        cfg.Logger,
	}

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/v1/sessions", sessions.create)
	mux.HandleFunc("GET /api/v1/sessions", sessions.list)
	mux.HandleFunc("GET /api/v1/sessions/{id}", sessions.get)
	mux.HandleFunc("PATCH /api/v1/sessions/{id}", sessions.rename)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}", sessions.remove)
	mux.HandleFunc("GET /api/v1/sessions/{id}/messages", sessions.messages)
	mux.HandleFunc("GET /api/v1/sessions/{id}/export", sessions.export)

	mux.HandleFunc("POST /api/v1/chat", chat.send)

	mux.HandleFunc("GET /api/v1/sessions/{id}/canvas", canvases.get)
	mux.HandleFunc("POST /api/v1/sessions/{id}/canvas/active", canvases.setActive)
	mux.HandleFunc("POST /api/v1/sessions/{id}/canvas/minimize", canvases.minimize)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/canvas/{artifactID}", canvases.remove)
	mux.HandleFunc("DELETE /api/v1/sessions/{id}/canvas", canvases.clear)

	// Middleware applies innermost first, so requests traverse in reverse:
	// recovery, request ID, logging, security headers, CORS, rate limit.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(newRateLimiter(cfg.RateRPS, cfg.RateBurst), cfg.TrustProxy, cfg.Logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = securityHeadersMiddleware(cfg.IsDev)(handler)
	handler = loggingMiddleware(cfg.Logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(cfg.Logger)(handler)

	root := http.NewServeMux()
	root.HandleFunc("GET /health", health(cfg.Logger))
	root.HandleFunc("GET /ready", readiness(cfg.Pool, cfg.Logger))
	root.Handle("GET /metrics", promhttp.Handler())
	root.Handle("/", handler)
	return root
}

// securityHeadersMiddleware applies the standard security headers to every
// response.
func securityHeadersMiddleware(isDev bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			setSecurityHeaders(w, isDev)
			next.ServeHTTP(w, r)
		})
	}
}

// Handler exposes the full route tree, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is canceled, then shuts down gracefully.
//
// WriteTimeout stays unset: chat responses are long-lived SSE streams and a
// fixed deadline would cut them off. The chat handler bounds generation
// with its own timeout instead.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		s.logger.Info("http server stopped")
	}
	return nil
}
