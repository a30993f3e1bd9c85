// Package api exposes the knowledge base and chat orchestrator over a
// JSON REST API.
//
// Endpoints:
//
//	POST   /api/v1/documents           upload a document (multipart)
//	GET    /api/v1/documents           list the owner's documents
//	DELETE /api/v1/documents/{id}      delete a document and its vectors
//	GET    /api/v1/categories          list the owner's categories
//	POST   /api/v1/categories          register an empty category
//	POST   /api/v1/chat                run one chat turn
//	POST   /api/v1/sessions/{id}/reset clear a session's message log
//	GET    /api/v1/healthz             liveness probe
//	GET    /api/v1/readyz              readiness probe
//
// The owner is taken from the X-Owner-Id header on every data route;
// authentication sits in front of this server.
//
// File structure:
//   - server.go: HTTP server setup and lifecycle
//   - middleware.go: recovery, request id, logging, per-IP rate limit
//   - documents.go: document and category endpoints
//   - chat.go: chat turn and session reset endpoints
//   - health.go: liveness and readiness probes
//   - response.go: JSON response helpers and error mapping
package api

import (
	"context"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/deskwise/deskwise/internal/log"
)

const (
	// DefaultAddr is the default listen address.
	DefaultAddr = "127.0.0.1:3400"

	// ShutdownTimeout is the maximum time to wait for graceful shutdown.
	ShutdownTimeout = 10 * time.Second

	// ReadHeaderTimeout bounds header reads to keep slow clients from
	// pinning connections.
	ReadHeaderTimeout = 10 * time.Second

	// ReadTimeout is the maximum duration for reading the entire request.
	ReadTimeout = 30 * time.Second

	// WriteTimeout is the maximum duration for writing the response. Chat
	// turns can run close to their full budget before answering.
	WriteTimeout = 120 * time.Second

	// IdleTimeout is the keep-alive idle limit.
	IdleTimeout = 120 * time.Second

	// DefaultRateLimit and DefaultRateBurst bound requests per client IP.
	DefaultRateLimit = rate.Limit(20)
	DefaultRateBurst = 40
)

// Server is the deskwise REST API server.
type Server struct {
	mux    *http.ServeMux
	logger log.Logger
	limit  rate.Limit
	burst  int

	documents *DocumentsHandler
	chat      *ChatHandler
	health    *HealthHandler
}

// ServerConfig carries the server's dependencies.
type ServerConfig struct {
	Knowledge KnowledgeService
	Runner    TurnRunner
	Sessions  SessionResetter
	Readiness Pinger // optional; nil reports ready when the process is up
	Logger    log.Logger

	// RateLimit/RateBurst bound requests per client IP. Zero values take
	// the defaults.
	RateLimit rate.Limit
	RateBurst int
}

// NewServer creates a server with all routes registered.
func NewServer(cfg ServerConfig) *Server {
	if cfg.Logger == nil {
		cfg.Logger = log.NewNop()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = DefaultRateBurst
	}

	mux := http.NewServeMux()
	s := &Server{
		mux:       mux,
		logger:    cfg.Logger,
		limit:     cfg.RateLimit,
		burst:     cfg.RateBurst,
		documents: NewDocumentsHandler(cfg.Knowledge, cfg.Logger),
		chat:      NewChatHandler(cfg.Runner, cfg.Sessions, cfg.Logger),
		health:    NewHealthHandler(cfg.Readiness, cfg.Logger),
	}

	s.documents.RegisterRoutes(mux)
	s.chat.RegisterRoutes(mux)
	s.health.RegisterRoutes(mux)

	return s
}

// Handler returns the mux with the middleware stack applied.
// Order: recovery → request id → logging → rate limit → handler.
func (s *Server) Handler() http.Handler {
	return chain(s.mux,
		recoveryMiddleware(s.logger),
		requestIDMiddleware,
		loggingMiddleware(s.logger),
		rateLimitMiddleware(s.limit, s.burst),
	)
}

// Run starts the server and blocks until the context is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = DefaultAddr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: ReadHeaderTimeout,
		ReadTimeout:       ReadTimeout,
		WriteTimeout:      WriteTimeout,
		IdleTimeout:       IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
