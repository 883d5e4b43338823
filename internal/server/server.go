// Package server wires the reference backend: record API, health check and
// the middleware chain.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/chartsync/internal/server/handlers"
	"github.com/iudanet/chartsync/internal/server/middleware"
	"github.com/iudanet/chartsync/internal/server/storage"
)

const healthPath = "/api/v1/health"

// Options holds backend settings
type Options struct {
	Bind       string
	Version    string
	JWT        handlers.JWTConfig
	RateLimit  int
	RateWindow time.Duration
}

// Server is the reference backend HTTP server
type Server struct {
	logger  *slog.Logger
	limiter *middleware.RateLimiter
	handler http.Handler
	opts    Options
}

// New builds the router. Call Close to release the rate limiter.
func New(logger *slog.Logger, store storage.RecordStorage, opts Options) *Server {
	records := handlers.NewRecordsHandler(logger, store)
	health := handlers.NewHealthHandler(logger, store, opts.Version)

	api := http.NewServeMux()
	api.HandleFunc("POST /api/v1/tables/{table}/records", records.Create)
	api.HandleFunc("GET /api/v1/tables/{table}/records", records.List)
	api.HandleFunc("GET /api/v1/tables/{table}/records/{id}", records.Get)
	api.HandleFunc("PATCH /api/v1/tables/{table}/records/{id}", records.Update)
	api.HandleFunc("DELETE /api/v1/tables/{table}/records/{id}", records.Delete)

	mux := http.NewServeMux()
	mux.HandleFunc("GET "+healthPath, health.Health)
	mux.Handle("/api/v1/tables/", middleware.AuthMiddleware(logger, opts.JWT)(api))

	limiter := middleware.NewRateLimiter(opts.RateLimit, opts.RateWindow, logger)

	var h http.Handler = mux
	h = limiter.Middleware(h)
	h = middleware.LoggingMiddleware(logger, healthPath)(h)
	h = middleware.RecoveryMiddleware(logger)(h)

	return &Server{
		logger:  logger,
		limiter: limiter,
		handler: h,
		opts:    opts,
	}
}

// Handler returns the full middleware chain
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on opts.Bind and serves until ctx is done
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.opts.Bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.opts.Bind, err)
	}
	return s.Serve(ctx, listener)
}

// Serve serves on listener until ctx is done, then shuts down gracefully
func (s *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("Server listening", slog.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	s.logger.Info("Server stopped")
	return nil
}

// Close stops background goroutines
func (s *Server) Close() {
	s.limiter.Stop()
}
