package localapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/iudanet/chartsync/internal/server/middleware"
)

// Server is the loopback HTTP server of the daemon
type Server struct {
	logger  *slog.Logger
	handler http.Handler
	bind    string
}

// NewServer builds the local API router
func NewServer(logger *slog.Logger, engine Engine, bind string) *Server {
	h := NewHandler(logger, engine)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/status", h.Status)
	mux.HandleFunc("GET /v1/queue", h.Queue)
	mux.HandleFunc("POST /v1/queue", h.Enqueue)
	mux.HandleFunc("DELETE /v1/queue", h.ClearQueue)
	mux.HandleFunc("POST /v1/queue/{id}/retry", h.Retry)
	mux.HandleFunc("POST /v1/queue/retry-failed", h.RetryFailed)
	mux.HandleFunc("POST /v1/queue/clear-synced", h.ClearSynced)
	mux.HandleFunc("POST /v1/queue/clear-failed", h.ClearFailed)
	mux.HandleFunc("POST /v1/sync", h.Sync)
	mux.HandleFunc("GET /v1/conflicts", h.Conflicts)
	mux.HandleFunc("POST /v1/conflicts/{id}/resolve", h.Resolve)
	mux.HandleFunc("GET /v1/records/{table}", h.Records)
	mux.HandleFunc("GET /v1/records/{table}/{id}", h.Record)
	mux.HandleFunc("GET /v1/events", h.Events)

	var handler http.Handler = mux
	handler = middleware.LoggingMiddleware(logger, "/v1/status")(handler)
	handler = middleware.RecoveryMiddleware(logger)(handler)

	return &Server{logger: logger, handler: handler, bind: bind}
}

// Handler returns the router with middleware
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the bind address until ctx is done
func (s *Server) Run(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.bind, err)
	}

	// без Read/WriteTimeout: /v1/events держит соединение открытым
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       60 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(listener)
	}()
	s.logger.Info("Local API listening", slog.String("address", listener.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("local api: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("local api shutdown: %w", err)
	}
	return nil
}
