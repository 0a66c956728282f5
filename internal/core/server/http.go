// Package server provides HTTP server lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/floormgmt/instruct/internal/core/config"
)

// HTTPServer manages HTTP server lifecycle.
type HTTPServer struct {
	server *http.Server
	config *config.ServiceConfig
}

// NewHTTPServer creates the server around an already-routed handler.
func NewHTTPServer(cfg *config.ServiceConfig, handler http.Handler) (*HTTPServer, error) {
	if cfg == nil {
		return nil, fmt.Errorf("cfg cannot be nil")
	}
	if handler == nil {
		return nil, fmt.Errorf("handler cannot be nil")
	}

	srv := &http.Server{
		Addr:    fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler: handler,
		// Header/read limits below the per-request middleware timeout so
		// slow clients are cut off before they tie up a handler.
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       cfg.RequestTimeout,
		WriteTimeout:      cfg.RequestTimeout + 5*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &HTTPServer{server: srv, config: cfg}, nil
}

// Start binds the listener and serves until Shutdown. Returns nil on a clean
// shutdown.
func (s *HTTPServer) Start(ctx context.Context) error {
	listener, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to bind %s: %w", s.server.Addr, err)
	}

	if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests, forcing close after 30 seconds.
func (s *HTTPServer) Shutdown(ctx context.Context) error {
	drainCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	if err := s.server.Shutdown(drainCtx); err != nil {
		s.server.Close()
		return fmt.Errorf("graceful shutdown failed, forced close: %w", err)
	}
	return nil
}
