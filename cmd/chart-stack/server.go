package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"
)

// applyTimeout bounds a single request; helm upgrades of a full stack are slow.
const applyTimeout = 15 * time.Minute

// Server wraps the HTTP server and its lifecycle.
type Server struct {
	container *Container
	srv       *http.Server
}

// NewServer creates a new HTTP server with routes.
func NewServer(container *Container) *Server {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", container.Config.Port),
		Handler:           routes(container),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      applyTimeout,
	}

	return &Server{
		container: container,
		srv:       srv,
	}
}

func routes(c *Container) http.Handler {
	api := c.Handler.Routes()
	if c.Webhook == nil {
		return api
	}
	mux := http.NewServeMux()
	mux.Handle("POST /webhook", c.Webhook)
	mux.Handle("/", api)
	return mux
}

// Run starts the git sync (when configured) and the server, and handles
// graceful shutdown.
func (s *Server) Run(ctx context.Context) error {
	log := s.container.Logger

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if err := s.container.Start(ctx); err != nil {
		return fmt.Errorf("starting stack source: %w", err)
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server", slog.Int("port", s.container.Config.Port))
		if err := s.srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		log.Info("shutting down", "signal", sig.String())
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	// Graceful shutdown
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	if err := s.container.Close(shutdownCtx); err != nil {
		log.Warn("closing container", "error", err)
	}

	log.Info("server stopped")
	return nil
}
