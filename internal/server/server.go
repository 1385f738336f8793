package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/privacyshield/privacyshield/internal/app"
	"github.com/privacyshield/privacyshield/internal/console"
	"github.com/privacyshield/privacyshield/internal/scrub"
)

const (
	serviceName     = "privacyshield"
	apiVersion      = "v1"
	shutdownTimeout = 10 * time.Second
)

// Server wraps the HTTP surface over an App.
type Server struct {
	mux     *http.ServeMux
	app     *app.App
	version string
	handler http.Handler
}

// New creates a server with all routes registered.
func New(a *app.App, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{
		mux:     http.NewServeMux(),
		app:     a,
		version: version,
	}

	// Routes
	s.mux.HandleFunc("/", s.handleRoot)
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.HandleFunc("/healthz", s.handleHealthz)
	s.mux.HandleFunc("/robots.txt", handleRobots)
	s.mux.Handle("/console", console.Handler())
	s.mux.HandleFunc("/v1/analyze", s.handleAnalyze)
	s.mux.HandleFunc("/v1/score", s.handleScore)
	s.mux.HandleFunc("/v1/sample", s.handleSample)
	s.mux.HandleFunc("/v1/entities", s.handleEntities)
	s.mux.HandleFunc("/v1/audit", s.handleAudit)
	s.mux.HandleFunc("/v1/audit/stats", s.handleAuditStats)

	cfg := a.Config.Server
	s.handler = withAccessLog(withCORS(cfg.AllowOrigins, withBodyLimit(cfg.MaxBodyBytes, s.mux)))
	return s
}

// Handler returns the root handler including middleware.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		scrub.Logf("privacyshield %s listening on %s", s.version, addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	scrub.Logf("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
