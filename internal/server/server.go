// Package server provides the HTTP API for gridskin.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/gridskin/gridskin/internal/config"
	"github.com/gridskin/gridskin/internal/fetcher"
	"github.com/gridskin/gridskin/internal/overlay"
	"github.com/gridskin/gridskin/internal/pipeline"
)

// Server is the HTTP server exposing the icon pipeline.
type Server struct {
	pipeline *pipeline.Pipeline
	registry *overlay.Registry
	store    *fetcher.Store
	config   *config.Config
	logger   *zap.Logger
	server   *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	p *pipeline.Pipeline,
	registry *overlay.Registry,
	store *fetcher.Store,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		pipeline: p,
		registry: registry,
		store:    store,
		config:   cfg,
		logger:   logger,
	}
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.router(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

func (s *Server) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Post("/api/v1/search", s.handleSearch)
	r.Post("/api/v1/icons", s.handleComposeIcon)
	r.Get("/api/v1/consoles", s.handleConsoles)
	r.Get("/api/v1/status", s.handleStatus)
	r.Get("/health", s.handleHealth)
	return r
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
