//-------------------------------------------------------------------------
//
// pgEdge Ask Server
//
// Copyright (c) 2025 - 2026, pgEdge, Inc.
// This software is released under The PostgreSQL License
//
//-------------------------------------------------------------------------

// Package server provides the HTTP server for the ask API.
package server

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/pgEdge/pgedge-ask-server/internal/agent/tools"
	"github.com/pgEdge/pgedge-ask-server/internal/config"
	"github.com/pgEdge/pgedge-ask-server/internal/pipeline"
)

// Composer builds per-request pipelines.
type Composer interface {
	Compose(req pipeline.Request) (*pipeline.Pipeline, error)
	ComposeAgent(req pipeline.Request, ts []tools.Tool, opts pipeline.AgentOptions) (*pipeline.AgentRun, error)
}

// Uploads stores and lists uploaded files.
type Uploads interface {
	Save(name string, r io.Reader) (string, error)
	List() ([]string, error)
	Resolve(id string) (string, error)
}

// IndexPublisher schedules a stored file for indexing.
type IndexPublisher interface {
	Publish(ctx context.Context, path string) error
}

// ToolSelector picks the agent tools a request enables.
type ToolSelector interface {
	Select(plugins []tools.Plugin) []tools.Tool
}

// Deps are the collaborators the handlers use. Publisher may be nil.
type Deps struct {
	Composer  Composer
	Tools     ToolSelector
	Uploads   Uploads
	Publisher IndexPublisher
}

// Server is the HTTP server for the ask API.
type Server struct {
	config *config.Config
	deps   Deps
	logger *slog.Logger
	server *http.Server
	mux    *http.ServeMux
}

// New creates a new HTTP server.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
		mux:    http.NewServeMux(),
	}

	s.setupRoutes()

	return s
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	return s.applyMiddleware(s.mux)
}

// ListenAndServe starts the HTTP server.
func (s *Server) ListenAndServe() error {
	addr := net.JoinHostPort(s.config.Server.ListenAddress, fmt.Sprint(s.config.Server.Port))

	s.server = &http.Server{
		Addr:        addr,
		Handler:     s.Handler(),
		ReadTimeout: 30 * time.Second,
		// Streams are bounded by the pipeline timeouts instead.
		WriteTimeout: 0,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting server",
		"address", addr,
		"tls", s.config.Server.TLS.Enabled)

	if s.config.Server.TLS.Enabled {
		return s.serveTLS()
	}

	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen: %w", err)
	}

	return s.server.Serve(listener)
}

// serveTLS starts the server with TLS.
func (s *Server) serveTLS() error {
	s.server.TLSConfig = &tls.Config{
		MinVersion: tls.VersionTLS12,
	}

	return s.server.ListenAndServeTLS(
		s.config.Server.TLS.CertFile,
		s.config.Server.TLS.KeyFile,
	)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}

	return nil
}

// Addr returns the server's address. Returns empty string if not started.
func (s *Server) Addr() string {
	if s.server != nil {
		return s.server.Addr
	}
	return ""
}
