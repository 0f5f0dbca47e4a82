// Package server provides the HTTP API for the booru gallery.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/booru/internal/auth"
	"github.com/hyperjump/booru/internal/config"
	"github.com/hyperjump/booru/internal/gallery"
	"github.com/hyperjump/booru/internal/storage"
	"github.com/hyperjump/booru/internal/suggest"
)

// Server is the HTTP server for the gallery API.
type Server struct {
	gallery *gallery.Coordinator
	suggest *suggest.Suggester
	repo    storage.Repository
	auth    auth.Provider
	config  *config.Config
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(
	coordinator *gallery.Coordinator,
	suggester *suggest.Suggester,
	repo storage.Repository,
	authProvider auth.Provider,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		gallery: coordinator,
		suggest: suggester,
		repo:    repo,
		auth:    authProvider,
		config:  cfg,
		logger:  logger,
	}
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(middleware.Compress(5))
	r.Use(s.withSession)

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/status", s.handleStatus)

		r.Get("/posts", s.handleListPosts)
		r.Get("/posts/{id}", s.handleGetPost)
		r.Group(func(r chi.Router) {
			r.Use(s.requireSession)
			r.Patch("/posts/{id}", s.handleUpdatePost)
			r.Delete("/posts/{id}", s.handleDeletePost)
		})

		r.Get("/tags", s.handleListTags)
		r.Get("/tags/autocomplete", s.handleAutocomplete)

		r.Post("/auth/login", s.handleLogin)
		r.Post("/auth/logout", s.handleLogout)
		r.Get("/auth/session", s.handleSession)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
