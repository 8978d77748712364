// Package web serves the enrollment and matching workflows over HTTP.
package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog/log"

	"github.com/kozaktomas/fingerprint-id/internal/engine"
	"github.com/kozaktomas/fingerprint-id/internal/web/middleware"
)

// Options configures the server.
type Options struct {
	Host string
	Port int
	// APIToken protects every route except health when set.
	APIToken       string
	AllowedOrigins []string
	// RequestTimeout bounds a request, including waiting for a finger.
	RequestTimeout time.Duration
}

// Server represents the web server
type Server struct {
	engine     *engine.Engine
	router     *chi.Mux
	httpServer *http.Server
	apiToken   string
}

// NewServer creates a new web server
func NewServer(eng *engine.Engine, opts Options) *Server {
	r := chi.NewRouter()

	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 2 * time.Minute
	}

	s := &Server{
		engine:   eng,
		router:   r,
		apiToken: opts.APIToken,
	}

	// Set up middleware stack
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(opts.RequestTimeout))
	r.Use(middleware.CORS(opts.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: opts.RequestTimeout + 10*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start starts the HTTP server
func (s *Server) Start() error {
	log.Info().Str("addr", s.httpServer.Addr).Msg("starting web server")
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down web server")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router returns the chi router for testing
func (s *Server) Router() *chi.Mux {
	return s.router
}
