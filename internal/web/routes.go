package web

import (
	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/fingerprint-id/internal/web/handlers"
	"github.com/kozaktomas/fingerprint-id/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	identitiesHandler := handlers.NewIdentitiesHandler(s.engine)
	matchHandler := handlers.NewMatchHandler(s.engine)
	statsHandler := handlers.NewStatsHandler(s.engine)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RequireToken(s.apiToken))

		// Identities
		r.Get("/identities", identitiesHandler.List)
		r.Post("/identities", identitiesHandler.Enroll)
		r.Get("/identities/{id}", identitiesHandler.Get)
		r.Delete("/identities/{id}", identitiesHandler.Delete)
		r.Get("/directory", identitiesHandler.Directory)

		// Matching
		r.Post("/match", matchHandler.Match)
		r.Get("/capture", matchHandler.Capture)

		// Maintenance
		r.Get("/stats", statsHandler.Get)
		r.Post("/rebuild", statsHandler.Rebuild)
	})
}
