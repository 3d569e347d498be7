package web

import (
	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/person-matcher/internal/web/handlers"
	"github.com/kozaktomas/person-matcher/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	compareHandler := handlers.NewCompareHandler(s.deps.Engine, s.deps.Provider)
	sightingHandler := handlers.NewSightingHandler(s.deps.Ingestor)
	groupHandler := handlers.NewGroupHandler(s.deps.Groups, s.deps.Sightings)
	statsHandler := handlers.NewStatsHandler(s.deps.Groups, s.deps.Sightings, s.deps.Provider, s.deps.Rebuilder)
	regroupHandler := handlers.NewRegroupHandler(s.deps.Regrouper, s.jobManager)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", handlers.HealthCheck)

	// API routes
	s.router.Route("/api/v1", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireToken(s.config.Server.APIToken))

			// Pairwise comparison
			r.Post("/compare", compareHandler.Compare)

			// Sightings
			r.Post("/sightings", sightingHandler.Create)

			// Groups
			r.Get("/groups", groupHandler.List)
			r.Get("/groups/{id}", groupHandler.Get)
			r.Get("/groups/{id}/sightings", groupHandler.GetSightings)

			// Stats
			r.Get("/stats", statsHandler.Get)

			// Regroup (long-running operations)
			r.Post("/regroup", regroupHandler.Start)
			r.Get("/regroup", regroupHandler.List)
			r.Get("/regroup/{jobId}", regroupHandler.Status)
			r.Get("/regroup/{jobId}/events", regroupHandler.Events)
			r.Delete("/regroup/{jobId}", regroupHandler.Cancel)
		})
	})
}
