package web

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/person-matcher/internal/ai"
	"github.com/kozaktomas/person-matcher/internal/config"
	"github.com/kozaktomas/person-matcher/internal/database"
	"github.com/kozaktomas/person-matcher/internal/reid"
	"github.com/kozaktomas/person-matcher/internal/web/handlers"
	"github.com/kozaktomas/person-matcher/internal/web/middleware"
	"github.com/kozaktomas/person-matcher/internal/worker"
)

// Deps carries the wired dependencies the HTTP handlers need.
// Provider and Rebuilder may be nil when the deployment runs without them.
type Deps struct {
	Engine    *reid.Engine
	Provider  ai.Provider
	Ingestor  *worker.Ingestor
	Regrouper *worker.Regrouper
	Groups    database.GroupReader
	Sightings database.SightingReader
	Rebuilder database.HNSWRebuilder
}

// Server owns the chi router, the underlying http.Server and the job
// registry for async regroup runs.
type Server struct {
	config     *config.Config
	router     *chi.Mux
	httpServer *http.Server
	jobManager *handlers.JobManager
	deps       Deps
}

// NewServer wires the middleware stack and routes. Call Start to listen.
func NewServer(cfg *config.Config, deps Deps) *Server {
	r := chi.NewRouter()

	s := &Server{
		config:     cfg,
		router:     r,
		jobManager: handlers.NewJobManager(),
		deps:       deps,
	}

	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(chiMiddleware.Logger)
	r.Use(chiMiddleware.Recoverer)
	r.Use(chiMiddleware.Timeout(5 * time.Minute))
	r.Use(middleware.CORS(cfg.Server.AllowedOrigins))
	r.Use(middleware.SecurityHeaders())

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute, // SSE streams and uploads outlive normal requests
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Start listens and serves until Shutdown is called. A clean shutdown
// returns nil.
func (s *Server) Start() error {
	log.Printf("Starting web server on %s", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}
	return nil
}

// Shutdown stops the server, waiting for in-flight requests up to the
// context deadline. A running regroup job is cancelled first so its SSE
// streams close instead of pinning connections open.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("Shutting down web server...")

	if job := s.jobManager.ActiveJob(); job != nil {
		log.Printf("Cancelling regroup job %s for shutdown", job.ID)
		job.Cancel()
	}

	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down server: %w", err)
	}
	return nil
}

// Router exposes the chi router so tests can drive it directly.
func (s *Server) Router() *chi.Mux {
	return s.router
}
