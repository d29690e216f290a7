// Package server provides the HTTP API over the coordinator and the audit
// trail.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/aegis/internal/di"
)

// Config holds server configuration
type Config struct {
	Log       zerolog.Logger
	Port      int
	DevMode   bool
	Container *di.Container     // DI container with all services
	Jobs      *di.JobInstances // optional, enables manual job triggers
}

// Server represents the HTTP server
type Server struct {
	router    *chi.Mux
	server    *http.Server
	log       zerolog.Logger
	port      int
	container *di.Container
	jobs      *di.JobInstances
	stream    *DecisionStream
	startedAt time.Time
}

// New creates a new HTTP server and subscribes its decision stream to the
// coordinator.
func New(cfg Config) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		log:       cfg.Log.With().Str("component", "server").Logger(),
		port:      cfg.Port,
		container: cfg.Container,
		jobs:      cfg.Jobs,
		stream:    NewDecisionStream(cfg.Log),
		startedAt: time.Now(),
	}
	cfg.Container.Coordinator.Subscribe(s.stream)

	s.setupMiddleware(cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 0, // websocket connections are long-lived
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5, "application/json"))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	s.router.Route("/api", func(r chi.Router) {
		// The stream bypasses the request timeout.
		r.Get("/stream", s.stream.ServeHTTP)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(60 * time.Second))

			r.Route("/agents", func(r chi.Router) {
				r.Get("/", s.handleAgentStatuses)
				r.Post("/reset", s.handleResetAgents)
				r.Get("/{name}", s.handleAgentStatus)
				r.Get("/{name}/decisions", s.handleAgentDecisions)
				r.Get("/{name}/messages", s.handleAgentMessages)
				r.Post("/{name}/execute", s.handleExecuteAgent)
			})

			r.Get("/workflows", s.handleListWorkflows)
			r.Post("/workflows/{name}", s.handleExecuteWorkflow)

			r.Get("/decisions", s.handleDecisionLog)
			r.Get("/messages", s.handleMessageHistory)

			r.Route("/audit", func(r chi.Router) {
				r.Get("/decisions", s.handleAuditDecisions)
				r.Get("/messages", s.handleAuditMessages)
				r.Get("/workflows", s.handleAuditWorkflows)
				r.Get("/verdicts", s.handleAuditVerdicts)
				r.Get("/stats", s.handleAuditStats)
				r.Get("/backups", s.handleListBackups)
			})

			r.Route("/jobs", func(r chi.Router) {
				r.Get("/", s.handleListJobs)
				r.Post("/{name}", s.handleTriggerJob)
			})
		})
	})
}

// Start starts the HTTP server
func (s *Server) Start() error {
	s.log.Info().Int("port", s.port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	s.stream.Close()
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
