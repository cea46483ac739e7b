// Package api is the thin HTTP adapter over the reconciliation engine. It
// ingests receipts and bank transactions, exposes reconcile/unmatch actions
// and reports sweep runs. Matching decisions live in the engine only.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/eshaffer321/receipt-reconciler/internal/adapters/ingest"
	"github.com/eshaffer321/receipt-reconciler/internal/api/handlers"
	"github.com/eshaffer321/receipt-reconciler/internal/api/middleware"
	"github.com/eshaffer321/receipt-reconciler/internal/infrastructure/storage"
)

// requestTimeout bounds a single API request, including a synchronous reconcile
const requestTimeout = 30 * time.Second

// Config holds API server configuration.
type Config struct {
	Port           int
	AllowedOrigins []string
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8085,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	repo       storage.Repository
	engine     handlers.Reconciler
	sweeps     handlers.SweepRunner
	converter  *ingest.Converter
}

// NewServer creates a new API server.
// If sweeps is nil, the on-demand sweep endpoints are not registered.
func NewServer(cfg Config, repo storage.Repository, engine handlers.Reconciler, sweeps handlers.SweepRunner, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		logger:    logger.With("system", "api"),
		repo:      repo,
		engine:    engine,
		sweeps:    sweeps,
		converter: ingest.NewConverter(),
	}

	s.setupMiddleware()
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: requestTimeout + 5*time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.Recovery(s.logger))

	// CORS
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	// Request logging
	s.router.Use(middleware.Logging(s.logger))
	s.router.Use(chimw.Timeout(requestTimeout))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(s.repo)
	s.router.Get("/health", healthHandler.ServeHTTP)

	s.router.Route("/api", func(r chi.Router) {
		// Ingestion
		receiptsHandler := handlers.NewReceiptsHandler(s.repo, s.engine, s.converter, s.logger)
		r.Post("/receipts", receiptsHandler.Create)

		transactionsHandler := handlers.NewTransactionsHandler(s.repo, s.engine, s.converter, s.logger)
		r.Post("/transactions", transactionsHandler.Create)

		// Records
		recordsHandler := handlers.NewRecordsHandler(s.repo, s.engine, s.logger)
		r.Get("/records/{id}", recordsHandler.Get)
		r.Post("/records/{id}/reconcile", recordsHandler.Reconcile)
		r.Post("/records/{id}/unmatch", recordsHandler.Unmatch)
		r.Get("/records/{id}/duplicates", recordsHandler.Duplicates)

		// Sweep runs (historical)
		runsHandler := handlers.NewRunsHandler(s.repo, s.logger)
		r.Get("/runs", runsHandler.List)
		r.Get("/runs/{id}", runsHandler.Get)

		// Stats
		statsHandler := handlers.NewStatsHandler(s.repo, s.logger)
		r.Get("/stats", statsHandler.Get)

		// On-demand sweeps
		if s.sweeps != nil {
			sweepsHandler := handlers.NewSweepsHandler(s.sweeps, s.logger)
			r.Get("/sweeps", sweepsHandler.List)
			r.Post("/sweeps/{job}", sweepsHandler.Start)
		}
	})
}

// Start starts the HTTP server. It blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("starting API server", "addr", s.httpServer.Addr)

	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")
	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
