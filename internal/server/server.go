// Package server exposes the HTTP control surface: engine start/stop,
// runtime parameter updates, and read-only views over the ledgers and the
// cycle archive. The server never mutates trading state directly; control
// flows through the supervisor and the settings holder.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rs/zerolog"

	"github.com/aristath/foresight/internal/config"
	"github.com/aristath/foresight/internal/modules/history"
	"github.com/aristath/foresight/internal/modules/ledger"
	"github.com/aristath/foresight/internal/reliability"
)

// Controller starts and stops the scan loop. Start and Stop report whether
// the call changed the state.
type Controller interface {
	Start() bool
	Stop() bool
	Running() bool
}

// BackupLister reports shipped backup bundles.
type BackupLister interface {
	ListBackups(ctx context.Context) ([]reliability.BackupInfo, error)
}

// Config wires the server's collaborators.
type Config struct {
	Log        zerolog.Logger
	Cfg        *config.Config
	Controller Controller
	Pools      []*ledger.Pool
	Settings   *config.Settings
	Archive    *history.Archive
	Backups    BackupLister // nil when backups are disabled
}

// Server is the HTTP API server.
type Server struct {
	router     *chi.Mux
	server     *http.Server
	log        zerolog.Logger
	cfg        *config.Config
	controller Controller
	pools      []*ledger.Pool
	settings   *config.Settings
	archive    *history.Archive
	backups    BackupLister
	system     *SystemHandlers
}

// New creates the server and mounts all routes.
func New(cfg Config) *Server {
	s := &Server{
		router:     chi.NewRouter(),
		log:        cfg.Log.With().Str("component", "server").Logger(),
		cfg:        cfg.Cfg,
		controller: cfg.Controller,
		pools:      cfg.Pools,
		settings:   cfg.Settings,
		archive:    cfg.Archive,
		backups:    cfg.Backups,
		system:     NewSystemHandlers(cfg.Log, cfg.Cfg.DataDir),
	}

	s.setupMiddleware(cfg.Cfg.DevMode)
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Cfg.Port),
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware(devMode bool) {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(s.loggingMiddleware)
	s.router.Use(middleware.Timeout(60 * time.Second))

	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	if !devMode {
		s.router.Use(middleware.Compress(5))
	}
}

// setupRoutes configures all routes
func (s *Server) setupRoutes() {
	// Liveness probe outside the API tree
	s.router.Get("/health", s.handleLiveness)

	s.router.Route("/api", func(r chi.Router) {
		r.Post("/engine/start", s.handleEngineStart)
		r.Post("/engine/stop", s.handleEngineStop)

		r.Get("/params", s.handleGetParams)
		r.Patch("/params", s.handlePatchParams)

		r.Get("/ledger", s.handleLedger)
		r.Get("/positions", s.handlePositions)
		r.Get("/history", s.handleHistory)
		r.Get("/metrics", s.handleMetrics)

		r.Get("/opportunities", s.handleOpportunities)
		r.Get("/cycles", s.handleCycles)
		r.Get("/cycles/{cycleID}", s.handleCycleDetail)

		r.Get("/backups", s.handleBackups)

		r.Get("/health", s.system.HandleHealth)
		r.Get("/system", s.system.HandleSystem)
	})
}

// Start blocks serving HTTP until the listener fails or is shut down.
func (s *Server) Start() error {
	s.log.Info().Int("port", s.cfg.Port).Msg("Starting HTTP server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs HTTP requests
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration_ms", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}

func (s *Server) handleLiveness(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{
		"status":  "healthy",
		"service": "foresight",
	})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
