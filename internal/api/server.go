package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"hittracker/internal/config"
	"hittracker/internal/domain"
	"hittracker/internal/overview"
)

// Overviews serves period rollups and standing totals.
type Overviews interface {
	Period(ctx context.Context, period string) (*overview.Overview, error)
	Totals(ctx context.Context) (*overview.Totals, error)
}

// Today resolves the current business date.
type Today interface {
	BusinessDate() string
}

// Deps are the services behind the HTTP API.
type Deps struct {
	Store     domain.Store
	Sync      domain.SyncRunner
	Overviews Overviews
	Today     Today
	// Triggers counts sync requests per client; optional.
	Triggers domain.ProgressRepository
}

// Server exposes the tracker over HTTP.
type Server struct {
	cfg    config.APIConfig
	deps   Deps
	router *chi.Mux
	server *http.Server
	auth   *Auth
	log    zerolog.Logger
}

func NewServer(cfg config.APIConfig, monitoring config.MonitoringConfig, deps Deps, logger *zerolog.Logger) *Server {
	s := &Server{
		cfg:    cfg,
		deps:   deps,
		router: chi.NewRouter(),
		auth:   NewAuth(cfg),
		log:    logger.With().Str("component", "api").Logger(),
	}

	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)
	s.router.Use(loggingMiddleware(&s.log))
	s.router.Use(middleware.Timeout(60 * time.Second))
	s.router.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", s.auth.header()},
		MaxAge:         300,
	}))

	s.router.Get("/healthz", s.handleHealth)
	if monitoring.PrometheusEnabled {
		s.router.Handle("/metrics", promhttp.Handler())
	}

	s.router.Route("/api/v1", func(r chi.Router) {
		r.Use(s.auth.Middleware)

		r.Get("/days", s.handleDays)
		r.Get("/days/{date}", s.handleDay)
		r.Get("/overview/{period}", s.handleOverview)
		r.Get("/totals", s.handleTotals)
		r.Get("/progress", s.handleProgress)

		r.Route("/sync", func(r chi.Router) {
			r.Post("/today", s.handleSyncToday)
			r.Post("/days/{date}", s.handleSyncDay)
			r.Post("/last45", s.handleSyncLast45)
			r.Post("/resume", s.handleSyncResume)
		})
	})

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      65 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("Shutting down HTTP API")
	return s.server.Shutdown(ctx)
}
