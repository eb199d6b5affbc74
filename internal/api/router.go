package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hackgods/physician-availability/internal/appointment"
	"github.com/hackgods/physician-availability/internal/availability"
	"github.com/hackgods/physician-availability/internal/metrics"
)

type RouterConfig struct {
	Registry     *appointment.Registry
	Engine       *availability.Engine
	Metrics      *metrics.Collector
	Logger       *zap.Logger
	Dependencies []Dependency
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger, cfg.Metrics))

	// Health endpoints
	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())

	// Grids and reads
	r.Route("/physicians/{physicianID}", func(r chi.Router) {
		r.Get("/availability", dailyAvailabilityHandler(cfg.Engine, cfg.Metrics, logger))
		r.Get("/availability/week", weeklyAvailabilityHandler(cfg.Engine, cfg.Metrics, logger))
		r.Get("/appointments", listAppointmentsHandler(cfg.Registry))
		r.Get("/slots/available", slotAvailableHandler(cfg.Registry))
	})

	// Mutations
	r.Post("/appointments", createAppointmentHandler(cfg.Registry, cfg.Metrics))
	r.Put("/appointments/{id}", updateAppointmentHandler(cfg.Registry, cfg.Metrics))
	r.Delete("/appointments", deleteAppointmentHandler(cfg.Registry, cfg.Metrics))
	r.Delete("/appointments/all", deleteAllAppointmentsHandler(cfg.Registry, cfg.Metrics))

	return r
}
