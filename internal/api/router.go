package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/hackgods/provider-slot-booking/internal/appointment"
	"github.com/hackgods/provider-slot-booking/internal/metrics"
	"github.com/hackgods/provider-slot-booking/internal/schedule"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Schedules    *schedule.Service
	Checks       []Check
	Logger       zerolog.Logger

	// Metrics and MetricsHandler are optional.
	Metrics        *metrics.Metrics
	MetricsHandler http.Handler

	RateLimitPerMinute int
	CORSOrigins        []string
	Env                string
	Version            string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	v := validator.New(validator.WithRequiredStructEnabled())
	loc := cfg.Schedules.Location()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger, cfg.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	health := NewHealthHandler(cfg.Checks, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	if cfg.MetricsHandler != nil {
		r.Method(http.MethodGet, "/metrics", cfg.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if cfg.RateLimitPerMinute > 0 {
			r.Use(httprate.LimitByIP(cfg.RateLimitPerMinute, time.Minute))
		}

		r.Route("/schedules", func(r chi.Router) {
			r.Post("/", createScheduleHandler(cfg.Schedules, v))
			r.Get("/provider/{providerId}/available-slots", availableSlotsHandler(cfg.Schedules))
		})

		r.Route("/appointments", func(r chi.Router) {
			r.Post("/", createAppointmentHandler(cfg.Appointments, v, loc))
			r.Get("/patient/{patientId}", listAppointmentsHandler(cfg.Appointments, loc, "patientId", byPatient))
			r.Get("/provider/{providerId}", listAppointmentsHandler(cfg.Appointments, loc, "providerId", byProvider))
			r.Get("/provider/{providerId}/requested", listAppointmentsHandler(cfg.Appointments, loc, "providerId", requestedByProvider))
			r.Get("/{appointmentId}", getAppointmentHandler(cfg.Appointments, loc))
			r.Post("/{appointmentId}/provider/{providerId}/update-status", updateStatusHandler(cfg.Appointments, v, loc))
			r.Post("/{appointmentId}/patient/{patientId}/cancel", cancelAppointmentHandler(cfg.Appointments, loc))
		})
	})

	return r
}
