package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/clinicslot/clinicslot/internal/appointment"
	"github.com/clinicslot/clinicslot/internal/emr"
)

type RouterConfig struct {
	Appointments *appointment.Service
	Records      *emr.Service
	Logger       zerolog.Logger
	JWTSecret    string
	// Booking is throttled when set.
	RateLimiter *RateLimiter
	Checks      []DependencyCheck
	Env         string
	Version     string
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(cfg.Logger))
	r.Use(RecoveryMiddleware(cfg.Logger))

	health := NewHealthHandler(cfg.Env, cfg.Version, cfg.Checks...)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Group(func(r chi.Router) {
		r.Use(Authenticate(cfg.JWTSecret))

		r.Get("/doctors/{doctorID}/available-slots", availableSlotsHandler(cfg.Appointments))

		r.Group(func(r chi.Router) {
			if cfg.RateLimiter != nil {
				r.Use(RateLimit(cfg.RateLimiter))
			}
			r.Post("/appointments", bookAppointmentHandler(cfg.Appointments))
		})
		r.Get("/appointments/{id}", getAppointmentHandler(cfg.Appointments))
		r.Put("/appointments/{id}/status", updateStatusHandler(cfg.Appointments))
		r.Get("/my-appointments", myAppointmentsHandler(cfg.Appointments))

		r.Route("/doctor", func(r chi.Router) {
			r.Get("/appointments", doctorAppointmentsHandler(cfg.Appointments))
			r.Get("/active-patients", activePatientsHandler(cfg.Appointments))
			r.Put("/schedule", updateScheduleHandler(cfg.Appointments))
			r.Put("/slot-duration", slotDurationHandler(cfg.Appointments))
			r.Put("/max-patients", maxPatientsHandler(cfg.Appointments))
			r.Post("/emr", attachRecordHandler(cfg.Records))
		})

		r.Get("/emr/records", listRecordsHandler(cfg.Records))
	})

	return r
}
