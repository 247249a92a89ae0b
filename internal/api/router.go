package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hackgods/practice-scheduling/internal/appointment"
)

type RouterConfig struct {
	Service      *appointment.Service
	Profiles     appointment.ProfileStore
	Dependencies []Dependency
	Logger       *zap.Logger
	ReminderLead time.Duration
	Env          string
	Version      string
}

func NewRouter(cfg RouterConfig) http.Handler {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	svc := cfg.Service

	r := chi.NewRouter()

	// Apply middleware
	r.Use(RequestIDMiddleware)
	r.Use(LoggingMiddleware(logger))

	// Health endpoints
	health := NewHealthHandler(cfg.Dependencies, cfg.Env, cfg.Version)
	r.Get("/health/live", health.Liveness)
	r.Get("/health/ready", health.Readiness)

	r.Get("/practitioners", listPractitionersHandler(svc))
	r.Route("/practitioners/{practitionerID}", func(r chi.Router) {
		r.Get("/profile", getProfileHandler(svc))
		r.Put("/profile", putProfileHandler(svc, cfg.Profiles))

		r.Get("/availability/slots", availableSlotsHandler(svc))
		r.Get("/availability/check", checkAvailabilityHandler(svc))

		r.Post("/appointments", bookAppointmentHandler(svc))
		r.Get("/appointments", listAppointmentsHandler(svc))
		r.Get("/appointments/upcoming", upcomingHandler(svc))
		r.Get("/appointments/reminders", remindersHandler(svc, cfg.ReminderLead))

		r.Post("/series", createSeriesHandler(svc))
		r.Get("/series/{seriesID}", seriesAppointmentsHandler(svc))
	})

	// Appointment endpoints
	r.Route("/appointments/{id}", func(r chi.Router) {
		r.Get("/", getAppointmentHandler(svc))
		r.Post("/confirm", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return svc.Confirm(req.Context(), id)
		}))
		r.Post("/check-in", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return svc.CheckIn(req.Context(), id)
		}))
		r.Post("/start", transitionHandler(func(req *http.Request, id uuid.UUID) (*appointment.Appointment, error) {
			return svc.Start(req.Context(), id)
		}))
		r.Post("/complete", completeAppointmentHandler(svc))
		r.Post("/cancel", cancelAppointmentHandler(svc))
		r.Post("/reschedule", rescheduleAppointmentHandler(svc))
	})

	return r
}
