/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. httplog:    Structured request logging over slog
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/employees/*   Roster, ledger, request submission
  /api/requests/*    Approval workflow
  /api/penalties/*   Sick-leave penalty worklist and application
  /api/coverage      Conflict + heat report
  /api/admin/*       Adjustments, thresholds, excess hours
  /api/holidays      Holiday calendar

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"log/slog"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/go-chi/httplog/v3"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, logger *slog.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(httplog.RequestLogger(logger, &httplog.Options{
		Level:  slog.LevelInfo,
		Schema: httplog.SchemaECS,
	}))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/healthz"))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Post("/", h.CreateEmployee)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/ledger", h.GetLedger)
			r.Get("/{id}/requests", h.ListEmployeeRequests)
			r.Post("/{id}/requests", h.SubmitRequest)
			r.Get("/{id}/adjustments", h.ListEmployeeAdjustments)
		})

		// Request workflow routes
		r.Route("/requests", func(r chi.Router) {
			r.Get("/{id}", h.GetRequest)
			r.Post("/{id}/approve", h.ApproveRequest)
			r.Post("/{id}/deny", h.DenyRequest)
			r.Post("/{id}/cancel", h.CancelRequest)
		})

		// Penalty routes
		r.Route("/penalties/{year}", func(r chi.Router) {
			r.Get("/", h.ListLiableEmployees)
			r.Get("/{id}", h.AssessPenalty)
			r.Post("/{id}/apply", h.ApplyPenalty)
		})

		// Coverage report
		r.Get("/coverage", h.GetCoverage)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/adjustments", h.CreateAdjustment)
			r.Get("/thresholds", h.GetThresholds)
			r.Put("/thresholds", h.SetThreshold)
			r.Delete("/thresholds/{role}", h.DeleteThreshold)
			r.Get("/excess-hours/{year}", h.GetExcessHours)
			r.Put("/excess-hours/{year}", h.SetExcessHours)
		})

		// Holiday routes
		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
		})
	})

	return r
}
