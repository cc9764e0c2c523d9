/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route
  definitions. This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the HR frontend

ROUTE GROUPS:
  /api/members/*       Roster, balances, history, usage
  /api/allocations/*   Request-level cancellation
  /api/policies/*      Policy management
  /api/admin/*         Batch runs and audit
  /healthz             Liveness probe

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/balance", h.GetBalance)
			r.Get("/{id}/transactions", h.GetTransactions)
			r.Get("/{id}/preview", h.PreviewAccrual)
			r.Post("/{id}/allocations", h.AllocateLeave)
			r.Post("/{id}/grants", h.ManualGrant)
			r.Post("/{id}/adjustments", h.CreateAdjustment)
		})

		// Allocation routes
		r.Route("/allocations", func(r chi.Router) {
			r.Post("/cancel", h.CancelAllocation)
		})

		// Policy routes
		r.Route("/policies", func(r chi.Router) {
			r.Get("/active", h.GetActivePolicy)
			r.Post("/", h.SavePolicy)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/daily-update", h.TriggerDailyUpdate)
			r.Get("/runs", h.ListRuns)
		})
	})

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
