/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/obligations/*   Obligation catalog and per-obligation instances
  /api/instances/*     Instance lifecycle (submit, delete, alerts)
  /api/stats           Statistics report
  /api/admin/*         Sweep trigger, catalog import
  /metrics             Prometheus metrics
  /healthz             Liveness check

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Obligation catalog
		r.Route("/obligations", func(r chi.Router) {
			r.Get("/", h.ListObligations)
			r.Post("/", h.CreateObligation)
			r.Get("/{id}", h.GetObligation)
			r.Put("/{id}", h.UpdateObligation)
			r.Delete("/{id}", h.DeleteObligation)
			r.Post("/{id}/reconcile", h.ReconcileObligation)
			r.Get("/{id}/instances", h.ListInstances)
			r.Post("/{id}/instances", h.AddInstance)
		})

		// Instance lifecycle
		r.Route("/instances", func(r chi.Router) {
			r.Get("/pending", h.ListPendingInstances)
			r.Get("/{id}", h.GetInstance)
			r.Post("/{id}/submit", h.SubmitInstance)
			r.Delete("/{id}", h.DeleteInstance)
			r.Get("/{id}/alerts", h.ListInstanceAlerts)
		})

		// Statistics
		r.Get("/stats", h.GetStatistics)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/sweep", h.TriggerSweep)
			r.Post("/catalog", h.ImportCatalog)
		})
	})

	// Operational endpoints
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return r
}
