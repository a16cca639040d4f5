package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all routes. metrics may be nil.
func SetupRoutes(h *Handlers, health *HealthChecker, metrics http.Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(requestLogger)

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders: []string{"Link"},
		MaxAge:         300,
	}))

	r.Get("/health", health.HandleHealth)
	r.Get("/health/live", health.HandleLiveness)
	r.Get("/health/ready", health.HandleReadiness)
	if metrics != nil {
		r.Method(http.MethodGet, "/metrics", metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/hierarchy", h.GetHierarchy)
			r.Put("/override", h.SetOverride)
			r.Delete("/override", h.DeactivateOverride)
			r.Get("/override/history", h.OverrideHistory)
		})
		r.Post("/hierarchy/test", h.TestHierarchy)
		r.Get("/rules/stats", h.RuleStats)
	})

	return r
}
