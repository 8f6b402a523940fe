package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Route("/api/v1", func(r chi.Router) {
		// Version
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Plan catalog
		r.Get("/plans", h.ListPlans)

		// Deployments
		r.Post("/deployments", h.CreateDeployment)
		r.Get("/deployments", h.ListDeployments)
		r.Get("/deployments/{id}", h.GetDeployment)
		r.Delete("/deployments/{id}", h.TerminateDeployment)

		// Lifecycle operations
		r.Post("/deployments/{id}/suspend", h.SuspendDeployment)
		r.Post("/deployments/{id}/resume", h.ResumeDeployment)
		r.Post("/deployments/{id}/resize", h.ResizeDeployment)

		// Audit trail
		r.Get("/deployments/{id}/actions", h.ListDeploymentActions)

		// Scaling
		r.Post("/deployments/{id}/usage", h.RecordUsage)
		r.Post("/deployments/{id}/scaling/check", h.CheckScaling)
	})
}
