package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		r.Get("/roles", h.ListRoles)

		r.Post("/deliberations", h.CreateDeliberation)
		r.Get("/deliberations/{id}", h.GetDeliberation)
		r.Get("/deliberations/{id}/events", h.GetDeliberationEvents)
		r.Post("/deliberations/{id}/decision", h.PostDecision)
		r.Post("/deliberations/{id}/cancel", h.CancelDeliberation)
	})

	r.Get("/ws", h.hub.HandleWS)
}
