package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// MountRoutes registers all API routes on the given chi router.
func MountRoutes(r chi.Router, h *Handlers) {
	r.Get("/health", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"version":"0.1.0"}`))
		})

		// Matching
		r.Post("/match", h.MatchPatient)
		r.Post("/match/{nctID}", h.MatchTrial)

		// Trial directory
		r.Get("/trials", h.SearchTrials)
		r.Get("/trials/{nctID}", h.GetTrial)

		// Exports
		r.Post("/export/csv", h.ExportCSV)
		r.Post("/export/json", h.ExportJSON)
	})
}
