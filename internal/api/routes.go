package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Route("/api/v1", func(r chi.Router) {
		// Public routes (no auth required)
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/scale", h.ScaleState)
			r.Post("/scale/samples", h.IngestSample)
			r.Post("/scale/reset", h.ResetScale)

			r.Post("/capture", h.Capture)
			r.Delete("/capture/{index}", h.DeleteLineItem)

			r.Get("/session", h.Session)
			r.Put("/session/tare", h.SetTare)

			r.Post("/records", h.SaveRecord)
			r.Get("/records/pending", h.ListPending)

			r.Post("/sync", h.Sync)
		})
	})

	return r
}
