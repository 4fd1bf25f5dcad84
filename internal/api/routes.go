package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Webhook-Signature"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check (no auth required)
	r.Get("/health", h.HealthCheck)

	// Platform event intake. Signature-checked, never authenticated.
	r.Post("/webhooks/platform", h.HandleWebhook)

	r.Route("/api", func(r chi.Router) {
		r.Route("/sequences", func(r chi.Router) {
			r.Post("/", h.HandleCreateSequence)
			r.Get("/", h.HandleListSequences)
			r.Get("/{sequenceId}", h.HandleGetSequence)
			r.Post("/{sequenceId}/activate", h.HandleActivateSequence)
			r.Post("/{sequenceId}/pause", h.HandlePauseSequence)
			r.Post("/{sequenceId}/steps", h.HandleCreateStep)
		})

		r.Route("/steps", func(r chi.Router) {
			r.Patch("/{stepId}", h.HandleUpdateStep)
			r.Delete("/{stepId}", h.HandleDeleteStep)
		})

		r.Route("/campaigns", func(r chi.Router) {
			r.Post("/", h.HandleCreateCampaign)
			r.Get("/{campaignId}", h.HandleGetCampaign)
		})
	})

	return r
}
