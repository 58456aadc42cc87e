package controller

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts every route of the API.
func NewRouter(messages *ScheduledMessageController, campaigns *CampaignController, health *HealthController, log *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(RequestLogger(log))

	r.Get("/health", health.Health)

	// Campaign routes
	r.Get("/campaigns", campaigns.ListCampaigns)
	r.Get("/campaigns/{id}", campaigns.GetCampaignDetails)

	// Scheduled message routes
	r.Route("/scheduled-messages", func(r chi.Router) {
		r.Use(RequireUser(log))

		r.Post("/", messages.Create)
		r.Post("/bulk", messages.CreateBulk)
		r.Get("/due-today", messages.DueToday)
		r.Get("/{id}", messages.Get)
		r.Patch("/{id}", messages.Update)
		r.Delete("/{id}", messages.Delete)
		r.Post("/{id}/send", messages.Send)
	})

	return r
}
