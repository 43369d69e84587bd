package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Get("/dashboard", h.HandleDashboard)
		r.Put("/preferences/map", h.HandleSetMapPreference)

		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Post("/watch", h.HandleWatchCampaign)
			r.Delete("/watch", h.HandleUnwatchCampaign)

			r.Get("/table", h.HandleTable)
			r.Get("/snapshot", h.HandleCachedSnapshot)
			r.Get("/charts", h.HandleCharts)
			r.Get("/map", h.HandleMap)
			r.Get("/history", h.HandleStatsHistory)

			r.Post("/rows/{rid}/expand", h.HandleExpandRow)
			r.Post("/rows/{rid}/collapse", h.HandleCollapseRow)
			r.Post("/rows/{rid}/replay", h.HandleReplay)
			r.Post("/rows/{rid}/report", h.HandleReportResult)

			r.Post("/complete", h.HandleCompleteCampaign)
			r.Delete("/", h.HandleDeleteCampaign)
		})
	})

	return r
}
