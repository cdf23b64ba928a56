package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/quietloop/pulse-server/internal/config"
	"github.com/quietloop/pulse-server/internal/db"
)

func NewRouter(cfg *config.Config, database *db.DB) *chi.Mux {
	return routerFor(cfg, NewHandlers(cfg, database))
}

func routerFor(cfg *config.Config, handlers *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)

	limiter := NewRateLimiter(60, time.Minute)

	// Public endpoints
	r.Get("/health", handlers.Health)

	// API v1 routes (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(RateLimitMiddleware(limiter))
		r.Use(JSONContentType)

		r.Get("/kpis", handlers.ListKPIs)
		r.Post("/kpis", handlers.UpsertKPI)

		r.Get("/weeks/{weekKey}", handlers.GetWeek)
		r.Put("/weeks/{weekKey}/values", handlers.PutValues)
		r.Put("/weeks/{weekKey}/overrides/{kpiID}", handlers.PutOverride)
		r.Delete("/weeks/{weekKey}/overrides/{kpiID}", handlers.DeleteOverride)

		r.Get("/analytics", handlers.Analytics)
		r.Get("/insights", handlers.Insights)
		r.Get("/pace/{kpiID}", handlers.Pace)
		r.Get("/rank", handlers.Rank)

		r.Post("/import", handlers.Import)
	})

	return r
}
