package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/photocal/photocal-server/internal/config"
)

func NewRouter(cfg *config.Config, handlers *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)

	// Public endpoints
	r.Get("/health", handlers.Health)

	limiter := NewRateLimiter(cfg.RateLimit, time.Minute)

	// API v1 routes (authenticated)
	r.Route("/api/v1", func(r chi.Router) {
		r.Use(AuthMiddleware(cfg))
		r.Use(RateLimitMiddleware(limiter))
		r.Use(JSONContentType)

		r.Post("/extract", handlers.Extract)
		r.Post("/extract/batch", handlers.ExtractBatch)

		r.Post("/events", handlers.CreateEvent)
		r.Get("/events", handlers.ListEvents)
		r.Get("/events/{id}", handlers.GetEvent)
		r.Delete("/events/{id}", handlers.DeleteEvent)

		r.Post("/sync", handlers.Sync)
		r.Get("/usage", handlers.Usage)
	})

	return r
}
