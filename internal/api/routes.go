package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(middleware.Compress(5, "application/json"))
	r.Use(m.Timeout(15 * time.Second))
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	r.Get("/readyz", h.Readyz)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Public tracking, called by the bridge client
		r.Route("/track", func(r chi.Router) {
			r.Post("/transaction", h.TrackTransaction)
			r.Patch("/transaction/{id}", h.UpdateTransaction)
			r.Post("/wallet", h.TrackWallet)
			r.Post("/pageview", h.TrackPageView)
		})

		r.Route("/analytics", func(r chi.Router) {
			r.Post("/verify", h.VerifyKey)

			r.Group(func(r chi.Router) {
				r.Use(m.RequireAnalyticsKey(h.svc))
				r.Get("/dashboard", h.GetDashboard)
				r.Get("/transactions", h.ListTransactions)
			})
		})
	})

	return r
}
