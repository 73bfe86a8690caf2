// Package api builds the read-only Alerts API: a chi router exposing
// GET /alerts and GET /stats over a single completed run's alert store.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/evtxhunter/evtxhunter/internal/api/alerts"
	"github.com/evtxhunter/evtxhunter/internal/api/middleware"
	"github.com/evtxhunter/evtxhunter/internal/apiauth"
	"github.com/evtxhunter/evtxhunter/internal/detect"
)

// Config controls router construction.
type Config struct {
	Auth           *apiauth.Authenticator
	RequestLimiter *apiauth.RateLimiter
	Verbose        bool
}

// NewRouter builds the chi router for the Alerts API over store and stats.
func NewRouter(store *detect.AlertStore, stats detect.RunStats, cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestLogger(cfg.Verbose))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Recoverer)

	alertsHandler := alerts.NewHandler(store, stats)

	r.Route("/", func(r chi.Router) {
		if cfg.Auth != nil {
			r.Use(apiauth.RequireBearer(cfg.Auth))
		}
		if cfg.RequestLimiter != nil {
			r.Use(apiauth.RateLimitByIdentity(cfg.RequestLimiter))
		}

		r.Get("/alerts", alertsHandler.List)
		r.Get("/stats", alertsHandler.Stats)
	})

	r.Get("/health", healthHandler)
	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		JSONError(w, NewNotFound("no such route"))
	})

	return r
}

func healthHandler(w http.ResponseWriter, r *http.Request) {
	OK(w, map[string]string{"status": "ok"})
}
