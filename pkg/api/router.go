// Package api serves read-only occupancy status over HTTP.
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the status endpoints
func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", HealthHandler)
	r.Route("/status", func(r chi.Router) {
		r.Get("/latest", app.LatestHandler)
		r.Get("/hourly", app.HourlyHandler)
	})

	return r
}
