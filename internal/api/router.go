package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(app *App) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/ping", PingHandler)

	r.Route("/api", func(r chi.Router) {
		r.Post("/session/start", app.StartSessionHandler)
		r.Post("/session/scan", app.ScanHandler)
		r.Post("/session/stop", app.StopSessionHandler)

		r.Get("/sessions", app.ListSessionsHandler)
		r.Post("/sessions/{id}/promote", app.PromoteSessionHandler)
		r.Delete("/sessions/{id}", app.DeleteSessionHandler)
		r.Get("/sessions/{id}/media/{kind}", app.MediaHandler)

		r.Get("/status", app.StatusHandler)
	})

	return r
}
