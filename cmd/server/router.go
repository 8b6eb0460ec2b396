package main

import (
	"net/http"

	"github.com/fablery/fable-api/internal/api"
	apiMiddleware "github.com/fablery/fable-api/internal/api/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// routes builds the application router with all routes and middleware.
func (app *application) routes() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	storyHandler := api.NewStoryHandler(app.storyService, app.logger)
	authMiddleware := apiMiddleware.NewAuthMiddleware(app.jwtService)

	r.Route("/api", func(r chi.Router) {
		r.Use(authMiddleware.Authenticate)

		r.Post("/stories", storyHandler.Submit)
		r.Get("/stories/{id}/status", storyHandler.Status)
		r.Get("/stories/{id}/result", storyHandler.Result)
		r.Post("/stories/{id}/save", storyHandler.Save)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("failed to write health check response", "error", err)
		}
	})

	return r
}
