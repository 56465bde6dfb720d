package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/handlers"
)

func init() { Register("proxy_selector", registerProxySelector) }

func registerProxySelector(r chi.Router, d deps.Deps) {
	r.Route("/proxy-selector", func(r chi.Router) {
		r.Use(adminGuards(d)...)
		r.Get("/", handlers.ListProxySelectors(d))

		r.Group(func(r chi.Router) {
			r.Use(writeGuards(d)...)
			r.Post("/", handlers.CreateOrUpdateProxySelector(d))
			r.Put("/{id}", handlers.UpdateProxySelector(d))
			r.Delete("/batch", handlers.DeleteProxySelectors(d))
		})
	})
}
