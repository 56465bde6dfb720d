package routes

import (
	"github.com/go-chi/chi/v5"

	"github.com/MrSnakeDoc/selectord/internal/httpserver/deps"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/handlers"
	"github.com/MrSnakeDoc/selectord/internal/httpserver/mw"
)

func init() { Register("ops", registerOps) }

func registerOps(r chi.Router, d deps.Deps) {
	r.Get("/healthz", handlers.Healthz(d))

	cidrs := mw.AllowOnlyCIDRS(d.AllowedCIDRS, d.TrustProxy, d.Logger)
	r.With(cidrs).Get("/readyz", handlers.Readyz(d))
	r.With(cidrs).Method("GET", "/metrics", handlers.Metrics(d))
	r.With(adminGuards(d)...).Get("/infra", handlers.Infra(d))
	r.With(adminGuards(d)...).Post("/reload", handlers.Reload(d))
}
