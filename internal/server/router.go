package server

import (
	"net/http"

	"github.com/cloo-solutions/reposcout/internal/api"
	"github.com/cloo-solutions/reposcout/internal/api/handlers"
	"github.com/cloo-solutions/reposcout/internal/api/middleware"
	"github.com/cloo-solutions/reposcout/internal/metrics"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

type RouterConfig struct {
	// AuthValidator guards every route except /health and /metrics. Nil
	// leaves the API open.
	AuthValidator        middleware.AuthValidator
	SearchHandler        *handlers.SearchHandler
	HITLHandler          *handlers.HITLHandler
	ResultsHandler       *handlers.ResultsHandler
	ConfigurationHandler *handlers.ConfigurationHandler
	WebsocketHandler     *handlers.WebsocketHandler
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	const maxBodyBytes int64 = 1 * 1024 * 1024

	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.Use(middleware.Observe)
	r.Use(chimw.RequestSize(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Group(func(r chi.Router) {
		if cfg.AuthValidator != nil {
			r.Use(middleware.APIKeyAuth(cfg.AuthValidator))
		}

		r.Post("/search", cfg.SearchHandler.Submit)

		r.Route("/requests", func(r chi.Router) {
			r.Get("/", cfg.SearchHandler.List)
			r.Get("/{id}", cfg.SearchHandler.Get)
		})

		r.Get("/hitl/{requestId}", cfg.HITLHandler.ListPending)
		r.Post("/hitl/{reviewId}/review", cfg.HITLHandler.Review)

		r.Get("/results/{requestId}", cfg.ResultsHandler.List)
		r.Get("/results/{requestId}/report", cfg.ResultsHandler.Report)
		r.Get("/enrichments/{requestId}", cfg.ResultsHandler.Enrichments)

		r.Route("/configurations", func(r chi.Router) {
			r.Post("/", cfg.ConfigurationHandler.Create)
			r.Get("/", cfg.ConfigurationHandler.List)
			r.Get("/{id}", cfg.ConfigurationHandler.Get)
			r.Put("/{id}", cfg.ConfigurationHandler.Update)
			r.Delete("/{id}", cfg.ConfigurationHandler.Delete)
		})

		r.Get("/ws/agents/{key}", cfg.WebsocketHandler.Agent)
		r.Get("/ws/requests/{id}/events", cfg.WebsocketHandler.Events)
	})

	return r
}
