package gateway

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// buildRouter constructs the chi mux with all routes wired.
func (g *Gateway) buildRouter() http.Handler {
	if g.closing == nil {
		g.closing, g.cancel = context.WithCancel(context.Background())
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	// Public, no auth required.
	r.Get("/health", g.handleHealth())
	if g.gatherer != nil {
		r.Handle("/metrics", g.metricsHandler())
	}

	// Job API, auth required. Not mounted if no auth configured.
	if g.config.Auth.IsConfigured() {
		r.Group(func(r chi.Router) {
			r.Use(authMiddleware(g.config.Auth, g.audit, g.limiter))
			r.Get("/status", g.handleStatus())
			r.Get("/ws/executions", g.handleExecutions())
			r.Route("/api", func(r chi.Router) {
				r.Get("/jobs", g.handleListJobs())
				r.Get("/jobs/{group}/{name}", g.handleGetJob())
				r.Post("/jobs/{group}/{name}/run", g.handleRunJob())
				r.Post("/reconcile", g.handleReconcile())
				r.Get("/plan", g.handlePlan())
				r.Get("/modules", g.handleListModules())
			})
		})
	}

	return r
}
