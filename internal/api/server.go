// Package api exposes the reconciliation service over HTTP. Handlers are a
// thin layer over the session service: they decode requests, call the
// service, and translate the error taxonomy into status codes. All domain
// behavior lives below this package.
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter wires every route onto a chi mux with the standard middleware
// stack.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", h.CreateSession)
			r.Get("/", h.ListSessions)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Get("/", h.GetSession)
				r.Delete("/", h.DeleteSession)
				r.Put("/settings", h.UpdateSettings)
				r.Post("/validate", h.Validate)

				r.Route("/identity", func(r chi.Router) {
					r.Get("/", h.IdentityGet)
					r.Post("/decide", h.IdentityDecide)
					r.Post("/undo", h.IdentityUndo)
					r.Post("/reset", h.IdentityReset)
				})

				r.Post("/analyze", h.Analyze)
				r.Get("/status", h.Status)
				r.Get("/dashboard", h.Dashboard)
				r.Get("/accounts", h.Accounts)
				r.Get("/lineage/{rsxID}", h.Lineage)
				r.Get("/exclusions", h.Exclusions)

				r.Route("/exports", func(r chi.Router) {
					r.Get("/accounts", h.ExportAccounts)
					r.Get("/lineage/{rsxID}", h.ExportLineage)
					r.Get("/exclusions", h.ExportExclusions)
					r.Get("/report", h.ExportReport)
				})
			})
		})

		r.Get("/templates/{table}", h.Template)
		r.Post("/synthetic", h.Synthetic)
		r.Get("/synthetic/{table}", h.SyntheticTable)
	})

	return r
}
