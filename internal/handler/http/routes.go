package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

const (
	sessionIDParam  = "sessionID"
	conflictIDParam = "conflictID"
)

func (h *Handler) Init() *chi.Mux {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Use(h.withTraceID, h.withLogging, withGZip)

	// routes without authorization
	router.Group(func(r chi.Router) {
		r.Get("/api/version", h.getServerVersion)
		if h.metrics != nil {
			r.Method("GET", "/metrics", h.metrics)
		}
	})

	router.Route("/sync", func(r chi.Router) {
		r.Use(h.auth)

		r.Post("/sessions", h.openSession)
		r.Get("/sessions/{"+sessionIDParam+"}", h.getSession)
		r.Post("/sessions/{"+sessionIDParam+"}/batch", h.ingestBatch)
		r.Post("/sessions/{"+sessionIDParam+"}/close", h.closeSession)

		r.Group(func(r chi.Router) {
			r.Use(h.requireOperator)

			r.Get("/conflicts", h.listConflicts)
			r.Post("/conflicts/{"+conflictIDParam+"}/resolve", h.resolveConflict)
			r.Get("/mutations/failed", h.listFailedMutations)
		})
	})

	router.MethodNotAllowed(CheckHTTPMethod(router))

	return router
}
