package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/supermqtt/internal/auth"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(auth.ScopeRead))
			r.Get("/status", s.handleStatus)
			r.Get("/faults", s.handleListFaults)
			r.Get("/faults/{id}", s.handleGetFault)
			r.Get("/stream", s.handleStream)
		})

		r.Group(func(r chi.Router) {
			r.Use(s.requireScope(auth.ScopeWrite))
			r.Post("/publish", s.handlePublish)
			r.Post("/subscriptions", s.handleSubscribe)
			r.Delete("/subscriptions", s.handleUnsubscribe)
		})
	})

	return r
}
