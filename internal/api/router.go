package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/laguz/internal/contextservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *contextservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Route("/v1/contexts", func(r chi.Router) {
		r.Post("/", h.CreateContext)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetContext)
			r.Delete("/", h.DeleteContext)
			r.Post("/messages", h.AppendMessages)
			r.Get("/messages", h.ListMessages)
			r.Get("/window", h.GetWindow)
		})
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
