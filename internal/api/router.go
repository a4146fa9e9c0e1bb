package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/timethings/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Activity ingest.
	r.Post("/events", h.PostEvent)
	r.Get("/ws", h.Stream)

	r.Get("/status", h.Status)

	// Edit statistics.
	r.Get("/stats", h.MostEdited)
	r.Get("/stats/sessions", h.Sessions)
	r.Get("/stats/*", h.Stat)

	// Header fields.
	r.Get("/headers/*", h.GetHeader)
	r.Put("/headers/*", h.PutHeader)

	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
