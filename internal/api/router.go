package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Sync operations.
	r.Post("/import", h.Import)
	r.Post("/sync", h.Sync)
	r.Post("/bidirectional", h.Bidirectional)
	r.Post("/export/*", h.Export)

	// Introspection.
	r.Get("/status", h.Status)
	r.Get("/documents", h.ListDocuments)
	r.Get("/documents/*", h.GetDocument)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
