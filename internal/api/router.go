package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/arbor/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Queries.
	r.Get("/search", h.Search)
	r.Get("/autocomplete", h.Autocomplete)

	// Notes and attributes.
	r.Get("/notes/{id}", h.GetNote)
	r.Get("/notes/{id}/attributes", h.Attributes)
	r.Get("/labels/{name}", h.NotesWithLabel)

	// Writes.
	r.Post("/changes", h.ApplyChanges)
	r.Post("/recent-notes", h.RecordVisit)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
