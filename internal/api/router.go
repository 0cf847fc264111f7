package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/phedlund/cloudnotes/internal/cache"
	"github.com/phedlund/cloudnotes/internal/notesync"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(mgr *notesync.Manager, store cache.Store, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(mgr, store)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes CRUD.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/{id}", h.GetNote)
	r.Put("/notes/{id}", h.UpdateNote)
	r.Delete("/notes/{id}", h.DeleteNote)
	r.Put("/notes/{id}/favorite", h.SetFavorite)

	// Sync trigger.
	r.Post("/sync", h.TriggerSync)

	// Presentation tree.
	r.Get("/tree", h.Tree)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
