package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/decksmith/internal/deckservice"
	"github.com/starford/decksmith/internal/media"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// diagHandler, if non-nil, is mounted at GET /diagnostics inside the auth group.
// baseDir is the extraction base every deck route resolves against.
func NewRouter(svc *deckservice.Service, baseDir string, mode media.Mode, authEnabled bool, token string, diagHandler http.Handler) chi.Router {
	h := NewHandler(svc, baseDir, mode)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	r.Post("/decks", h.ExtractDeck)
	r.Get("/decks", h.ListDecks)
	r.Route("/decks/{hash}", func(r chi.Router) {
		r.Get("/notes", h.ListNotes)
		r.Get("/notes/{id}", h.ResolveNote)
		r.Get("/count", h.CountNotes)
		r.Get("/media/*", h.ServeMedia)
	})

	if diagHandler != nil {
		r.Get("/diagnostics", diagHandler.ServeHTTP)
	}

	return r
}
