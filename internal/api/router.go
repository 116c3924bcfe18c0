package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/starford/almanac/internal/noteservice"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(svc *noteservice.Service, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(svc)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Notes. Sub-resources (/html, /pin, /archive, /move, /trash, /restore)
	// follow the .md path.
	r.Get("/notes", h.ListNotes)
	r.Post("/notes", h.CreateNote)
	r.Get("/notes/*", h.GetNote)
	r.Put("/notes/*", h.UpdateNote)
	r.Post("/notes/*", h.NoteAction)
	r.Delete("/notes/*", h.DeleteNote)
	r.Delete("/trash", h.EmptyTrash)

	// Entity directory.
	r.Route("/entities", func(r chi.Router) {
		r.Get("/", h.ListEntities)
		r.Post("/", h.CreateEntity)
		r.Get("/{id}", h.GetEntity)
		r.Put("/{id}", h.UpdateEntity)
		r.Delete("/{id}", h.DeleteEntity)
	})

	// Mentions and the editor state machine.
	r.Get("/candidates", h.Candidates)
	r.Get("/suggest", h.Suggest)
	r.Post("/mentions/extract", h.ExtractMentions)
	r.Get("/mentions/notes", h.NotesMentioning)
	r.Post("/editor/reduce", h.Reduce)

	r.Get("/search", h.Search)
	r.Get("/graph", h.Graph)
	r.Route("/relations", func(r chi.Router) {
		r.Get("/path", h.FindPath)
		r.Get("/paths", h.FindAllPaths)
		r.Get("/analyze", h.AnalyzeRelation)
		r.Get("/common", h.CommonConnections)
		r.Get("/neighbors", h.Neighbors)
		r.Get("/components", h.Components)
		r.Get("/stats", h.RelationStats)
	})

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
