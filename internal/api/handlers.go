package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/starford/almanac/internal/noteservice"
	"github.com/starford/almanac/internal/storage"
)

// Handler holds API route handlers.
type Handler struct {
	svc *noteservice.Service
}

// NewHandler creates a new Handler.
func NewHandler(svc *noteservice.Service) *Handler {
	return &Handler{svc: svc}
}

// notePath extracts the note path from the URL (everything after /api/notes/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fnote.md).
func notePath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// splitAction separates a trailing sub-resource from a note path:
// "a/b.md/pin" yields ("a/b.md", "pin").
func splitAction(p string) (string, string) {
	i := strings.LastIndex(p, storage.NoteExt+"/")
	if i < 0 {
		return p, ""
	}
	action := p[i+len(storage.NoteExt)+1:]
	if action == "" || strings.Contains(action, "/") {
		return p, ""
	}
	return p[:i+len(storage.NoteExt)], action
}

// ListNotes handles GET /api/notes.
//
//	@Summary		List notes, pinned first, with mention summaries
//	@Tags			notes
//	@Produce		json
//	@Param			limit	query		int		false	"Page size"
//	@Param			offset	query		int		false	"Page offset"
//	@Param			mention	query		string	false	"Filter by mention, e.g. p.john"
//	@Param			pinned	query		bool	false	"Filter by pin state"
//	@Param			sort	query		string	false	"Sort field"	Enums(updated_at, created_at, title, path)
//	@Param			view	query		string	false	"Lifecycle view"	Enums(archived, trash, all)
//	@Success		200		{object}	NoteListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [get]
func (h *Handler) ListNotes(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := noteservice.ListOptions{
		Sort:    q.Get("sort"),
		Mention: q.Get("mention"),
		View:    q.Get("view"),
	}
	opts.Limit, _ = strconv.Atoi(q.Get("limit"))
	opts.Offset, _ = strconv.Atoi(q.Get("offset"))
	if v := q.Get("pinned"); v != "" {
		pinned, err := strconv.ParseBool(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody("pinned must be a boolean"))
			return
		}
		opts.Pinned = &pinned
	}

	items, total, err := h.svc.ListNotes(r.Context(), opts)
	if err != nil {
		writeError(w, "list notes", err)
		return
	}
	writeJSON(w, http.StatusOK, NoteListResponse{Notes: items, Total: total})
}

// GetNote handles GET /api/notes/*. A trailing /html returns the rendered body.
//
//	@Summary		Get a single note by path
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [get]
func (h *Handler) GetNote(w http.ResponseWriter, r *http.Request) {
	path, action := splitAction(notePath(r))
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	switch action {
	case "":
	case "html":
		h.renderNote(w, r, path)
		return
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	note, err := h.svc.GetNote(r.Context(), path)
	if err != nil {
		writeError(w, "get note", err, slog.String("path", path))
		return
	}
	w.Header().Set("ETag", `"`+note.Checksum+`"`)
	writeJSON(w, http.StatusOK, note)
}

// renderNote handles GET /api/notes/{path}/html.
//
//	@Summary		Render a note body to HTML with mention badges
//	@Tags			notes
//	@Produce		html
//	@Param			path	path	string	true	"Note path"
//	@Success		200		{string}	string
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path}/html [get]
func (h *Handler) renderNote(w http.ResponseWriter, r *http.Request, path string) {
	html, err := h.svc.RenderNote(r.Context(), path)
	if err != nil {
		writeError(w, "render note", err, slog.String("path", path))
		return
	}
	writeHTML(w, http.StatusOK, html)
}

// CreateNote handles POST /api/notes.
//
//	@Summary		Create a new note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateNoteRequest	true	"Note to create"
//	@Success		201		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes [post]
func (h *Handler) CreateNote(w http.ResponseWriter, r *http.Request) {
	var req CreateNoteRequest
	if !readJSON(w, r, &req) {
		return
	}
	note, err := h.svc.CreateNote(r.Context(), req.Path, []byte(req.Content))
	if err != nil {
		writeError(w, "create note", err, slog.String("path", req.Path))
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// UpdateNote handles PUT /api/notes/*. A trailing /pin or /archive sets that
// flag.
//
//	@Summary		Update a note with optimistic concurrency
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string				true	"Note path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body	body		UpdateNoteRequest	true	"Updated content"
//	@Success		200		{object}	NoteDetail
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [put]
func (h *Handler) UpdateNote(w http.ResponseWriter, r *http.Request) {
	path, action := splitAction(notePath(r))
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	switch action {
	case "":
	case "pin":
		h.pinNote(w, r, path)
		return
	case "archive":
		h.archiveNote(w, r, path)
		return
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}

	var req UpdateNoteRequest
	if !readJSON(w, r, &req) {
		return
	}
	note, err := h.svc.UpdateNote(r.Context(), path, []byte(req.Content), ifMatch(r))
	if err != nil {
		writeError(w, "update note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// pinNote handles PUT /api/notes/{path}/pin.
//
//	@Summary		Pin or unpin a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string		true	"Note path"
//	@Param			If-Match	header	string		false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body	body		PinRequest	true	"Pin state"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path}/pin [put]
func (h *Handler) pinNote(w http.ResponseWriter, r *http.Request, path string) {
	var req PinRequest
	if !readJSON(w, r, &req) {
		return
	}
	note, err := h.svc.SetPinned(r.Context(), path, *req.Pinned, ifMatch(r))
	if err != nil {
		writeError(w, "pin note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// archiveNote handles PUT /api/notes/{path}/archive.
//
//	@Summary		Archive or unarchive a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string			true	"Note path"
//	@Param			If-Match	header	string			false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body	body		ArchiveRequest	true	"Archive state"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path}/archive [put]
func (h *Handler) archiveNote(w http.ResponseWriter, r *http.Request, path string) {
	var req ArchiveRequest
	if !readJSON(w, r, &req) {
		return
	}
	note, err := h.svc.SetArchived(r.Context(), path, *req.Archived, ifMatch(r))
	if err != nil {
		writeError(w, "archive note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// NoteAction handles POST /api/notes/{path}/{move,trash,restore}.
func (h *Handler) NoteAction(w http.ResponseWriter, r *http.Request) {
	path, action := splitAction(notePath(r))
	switch {
	case path == "":
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case action == "move":
		h.moveNote(w, r, path)
	case action == "trash":
		h.trashNote(w, r, path)
	case action == "restore":
		h.restoreNote(w, r, path)
	default:
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	}
}

// moveNote handles POST /api/notes/{path}/move.
//
//	@Summary		Rename a note
//	@Tags			notes
//	@Accept			json
//	@Produce		json
//	@Param			path	path		string		true	"Note path"
//	@Param			body	body		MoveRequest	true	"Destination"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path}/move [post]
func (h *Handler) moveNote(w http.ResponseWriter, r *http.Request, path string) {
	var req MoveRequest
	if !readJSON(w, r, &req) {
		return
	}
	note, err := h.svc.MoveNote(r.Context(), path, req.To)
	if err != nil {
		writeError(w, "move note", err, slog.String("path", path), slog.String("to", req.To))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// trashNote handles POST /api/notes/{path}/trash.
//
//	@Summary		Move a note to the trash
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Param			If-Match	header	string	false	"SHA-256 checksum for optimistic concurrency"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path}/trash [post]
func (h *Handler) trashNote(w http.ResponseWriter, r *http.Request, path string) {
	note, err := h.svc.Trash(r.Context(), path, ifMatch(r))
	if err != nil {
		writeError(w, "trash note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// restoreNote handles POST /api/notes/{path}/restore.
//
//	@Summary		Take a note out of the trash
//	@Tags			notes
//	@Produce		json
//	@Param			path	path		string	true	"Note path"
//	@Param			If-Match	header	string	false	"SHA-256 checksum for optimistic concurrency"
//	@Success		200		{object}	NoteDetail
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path}/restore [post]
func (h *Handler) restoreNote(w http.ResponseWriter, r *http.Request, path string) {
	note, err := h.svc.Restore(r.Context(), path, ifMatch(r))
	if err != nil {
		writeError(w, "restore note", err, slog.String("path", path))
		return
	}
	writeJSON(w, http.StatusOK, note)
}

// EmptyTrash handles DELETE /api/trash.
//
//	@Summary		Permanently delete trashed notes
//	@Tags			notes
//	@Produce		json
//	@Param			older_than	query		string	false	"Only notes trashed longer ago, e.g. 720h"
//	@Success		200			{object}	TrashResponse
//	@Failure		400			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/trash [delete]
func (h *Handler) EmptyTrash(w http.ResponseWriter, r *http.Request) {
	var retention time.Duration
	if v := r.URL.Query().Get("older_than"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			writeJSON(w, http.StatusBadRequest, errorBody("older_than must be a non-negative duration"))
			return
		}
		retention = d
	}
	deleted, err := h.svc.EmptyTrash(r.Context(), retention)
	if err != nil {
		writeError(w, "empty trash", err)
		return
	}
	writeJSON(w, http.StatusOK, TrashResponse{Deleted: nonNil(deleted)})
}

// DeleteNote handles DELETE /api/notes/*.
//
//	@Summary		Delete a note
//	@Tags			notes
//	@Param			path	path	string	true	"Note path"
//	@Success		204		"Note deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/notes/{path} [delete]
func (h *Handler) DeleteNote(w http.ResponseWriter, r *http.Request) {
	path := notePath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.svc.DeleteNote(r.Context(), path); err != nil {
		writeError(w, "delete note", err, slog.String("path", path))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across notes and their mentions
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		writeError(w, "search", err, slog.String("query", q))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: nonNil(results)})
}

// Graph handles GET /api/graph.
//
//	@Summary		Get the note/entity mention graph
//	@Tags			graph
//	@Produce		json
//	@Success		200	{object}	GraphResponse
//	@Security		BearerAuth
//	@Router			/graph [get]
func (h *Handler) Graph(w http.ResponseWriter, r *http.Request) {
	nodes, links, err := h.svc.Graph(r.Context())
	if err != nil {
		writeError(w, "graph", err)
		return
	}
	writeJSON(w, http.StatusOK, GraphResponse{Nodes: nonNil(nodes), Links: nonNil(links)})
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
