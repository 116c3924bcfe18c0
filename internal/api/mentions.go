package api

import (
	"net/http"
	"strconv"

	"github.com/starford/almanac/internal/mention"
)

// Candidates handles GET /api/candidates.
//
//	@Summary		Every entity as an autocomplete candidate
//	@Tags			mentions
//	@Produce		json
//	@Success		200	{object}	CandidatesResponse
//	@Security		BearerAuth
//	@Router			/candidates [get]
func (h *Handler) Candidates(w http.ResponseWriter, r *http.Request) {
	cands, err := h.svc.Candidates(r.Context())
	if err != nil {
		writeError(w, "candidates", err)
		return
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: cands})
}

// Suggest handles GET /api/suggest.
//
//	@Summary		Filter candidates of one type by a search term
//	@Tags			mentions
//	@Produce		json
//	@Param			type	query		string	true	"Entity type"	Enums(person, place, event)
//	@Param			q		query		string	false	"Search term"
//	@Success		200		{object}	CandidatesResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/suggest [get]
func (h *Handler) Suggest(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cands, err := h.svc.Suggest(r.Context(), mention.Type(q.Get("type")), q.Get("q"))
	if err != nil {
		writeError(w, "suggest", err)
		return
	}
	writeJSON(w, http.StatusOK, CandidatesResponse{Candidates: cands})
}

// ExtractMentions handles POST /api/mentions/extract.
//
//	@Summary		Extract the mention index of arbitrary text
//	@Tags			mentions
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ExtractRequest	true	"Text to scan"
//	@Success		200		{object}	ExtractResponse
//	@Security		BearerAuth
//	@Router			/mentions/extract [post]
func (h *Handler) ExtractMentions(w http.ResponseWriter, r *http.Request) {
	var req ExtractRequest
	if !readJSON(w, r, &req) {
		return
	}
	x, err := h.svc.ExtractMentions(r.Context(), req.Text)
	if err != nil {
		writeError(w, "extract mentions", err)
		return
	}
	writeJSON(w, http.StatusOK, ExtractResponse{
		Mentions: x,
		Summary:  mention.Summarize(x, mention.DisplayCap),
	})
}

// NotesMentioning handles GET /api/mentions/notes.
//
//	@Summary		Paths of notes mentioning an entity
//	@Tags			mentions
//	@Produce		json
//	@Param			ref	query		string	true	"Reference, e.g. p.john"
//	@Success		200	{object}	MentionsResponse
//	@Failure		400	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/mentions/notes [get]
func (h *Handler) NotesMentioning(w http.ResponseWriter, r *http.Request) {
	paths, err := h.svc.NotesMentioning(r.Context(), r.URL.Query().Get("ref"))
	if err != nil {
		writeError(w, "notes mentioning", err)
		return
	}
	writeJSON(w, http.StatusOK, MentionsResponse{Notes: paths})
}

// Reduce handles POST /api/editor/reduce.
//
//	@Summary		Apply one editor event to a mention editor state
//	@Tags			editor
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReduceRequest	true	"State and event"
//	@Success		200		{object}	mention.State
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/editor/reduce [post]
func (h *Handler) Reduce(w http.ResponseWriter, r *http.Request) {
	var req ReduceRequest
	if !readJSON(w, r, &req) {
		return
	}
	next, err := h.svc.Reduce(r.Context(), req.state(), req.Event.event())
	if err != nil {
		writeError(w, "reduce", err)
		return
	}
	writeJSON(w, http.StatusOK, next)
}

// queryInt reads an optional integer query parameter; absent means 0. On a
// malformed value it writes a 400 and reports false.
func queryInt(w http.ResponseWriter, r *http.Request, name string) (int, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(name+" must be an integer"))
		return 0, false
	}
	return n, true
}

// FindPath handles GET /api/relations/path.
//
//	@Summary		Shortest co-mention path between two entities
//	@Tags			relations
//	@Produce		json
//	@Param			from		query		string	true	"Start reference, e.g. p.john"
//	@Param			to			query		string	true	"End reference"
//	@Param			max_depth	query		int		false	"Hop limit, 1..10"
//	@Success		200			{object}	relations.Path
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/path [get]
func (h *Handler) FindPath(w http.ResponseWriter, r *http.Request) {
	depth, ok := queryInt(w, r, "max_depth")
	if !ok {
		return
	}
	q := r.URL.Query()
	p, err := h.svc.FindPath(r.Context(), q.Get("from"), q.Get("to"), depth)
	if err != nil {
		writeError(w, "find path", err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// FindAllPaths handles GET /api/relations/paths.
//
//	@Summary		Strongest co-mention paths between two entities
//	@Tags			relations
//	@Produce		json
//	@Param			from		query		string	true	"Start reference, e.g. p.john"
//	@Param			to			query		string	true	"End reference"
//	@Param			max_depth	query		int		false	"Hop limit, 1..10"
//	@Param			limit		query		int		false	"Paths to return, 1..50"
//	@Success		200			{object}	PathsResponse
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/paths [get]
func (h *Handler) FindAllPaths(w http.ResponseWriter, r *http.Request) {
	depth, ok := queryInt(w, r, "max_depth")
	if !ok {
		return
	}
	limit, ok := queryInt(w, r, "limit")
	if !ok {
		return
	}
	q := r.URL.Query()
	paths, err := h.svc.FindAllPaths(r.Context(), q.Get("from"), q.Get("to"), depth, limit)
	if err != nil {
		writeError(w, "find paths", err)
		return
	}
	writeJSON(w, http.StatusOK, PathsResponse{Paths: nonNil(paths)})
}

// AnalyzeRelation handles GET /api/relations/analyze.
//
//	@Summary		Everything known about how two entities connect
//	@Tags			relations
//	@Produce		json
//	@Param			from		query		string	true	"Start reference, e.g. p.john"
//	@Param			to			query		string	true	"End reference"
//	@Param			max_depth	query		int		false	"Hop limit, 1..10"
//	@Success		200			{object}	relations.Analysis
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/analyze [get]
func (h *Handler) AnalyzeRelation(w http.ResponseWriter, r *http.Request) {
	depth, ok := queryInt(w, r, "max_depth")
	if !ok {
		return
	}
	q := r.URL.Query()
	a, err := h.svc.AnalyzeRelation(r.Context(), q.Get("from"), q.Get("to"), depth)
	if err != nil {
		writeError(w, "analyze relation", err)
		return
	}
	writeJSON(w, http.StatusOK, a)
}

// CommonConnections handles GET /api/relations/common.
//
//	@Summary		Entities connected to both of two entities
//	@Tags			relations
//	@Produce		json
//	@Param			a		query		string	true	"First reference"
//	@Param			b		query		string	true	"Second reference"
//	@Param			depth	query		int		false	"Hops from each side, 1..5"
//	@Success		200		{object}	CommonResponse
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/common [get]
func (h *Handler) CommonConnections(w http.ResponseWriter, r *http.Request) {
	depth, ok := queryInt(w, r, "depth")
	if !ok {
		return
	}
	q := r.URL.Query()
	common, err := h.svc.CommonConnections(r.Context(), q.Get("a"), q.Get("b"), depth)
	if err != nil {
		writeError(w, "common connections", err)
		return
	}
	writeJSON(w, http.StatusOK, CommonResponse{Common: nonNil(common)})
}

// Components handles GET /api/relations/components.
//
//	@Summary		Groups of connected entities, largest first
//	@Tags			relations
//	@Produce		json
//	@Success		200	{object}	ComponentsResponse
//	@Security		BearerAuth
//	@Router			/relations/components [get]
func (h *Handler) Components(w http.ResponseWriter, r *http.Request) {
	comps, err := h.svc.Components(r.Context())
	if err != nil {
		writeError(w, "components", err)
		return
	}
	writeJSON(w, http.StatusOK, ComponentsResponse{Components: nonNil(comps)})
}

// RelationStats handles GET /api/relations/stats.
//
//	@Summary		Co-mention graph statistics
//	@Tags			relations
//	@Produce		json
//	@Success		200	{object}	relations.Stats
//	@Security		BearerAuth
//	@Router			/relations/stats [get]
func (h *Handler) RelationStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.svc.RelationStats(r.Context())
	if err != nil {
		writeError(w, "relation stats", err)
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Neighbors handles GET /api/relations/neighbors.
//
//	@Summary		Entities mentioned together with one entity
//	@Tags			relations
//	@Produce		json
//	@Param			entity	query		string	true	"Reference, e.g. p.john"
//	@Success		200		{object}	NeighborsResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/relations/neighbors [get]
func (h *Handler) Neighbors(w http.ResponseWriter, r *http.Request) {
	ref, edges, err := h.svc.Neighbors(r.Context(), r.URL.Query().Get("entity"))
	if err != nil {
		writeError(w, "neighbors", err)
		return
	}
	writeJSON(w, http.StatusOK, NeighborsResponse{Entity: ref, Neighbors: nonNil(edges)})
}
