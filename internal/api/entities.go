package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	validation "github.com/go-ozzo/ozzo-validation/v4"
	"github.com/go-ozzo/ozzo-validation/v4/is"

	"github.com/starford/almanac/internal/mention"
)

// entityID returns the {id} URL parameter, writing a 400 when it is not a UUID.
func entityID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id := chi.URLParam(r, "id")
	if err := validation.Validate(id, validation.Required, is.UUID); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("id: "+err.Error()))
		return "", false
	}
	return id, true
}

// ListEntities handles GET /api/entities.
//
//	@Summary		List directory entities
//	@Tags			entities
//	@Produce		json
//	@Param			type	query		string	false	"Entity type"	Enums(person, place, event)
//	@Param			q		query		string	false	"Name substring"
//	@Success		200		{object}	EntityListResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities [get]
func (h *Handler) ListEntities(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	ents, err := h.svc.ListEntities(r.Context(), mention.Type(q.Get("type")), q.Get("q"))
	if err != nil {
		writeError(w, "list entities", err)
		return
	}
	writeJSON(w, http.StatusOK, EntityListResponse{Entities: ents})
}

// GetEntity handles GET /api/entities/{id}.
//
//	@Summary		Get one entity
//	@Tags			entities
//	@Produce		json
//	@Param			id	path		string	true	"Entity ID"
//	@Success		200	{object}	models.Entity
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id} [get]
func (h *Handler) GetEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	e, err := h.svc.GetEntity(r.Context(), id)
	if err != nil {
		writeError(w, "get entity", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// CreateEntity handles POST /api/entities.
//
//	@Summary		Add an entity to the directory
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			body	body		EntityRequest	true	"Entity to create"
//	@Success		201		{object}	models.Entity
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities [post]
func (h *Handler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	var req EntityRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := req.validate(true); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	e, err := h.svc.CreateEntity(r.Context(), req.entity())
	if err != nil {
		writeError(w, "create entity", err, slog.String("name", req.Name))
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// UpdateEntity handles PUT /api/entities/{id}.
//
//	@Summary		Rename or re-describe an entity
//	@Tags			entities
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Entity ID"
//	@Param			body	body		EntityRequest	true	"New values"
//	@Success		200		{object}	models.Entity
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id} [put]
func (h *Handler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	var req EntityRequest
	if !readJSON(w, r, &req) {
		return
	}
	if err := req.validate(false); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	e := req.entity()
	e.ID = id
	updated, err := h.svc.UpdateEntity(r.Context(), e)
	if err != nil {
		writeError(w, "update entity", err, slog.String("id", id))
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

// DeleteEntity handles DELETE /api/entities/{id}.
//
//	@Summary		Remove an entity from the directory
//	@Tags			entities
//	@Param			id	path	string	true	"Entity ID"
//	@Success		204	"Entity deleted"
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/entities/{id} [delete]
func (h *Handler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	id, ok := entityID(w, r)
	if !ok {
		return
	}
	if err := h.svc.DeleteEntity(r.Context(), id); err != nil {
		writeError(w, "delete entity", err, slog.String("id", id))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
