package api

import (
	"encoding/json"
	"fmt"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/almanac/internal/index"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/noteservice"
	"github.com/starford/almanac/internal/relations"
)

// CreateNoteRequest is the request body for creating a note.
type CreateNoteRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nMet @p.john" validate:"required"`
}

// Validate implements validation.Validatable.
func (r CreateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Path, validation.Required),
		validation.Field(&r.Content, validation.Required),
	)
}

// UpdateNoteRequest is the request body for updating a note.
type UpdateNoteRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// Validate implements validation.Validatable.
func (r UpdateNoteRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Content, validation.Required),
	)
}

// PinRequest is the request body for pinning or unpinning a note.
type PinRequest struct {
	Pinned *bool `json:"pinned" validate:"required"`
}

// Validate implements validation.Validatable.
func (r PinRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Pinned, validation.NotNil),
	)
}

// ArchiveRequest is the request body for archiving or unarchiving a note.
type ArchiveRequest struct {
	Archived *bool `json:"archived" validate:"required"`
}

// Validate implements validation.Validatable.
func (r ArchiveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Archived, validation.NotNil),
	)
}

// MoveRequest is the request body for renaming a note.
type MoveRequest struct {
	To string `json:"to" example:"archive/hello.md" validate:"required"`
}

// Validate implements validation.Validatable.
func (r MoveRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.To, validation.Required),
	)
}

// EntityRequest is the request body for creating or updating an entity.
// Type is ignored on update.
type EntityRequest struct {
	Type        mention.Type `json:"type" example:"person"`
	Name        string       `json:"name" example:"John Doe" validate:"required"`
	Slug        string       `json:"slug,omitempty" example:"john_doe"`
	Description string       `json:"description,omitempty"`
}

func (r EntityRequest) validate(creating bool) error {
	types := make([]any, len(models.EntityTypes))
	for i, t := range models.EntityTypes {
		types[i] = t
	}
	typeRules := []validation.Rule{validation.In(types...)}
	if creating {
		typeRules = append(typeRules, validation.Required)
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Type, typeRules...),
		validation.Field(&r.Name, validation.Required, validation.Length(1, 200),
			validation.When(r.Slug == "", validation.By(sluggableRule))),
		validation.Field(&r.Slug, validation.By(slugRule)),
	)
}

// sluggableRule rejects names that produce no slug, such as "東京", unless
// an explicit slug is given.
func sluggableRule(v any) error {
	s, _ := v.(string)
	if mention.Slugify(s) == "" {
		return fmt.Errorf("must contain a letter or digit, or set slug")
	}
	return nil
}

func slugRule(v any) error {
	s, _ := v.(string)
	for _, c := range s {
		if !mention.IsWordRune(c) {
			return fmt.Errorf("must contain only letters, digits and underscores")
		}
	}
	return nil
}

func (r EntityRequest) entity() models.Entity {
	return models.Entity{Type: r.Type, Name: r.Name, Slug: r.Slug, Description: r.Description}
}

// ExtractRequest is the request body for mention extraction.
type ExtractRequest struct {
	Text string `json:"text" example:"Lunch with @p.amy at @pl.cafe"`
}

// ExtractResponse is the mention index of the submitted text plus its
// display summary.
type ExtractResponse struct {
	Mentions mention.Index   `json:"mentions"`
	Summary  mention.Summary `json:"mention_summary"`
}

// EditorEvent is the wire form of a mention.Action. Type selects the variant:
// "input" uses Text and Cursor, "move" uses Cursor, "key" uses Key, "select"
// uses Index, "refresh" uses nothing.
type EditorEvent struct {
	Type   string      `json:"type" example:"input"`
	Text   string      `json:"text,omitempty"`
	Cursor int         `json:"cursor,omitempty"`
	Key    mention.Key `json:"key,omitempty" example:"enter"`
	Index  int         `json:"index,omitempty"`
}

// Validate implements validation.Validatable.
func (e EditorEvent) Validate() error {
	return validation.ValidateStruct(&e,
		validation.Field(&e.Type, validation.Required, validation.In("input", "move", "key", "select", "refresh")),
		validation.Field(&e.Key, validation.When(e.Type == "key",
			validation.Required,
			validation.In(mention.KeyDown, mention.KeyUp, mention.KeyEnter, mention.KeyEscape),
		)),
		validation.Field(&e.Cursor, validation.Min(0)),
	)
}

func (e EditorEvent) event() mention.Action {
	switch e.Type {
	case "input":
		return mention.Input{Text: e.Text, Cursor: e.Cursor}
	case "move":
		return mention.MoveCursor{Cursor: e.Cursor}
	case "key":
		return mention.KeyPress{Key: e.Key}
	case "select":
		return mention.Select{Index: e.Index}
	}
	return mention.Refresh{}
}

// ReduceRequest carries the editor state and one event. A missing state
// starts from empty text.
type ReduceRequest struct {
	State *mention.State `json:"state"`
	Event EditorEvent    `json:"event"`
}

// Validate implements validation.Validatable.
func (r ReduceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Event),
	)
}

// state returns the submitted state, or an empty one when none was sent.
func (r ReduceRequest) state() mention.State {
	if r.State == nil {
		return mention.State{Trigger: mention.IdleTrigger(), Mentions: mention.NewIndex()}
	}
	return *r.State
}

// NoteDetail is the full note response type (aliased from the domain layer).
type NoteDetail = noteservice.NoteDetail

// NoteListItem is a lightweight item in a list response (aliased from the domain layer).
type NoteListItem = noteservice.NoteListItem

// NoteListResponse wraps paginated note listings.
type NoteListResponse struct {
	Notes []NoteListItem `json:"notes" validate:"required"`
	Total int            `json:"total" example:"42" validate:"required"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Results []index.SearchResult `json:"results" validate:"required"`
}

// GraphResponse wraps the mention graph.
type GraphResponse struct {
	Nodes []index.GraphNode `json:"nodes" validate:"required"`
	Links []index.GraphLink `json:"links" validate:"required"`
}

// EntityListResponse wraps entity listings.
type EntityListResponse struct {
	Entities []models.Entity `json:"entities" validate:"required"`
}

// CandidatesResponse wraps autocomplete candidates.
type CandidatesResponse struct {
	Candidates []mention.Candidate `json:"candidates" validate:"required"`
}

// NeighborsResponse lists the entities co-mentioned with one entity.
type NeighborsResponse struct {
	Entity    relations.Ref    `json:"entity"`
	Neighbors []relations.Edge `json:"neighbors"`
}

// TrashResponse lists the notes an empty-trash request deleted.
type TrashResponse struct {
	Deleted []string `json:"deleted"`
}

// PathsResponse lists connections between two entities.
type PathsResponse struct {
	Paths []relations.Path `json:"paths"`
}

// CommonResponse lists entities connected to both sides of a query.
type CommonResponse struct {
	Common []relations.Common `json:"common"`
}

// ComponentsResponse groups entities by connectivity.
type ComponentsResponse struct {
	Components [][]relations.Ref `json:"components"`
}

// MentionsResponse lists notes mentioning an entity.
type MentionsResponse struct {
	Notes []string `json:"notes"`
}

// decodeJSON decodes a request body into v and validates it when v
// implements validation.Validatable.
func decodeJSON(data []byte, v any) error {
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	if val, ok := v.(validation.Validatable); ok {
		return val.Validate()
	}
	return nil
}
