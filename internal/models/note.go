// Package models defines the domain types for Almanac.
package models

import (
	"time"

	"github.com/starford/almanac/internal/mention"
)

// Note is a Markdown file in the vault together with its derived mention index.
// Content is authoritative; Mentions is recomputed from it on every write.
type Note struct {
	ID        string        `json:"id"`
	Title     string        `json:"title,omitempty"`
	Content   string        `json:"content"`
	Mentions  mention.Index `json:"mentions"`
	IsPinned  bool          `json:"is_pinned"`
	Checksum  string        `json:"checksum"`
	CreatedAt time.Time     `json:"created_at"`
	UpdatedAt time.Time     `json:"updated_at"`
}

// NoteMetadata is a lightweight representation returned by vault listings.
type NoteMetadata struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Entity is a person, place, or event that notes can mention.
type Entity struct {
	ID          string       `json:"id"`
	Type        mention.Type `json:"type"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description string       `json:"description,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	UpdatedAt   time.Time    `json:"updated_at"`
}

// Candidate converts the entity into an autocomplete candidate.
func (e Entity) Candidate() mention.Candidate {
	return mention.Candidate{
		ID:          e.ID,
		Type:        e.Type,
		Name:        e.Name,
		Slug:        e.Slug,
		Description: e.Description,
	}
}

// EntityTypes lists the entity types in display order.
var EntityTypes = []mention.Type{mention.Person, mention.Place, mention.Event}

// ValidEntityType reports whether t is one of EntityTypes.
func ValidEntityType(t mention.Type) bool {
	for _, et := range EntityTypes {
		if et == t {
			return true
		}
	}
	return false
}
