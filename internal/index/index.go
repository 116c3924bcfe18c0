package index

import (
	"time"

	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
)

// NoteIndex defines the interface for note indexing operations.
// Consumers should depend on this interface rather than the concrete *DB type
// to facilitate testing with mocks.
type NoteIndex interface {
	UpsertNote(n NoteRow, body string) error
	DeleteNote(path string) error
	GetChecksum(path string) (string, error)
	GetNote(path string) (*NoteRow, error)
	ListNotes(q ListQuery) ([]NoteRow, int, error)
	Search(query string, limit int) ([]SearchResult, error)
	Graph() ([]GraphNode, []GraphLink, error)
	NotesMentioning(t mention.Type, slug string) ([]string, error)
	MentionedNotes() ([]MentionedNote, error)
	TrashedPaths(cutoff time.Time) ([]string, error)
	AllChecksums() (map[string]string, error)
	RefreshMentionFlags() error
	Close() error
}

// EntityStore defines the entity directory operations.
type EntityStore interface {
	CreateEntity(e models.Entity) (*models.Entity, error)
	UpdateEntity(e models.Entity) (*models.Entity, error)
	DeleteEntity(id string) error
	GetEntity(id string) (*models.Entity, error)
	EntityBySlug(t mention.Type, slug string) (*models.Entity, error)
	ListEntities(t mention.Type, q string) ([]models.Entity, error)
	Directory() (*mention.Directory, error)
}

// Verify *DB satisfies both interfaces at compile time.
var (
	_ NoteIndex   = (*DB)(nil)
	_ EntityStore = (*DB)(nil)
)
