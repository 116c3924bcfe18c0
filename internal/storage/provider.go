// Package storage defines the note vault abstraction.
package storage

import "github.com/starford/almanac/internal/models"

// Provider is the interface for vault file operations. All paths are
// slash-separated and relative to the vault root.
type Provider interface {
	// List returns metadata for every note file under dir.
	List(dir string) ([]models.NoteMetadata, error)
	// Read returns the raw bytes of the note at path.
	Read(path string) ([]byte, error)
	// Exists reports whether a note exists at path.
	Exists(path string) bool
	// Write atomically replaces the note at path.
	Write(path string, content []byte) error
	// Delete removes the note at path.
	Delete(path string) error
	// Move renames oldPath to newPath.
	Move(oldPath, newPath string) error
}
