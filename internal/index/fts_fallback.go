//go:build !sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

// Without FTS5 the notes table already holds the body; nothing to maintain.
func initFTS(*sql.DB) error { return nil }

func ftsUpsert(*sql.Tx, string, string, string, string) error { return nil }

func ftsDelete(*sql.Tx, string) {}

// Search matches title, body or a mentioned slug with LIKE. Pinned notes
// sort first, as in ListNotes. Trashed notes are skipped.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = searchLimit
	}
	pattern := "%" + query + "%"
	rows, err := db.conn.Query(`
		SELECT n.path, n.title, substr(n.body, 1, 200)
		FROM notes n
		WHERE n.trashed = 0
		  AND (n.title LIKE ?1 OR n.body LIKE ?1
		   OR EXISTS (SELECT 1 FROM mentions m WHERE m.note_path = n.path AND m.slug LIKE ?1))
		ORDER BY n.pinned DESC, n.updated_at DESC
		LIMIT ?2`, pattern, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	return scanResults(rows)
}
