//go:build sqlite_fts5

package index

import (
	"database/sql"
	"fmt"
)

// Column weights for bm25: path, title, body, mentions.
const rankExpr = `bm25(notes_fts, 0.0, 4.0, 1.0, 2.0)`

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS notes_fts USING fts5(
			path UNINDEXED,
			title,
			body,
			mentions,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

// ftsUpsert replaces the note's row; mentions is the space-joined slug list.
func ftsUpsert(tx *sql.Tx, path, title, body, mentions string) error {
	ftsDelete(tx, path)
	if _, err := tx.Exec(
		`INSERT INTO notes_fts (path, title, body, mentions) VALUES (?, ?, ?, ?)`,
		path, title, body, mentions,
	); err != nil {
		return fmt.Errorf("index: fts insert %s: %w", path, err)
	}
	return nil
}

func ftsDelete(tx *sql.Tx, path string) {
	_, _ = tx.Exec(`DELETE FROM notes_fts WHERE path = ?`, path)
}

// Search runs an FTS5 match ranked with title and mention hits weighted
// above body text. Mention slugs are indexed, so "john_doe" finds notes
// that mention @p.john_doe. Trashed notes are skipped.
func (db *DB) Search(query string, limit int) ([]SearchResult, error) {
	if limit <= 0 {
		limit = searchLimit
	}
	rows, err := db.conn.Query(`
		SELECT path, title, snippet(notes_fts, 2, '<mark>', '</mark>', '…', 48)
		FROM notes_fts
		WHERE notes_fts MATCH ?
		  AND path NOT IN (SELECT path FROM notes WHERE trashed = 1)
		ORDER BY `+rankExpr+`
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("index: search %q: %w", query, err)
	}
	return scanResults(rows)
}
