package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
)

// NoteRow represents a row in the notes table plus its mentions.
type NoteRow struct {
	Path      string
	Title     string
	Checksum  string
	Pinned    bool
	Archived  bool
	Trashed   bool
	Mentions  mention.Index
	CreatedAt time.Time
	UpdatedAt time.Time
	// TrashedAt is zero unless Trashed.
	TrashedAt time.Time
}

const noteSelect = `SELECT path, title, checksum, pinned, archived, trashed, trashed_at, created_at, updated_at FROM notes`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanNote(sc rowScanner) (NoteRow, error) {
	var r NoteRow
	var trashedAt sql.NullTime
	err := sc.Scan(&r.Path, &r.Title, &r.Checksum, &r.Pinned, &r.Archived, &r.Trashed, &trashedAt, &r.CreatedAt, &r.UpdatedAt)
	if trashedAt.Valid {
		r.TrashedAt = trashedAt.Time
	}
	return r, err
}

// SearchResult represents one search hit.
type SearchResult struct {
	Path    string `json:"path"`
	Title   string `json:"title"`
	Snippet string `json:"snippet"`
}

// searchLimit bounds a search when the caller passes no limit.
const searchLimit = 20

func scanResults(rows *sql.Rows) ([]SearchResult, error) {
	defer rows.Close()
	var out []SearchResult
	for rows.Next() {
		var r SearchResult
		if err := rows.Scan(&r.Path, &r.Title, &r.Snippet); err != nil {
			return nil, fmt.Errorf("index: scan search result: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// View selects notes by lifecycle state.
type View string

const (
	// ViewActive lists notes that are neither archived nor trashed.
	ViewActive   View = ""
	ViewArchived View = "archived"
	ViewTrash    View = "trash"
	ViewAll      View = "all"
)

var viewClauses = map[View]string{
	ViewActive:   "archived = 0 AND trashed = 0",
	ViewArchived: "archived = 1 AND trashed = 0",
	ViewTrash:    "trashed = 1",
	ViewAll:      "",
}

// ListQuery filters and pages ListNotes.
type ListQuery struct {
	Limit  int
	Offset int
	// Sort is one of "updated_at" (default), "created_at", "title", "path".
	// Pinned notes always come first.
	Sort string
	// Pinned, when non-nil, keeps only notes with that pin state.
	Pinned *bool
	// MentionType and MentionSlug keep only notes mentioning that entity.
	MentionType mention.Type
	MentionSlug string
	View        View
}

var sortColumns = map[string]string{
	"":           "updated_at DESC",
	"updated_at": "updated_at DESC",
	"created_at": "created_at DESC",
	"title":      "title COLLATE NOCASE ASC",
	"path":       "path ASC",
}

// UpsertNote inserts or replaces a note, its FTS entry, and its mentions
// within a transaction. Mention order is stored so the index reads back
// exactly as extracted.
func (db *DB) UpsertNote(n NoteRow, body string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	if n.UpdatedAt.IsZero() {
		n.UpdatedAt = time.Now().UTC()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = n.UpdatedAt
	}

	// created_at is kept from the first insert.
	var trashedAt sql.NullTime
	if n.Trashed {
		trashedAt = sql.NullTime{Time: n.TrashedAt, Valid: !n.TrashedAt.IsZero()}
	}

	_, err = tx.Exec(`
		INSERT INTO notes (path, title, checksum, pinned, archived, trashed, trashed_at, body, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title      = excluded.title,
			checksum   = excluded.checksum,
			pinned     = excluded.pinned,
			archived   = excluded.archived,
			trashed    = excluded.trashed,
			trashed_at = excluded.trashed_at,
			body       = excluded.body,
			updated_at = excluded.updated_at
	`, n.Path, n.Title, n.Checksum, n.Pinned, n.Archived, n.Trashed, trashedAt, body, n.CreatedAt, n.UpdatedAt)
	if err != nil {
		return fmt.Errorf("index: upsert note: %w", err)
	}

	if err := ftsUpsert(tx, n.Path, n.Title, body, mentionText(n.Mentions)); err != nil {
		return err
	}

	if _, err := tx.Exec(`DELETE FROM mentions WHERE note_path = ?`, n.Path); err != nil {
		return fmt.Errorf("index: clear mentions: %w", err)
	}
	all := n.Mentions.All()
	if len(all) > 0 {
		stmt, err := tx.Prepare(`INSERT INTO mentions (note_path, position, type, slug, is_new) VALUES (?, ?, ?, ?, ?)`)
		if err != nil {
			return fmt.Errorf("index: prepare mention insert: %w", err)
		}
		defer stmt.Close()
		for i, m := range all {
			if _, err := stmt.Exec(n.Path, i, string(m.Type), m.Slug, m.IsNew); err != nil {
				return fmt.Errorf("index: insert mention: %w", err)
			}
		}
	}

	return tx.Commit()
}

// DeleteNote removes a note, its FTS entry, and its mentions.
func (db *DB) DeleteNote(path string) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("index: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ftsDelete(tx, path)
	if _, err := tx.Exec(`DELETE FROM mentions WHERE note_path = ?`, path); err != nil {
		return fmt.Errorf("index: delete mentions: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM notes WHERE path = ?`, path); err != nil {
		return fmt.Errorf("index: delete note: %w", err)
	}
	return tx.Commit()
}

// GetChecksum returns the stored checksum for a note, or empty string if not found.
func (db *DB) GetChecksum(path string) (string, error) {
	var cs string
	err := db.conn.QueryRow(`SELECT checksum FROM notes WHERE path = ?`, path).Scan(&cs)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("index: get checksum: %w", err)
	}
	return cs, nil
}

// GetNote returns a single indexed note with its mentions.
func (db *DB) GetNote(path string) (*NoteRow, error) {
	r, err := scanNote(db.conn.QueryRow(noteSelect+` WHERE path = ?`, path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: get note: %w", err)
	}
	byPath, err := db.mentionsFor([]string{path})
	if err != nil {
		return nil, err
	}
	r.Mentions = byPath[path]
	return &r, nil
}

// ListNotes returns one page of notes, pinned first, and the total count
// matching the filters. The zero View hides archived and trashed notes.
func (db *DB) ListNotes(q ListQuery) ([]NoteRow, int, error) {
	order, ok := sortColumns[q.Sort]
	if !ok {
		return nil, 0, fmt.Errorf("index: unknown sort %q: %w", q.Sort, apperr.ErrInvalid)
	}
	if q.Limit <= 0 {
		q.Limit = 50
	}
	if q.Offset < 0 {
		q.Offset = 0
	}

	view, ok := viewClauses[q.View]
	if !ok {
		return nil, 0, fmt.Errorf("index: unknown view %q: %w", q.View, apperr.ErrInvalid)
	}

	var where []string
	var args []any
	if view != "" {
		where = append(where, view)
	}
	if q.Pinned != nil {
		where = append(where, "pinned = ?")
		args = append(args, *q.Pinned)
	}
	if q.MentionSlug != "" {
		where = append(where, `path IN (SELECT note_path FROM mentions WHERE type = ? AND slug = ? COLLATE NOCASE)`)
		args = append(args, string(q.MentionType), q.MentionSlug)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM notes`+clause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("index: count notes: %w", err)
	}

	rows, err := db.conn.Query(noteSelect+clause+`
		ORDER BY pinned DESC, `+order+`
		LIMIT ? OFFSET ?`, append(args, q.Limit, q.Offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("index: list notes: %w", err)
	}
	defer rows.Close()

	var out []NoteRow
	var paths []string
	for rows.Next() {
		r, err := scanNote(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
		paths = append(paths, r.Path)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	byPath, err := db.mentionsFor(paths)
	if err != nil {
		return nil, 0, err
	}
	for i := range out {
		out[i].Mentions = byPath[out[i].Path]
	}
	return out, total, nil
}

// mentionsFor loads the mention index of each path. Every requested path gets
// an index, empty when it has no mentions.
func (db *DB) mentionsFor(paths []string) (map[string]mention.Index, error) {
	out := make(map[string]mention.Index, len(paths))
	if len(paths) == 0 {
		return out, nil
	}
	args := make([]any, len(paths))
	for i, p := range paths {
		args[i] = p
		out[p] = mention.NewIndex()
	}
	rows, err := db.conn.Query(`
		SELECT note_path, type, slug, is_new FROM mentions
		WHERE note_path IN (?`+strings.Repeat(",?", len(paths)-1)+`)
		ORDER BY note_path, position`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: load mentions: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var path, typ string
		var m mention.Mention
		if err := rows.Scan(&path, &typ, &m.Slug, &m.IsNew); err != nil {
			return nil, err
		}
		m.Type = mention.Type(typ)
		idx := out[path]
		idx.Add(m)
		out[path] = idx
	}
	return out, rows.Err()
}

// NotesMentioning returns the paths of notes that mention slug of type t,
// ignoring case.
func (db *DB) NotesMentioning(t mention.Type, slug string) ([]string, error) {
	rows, err := db.conn.Query(`
		SELECT DISTINCT note_path FROM mentions
		WHERE type = ? AND slug = ? COLLATE NOCASE
		ORDER BY note_path`, string(t), slug)
	if err != nil {
		return nil, fmt.Errorf("index: notes mentioning: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// TrashedPaths returns the notes trashed before cutoff, oldest first. A zero
// cutoff returns every trashed note.
func (db *DB) TrashedPaths(cutoff time.Time) ([]string, error) {
	query := `SELECT path FROM notes WHERE trashed = 1`
	var args []any
	if !cutoff.IsZero() {
		query += ` AND trashed_at IS NOT NULL AND trashed_at < ?`
		args = append(args, cutoff)
	}
	rows, err := db.conn.Query(query+` ORDER BY trashed_at, path`, args...)
	if err != nil {
		return nil, fmt.Errorf("index: trashed paths: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// AllChecksums returns path → checksum for every indexed note.
func (db *DB) AllChecksums() (map[string]string, error) {
	rows, err := db.conn.Query(`SELECT path, checksum FROM notes`)
	if err != nil {
		return nil, fmt.Errorf("index: all checksums: %w", err)
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var p, cs string
		if err := rows.Scan(&p, &cs); err != nil {
			return nil, err
		}
		out[p] = cs
	}
	return out, rows.Err()
}

// RefreshMentionFlags recomputes is_new on every stored mention against the
// current entities, so notes indexed before an entity existed stop reporting
// it as new.
func (db *DB) RefreshMentionFlags() error {
	_, err := db.conn.Exec(`
		UPDATE mentions SET is_new = NOT EXISTS (
			SELECT 1 FROM entities e
			WHERE e.type = mentions.type
			  AND (e.slug = mentions.slug COLLATE NOCASE OR e.name = mentions.slug COLLATE NOCASE)
		)`)
	if err != nil {
		return fmt.Errorf("index: refresh mention flags: %w", err)
	}
	return nil
}

func mentionText(x mention.Index) string {
	all := x.All()
	parts := make([]string, len(all))
	for i, m := range all {
		parts[i] = m.Slug
	}
	return strings.Join(parts, " ")
}
