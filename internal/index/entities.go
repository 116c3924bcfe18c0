package index

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mattn/go-sqlite3"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
)

const entityColumns = `id, type, name, slug, description, created_at, updated_at`

// entitySlug returns the stored form of e's slug: the given slug or the
// slugified name, lowercased. A result that is empty or not a word run is
// apperr.ErrInvalid.
func entitySlug(e models.Entity) (string, error) {
	slug := strings.ToLower(e.Slug)
	if slug == "" {
		slug = mention.Slugify(e.Name)
	}
	if slug == "" {
		return "", fmt.Errorf("index: entity %q has no slug characters: %w", e.Name, apperr.ErrInvalid)
	}
	for _, c := range slug {
		if !mention.IsWordRune(c) {
			return "", fmt.Errorf("index: entity slug %q: %w", slug, apperr.ErrInvalid)
		}
	}
	return slug, nil
}

// CreateEntity inserts a new entity. An empty ID gets a fresh UUID and an
// empty slug is derived from the name; slugs are stored lowercase. A slug
// already taken within the type returns apperr.ErrAlreadyExists.
func (db *DB) CreateEntity(e models.Entity) (*models.Entity, error) {
	slug, err := entitySlug(e)
	if err != nil {
		return nil, err
	}
	e.Slug = slug
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	e.CreatedAt, e.UpdatedAt = now, now

	_, err = db.conn.Exec(`
		INSERT INTO entities (`+entityColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, e.ID, string(e.Type), e.Name, e.Slug, e.Description, e.CreatedAt, e.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("index: entity %s %q: %w", e.Type, e.Slug, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("index: create entity: %w", err)
	}
	return &e, nil
}

// UpdateEntity replaces name, slug, and description of an existing entity.
// The slug follows the same rules as CreateEntity.
func (db *DB) UpdateEntity(e models.Entity) (*models.Entity, error) {
	slug, err := entitySlug(e)
	if err != nil {
		return nil, err
	}
	cur, err := db.GetEntity(e.ID)
	if err != nil {
		return nil, err
	}
	cur.Name, cur.Slug, cur.Description = e.Name, slug, e.Description
	cur.UpdatedAt = time.Now().UTC()

	_, err = db.conn.Exec(`
		UPDATE entities SET name = ?, slug = ?, description = ?, updated_at = ?
		WHERE id = ?
	`, cur.Name, cur.Slug, cur.Description, cur.UpdatedAt, cur.ID)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("index: entity %s %q: %w", cur.Type, cur.Slug, apperr.ErrAlreadyExists)
		}
		return nil, fmt.Errorf("index: update entity: %w", err)
	}
	return cur, nil
}

// DeleteEntity removes an entity by ID.
func (db *DB) DeleteEntity(id string) error {
	res, err := db.conn.Exec(`DELETE FROM entities WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("index: delete entity: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return apperr.ErrNotFound
	}
	return nil
}

// GetEntity returns an entity by ID.
func (db *DB) GetEntity(id string) (*models.Entity, error) {
	row := db.conn.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE id = ?`, id)
	return scanEntity(row)
}

// EntityBySlug returns the entity of type t whose slug matches, ignoring case.
func (db *DB) EntityBySlug(t mention.Type, slug string) (*models.Entity, error) {
	row := db.conn.QueryRow(`SELECT `+entityColumns+` FROM entities WHERE type = ? AND slug = ? COLLATE NOCASE`, string(t), slug)
	return scanEntity(row)
}

// ListEntities returns entities ordered by type then name. An empty t lists
// every type; a non-empty q keeps entities whose name contains it.
func (db *DB) ListEntities(t mention.Type, q string) ([]models.Entity, error) {
	var where []string
	var args []any
	if t != "" {
		where = append(where, "type = ?")
		args = append(args, string(t))
	}
	if q != "" {
		where = append(where, "name LIKE ?")
		args = append(args, "%"+q+"%")
	}
	query := `SELECT ` + entityColumns + ` FROM entities`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += ` ORDER BY type, name COLLATE NOCASE`

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("index: list entities: %w", err)
	}
	defer rows.Close()

	var out []models.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *e)
	}
	return out, rows.Err()
}

// Directory returns a snapshot of all entities as an autocomplete directory.
func (db *DB) Directory() (*mention.Directory, error) {
	ents, err := db.ListEntities("", "")
	if err != nil {
		return nil, err
	}
	cands := make([]mention.Candidate, len(ents))
	for i, e := range ents {
		cands[i] = e.Candidate()
	}
	return mention.NewDirectory(cands), nil
}

func scanEntity(s rowScanner) (*models.Entity, error) {
	var e models.Entity
	var typ string
	err := s.Scan(&e.ID, &typ, &e.Name, &e.Slug, &e.Description, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperr.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("index: scan entity: %w", err)
	}
	e.Type = mention.Type(typ)
	return &e, nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	return errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique
}
