package index

import (
	"log/slog"
	"time"

	"github.com/starford/almanac/internal/checksum"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/parser"
	"github.com/starford/almanac/internal/storage"
)

// Sync walks the vault and brings the index up to date:
//   - new/changed files are parsed and upserted
//   - files removed from disk are deleted from the index
func Sync(db *DB, store storage.Provider, logger *slog.Logger) error {
	metas, err := store.List("")
	if err != nil {
		return err
	}

	checksums, err := db.AllChecksums()
	if err != nil {
		return err
	}

	dir, err := db.Directory()
	if err != nil {
		return err
	}

	disk := make(map[string]struct{}, len(metas))
	for _, m := range metas {
		disk[m.Path] = struct{}{}

		if checksums[m.Path] == m.Checksum {
			continue
		}

		data, err := store.Read(m.Path)
		if err != nil {
			logger.Warn("sync: read failed", slog.String("path", m.Path), slog.String("error", err.Error()))
			continue
		}
		if err := indexFile(db, dir, m.Path, data, m.UpdatedAt); err != nil {
			logger.Warn("sync: index failed", slog.String("path", m.Path), slog.String("error", err.Error()))
		} else {
			logger.Debug("sync: indexed", slog.String("path", m.Path))
		}
	}

	// Remove stale entries.
	for p := range checksums {
		if _, ok := disk[p]; !ok {
			if err := db.DeleteNote(p); err != nil {
				logger.Warn("sync: delete failed", slog.String("path", p), slog.String("error", err.Error()))
			} else {
				logger.Debug("sync: removed stale", slog.String("path", p))
			}
		}
	}

	return nil
}

// indexFile parses data and upserts it into the DB. dir decides which
// mentions are new; updated falls back to now when zero.
func indexFile(db *DB, dir *mention.Directory, path string, data []byte, updated time.Time) error {
	res, err := parser.Parse(data, dir)
	if err != nil {
		return err
	}

	row := NoteRow{
		Path:      path,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Pinned:    res.Pinned,
		Archived:  res.Archived,
		Trashed:   res.Trashed,
		TrashedAt: res.TrashedAt,
		Mentions:  res.Mentions,
		CreatedAt: res.Created,
		UpdatedAt: updated,
	}
	return db.UpsertNote(row, res.Body)
}

// IndexFile is indexFile against the current entity directory, for callers
// that have just written a note themselves.
func IndexFile(db *DB, path string, data []byte) error {
	dir, err := db.Directory()
	if err != nil {
		return err
	}
	return indexFile(db, dir, path, data, time.Now().UTC())
}
