// Package noteservice coordinates the vault, the index, and the entity
// directory behind the API, MCP, and terminal front ends.
package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync/atomic"
	"time"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/checksum"
	"github.com/starford/almanac/internal/index"
	"github.com/starford/almanac/internal/markdown"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/parser"
	"github.com/starford/almanac/internal/storage"
)

// NoteDetail is the full representation of a note.
type NoteDetail struct {
	Path        string          `json:"path"`
	Title       string          `json:"title"`
	Content     string          `json:"content"`
	Checksum    string          `json:"checksum"`
	Pinned      bool            `json:"is_pinned"`
	Archived    bool            `json:"is_archived"`
	Trashed     bool            `json:"is_trashed"`
	TrashedAt   *time.Time      `json:"trashed_at,omitempty"`
	Frontmatter map[string]any  `json:"frontmatter,omitempty"`
	Mentions    mention.Index   `json:"mentions"`
	Summary     mention.Summary `json:"mention_summary"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// NoteListItem is a lightweight item in a list response.
type NoteListItem struct {
	Path      string          `json:"path"`
	Title     string          `json:"title"`
	Checksum  string          `json:"checksum"`
	Pinned    bool            `json:"is_pinned"`
	Archived  bool            `json:"is_archived"`
	Trashed   bool            `json:"is_trashed"`
	Summary   mention.Summary `json:"mention_summary"`
	CreatedAt time.Time       `json:"created_at"`
	UpdatedAt time.Time       `json:"updated_at"`
}

// ListOptions filters and pages ListNotes. Mention is a reference such as
// "p.john"; empty means no mention filter. View is "", "archived", "trash"
// or "all"; the default hides archived and trashed notes.
type ListOptions struct {
	Limit   int
	Offset  int
	Sort    string
	Pinned  *bool
	Mention string
	View    string
}

// Notifier receives change notifications. *sse.Broker implements it.
type Notifier interface {
	PublishNoteEvent(kind, path string)
	PublishEntityEvent(kind string, e models.Entity)
}

type nopNotifier struct{}

func (nopNotifier) PublishNoteEvent(string, string)          {}
func (nopNotifier) PublishEntityEvent(string, models.Entity) {}

// Service coordinates storage and index operations.
type Service struct {
	store      storage.Provider
	db         *index.DB
	reg        *mention.Registry
	notify     Notifier
	logger     *slog.Logger
	displayCap int
	autoCreate bool

	// dir caches the entity directory; nil means reload on next use.
	dir atomic.Pointer[mention.Directory]
}

// Option configures a Service.
type Option func(*Service)

// WithNotifier sets where change notifications go.
func WithNotifier(n Notifier) Option {
	return func(s *Service) {
		if n != nil {
			s.notify = n
		}
	}
}

// WithLogger sets the service logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithDisplayCap sets how many mentions per type list summaries show.
func WithDisplayCap(n int) Option {
	return func(s *Service) { s.displayCap = n }
}

// WithAutoCreateEntities makes note writes create placeholder entities for
// mentions that are not in the directory yet.
func WithAutoCreateEntities(on bool) Option {
	return func(s *Service) { s.autoCreate = on }
}

// NewService creates a new note service.
func NewService(store storage.Provider, db *index.DB, opts ...Option) *Service {
	s := &Service{
		store:      store,
		db:         db,
		reg:        mention.DefaultRegistry(),
		notify:     nopNotifier{},
		logger:     slog.Default(),
		displayCap: mention.DisplayCap,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry returns the mention grammar in use.
func (s *Service) Registry() *mention.Registry {
	return s.reg
}

// Directory returns the current entity directory snapshot.
func (s *Service) Directory(_ context.Context) (*mention.Directory, error) {
	if d := s.dir.Load(); d != nil {
		return d, nil
	}
	d, err := s.db.Directory()
	if err != nil {
		return nil, err
	}
	s.dir.Store(d)
	return d, nil
}

func (s *Service) invalidateDirectory() {
	s.dir.Store(nil)
}

// GetNote reads a note from storage and parses it against the directory.
func (s *Service) GetNote(ctx context.Context, p string) (*NoteDetail, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	data, err := s.store.Read(p)
	if err != nil {
		return nil, notFound(err)
	}
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return s.buildNoteDetail(p, data, dir)
}

// CreateNote writes a new note and indexes it.
func (s *Service) CreateNote(ctx context.Context, p string, content []byte) (*NoteDetail, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	if s.store.Exists(p) {
		return nil, apperr.ErrAlreadyExists
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	note, err := s.save(ctx, p, content)
	if err != nil {
		return nil, err
	}
	s.notify.PublishNoteEvent("created", p)
	return note, nil
}

// UpdateNote writes updated content with optimistic concurrency. An empty
// ifMatch skips the check.
func (s *Service) UpdateNote(ctx context.Context, p string, content []byte, ifMatch string) (*NoteDetail, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	existing, err := s.store.Read(p)
	if err != nil {
		return nil, notFound(err)
	}
	if !checksum.Matches(existing, ifMatch) {
		return nil, apperr.ErrConflict
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	note, err := s.save(ctx, p, content)
	if err != nil {
		return nil, err
	}
	s.notify.PublishNoteEvent("updated", p)
	return note, nil
}

// SetPinned rewrites the note's frontmatter pin flag.
func (s *Service) SetPinned(ctx context.Context, p string, pinned bool, ifMatch string) (*NoteDetail, error) {
	return s.rewriteFrontmatter(ctx, p, ifMatch, func(fm map[string]any, res *parser.Result) bool {
		if res.Pinned == pinned {
			return false
		}
		setFlag(fm, parser.KeyPinned, pinned)
		return true
	})
}

// SetArchived moves a note into or out of the archive.
func (s *Service) SetArchived(ctx context.Context, p string, archived bool, ifMatch string) (*NoteDetail, error) {
	return s.rewriteFrontmatter(ctx, p, ifMatch, func(fm map[string]any, res *parser.Result) bool {
		if res.Archived == archived {
			return false
		}
		setFlag(fm, parser.KeyArchived, archived)
		return true
	})
}

// Trash marks a note as deleted. The file stays in the vault until the trash
// is emptied or its retention runs out.
func (s *Service) Trash(ctx context.Context, p string, ifMatch string) (*NoteDetail, error) {
	return s.rewriteFrontmatter(ctx, p, ifMatch, func(fm map[string]any, res *parser.Result) bool {
		if res.Trashed {
			return false
		}
		setFlag(fm, parser.KeyTrashed, true)
		fm[parser.KeyTrashedAt] = time.Now().UTC().Format(time.RFC3339)
		return true
	})
}

// Restore takes a note out of the trash.
func (s *Service) Restore(ctx context.Context, p string, ifMatch string) (*NoteDetail, error) {
	return s.rewriteFrontmatter(ctx, p, ifMatch, func(fm map[string]any, res *parser.Result) bool {
		if !res.Trashed {
			return false
		}
		setFlag(fm, parser.KeyTrashed, false)
		delete(fm, parser.KeyTrashedAt)
		return true
	})
}

// EmptyTrash permanently deletes trashed notes. A positive retention keeps
// notes trashed less than that long ago. It returns the deleted paths.
func (s *Service) EmptyTrash(ctx context.Context, retention time.Duration) ([]string, error) {
	var cutoff time.Time
	if retention > 0 {
		cutoff = time.Now().UTC().Add(-retention)
	}
	paths, err := s.db.TrashedPaths(cutoff)
	if err != nil {
		return nil, err
	}
	deleted := make([]string, 0, len(paths))
	for _, p := range paths {
		if err := ctx.Err(); err != nil {
			return deleted, err
		}
		if err := s.DeleteNote(ctx, p); err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				// Gone from disk already; drop the stale row.
				if err := s.db.DeleteNote(p); err != nil {
					return deleted, err
				}
				continue
			}
			return deleted, err
		}
		deleted = append(deleted, p)
	}
	if len(deleted) > 0 {
		s.logger.Info("trash emptied", slog.Int("notes", len(deleted)))
	}
	return deleted, nil
}

// PurgeTrash empties notes trashed longer than retention ago, once now and
// then every interval, until ctx is done. Failures are logged.
func (s *Service) PurgeTrash(ctx context.Context, retention, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := s.EmptyTrash(ctx, retention); err != nil && ctx.Err() == nil {
			s.logger.Error("trash purge failed", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// rewriteFrontmatter applies edit to the note's frontmatter and saves the
// result. edit reports whether anything changed; when it did not, the note is
// returned untouched.
func (s *Service) rewriteFrontmatter(ctx context.Context, p, ifMatch string, edit func(fm map[string]any, res *parser.Result) bool) (*NoteDetail, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	existing, err := s.store.Read(p)
	if err != nil {
		return nil, notFound(err)
	}
	if !checksum.Matches(existing, ifMatch) {
		return nil, apperr.ErrConflict
	}
	res, err := parser.Parse(existing, nil)
	if err != nil {
		return nil, err
	}

	fm := res.Frontmatter
	if fm == nil {
		fm = make(map[string]any)
	}
	if !edit(fm, res) {
		return s.GetNote(ctx, p)
	}
	content, err := parser.Compose(fm, res.Body)
	if err != nil {
		return nil, err
	}
	if err := s.store.Write(p, content); err != nil {
		return nil, err
	}
	note, err := s.save(ctx, p, content)
	if err != nil {
		return nil, err
	}
	s.notify.PublishNoteEvent("updated", p)
	return note, nil
}

// setFlag stores true flags and drops false ones so untouched notes keep a
// clean frontmatter.
func setFlag(fm map[string]any, key string, on bool) {
	if on {
		fm[key] = true
	} else {
		delete(fm, key)
	}
}

// MoveNote renames a note. The destination must not exist.
func (s *Service) MoveNote(ctx context.Context, from, to string) (*NoteDetail, error) {
	if err := validatePath(from); err != nil {
		return nil, err
	}
	if err := validatePath(to); err != nil {
		return nil, err
	}
	if !s.store.Exists(from) {
		return nil, apperr.ErrNotFound
	}
	if err := s.store.Move(from, to); err != nil {
		if errors.Is(err, os.ErrExist) {
			return nil, apperr.ErrAlreadyExists
		}
		return nil, err
	}
	if err := s.db.DeleteNote(from); err != nil {
		return nil, err
	}
	data, err := s.store.Read(to)
	if err != nil {
		return nil, err
	}
	note, err := s.save(ctx, to, data)
	if err != nil {
		return nil, err
	}
	s.notify.PublishNoteEvent("deleted", from)
	s.notify.PublishNoteEvent("created", to)
	return note, nil
}

// DeleteNote removes a note from storage and index.
func (s *Service) DeleteNote(_ context.Context, p string) error {
	if err := validatePath(p); err != nil {
		return err
	}
	if err := s.store.Delete(p); err != nil {
		return notFound(err)
	}
	if err := s.db.DeleteNote(p); err != nil {
		return err
	}
	s.notify.PublishNoteEvent("deleted", p)
	return nil
}

// ListNotes returns paginated notes, pinned first, with mention summaries.
func (s *Service) ListNotes(_ context.Context, opts ListOptions) ([]NoteListItem, int, error) {
	q := index.ListQuery{
		Limit:  opts.Limit,
		Offset: opts.Offset,
		Sort:   opts.Sort,
		Pinned: opts.Pinned,
		View:   index.View(opts.View),
	}
	if opts.Mention != "" {
		t, slug, ok := s.reg.ParseRef(opts.Mention)
		if !ok {
			return nil, 0, fmt.Errorf("noteservice: mention filter %q: %w", opts.Mention, apperr.ErrInvalid)
		}
		q.MentionType, q.MentionSlug = t, slug
	}

	rows, total, err := s.db.ListNotes(q)
	if err != nil {
		return nil, 0, err
	}
	items := make([]NoteListItem, len(rows))
	for i, r := range rows {
		items[i] = NoteListItem{
			Path:      r.Path,
			Title:     r.Title,
			Checksum:  r.Checksum,
			Pinned:    r.Pinned,
			Archived:  r.Archived,
			Trashed:   r.Trashed,
			Summary:   mention.Summarize(r.Mentions, s.displayCap),
			CreatedAt: r.CreatedAt,
			UpdatedAt: r.UpdatedAt,
		}
	}
	return items, total, nil
}

// Search delegates full-text search to the index.
func (s *Service) Search(_ context.Context, query string, limit int) ([]index.SearchResult, error) {
	return s.db.Search(query, limit)
}

// Graph returns notes and mentioned entities with note→entity links.
func (s *Service) Graph(_ context.Context) ([]index.GraphNode, []index.GraphLink, error) {
	return s.db.Graph()
}

// NotesMentioning returns the paths of notes mentioning ref, e.g. "p.john".
func (s *Service) NotesMentioning(_ context.Context, ref string) ([]string, error) {
	t, slug, ok := s.reg.ParseRef(ref)
	if !ok {
		return nil, fmt.Errorf("noteservice: reference %q: %w", ref, apperr.ErrInvalid)
	}
	paths, err := s.db.NotesMentioning(t, slug)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(paths), nil
}

// RenderNote returns the note body as HTML with mention badges.
func (s *Service) RenderNote(ctx context.Context, p string) ([]byte, error) {
	if err := validatePath(p); err != nil {
		return nil, err
	}
	data, err := s.store.Read(p)
	if err != nil {
		return nil, notFound(err)
	}
	res, err := parser.Parse(data, nil)
	if err != nil {
		return nil, err
	}
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return markdown.Render([]byte(res.Body), dir)
}

// save extracts mentions from freshly written content, creates placeholder
// entities when enabled, and indexes the note.
func (s *Service) save(ctx context.Context, p string, data []byte) (*NoteDetail, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	res, err := parser.Parse(data, dir)
	if err != nil {
		return nil, err
	}

	if s.autoCreate && hasNew(res.Mentions) {
		created, err := s.createPlaceholders(res.Mentions)
		if err != nil {
			return nil, err
		}
		if created > 0 {
			if dir, err = s.Directory(ctx); err != nil {
				return nil, err
			}
			res.Mentions = s.reg.Extract(res.Body, dir)
		}
	}

	if err := s.upsert(p, data, res); err != nil {
		return nil, err
	}
	return s.detail(p, data, res), nil
}

func (s *Service) upsert(p string, data []byte, res *parser.Result) error {
	return s.db.UpsertNote(index.NoteRow{
		Path:      p,
		Title:     res.Title,
		Checksum:  checksum.Sum(data),
		Pinned:    res.Pinned,
		Archived:  res.Archived,
		Trashed:   res.Trashed,
		TrashedAt: res.TrashedAt,
		Mentions:  res.Mentions,
		CreatedAt: res.Created,
		UpdatedAt: time.Now().UTC(),
	}, res.Body)
}

// buildNoteDetail constructs a NoteDetail from raw data without re-reading the file.
func (s *Service) buildNoteDetail(p string, data []byte, dir *mention.Directory) (*NoteDetail, error) {
	res, err := parser.Parse(data, dir)
	if err != nil {
		return nil, err
	}
	return s.detail(p, data, res), nil
}

func (s *Service) detail(p string, data []byte, res *parser.Result) *NoteDetail {
	d := &NoteDetail{
		Path:        p,
		Title:       res.Title,
		Content:     string(data),
		Checksum:    checksum.Sum(data),
		Pinned:      res.Pinned,
		Archived:    res.Archived,
		Trashed:     res.Trashed,
		Frontmatter: res.Frontmatter,
		Mentions:    res.Mentions,
		Summary:     mention.Summarize(res.Mentions, s.displayCap),
		CreatedAt:   res.Created,
	}
	if res.Trashed && !res.TrashedAt.IsZero() {
		at := res.TrashedAt
		d.TrashedAt = &at
	}
	if row, err := s.db.GetNote(p); err == nil {
		d.CreatedAt, d.UpdatedAt = row.CreatedAt, row.UpdatedAt
	}
	return d
}

func hasNew(x mention.Index) bool {
	for _, m := range x.All() {
		if m.IsNew {
			return true
		}
	}
	return false
}

// validatePath rejects paths that are not vault-relative note files.
func validatePath(p string) error {
	if p == "" || strings.HasPrefix(p, "/") || strings.Contains(p, "\\") {
		return fmt.Errorf("noteservice: path %q: %w", p, apperr.ErrInvalid)
	}
	clean := path.Clean(p)
	if clean != p || clean == ".." || strings.HasPrefix(clean, "../") {
		return fmt.Errorf("noteservice: path %q: %w", p, apperr.ErrInvalid)
	}
	if !storage.IsNotePath(p) {
		return fmt.Errorf("noteservice: %q is not a %s file: %w", p, storage.NoteExt, apperr.ErrInvalid)
	}
	return nil
}

func notFound(err error) error {
	if errors.Is(err, os.ErrNotExist) {
		return apperr.ErrNotFound
	}
	return err
}

func nonNilSlice[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
