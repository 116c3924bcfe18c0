package noteservice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
)

// ListEntities returns entities of type t (all types when empty) whose name
// contains q.
func (s *Service) ListEntities(_ context.Context, t mention.Type, q string) ([]models.Entity, error) {
	if t != "" && !models.ValidEntityType(t) {
		return nil, fmt.Errorf("noteservice: entity type %q: %w", t, apperr.ErrInvalid)
	}
	ents, err := s.db.ListEntities(t, q)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(ents), nil
}

// GetEntity returns one entity by ID.
func (s *Service) GetEntity(_ context.Context, id string) (*models.Entity, error) {
	return s.db.GetEntity(id)
}

// CreateEntity adds an entity to the directory.
func (s *Service) CreateEntity(_ context.Context, e models.Entity) (*models.Entity, error) {
	if err := validateEntity(e, true); err != nil {
		return nil, err
	}
	created, err := s.db.CreateEntity(e)
	if err != nil {
		return nil, err
	}
	if err := s.directoryChanged(); err != nil {
		return nil, err
	}
	s.notify.PublishEntityEvent("created", *created)
	return created, nil
}

// UpdateEntity changes an entity's name, slug, or description. Its type is fixed.
func (s *Service) UpdateEntity(_ context.Context, e models.Entity) (*models.Entity, error) {
	if err := validateEntity(e, false); err != nil {
		return nil, err
	}
	updated, err := s.db.UpdateEntity(e)
	if err != nil {
		return nil, err
	}
	if err := s.directoryChanged(); err != nil {
		return nil, err
	}
	s.notify.PublishEntityEvent("updated", *updated)
	return updated, nil
}

// DeleteEntity removes an entity. Notes keep their mention text; the
// mentions become new again.
func (s *Service) DeleteEntity(_ context.Context, id string) error {
	e, err := s.db.GetEntity(id)
	if err != nil {
		return err
	}
	if err := s.db.DeleteEntity(id); err != nil {
		return err
	}
	if err := s.directoryChanged(); err != nil {
		return err
	}
	s.notify.PublishEntityEvent("deleted", *e)
	return nil
}

// directoryChanged drops the cached directory and refreshes stored IsNew flags.
func (s *Service) directoryChanged() error {
	s.invalidateDirectory()
	return s.db.RefreshMentionFlags()
}

// createPlaceholders adds an entity for every new mention in x and returns
// how many were created. A slug taken concurrently is not an error.
func (s *Service) createPlaceholders(x mention.Index) (int, error) {
	seen := make(map[string]struct{})
	created := 0
	for _, m := range x.All() {
		if !m.IsNew {
			continue
		}
		key := string(m.Type) + ":" + strings.ToLower(m.Slug)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}

		e, err := s.db.CreateEntity(models.Entity{
			Type: m.Type,
			Name: PlaceholderName(m.Slug),
			Slug: m.Slug,
		})
		if errors.Is(err, apperr.ErrAlreadyExists) {
			continue
		}
		if err != nil {
			return created, err
		}
		created++
		s.logger.Info("entity auto-created",
			slog.String("type", string(e.Type)),
			slog.String("slug", e.Slug))
		s.notify.PublishEntityEvent("created", *e)
	}
	if created > 0 {
		if err := s.directoryChanged(); err != nil {
			return created, err
		}
	}
	return created, nil
}

// PlaceholderName turns a slug into a display name: underscores become
// spaces and each word is capitalised. "john_doe" becomes "John Doe".
func PlaceholderName(slug string) string {
	words := strings.Fields(strings.ReplaceAll(slug, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func validateEntity(e models.Entity, creating bool) error {
	if creating && !models.ValidEntityType(e.Type) {
		return fmt.Errorf("noteservice: entity type %q: %w", e.Type, apperr.ErrInvalid)
	}
	if !creating && e.ID == "" {
		return fmt.Errorf("noteservice: entity id is required: %w", apperr.ErrInvalid)
	}
	if strings.TrimSpace(e.Name) == "" {
		return fmt.Errorf("noteservice: entity name is required: %w", apperr.ErrInvalid)
	}
	slug := e.Slug
	if slug == "" {
		slug = mention.Slugify(e.Name)
	}
	if slug == "" {
		return fmt.Errorf("noteservice: name %q has no slug characters: %w", e.Name, apperr.ErrInvalid)
	}
	for _, c := range slug {
		if !mention.IsWordRune(c) {
			return fmt.Errorf("noteservice: slug %q: %w", slug, apperr.ErrInvalid)
		}
	}
	return nil
}
