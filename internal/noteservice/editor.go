package noteservice

import (
	"context"
	"fmt"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
)

// Candidates returns every entity as an autocomplete candidate.
func (s *Service) Candidates(ctx context.Context) ([]mention.Candidate, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	return nonNilSlice(dir.Candidates()), nil
}

// Suggest returns candidates of type t whose name contains q, ignoring case.
// An empty q returns every candidate of the type.
func (s *Service) Suggest(ctx context.Context, t mention.Type, q string) ([]mention.Candidate, error) {
	if !models.ValidEntityType(t) {
		return nil, fmt.Errorf("noteservice: entity type %q: %w", t, apperr.ErrInvalid)
	}
	dir, err := s.Directory(ctx)
	if err != nil {
		return nil, err
	}
	trig := mention.Trigger{Kind: mention.Active, Type: t, Term: q}
	return nonNilSlice(dir.Filter(trig)), nil
}

// ExtractMentions builds the mention index of text against the directory.
func (s *Service) ExtractMentions(ctx context.Context, text string) (mention.Index, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return mention.Index{}, err
	}
	return s.reg.Extract(text, dir), nil
}

// Reduce applies one editor action to state against the current directory.
func (s *Service) Reduce(ctx context.Context, state mention.State, act mention.Action) (mention.State, error) {
	dir, err := s.Directory(ctx)
	if err != nil {
		return state, err
	}
	return s.reg.Reduce(dir, state, act), nil
}
