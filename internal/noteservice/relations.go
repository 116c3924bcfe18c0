package noteservice

import (
	"context"

	"github.com/starford/almanac/internal/relations"
)

// RelationGraph builds the co-mention graph from the index. Trashed notes do
// not contribute.
func (s *Service) RelationGraph(_ context.Context) (*relations.Graph, error) {
	notes, err := s.db.MentionedNotes()
	if err != nil {
		return nil, err
	}
	in := make([]relations.Note, len(notes))
	for i, n := range notes {
		in[i] = relations.Note{Path: n.Path, Body: n.Body, Mentions: n.Mentions}
	}
	return relations.Build(in), nil
}

// graphFor parses refs and builds the graph in one step.
func (s *Service) graphFor(ctx context.Context, refs ...string) (*relations.Graph, []relations.Ref, error) {
	parsed := make([]relations.Ref, len(refs))
	for i, r := range refs {
		ref, err := relations.ParseRef(r)
		if err != nil {
			return nil, nil, err
		}
		parsed[i] = ref
	}
	g, err := s.RelationGraph(ctx)
	if err != nil {
		return nil, nil, err
	}
	return g, parsed, nil
}

// FindPath returns the shortest co-mention path between two references such
// as "p.john" and "pl.office".
func (s *Service) FindPath(ctx context.Context, from, to string, maxDepth int) (*relations.Path, error) {
	g, refs, err := s.graphFor(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return g.FindPath(refs[0], refs[1], maxDepth)
}

// FindAllPaths returns up to limit paths between two references, strongest
// first.
func (s *Service) FindAllPaths(ctx context.Context, from, to string, maxDepth, limit int) ([]relations.Path, error) {
	g, refs, err := s.graphFor(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return g.FindAllPaths(refs[0], refs[1], maxDepth, limit)
}

// AnalyzeRelation reports every known connection between two references.
func (s *Service) AnalyzeRelation(ctx context.Context, from, to string, maxDepth int) (*relations.Analysis, error) {
	g, refs, err := s.graphFor(ctx, from, to)
	if err != nil {
		return nil, err
	}
	return g.Analyze(refs[0], refs[1], maxDepth)
}

// CommonConnections returns the entities near both references.
func (s *Service) CommonConnections(ctx context.Context, a, b string, depth int) ([]relations.Common, error) {
	g, refs, err := s.graphFor(ctx, a, b)
	if err != nil {
		return nil, err
	}
	return g.CommonNeighbors(refs[0], refs[1], depth)
}

// Neighbors returns the entities mentioned together with ref, strongest first.
func (s *Service) Neighbors(ctx context.Context, ref string) (relations.Ref, []relations.Edge, error) {
	g, refs, err := s.graphFor(ctx, ref)
	if err != nil {
		return relations.Ref{}, nil, err
	}
	return refs[0], g.Neighbors(refs[0]), nil
}

// Components groups the mentioned entities by connectivity, largest first.
func (s *Service) Components(ctx context.Context) ([][]relations.Ref, error) {
	g, err := s.RelationGraph(ctx)
	if err != nil {
		return nil, err
	}
	return g.Components(), nil
}

// RelationStats summarises the co-mention graph.
func (s *Service) RelationStats(ctx context.Context) (relations.Stats, error) {
	g, err := s.RelationGraph(ctx)
	if err != nil {
		return relations.Stats{}, err
	}
	return g.Stats(), nil
}
