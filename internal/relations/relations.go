// Package relations builds the co-mention graph between entities and finds
// how two entities are connected through the notes that mention them.
package relations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
)

const (
	// DefaultMaxDepth is used when FindPath is called with maxDepth 0.
	DefaultMaxDepth = 4
	// MaxDepthLimit is the largest accepted maxDepth.
	MaxDepthLimit = 10
)

// Ref identifies an entity in the graph. Slugs are lowercase.
type Ref struct {
	Type mention.Type `json:"type"`
	Slug string       `json:"slug"`
}

// NewRef normalises slug case.
func NewRef(t mention.Type, slug string) Ref {
	return Ref{Type: t, Slug: strings.ToLower(slug)}
}

// ParseRef accepts "p.john" or "@p.john".
func ParseRef(s string) (Ref, error) {
	t, slug, ok := mention.DefaultRegistry().ParseRef(s)
	if !ok {
		return Ref{}, fmt.Errorf("relations: bad reference %q: %w", s, apperr.ErrInvalid)
	}
	return NewRef(t, slug), nil
}

// String renders the ref in mention syntax, e.g. "@p.john".
func (r Ref) String() string {
	return mention.DefaultRegistry().Format(r.Type, r.Slug)
}

// Edge connects two entities mentioned together. Notes lists the shared
// notes in path order; Weight is len(Notes). Relation is the kind most of
// those notes express.
type Edge struct {
	From     Ref      `json:"from"`
	To       Ref      `json:"to"`
	Relation Kind     `json:"relation"`
	Notes    []string `json:"notes"`
	Weight   int      `json:"weight"`
}

// Path is a connection between two entities. Weight sums the step weights.
type Path struct {
	From   Ref    `json:"from"`
	To     Ref    `json:"to"`
	Steps  []Edge `json:"steps"`
	Hops   int    `json:"hops"`
	Weight int    `json:"weight"`
}

func newPath(from, to Ref, steps []Edge) Path {
	p := Path{From: from, To: to, Steps: steps, Hops: len(steps)}
	for _, s := range steps {
		p.Weight += s.Weight
	}
	return p
}

// Note is one note's contribution to the graph.
type Note struct {
	Path     string
	Body     string
	Mentions []mention.Mention
}

// link is shared by both directions of a pair.
type link struct {
	notes []string
	kinds map[Kind]int
}

// Graph is an undirected co-mention graph. It is immutable once built.
type Graph struct {
	adj map[Ref]map[Ref]*link
}

// Build creates the graph from each note's distinct mentions. Notes are
// applied in path order so shared-note lists are sorted.
func Build(notes []Note) *Graph {
	g := &Graph{adj: make(map[Ref]map[Ref]*link)}

	sorted := make([]Note, len(notes))
	copy(sorted, notes)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Path < sorted[j].Path })

	for _, n := range sorted {
		refs := distinct(n.Mentions)
		for _, r := range refs {
			g.node(r)
		}
		if len(refs) < 2 {
			continue
		}
		words := keywords(n.Body)
		for i := range refs {
			for j := i + 1; j < len(refs); j++ {
				g.link(refs[i], refs[j], n.Path, Classify(refs[i].Type, refs[j].Type, words))
			}
		}
	}
	return g
}

func distinct(ms []mention.Mention) []Ref {
	seen := make(map[Ref]struct{}, len(ms))
	out := make([]Ref, 0, len(ms))
	for _, m := range ms {
		r := NewRef(m.Type, m.Slug)
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func (g *Graph) node(r Ref) map[Ref]*link {
	n, ok := g.adj[r]
	if !ok {
		n = make(map[Ref]*link)
		g.adj[r] = n
	}
	return n
}

func (g *Graph) link(a, b Ref, note string, k Kind) {
	l, ok := g.node(a)[b]
	if !ok {
		l = &link{kinds: make(map[Kind]int)}
		g.node(a)[b] = l
		g.node(b)[a] = l
	}
	l.notes = append(l.notes, note)
	l.kinds[k]++
}

func (g *Graph) edge(from, to Ref) Edge {
	l := g.adj[from][to]
	return Edge{From: from, To: to, Relation: l.dominant(), Notes: l.notes, Weight: len(l.notes)}
}

// Has reports whether r is mentioned in any note.
func (g *Graph) Has(r Ref) bool {
	_, ok := g.adj[r]
	return ok
}

// Len returns the number of entities in the graph.
func (g *Graph) Len() int {
	return len(g.adj)
}

// Neighbors returns the entities mentioned together with r, strongest first.
func (g *Graph) Neighbors(r Ref) []Edge {
	n := g.adj[r]
	out := make([]Edge, 0, len(n))
	for to := range n {
		out = append(out, g.edge(r, to))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return less(out[i].To, out[j].To)
	})
	return out
}

func checkDepth(maxDepth, def, limit int) (int, error) {
	if maxDepth == 0 {
		maxDepth = def
	}
	if maxDepth < 1 || maxDepth > limit {
		return 0, fmt.Errorf("relations: depth %d outside 1..%d: %w", maxDepth, limit, apperr.ErrInvalid)
	}
	return maxDepth, nil
}

func (g *Graph) checkKnown(refs ...Ref) error {
	for _, r := range refs {
		if !g.Has(r) {
			return fmt.Errorf("relations: %s is not mentioned: %w", r, apperr.ErrNotFound)
		}
	}
	return nil
}

// FindPath returns a shortest path from one entity to another within
// maxDepth hops. maxDepth 0 means DefaultMaxDepth; values outside
// 1..MaxDepthLimit are rejected with apperr.ErrInvalid. Unknown entities or
// no path within the limit yield apperr.ErrNotFound.
func (g *Graph) FindPath(from, to Ref, maxDepth int) (*Path, error) {
	maxDepth, err := checkDepth(maxDepth, DefaultMaxDepth, MaxDepthLimit)
	if err != nil {
		return nil, err
	}
	if err := g.checkKnown(from, to); err != nil {
		return nil, err
	}
	prev := g.reach(from, maxDepth)
	if _, ok := prev[to]; !ok {
		return nil, fmt.Errorf("relations: no path from %s to %s within %d hops: %w", from, to, maxDepth, apperr.ErrNotFound)
	}
	p := g.unwind(prev, from, to)
	return &p, nil
}

// reach runs a breadth-first search from start and returns, for every entity
// within maxDepth hops, the entity it was first reached from. start maps to
// itself.
func (g *Graph) reach(start Ref, maxDepth int) map[Ref]Ref {
	type item struct {
		ref   Ref
		depth int
	}
	prev := map[Ref]Ref{start: start}
	queue := []item{{start, 0}}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur.depth >= maxDepth {
			continue
		}
		// Neighbors are visited in a fixed order so results are stable.
		for _, e := range g.Neighbors(cur.ref) {
			if _, seen := prev[e.To]; seen {
				continue
			}
			prev[e.To] = cur.ref
			queue = append(queue, item{e.To, cur.depth + 1})
		}
	}
	return prev
}

func (g *Graph) unwind(prev map[Ref]Ref, from, to Ref) Path {
	steps := []Edge{}
	for cur := to; cur != from; cur = prev[cur] {
		steps = append(steps, g.edge(prev[cur], cur))
	}
	for i, j := 0, len(steps)-1; i < j; i, j = i+1, j-1 {
		steps[i], steps[j] = steps[j], steps[i]
	}
	return newPath(from, to, steps)
}

func less(a, b Ref) bool {
	if a.Type != b.Type {
		return a.Type < b.Type
	}
	return a.Slug < b.Slug
}
