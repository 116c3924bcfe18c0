package relations

import (
	"fmt"
	"sort"
	"strings"

	"github.com/starford/almanac/internal/apperr"
)

const (
	// DefaultCommonDepth and MaxCommonDepth bound CommonNeighbors.
	DefaultCommonDepth = 2
	MaxCommonDepth     = 5

	// DefaultPathLimit and MaxPathLimit bound FindAllPaths.
	DefaultPathLimit = 5
	MaxPathLimit     = 50

	// analysisCommon caps the common connections an Analysis carries.
	analysisCommon = 10
	// pathBudget stops the path search on dense graphs.
	pathBudget = 10000
)

// Common is an entity reachable from both sides of a query, with the
// shortest route to it from each.
type Common struct {
	Entity     Ref  `json:"entity"`
	FromFirst  Path `json:"from_first"`
	FromSecond Path `json:"from_second"`
}

// CommonNeighbors returns the entities within depth hops of both a and b,
// nearest first. depth 0 means DefaultCommonDepth; values outside
// 1..MaxCommonDepth are rejected with apperr.ErrInvalid. a and b themselves
// are never listed.
func (g *Graph) CommonNeighbors(a, b Ref, depth int) ([]Common, error) {
	depth, err := checkDepth(depth, DefaultCommonDepth, MaxCommonDepth)
	if err != nil {
		return nil, err
	}
	if err := g.checkKnown(a, b); err != nil {
		return nil, err
	}

	fromA, fromB := g.reach(a, depth), g.reach(b, depth)
	out := []Common{}
	for r := range fromA {
		if r == a || r == b {
			continue
		}
		if _, ok := fromB[r]; !ok {
			continue
		}
		out = append(out, Common{
			Entity:     r,
			FromFirst:  g.unwind(fromA, a, r),
			FromSecond: g.unwind(fromB, b, r),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		hi := out[i].FromFirst.Hops + out[i].FromSecond.Hops
		hj := out[j].FromFirst.Hops + out[j].FromSecond.Hops
		if hi != hj {
			return hi < hj
		}
		wi := out[i].FromFirst.Weight + out[i].FromSecond.Weight
		wj := out[j].FromFirst.Weight + out[j].FromSecond.Weight
		if wi != wj {
			return wi > wj
		}
		return less(out[i].Entity, out[j].Entity)
	})
	return out, nil
}

// Components partitions the entities into groups connected by co-mentions,
// largest first. Members are sorted; equal-sized groups are ordered by their
// first member.
func (g *Graph) Components() [][]Ref {
	parent := make(map[Ref]Ref, len(g.adj))
	var find func(Ref) Ref
	find = func(r Ref) Ref {
		if parent[r] != r {
			parent[r] = find(parent[r])
		}
		return parent[r]
	}
	for r := range g.adj {
		parent[r] = r
	}
	for r, n := range g.adj {
		for to := range n {
			if ra, rb := find(r), find(to); ra != rb {
				parent[ra] = rb
			}
		}
	}

	groups := make(map[Ref][]Ref)
	for r := range g.adj {
		root := find(r)
		groups[root] = append(groups[root], r)
	}
	out := make([][]Ref, 0, len(groups))
	for _, members := range groups {
		sort.Slice(members, func(i, j int) bool { return less(members[i], members[j]) })
		out = append(out, members)
	}
	sort.Slice(out, func(i, j int) bool {
		if len(out[i]) != len(out[j]) {
			return len(out[i]) > len(out[j])
		}
		return less(out[i][0], out[j][0])
	})
	return out
}

// Stats summarises the graph.
type Stats struct {
	Entities         int `json:"entities"`
	Relations        int `json:"relations"`
	Components       int `json:"components"`
	LargestComponent int `json:"largest_component"`
	// Density is Relations over the number of possible pairs, 0 below two
	// entities.
	Density float64      `json:"density"`
	ByKind  map[Kind]int `json:"by_kind"`
}

// Stats counts entities, relations and components.
func (g *Graph) Stats() Stats {
	s := Stats{Entities: len(g.adj), ByKind: make(map[Kind]int)}
	for r, n := range g.adj {
		for to, l := range n {
			if less(r, to) {
				s.Relations++
				s.ByKind[l.dominant()]++
			}
		}
	}
	comps := g.Components()
	s.Components = len(comps)
	if len(comps) > 0 {
		s.LargestComponent = len(comps[0])
	}
	if s.Entities > 1 {
		s.Density = float64(s.Relations) / (float64(s.Entities) * float64(s.Entities-1) / 2)
	}
	return s
}

// FindAllPaths returns up to limit simple paths from one entity to another
// within maxDepth hops, strongest first and shorter first among equals.
// maxDepth 0 means DefaultMaxDepth and limit 0 means DefaultPathLimit. Bad
// bounds yield apperr.ErrInvalid and unknown entities apperr.ErrNotFound;
// unconnected entities give an empty list.
func (g *Graph) FindAllPaths(from, to Ref, maxDepth, limit int) ([]Path, error) {
	maxDepth, err := checkDepth(maxDepth, DefaultMaxDepth, MaxDepthLimit)
	if err != nil {
		return nil, err
	}
	if limit == 0 {
		limit = DefaultPathLimit
	}
	if limit < 1 || limit > MaxPathLimit {
		return nil, fmt.Errorf("relations: limit %d outside 1..%d: %w", limit, MaxPathLimit, apperr.ErrInvalid)
	}
	if err := g.checkKnown(from, to); err != nil {
		return nil, err
	}
	if from == to {
		return []Path{newPath(from, to, []Edge{})}, nil
	}

	out := []Path{}
	onPath := map[Ref]bool{from: true}
	var steps []Edge
	var walk func(cur Ref)
	walk = func(cur Ref) {
		if len(out) >= pathBudget {
			return
		}
		for _, e := range g.Neighbors(cur) {
			if onPath[e.To] {
				continue
			}
			steps = append(steps, e)
			if e.To == to {
				out = append(out, newPath(from, to, append([]Edge(nil), steps...)))
			} else if len(steps) < maxDepth {
				onPath[e.To] = true
				walk(e.To)
				onPath[e.To] = false
			}
			steps = steps[:len(steps)-1]
		}
	}
	walk(from)

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Hops < out[j].Hops
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Confidence grades how closely two entities are connected.
type Confidence string

const (
	ConfidenceNone   Confidence = "none"
	ConfidenceHigh   Confidence = "high"
	ConfidenceMedium Confidence = "medium"
	ConfidenceLow    Confidence = "low"
)

// Analysis is everything known about how two entities connect.
type Analysis struct {
	From     Ref      `json:"from"`
	To       Ref      `json:"to"`
	Direct   bool     `json:"direct"`
	Shortest *Path    `json:"shortest,omitempty"`
	Paths    []Path   `json:"paths"`
	Common   []Common `json:"common"`

	Confidence Confidence `json:"confidence"`
	// Strength is 0..100: the shortest path weight scaled down by its hops.
	Strength int    `json:"strength"`
	Summary  string `json:"summary"`
}

// Analyze combines FindPath, FindAllPaths and CommonNeighbors for a pair.
// Unlike FindPath, a missing path is not an error: the analysis reports
// ConfidenceNone.
func (g *Graph) Analyze(from, to Ref, maxDepth int) (*Analysis, error) {
	maxDepth, err := checkDepth(maxDepth, DefaultMaxDepth, MaxDepthLimit)
	if err != nil {
		return nil, err
	}
	if err := g.checkKnown(from, to); err != nil {
		return nil, err
	}

	a := &Analysis{From: from, To: to, Confidence: ConfidenceNone, Common: []Common{}}
	if from == to {
		a.Shortest = &Path{From: from, To: to, Steps: []Edge{}}
		a.Paths = []Path{*a.Shortest}
		a.Confidence, a.Strength = ConfidenceHigh, 100
		a.Summary = fmt.Sprintf("%s is the same entity", from)
		return a, nil
	}

	prev := g.reach(from, maxDepth)
	if _, ok := prev[to]; ok {
		p := g.unwind(prev, from, to)
		a.Shortest = &p
	}
	if a.Paths, err = g.FindAllPaths(from, to, maxDepth, DefaultPathLimit); err != nil {
		return nil, err
	}
	if a.Common, err = g.CommonNeighbors(from, to, DefaultCommonDepth); err != nil {
		return nil, err
	}
	if len(a.Common) > analysisCommon {
		a.Common = a.Common[:analysisCommon]
	}

	s := a.Shortest
	switch {
	case s == nil:
		a.Summary = fmt.Sprintf("No connection between %s and %s within %d hops", from, to, maxDepth)
		return a, nil
	case s.Hops == 1:
		a.Direct = true
		a.Confidence, a.Strength = ConfidenceHigh, min(100, s.Weight*20)
		a.Summary = fmt.Sprintf("%s and %s are directly related: %s", from, to, s.Steps[0].Relation)
		return a, nil
	case s.Hops == 2:
		a.Confidence, a.Strength = ConfidenceMedium, min(100, s.Weight*15)
	default:
		a.Confidence, a.Strength = ConfidenceLow, min(100, s.Weight*10)
	}
	kinds := make([]string, len(s.Steps))
	for i, e := range s.Steps {
		kinds[i] = string(e.Relation)
	}
	a.Summary = fmt.Sprintf("%s and %s are connected through %d intermediaries: %s",
		from, to, s.Hops-1, strings.Join(kinds, " -> "))
	return a, nil
}
