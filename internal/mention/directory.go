package mention

import "strings"

// Candidate is a known entity offered as an autocomplete suggestion.
type Candidate struct {
	ID          string `json:"id"`
	Type        Type   `json:"type"`
	Name        string `json:"name"`
	Slug        string `json:"slug,omitempty"`
	Description string `json:"description,omitempty"`
}

// Token returns the slug written into text when the candidate is committed:
// the candidate's slug when set, otherwise its slugified name.
func (c Candidate) Token() string {
	if c.Slug != "" {
		return c.Slug
	}
	return Slugify(c.Name)
}

type indexedCandidate struct {
	Candidate
	lowerName string
}

// Directory is an immutable snapshot of candidates, indexed by type so that
// filtering one type does not scan the others. A nil *Directory is valid and
// empty.
type Directory struct {
	all    []Candidate
	byType map[Type][]indexedCandidate
	known  map[Type]map[string]struct{}
}

// NewDirectory snapshots cands. Input order is preserved within each type.
func NewDirectory(cands []Candidate) *Directory {
	d := &Directory{
		all:    make([]Candidate, len(cands)),
		byType: make(map[Type][]indexedCandidate),
		known:  make(map[Type]map[string]struct{}),
	}
	copy(d.all, cands)
	for _, c := range cands {
		set := d.known[c.Type]
		if set == nil {
			set = make(map[string]struct{})
			d.known[c.Type] = set
		}
		if c.Name != "" {
			set[strings.ToLower(c.Name)] = struct{}{}
		}
		token := c.Token()
		if token == "" {
			// Nothing to commit, so never suggested.
			continue
		}
		set[strings.ToLower(token)] = struct{}{}
		d.byType[c.Type] = append(d.byType[c.Type], indexedCandidate{
			Candidate: c,
			lowerName: strings.ToLower(c.Name),
		})
	}
	return d
}

// Len returns the number of candidates.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.all)
}

// Candidates returns a copy of the snapshot in original order.
func (d *Directory) Candidates() []Candidate {
	if d == nil {
		return nil
	}
	out := make([]Candidate, len(d.all))
	copy(out, d.all)
	return out
}

// Known reports whether an entity of type t has a name or commit token equal
// to slug, ignoring case.
func (d *Directory) Known(t Type, slug string) bool {
	if d == nil {
		return false
	}
	_, ok := d.known[t][strings.ToLower(slug)]
	return ok
}

// Filter returns the candidates matching an open trigger: same type, name
// containing the search term case-insensitively. Directory order is kept.
// Idle triggers and nil directories yield nothing, and candidates with an
// empty Token are never returned.
func (d *Directory) Filter(t Trigger) []Candidate {
	if d == nil || t.Kind != Active {
		return nil
	}
	term := strings.ToLower(t.Term)
	var out []Candidate
	for _, c := range d.byType[t.Type] {
		if term == "" || strings.Contains(c.lowerName, term) {
			out = append(out, c.Candidate)
		}
	}
	return out
}

// Resolve downgrades an Active trigger with no suggestions to NoMatch so the
// caller can offer to create a new entity.
func Resolve(t Trigger, suggestions int) Trigger {
	if t.Kind == Active && suggestions == 0 {
		t.Kind = NoMatch
	}
	return t
}
