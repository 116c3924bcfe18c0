package mention

// Mention is a typed reference found in note text.
type Mention struct {
	Slug  string `json:"slug"`
	Type  Type   `json:"type"`
	IsNew bool   `json:"is_new"`
}

// Index groups mentions by type, each in order of appearance. Repeated
// mentions of the same slug are kept.
type Index struct {
	Persons []Mention `json:"persons"`
	Places  []Mention `json:"places"`
	Events  []Mention `json:"events"`
}

// NewIndex returns an Index with non-nil, empty sequences.
func NewIndex() Index {
	return Index{Persons: []Mention{}, Places: []Mention{}, Events: []Mention{}}
}

// Add appends m to the sequence for its type. Mentions of unknown types are
// dropped.
func (x *Index) Add(m Mention) {
	switch m.Type {
	case Person:
		x.Persons = append(x.Persons, m)
	case Place:
		x.Places = append(x.Places, m)
	case Event:
		x.Events = append(x.Events, m)
	}
}

// ByType returns the sequence for t.
func (x Index) ByType(t Type) []Mention {
	switch t {
	case Person:
		return x.Persons
	case Place:
		return x.Places
	case Event:
		return x.Events
	}
	return nil
}

// All returns every mention grouped persons, places, events.
func (x Index) All() []Mention {
	out := make([]Mention, 0, x.Len())
	out = append(out, x.Persons...)
	out = append(out, x.Places...)
	return append(out, x.Events...)
}

// Len is the total number of mentions.
func (x Index) Len() int {
	return len(x.Persons) + len(x.Places) + len(x.Events)
}

// Occurrence is a single mention located in text by byte offsets.
type Occurrence struct {
	Marker Marker
	Slug   string
	Start  int
	End    int
}

// Scan finds all non-overlapping mentions in text, left to right.
func (r *Registry) Scan(text string) []Occurrence {
	locs := r.pattern.FindAllStringSubmatchIndex(text, -1)
	out := make([]Occurrence, 0, len(locs))
	for _, loc := range locs {
		m, ok := r.byCode(text[loc[2]:loc[3]])
		if !ok {
			continue
		}
		out = append(out, Occurrence{
			Marker: m,
			Slug:   text[loc[4]:loc[5]],
			Start:  loc[0],
			End:    loc[1],
		})
	}
	return out
}

// Extract builds the mention index for text. IsNew is set for slugs not known
// to dir; when dir is nil every mention has IsNew false, so callers that need
// an authoritative IsNew must pass a loaded directory.
func (r *Registry) Extract(text string, dir *Directory) Index {
	idx := NewIndex()
	for _, o := range r.Scan(text) {
		idx.Add(Mention{
			Slug:  o.Slug,
			Type:  o.Marker.Type,
			IsNew: dir != nil && !dir.Known(o.Marker.Type, o.Slug),
		})
	}
	return idx
}

// Extract runs the default registry's extractor.
func Extract(text string, dir *Directory) Index {
	return defaultRegistry.Extract(text, dir)
}
