// Package mention implements the mention-aware editing core: trigger detection,
// suggestion filtering, mention commit, and extraction of typed mentions from
// note text.
//
// A mention is written inline as @<code>.<slug>, where code selects the entity
// type (p = person, pl = place, e = event) and slug is a run of ASCII word
// characters.
package mention

import (
	"regexp"
	"sort"
	"strings"
)

// Type is the kind of entity a mention refers to.
type Type string

// Entity types.
const (
	Person Type = "person"
	Place  Type = "place"
	Event  Type = "event"
)

// Marker binds a text code to an entity type.
type Marker struct {
	Code string
	Type Type
}

// Registry is an ordered set of markers. Markers are kept sorted by descending
// code length so that a longer code sharing a prefix with a shorter one ("pl"
// and "p") always wins.
type Registry struct {
	markers []Marker
	byType  map[Type]Marker
	pattern *regexp.Regexp
	head    *regexp.Regexp
}

// NewRegistry builds a registry from markers. Duplicate codes keep the first.
func NewRegistry(markers ...Marker) *Registry {
	seen := make(map[string]struct{}, len(markers))
	ms := make([]Marker, 0, len(markers))
	for _, m := range markers {
		if m.Code == "" {
			continue
		}
		if _, dup := seen[m.Code]; dup {
			continue
		}
		seen[m.Code] = struct{}{}
		ms = append(ms, m)
	}
	sort.SliceStable(ms, func(i, j int) bool {
		return len(ms[i].Code) > len(ms[j].Code)
	})

	r := &Registry{
		markers: ms,
		byType:  make(map[Type]Marker, len(ms)),
	}
	codes := make([]string, len(ms))
	for i, m := range ms {
		codes[i] = regexp.QuoteMeta(m.Code)
		if _, ok := r.byType[m.Type]; !ok {
			r.byType[m.Type] = m
		}
	}
	alt := strings.Join(codes, "|")
	if alt == "" {
		// Matches nothing.
		alt = `[^\s\S]`
	}
	// RE2 alternation is leftmost-first, so listing longer codes first gives
	// longest-marker precedence at each @.
	r.pattern = regexp.MustCompile(`@(` + alt + `)\.(\w+)`)
	r.head = regexp.MustCompile(`^@(` + alt + `)\.(\w+)`)
	return r
}

var defaultRegistry = NewRegistry(
	Marker{Code: "p", Type: Person},
	Marker{Code: "pl", Type: Place},
	Marker{Code: "e", Type: Event},
)

// DefaultRegistry returns the person/place/event registry.
func DefaultRegistry() *Registry {
	return defaultRegistry
}

// Markers returns markers in match order (longest code first).
func (r *Registry) Markers() []Marker {
	out := make([]Marker, len(r.markers))
	copy(out, r.markers)
	return out
}

// Marker returns the marker registered for t.
func (r *Registry) Marker(t Type) (Marker, bool) {
	m, ok := r.byType[t]
	return m, ok
}

// byCode returns the marker for an exact code.
func (r *Registry) byCode(code string) (Marker, bool) {
	for _, m := range r.markers {
		if m.Code == code {
			return m, true
		}
	}
	return Marker{}, false
}

// Format renders the canonical marker text for a slug of type t, e.g. "@p.john".
// It returns "" for an unregistered type.
func (r *Registry) Format(t Type, slug string) string {
	m, ok := r.byType[t]
	if !ok {
		return ""
	}
	return "@" + m.Code + "." + slug
}

// ParseRef parses a reference of the form "<code>.<slug>" (with or without a
// leading @), as used by the relation finder and API filters.
func (r *Registry) ParseRef(ref string) (Type, string, bool) {
	ref = strings.TrimPrefix(strings.TrimSpace(ref), "@")
	loc := r.head.FindStringSubmatchIndex("@" + ref)
	if loc == nil || loc[1] != len(ref)+1 {
		return "", "", false
	}
	s := "@" + ref
	m, ok := r.byCode(s[loc[2]:loc[3]])
	if !ok {
		return "", "", false
	}
	return m.Type, s[loc[4]:loc[5]], true
}

// MatchPrefix reports whether b starts with a complete mention and returns the
// marker, the slug, and the number of bytes consumed.
func (r *Registry) MatchPrefix(b []byte) (Marker, string, int) {
	loc := r.head.FindSubmatchIndex(b)
	if loc == nil {
		return Marker{}, "", 0
	}
	m, ok := r.byCode(string(b[loc[2]:loc[3]]))
	if !ok {
		return Marker{}, "", 0
	}
	return m, string(b[loc[4]:loc[5]]), loc[1]
}

// IsWordRune reports whether c may appear in a slug.
func IsWordRune(c rune) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') ||
		(c >= 'A' && c <= 'Z') ||
		(c >= '0' && c <= '9')
}

// Slugify turns a display name into a lowercase slug: runs of non-word
// characters collapse into a single underscore, and leading/trailing
// underscores are dropped. "Central Park" becomes "central_park". A name with
// no ASCII word characters yields "".
func Slugify(name string) string {
	var b strings.Builder
	pendingSep := false
	for _, c := range name {
		if !IsWordRune(c) {
			pendingSep = b.Len() > 0
			continue
		}
		if pendingSep {
			b.WriteByte('_')
			pendingSep = false
		}
		if c >= 'A' && c <= 'Z' {
			c += 'a' - 'A'
		}
		b.WriteRune(c)
	}
	return b.String()
}
