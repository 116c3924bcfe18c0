package relations

import (
	"strings"
	"unicode"

	"github.com/starford/almanac/internal/mention"
)

// Kind names what a co-mention says about two entities.
type Kind string

const (
	Knows     Kind = "knows"
	Attends   Kind = "attends"
	LocatedAt Kind = "located_at"
	StudiesAt Kind = "studies_at"
	WorksAt   Kind = "works_at"
	LivesAt   Kind = "lives_at"
	Owns      Kind = "owns"
	Manages   Kind = "manages"
	Visits    Kind = "visits"
	Related   Kind = "related"
)

// placeKeywords refine a person-place pair. Earlier rules win; a note word
// matches when it starts with one of the keywords.
var placeKeywords = []struct {
	kind  Kind
	words []string
}{
	{StudiesAt, []string{"study", "studies", "student", "education", "school", "university", "college", "learn"}},
	{WorksAt, []string{"work", "employee", "employed", "staff", "job", "position"}},
	{LivesAt, []string{"live", "home", "address", "resident", "reside"}},
	{Owns, []string{"own", "property"}},
	{Manages, []string{"manage", "managing"}},
	{Visits, []string{"visit"}},
}

// priority orders kinds for tie breaks; lower wins.
var priority = map[Kind]int{
	Knows: 0, Attends: 1, LocatedAt: 2, StudiesAt: 3, WorksAt: 4,
	LivesAt: 5, Owns: 6, Manages: 7, Visits: 8, Related: 9,
}

// Classify returns the kind of a co-mention between entities of types a and
// b in a note whose words (see keywords) are given. The result does not
// depend on argument order.
func Classify(a, b mention.Type, words []string) Kind {
	if a > b {
		a, b = b, a
	}
	switch {
	case a == mention.Person && b == mention.Person:
		return Knows
	case a == mention.Event && b == mention.Person:
		return Attends
	case a == mention.Event && b == mention.Place:
		return LocatedAt
	case a == mention.Person && b == mention.Place:
		return refinePlace(words)
	}
	return Related
}

func refinePlace(words []string) Kind {
	for _, rule := range placeKeywords {
		for _, w := range words {
			for _, k := range rule.words {
				if strings.HasPrefix(w, k) {
					return rule.kind
				}
			}
		}
	}
	return Related
}

// keywords lowercases the prose of a note into words. Mention tokens are
// dropped so "@pl.home_office" does not read as the word "home".
func keywords(body string) []string {
	occ := mention.DefaultRegistry().Scan(body)
	var b strings.Builder
	last := 0
	for _, o := range occ {
		b.WriteString(body[last:o.Start])
		b.WriteByte(' ')
		last = o.End
	}
	b.WriteString(body[last:])
	return strings.FieldsFunc(strings.ToLower(b.String()), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func (l *link) dominant() Kind {
	best, n := Related, -1
	for k, c := range l.kinds {
		if c > n || (c == n && priority[k] < priority[best]) {
			best, n = k, c
		}
	}
	return best
}
