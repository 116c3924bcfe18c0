package mention

// DisplayCap is the number of mentions per type shown on a note card.
const DisplayCap = 3

// Summary is the truncated view of an Index used by note listings.
type Summary struct {
	Persons []Mention `json:"persons"`
	Places  []Mention `json:"places"`
	Events  []Mention `json:"events"`
	Total   int       `json:"total"`
	// More is the "+N more" count: Total minus cap when Total exceeds cap.
	More int `json:"more"`
}

// Summarize truncates each type's sequence to limit and computes the overflow
// count against the total across all types. limit <= 0 uses DisplayCap.
func Summarize(x Index, limit int) Summary {
	if limit <= 0 {
		limit = DisplayCap
	}
	s := Summary{
		Persons: head(x.Persons, limit),
		Places:  head(x.Places, limit),
		Events:  head(x.Events, limit),
		Total:   x.Len(),
	}
	if s.Total > limit {
		s.More = s.Total - limit
	}
	return s
}

func head(ms []Mention, n int) []Mention {
	if len(ms) > n {
		ms = ms[:n]
	}
	out := make([]Mention, len(ms))
	copy(out, ms)
	return out
}
