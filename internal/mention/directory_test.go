package mention

import "testing"

func TestFilter_TypeAndTerm(t *testing.T) {
	dir := testDirectory()

	got := dir.Filter(Trigger{Kind: Active, Type: Person, Term: "JO"})
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	// Directory order preserved.
	for i, want := range []string{"1", "2", "3"} {
		if got[i].ID != want {
			t.Errorf("got[%d].ID = %q, want %q", i, got[i].ID, want)
		}
	}

	got = dir.Filter(Trigger{Kind: Active, Type: Person, Term: "anna"})
	if len(got) != 1 || got[0].Name != "Johanna Smith" {
		t.Errorf("substring filter = %+v", got)
	}
}

func TestFilter_EmptyTermMatchesAllOfType(t *testing.T) {
	got := testDirectory().Filter(Trigger{Kind: Active, Type: Place})
	if len(got) != 1 || got[0].Type != Place {
		t.Errorf("got = %+v, want the single place", got)
	}
}

func TestFilter_IdleAndNilDirectory(t *testing.T) {
	if got := testDirectory().Filter(IdleTrigger()); got != nil {
		t.Errorf("idle filter = %+v, want nil", got)
	}
	var dir *Directory
	if got := dir.Filter(Trigger{Kind: Active, Type: Person}); got != nil {
		t.Errorf("nil directory filter = %+v, want nil", got)
	}
	if dir.Len() != 0 || dir.Known(Person, "x") {
		t.Error("nil directory should be empty")
	}
}

func TestFilter_SkipsSluglessCandidates(t *testing.T) {
	dir := NewDirectory([]Candidate{
		{ID: "1", Type: Place, Name: "東京"},
		{ID: "2", Type: Place, Name: "!!!"},
		{ID: "3", Type: Place, Name: "東京", Slug: "tokyo"},
	})
	got := dir.Filter(Trigger{Kind: Active, Type: Place})
	if len(got) != 1 || got[0].ID != "3" {
		t.Errorf("got = %+v, want only the candidate with a slug", got)
	}
	if len(dir.Candidates()) != 3 {
		t.Errorf("snapshot should keep every candidate")
	}
}

func TestKnown_IncludesCommitToken(t *testing.T) {
	dir := NewDirectory([]Candidate{
		{ID: "1", Type: Place, Name: "Central Park"},
		{ID: "2", Type: Person, Name: "Ada", Slug: "countess"},
	})
	for _, tt := range []struct {
		typ  Type
		slug string
		want bool
	}{
		{Place, "central_park", true},
		{Place, "Central_Park", true},
		{Place, "Central Park", true},
		{Person, "countess", true},
		{Person, "ada", true},
		{Person, "central_park", false},
	} {
		if got := dir.Known(tt.typ, tt.slug); got != tt.want {
			t.Errorf("Known(%s, %q) = %v, want %v", tt.typ, tt.slug, got, tt.want)
		}
	}
}

func TestResolve(t *testing.T) {
	active := Trigger{Kind: Active, Type: Event, Anchor: 2}
	if got := Resolve(active, 0); got.Kind != NoMatch || got.Type != Event {
		t.Errorf("Resolve(active, 0) = %+v", got)
	}
	if got := Resolve(active, 2); got.Kind != Active {
		t.Errorf("Resolve(active, 2) = %+v", got)
	}
	if got := Resolve(IdleTrigger(), 0); got.Kind != Idle {
		t.Errorf("Resolve(idle, 0) = %+v", got)
	}
}

func TestDirectory_SnapshotIsolated(t *testing.T) {
	src := []Candidate{{ID: "1", Type: Person, Name: "amy"}}
	dir := NewDirectory(src)
	src[0].Name = "changed"
	if got := dir.Candidates()[0].Name; got != "amy" {
		t.Errorf("snapshot changed with source slice: %q", got)
	}
}

func TestSummarize(t *testing.T) {
	x := Extract("@p.a @p.b @p.c @p.d @pl.x @e.y", nil)
	s := Summarize(x, 0)
	if len(s.Persons) != 3 || len(s.Places) != 1 || len(s.Events) != 1 {
		t.Errorf("truncation = %d/%d/%d", len(s.Persons), len(s.Places), len(s.Events))
	}
	if s.Total != 6 || s.More != 3 {
		t.Errorf("total=%d more=%d, want 6/3", s.Total, s.More)
	}

	small := Summarize(Extract("@p.a @e.b", nil), 0)
	if small.More != 0 || small.Total != 2 {
		t.Errorf("small summary = %+v", small)
	}
}

func TestRegistry_Format(t *testing.T) {
	r := DefaultRegistry()
	if got := r.Format(Place, "home"); got != "@pl.home" {
		t.Errorf("Format = %q", got)
	}
	if got := r.Format("unknown", "x"); got != "" {
		t.Errorf("Format(unknown) = %q, want empty", got)
	}
	ms := r.Markers()
	if ms[0].Code != "pl" {
		t.Errorf("first marker = %q, want longest code pl", ms[0].Code)
	}
}
