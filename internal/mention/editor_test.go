package mention

import "testing"

func testDirectory() *Directory {
	return NewDirectory([]Candidate{
		{ID: "1", Type: Person, Name: "john"},
		{ID: "2", Type: Person, Name: "Johanna Smith"},
		{ID: "3", Type: Person, Name: "Joe"},
		{ID: "4", Type: Place, Name: "Office"},
		{ID: "5", Type: Event, Name: "Launch", Slug: "launch_2024"},
	})
}

// typeText simulates typing s at the end of the state's text.
func typeText(dir *Directory, s State, str string) State {
	for _, c := range str {
		text := s.Text + string(c)
		s = Reduce(dir, s, Input{Text: text, Cursor: len([]rune(text))})
	}
	return s
}

func TestReduce_CommitRoundTrip(t *testing.T) {
	dir := NewDirectory([]Candidate{{ID: "1", Type: Person, Name: "john"}})
	s := Reduce(dir, State{}, Input{Text: "Hi ", Cursor: 3})
	s = typeText(dir, s, "@p.")

	if s.Trigger.Kind != Active || s.Trigger.Type != Person {
		t.Fatalf("trigger = %+v, want active person", s.Trigger)
	}
	if len(s.Suggestions) != 1 {
		t.Fatalf("suggestions = %d, want 1", len(s.Suggestions))
	}

	s = Reduce(dir, s, KeyPress{Key: KeyEnter})
	if s.Text != "Hi @p.john" {
		t.Errorf("text = %q, want %q", s.Text, "Hi @p.john")
	}
	if s.Cursor != len("Hi @p.john") {
		t.Errorf("cursor = %d, want %d", s.Cursor, len("Hi @p.john"))
	}
	if s.Trigger.Kind != Idle {
		t.Errorf("trigger = %+v, want idle", s.Trigger)
	}
	if !s.Handled {
		t.Error("enter should be handled by the overlay")
	}
	if len(s.Mentions.Persons) != 1 || s.Mentions.Persons[0].Slug != "john" {
		t.Errorf("mentions = %+v, want one person john", s.Mentions)
	}
	if s.Mentions.Persons[0].IsNew {
		t.Error("committed candidate should not be new")
	}
}

func TestReduce_CommitReplacesSearchTermAndKeepsTail(t *testing.T) {
	dir := testDirectory()
	s := State{Text: "see @pl.of tomorrow", Cursor: 10}
	s = Reduce(dir, s, Refresh{})
	if s.Trigger.Kind != Active || len(s.Suggestions) != 1 {
		t.Fatalf("state = %+v", s)
	}
	s = Reduce(dir, s, KeyPress{Key: KeyEnter})
	if s.Text != "see @pl.office tomorrow" {
		t.Errorf("text = %q", s.Text)
	}
	if s.Cursor != len("see @pl.office") {
		t.Errorf("cursor = %d", s.Cursor)
	}
}

func TestReduce_CommitUsesSlugOrSlugifiedName(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "@e.lau")
	s = Reduce(dir, s, KeyPress{Key: KeyEnter})
	if s.Text != "@e.launch_2024" {
		t.Errorf("text = %q, want slug token", s.Text)
	}

	s = typeText(dir, State{}, "@p.smith")
	s = Reduce(dir, s, KeyPress{Key: KeyEnter})
	if s.Text != "@p.johanna_smith" {
		t.Errorf("text = %q, want slugified name", s.Text)
	}
	if got := Extract(s.Text, dir).Persons; len(got) != 1 || got[0].Slug != "johanna_smith" {
		t.Errorf("extracted = %+v", got)
	}
}

func TestReduce_CommitSluglessCandidateIsKnown(t *testing.T) {
	dir := NewDirectory([]Candidate{{ID: "1", Type: Place, Name: "Central Park"}})
	s := typeText(dir, State{}, "@pl.cen")
	s = Reduce(dir, s, KeyPress{Key: KeyEnter})
	if s.Text != "@pl.central_park" {
		t.Fatalf("text = %q", s.Text)
	}
	got := s.Mentions.Places
	if len(got) != 1 || got[0].Slug != "central_park" || got[0].IsNew {
		t.Errorf("mentions = %+v, want central_park not new", got)
	}
}

func TestReduce_UncommittableCandidateNeverOffered(t *testing.T) {
	dir := NewDirectory([]Candidate{{ID: "1", Type: Place, Name: "東京"}})
	s := typeText(dir, State{}, "@pl.")
	if s.Trigger.Kind != NoMatch || len(s.Suggestions) != 0 {
		t.Fatalf("state = %+v, want no_match without suggestions", s)
	}

	// A stale suggestion list still consumes Enter without editing.
	s.Trigger.Kind = Active
	s.Suggestions = []Candidate{{ID: "1", Type: Place, Name: "東京"}}
	next := Reduce(dir, s, KeyPress{Key: KeyEnter})
	if next.Text != "@pl." || !next.Handled {
		t.Errorf("enter on uncommittable = %+v", next)
	}
}

func TestReduce_ArrowNavigationWraps(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "@p.jo")
	if len(s.Suggestions) != 3 {
		t.Fatalf("suggestions = %d, want 3", len(s.Suggestions))
	}
	if s.Highlight != 0 {
		t.Fatalf("initial highlight = %d", s.Highlight)
	}

	s = Reduce(dir, s, KeyPress{Key: KeyDown})
	s = Reduce(dir, s, KeyPress{Key: KeyDown})
	if s.Highlight != 2 {
		t.Errorf("after two downs highlight = %d, want 2", s.Highlight)
	}
	s = Reduce(dir, s, KeyPress{Key: KeyDown})
	if s.Highlight != 0 {
		t.Errorf("after wrap highlight = %d, want 0", s.Highlight)
	}
	s = Reduce(dir, s, KeyPress{Key: KeyUp})
	if s.Highlight != 2 {
		t.Errorf("up from 0 highlight = %d, want 2", s.Highlight)
	}
	if s.Text != "@p.jo" {
		t.Errorf("navigation mutated text: %q", s.Text)
	}
}

func TestReduce_EscapeCancelsWithoutMutation(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "note for @p.jo")
	s = Reduce(dir, s, MoveCursor{Cursor: 13})
	if !s.Open() {
		t.Fatalf("expected open overlay, got %+v", s.Trigger)
	}
	text, cursor := s.Text, s.Cursor

	s = Reduce(dir, s, KeyPress{Key: KeyEscape})
	if s.Text != text || s.Cursor != cursor {
		t.Errorf("escape mutated text/cursor: %q/%d", s.Text, s.Cursor)
	}
	if s.Trigger.Kind != Idle || len(s.Suggestions) != 0 {
		t.Errorf("after escape trigger = %+v suggestions = %d", s.Trigger, len(s.Suggestions))
	}
	if !s.Handled {
		t.Error("escape should be handled while open")
	}
}

func TestReduce_NoMatch(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "@p.zed")
	if s.Trigger.Kind != NoMatch || s.Trigger.Type != Person {
		t.Fatalf("trigger = %+v, want no_match person", s.Trigger)
	}
	// Enter with nothing to commit is a no-op and falls through to the caller.
	next := Reduce(dir, s, KeyPress{Key: KeyEnter})
	if next.Text != s.Text || next.Handled {
		t.Errorf("enter on no-match = %+v", next)
	}
	next = Reduce(dir, s, KeyPress{Key: KeyEscape})
	if next.Trigger.Kind != Idle {
		t.Errorf("escape on no-match = %+v", next.Trigger)
	}
}

func TestReduce_KeysIgnoredWhenClosed(t *testing.T) {
	s := typeText(nil, State{}, "plain")
	for _, k := range []Key{KeyDown, KeyUp, KeyEnter, KeyEscape} {
		next := Reduce(nil, s, KeyPress{Key: k})
		if next.Handled || next.Text != "plain" {
			t.Errorf("key %s on closed overlay = %+v", k, next)
		}
	}
}

func TestReduce_StaleHighlightClamps(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "@p.jo")
	s.Highlight = 2

	// Directory shrinks under the user.
	smaller := NewDirectory([]Candidate{{ID: "1", Type: Person, Name: "john"}})
	s.Highlight = 7
	s = Reduce(smaller, s, KeyPress{Key: KeyEnter})
	if s.Text != "@p.johanna_smith" && s.Text != "@p.john" && s.Text != "@p.joe" {
		t.Errorf("text = %q, want a clamped commit", s.Text)
	}

	s = typeText(dir, State{}, "@p.jo")
	s = Reduce(smaller, s, Refresh{})
	if len(s.Suggestions) != 1 || s.Highlight != 0 {
		t.Errorf("after refresh suggestions=%d highlight=%d", len(s.Suggestions), s.Highlight)
	}
}

func TestReduce_CursorMovedBeforeAnchorGoesIdle(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "x @p.jo")
	s = Reduce(dir, s, MoveCursor{Cursor: 1})
	if s.Trigger.Kind != Idle {
		t.Errorf("trigger = %+v, want idle", s.Trigger)
	}
}

func TestReduce_DeletingAtGoesIdle(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "x @p.jo")
	s = Reduce(dir, s, Input{Text: "x p.jo", Cursor: 6})
	if s.Trigger.Kind != Idle {
		t.Errorf("trigger = %+v, want idle", s.Trigger)
	}
}

func TestReduce_SelectByIndex(t *testing.T) {
	dir := testDirectory()
	s := typeText(dir, State{}, "@p.jo")
	s = Reduce(dir, s, Select{Index: 2})
	if s.Text != "@p.joe" {
		t.Errorf("text = %q, want @p.joe", s.Text)
	}
	// Out of range selection is ignored.
	s2 := typeText(dir, State{}, "@p.jo")
	if got := Reduce(dir, s2, Select{Index: 9}); got.Text != "@p.jo" {
		t.Errorf("out-of-range select changed text to %q", got.Text)
	}
}

func TestReduce_RefreshPicksUpNewDirectory(t *testing.T) {
	s := typeText(nil, State{}, "@pl.")
	if s.Trigger.Kind != NoMatch {
		t.Fatalf("without directory trigger = %+v, want no_match", s.Trigger)
	}
	s = Reduce(testDirectory(), s, Refresh{})
	if s.Trigger.Kind != Active || len(s.Suggestions) != 1 {
		t.Errorf("after refresh = %+v", s)
	}
}

func TestNewState(t *testing.T) {
	s := NewState("call @p.john", testDirectory())
	if s.Cursor != 12 {
		t.Errorf("cursor = %d, want 12", s.Cursor)
	}
	if len(s.Mentions.Persons) != 1 {
		t.Errorf("mentions = %+v", s.Mentions)
	}
	if !s.Open() {
		t.Errorf("cursor at end of a mention should reopen suggestions, got %+v", s.Trigger)
	}
}
