package noteservice

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/checksum"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/relations"
	"github.com/starford/almanac/internal/testutil"
)

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishNoteEvent(kind, path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "note."+kind+":"+path)
}

func (r *recorder) PublishEntityEvent(kind string, e models.Entity) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "entity."+kind+":"+e.Slug)
}

func (r *recorder) has(ev string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == ev {
			return true
		}
	}
	return false
}

func newTestService(t *testing.T, opts ...Option) (*Service, *recorder) {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	rec := &recorder{}
	return NewService(store, db, append([]Option{WithNotifier(rec)}, opts...)...), rec
}

func TestCreateNote_ExtractsMentions(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateEntity(ctx, models.Entity{Type: mention.Person, Name: "John"})

	note, err := svc.CreateNote(ctx, "daily/today.md", []byte("# Today\nMet @p.john and @p.jane at @pl.cafe"))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	if note.Title != "Today" {
		t.Errorf("title = %q", note.Title)
	}
	if len(note.Mentions.Persons) != 2 || note.Mentions.Persons[0].IsNew || !note.Mentions.Persons[1].IsNew {
		t.Errorf("persons = %+v, want john known and jane new", note.Mentions.Persons)
	}
	if note.Summary.Total != 3 {
		t.Errorf("summary total = %d, want 3", note.Summary.Total)
	}
	if !rec.has("note.created:daily/today.md") {
		t.Errorf("events = %v", rec.events)
	}

	if _, err := svc.CreateNote(ctx, "daily/today.md", []byte("again")); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("duplicate create err = %v, want ErrAlreadyExists", err)
	}
}

func TestCreateNote_InvalidPath(t *testing.T) {
	svc, _ := newTestService(t)
	for _, p := range []string{"", "../escape.md", "/abs.md", "notes.txt", "a/./b.md", ".hidden.md"} {
		if _, err := svc.CreateNote(context.Background(), p, []byte("x")); !errors.Is(err, apperr.ErrInvalid) {
			t.Errorf("CreateNote(%q) err = %v, want ErrInvalid", p, err)
		}
	}
}

func TestUpdateNote_OptimisticLock(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	created, _ := svc.CreateNote(ctx, "n.md", []byte("v1 @e.kickoff"))

	if _, err := svc.UpdateNote(ctx, "n.md", []byte("v2"), "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Fatalf("stale update err = %v, want ErrConflict", err)
	}
	updated, err := svc.UpdateNote(ctx, "n.md", []byte("v2 @e.retro"), created.Checksum)
	if err != nil {
		t.Fatalf("UpdateNote: %v", err)
	}
	if updated.Checksum != checksum.Sum([]byte("v2 @e.retro")) {
		t.Errorf("checksum not refreshed")
	}
	if paths, _ := svc.NotesMentioning(ctx, "e.kickoff"); len(paths) != 0 {
		t.Errorf("old mention still indexed: %v", paths)
	}
	if paths, _ := svc.NotesMentioning(ctx, "@e.retro"); len(paths) != 1 {
		t.Errorf("new mention not indexed: %v", paths)
	}

	if _, err := svc.UpdateNote(ctx, "missing.md", []byte("x"), ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing update err = %v, want ErrNotFound", err)
	}
}

func TestSetPinned_RewritesFrontmatter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "a.md", []byte("---\ntitle: A\n---\nbody @p.amy\n"))
	_, _ = svc.CreateNote(ctx, "b.md", []byte("plain body\n"))

	pinned, err := svc.SetPinned(ctx, "b.md", true, "")
	if err != nil {
		t.Fatalf("SetPinned: %v", err)
	}
	if !pinned.Pinned || !strings.Contains(pinned.Content, "pinned: true") || !strings.HasSuffix(pinned.Content, "plain body\n") {
		t.Errorf("content = %q", pinned.Content)
	}

	items, total, err := svc.ListNotes(ctx, ListOptions{Sort: "path"})
	if err != nil || total != 2 {
		t.Fatalf("ListNotes: total=%d err=%v", total, err)
	}
	if items[0].Path != "b.md" || !items[0].Pinned {
		t.Errorf("pinned note should list first: %+v", items)
	}

	unpinned, err := svc.SetPinned(ctx, "b.md", false, pinned.Checksum)
	if err != nil {
		t.Fatalf("unpin: %v", err)
	}
	if unpinned.Pinned || strings.Contains(unpinned.Content, "pinned") {
		t.Errorf("unpinned content = %q", unpinned.Content)
	}
}

func TestListNotes_SummaryAndMentionFilter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "busy.md", []byte("@p.a @p.b @p.c @p.d @pl.x"))
	_, _ = svc.CreateNote(ctx, "quiet.md", []byte("@pl.x"))

	items, total, err := svc.ListNotes(ctx, ListOptions{Mention: "p.c"})
	if err != nil {
		t.Fatalf("ListNotes: %v", err)
	}
	if total != 1 || items[0].Path != "busy.md" {
		t.Fatalf("items = %+v", items)
	}
	sum := items[0].Summary
	if len(sum.Persons) != mention.DisplayCap || sum.Total != 5 || sum.More != 2 {
		t.Errorf("summary = %+v, want 3 persons shown, total 5, 2 more", sum)
	}

	if _, _, err := svc.ListNotes(ctx, ListOptions{Mention: "nonsense"}); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad mention filter err = %v, want ErrInvalid", err)
	}
}

func TestMoveNote(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "old.md", []byte("@p.amy"))
	_, _ = svc.CreateNote(ctx, "taken.md", []byte("x"))

	if _, err := svc.MoveNote(ctx, "old.md", "taken.md"); !errors.Is(err, apperr.ErrAlreadyExists) {
		t.Errorf("move onto existing err = %v", err)
	}
	moved, err := svc.MoveNote(ctx, "old.md", "archive/new.md")
	if err != nil {
		t.Fatalf("MoveNote: %v", err)
	}
	if moved.Path != "archive/new.md" {
		t.Errorf("path = %q", moved.Path)
	}
	paths, _ := svc.NotesMentioning(ctx, "p.amy")
	if len(paths) != 1 || paths[0] != "archive/new.md" {
		t.Errorf("index not moved: %v", paths)
	}
	if !rec.has("note.deleted:old.md") || !rec.has("note.created:archive/new.md") {
		t.Errorf("events = %v", rec.events)
	}
}

func TestDeleteNote(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "gone.md", []byte("@p.amy"))

	if err := svc.DeleteNote(ctx, "gone.md"); err != nil {
		t.Fatalf("DeleteNote: %v", err)
	}
	if _, err := svc.GetNote(ctx, "gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("get after delete err = %v", err)
	}
	if err := svc.DeleteNote(ctx, "gone.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("second delete err = %v", err)
	}
}

func TestEntityChange_RefreshesIsNew(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "n.md", []byte("@pl.office"))

	items, _, _ := svc.ListNotes(ctx, ListOptions{})
	if !items[0].Summary.Places[0].IsNew {
		t.Fatal("precondition: office should be new")
	}

	e, err := svc.CreateEntity(ctx, models.Entity{Type: mention.Place, Name: "Office"})
	if err != nil {
		t.Fatalf("CreateEntity: %v", err)
	}
	items, _, _ = svc.ListNotes(ctx, ListOptions{})
	if items[0].Summary.Places[0].IsNew {
		t.Error("office should be known after entity creation")
	}
	note, _ := svc.GetNote(ctx, "n.md")
	if note.Mentions.Places[0].IsNew {
		t.Error("GetNote should use the refreshed directory")
	}

	if err := svc.DeleteEntity(ctx, e.ID); err != nil {
		t.Fatalf("DeleteEntity: %v", err)
	}
	items, _, _ = svc.ListNotes(ctx, ListOptions{})
	if !items[0].Summary.Places[0].IsNew {
		t.Error("office should be new again after entity deletion")
	}
	if !rec.has("entity.created:Office") || !rec.has("entity.deleted:Office") {
		t.Errorf("events = %v", rec.events)
	}
}

func TestAutoCreateEntities(t *testing.T) {
	svc, rec := newTestService(t, WithAutoCreateEntities(true))
	ctx := context.Background()

	note, err := svc.CreateNote(ctx, "n.md", []byte("@p.john_doe and @p.john_doe at @e.launch_party"))
	if err != nil {
		t.Fatalf("CreateNote: %v", err)
	}
	for _, m := range note.Mentions.All() {
		if m.IsNew {
			t.Errorf("%s should have been auto-created", m.Slug)
		}
	}
	ents, _ := svc.ListEntities(ctx, "", "")
	if len(ents) != 2 {
		t.Fatalf("entities = %+v, want 2", ents)
	}
	if ents[0].Type != mention.Event || ents[0].Name != "Launch Party" {
		t.Errorf("event entity = %+v", ents[0])
	}
	if ents[1].Name != "John Doe" || ents[1].Slug != "john_doe" {
		t.Errorf("person entity = %+v", ents[1])
	}
	if !rec.has("entity.created:john_doe") {
		t.Errorf("events = %v", rec.events)
	}
}

func TestCreateEntity_Validation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	tests := []struct {
		name string
		in   models.Entity
	}{
		{"bad type", models.Entity{Type: "robot", Name: "R2"}},
		{"empty name", models.Entity{Type: mention.Person, Name: "  "}},
		{"bad slug", models.Entity{Type: mention.Person, Name: "Amy", Slug: "amy lee"}},
		{"no slug chars", models.Entity{Type: mention.Place, Name: "!!!"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := svc.CreateEntity(ctx, tt.in); !errors.Is(err, apperr.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSuggestAndReduce(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateEntity(ctx, models.Entity{Type: mention.Person, Name: "John Smith"})
	_, _ = svc.CreateEntity(ctx, models.Entity{Type: mention.Person, Name: "Johanna"})
	_, _ = svc.CreateEntity(ctx, models.Entity{Type: mention.Place, Name: "Johannesburg"})

	got, err := svc.Suggest(ctx, mention.Person, "JOH")
	if err != nil {
		t.Fatalf("Suggest: %v", err)
	}
	if len(got) != 2 {
		t.Errorf("suggestions = %+v, want 2 persons", got)
	}
	if _, err := svc.Suggest(ctx, "robot", ""); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad type err = %v", err)
	}

	st := mention.State{Trigger: mention.IdleTrigger()}
	st, _ = svc.Reduce(ctx, st, mention.Input{Text: "Hi @p.smi", Cursor: 9})
	if st.Trigger.Kind != mention.Active || len(st.Suggestions) != 1 {
		t.Fatalf("state = %+v", st)
	}
	st, _ = svc.Reduce(ctx, st, mention.KeyPress{Key: mention.KeyEnter})
	if st.Text != "Hi @p.john_smith" || st.Cursor != 16 {
		t.Errorf("committed text = %q cursor %d", st.Text, st.Cursor)
	}
	if len(st.Mentions.Persons) != 1 || st.Mentions.Persons[0].IsNew {
		t.Errorf("mentions = %+v", st.Mentions)
	}
}

func TestRenderNote(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "r.md", []byte("---\ntitle: R\n---\nWith @p.amy\n"))

	html, err := svc.RenderNote(ctx, "r.md")
	if err != nil {
		t.Fatalf("RenderNote: %v", err)
	}
	if !strings.Contains(string(html), `data-slug="amy" data-new="true"`) {
		t.Errorf("html = %q", html)
	}
	if strings.Contains(string(html), "title: R") {
		t.Errorf("frontmatter rendered: %q", html)
	}
}

func TestPlaceholderName(t *testing.T) {
	tests := map[string]string{
		"john_doe": "John Doe",
		"office":   "Office",
		"a__b":     "A B",
		"x1":       "X1",
	}
	for in, want := range tests {
		if got := PlaceholderName(in); got != want {
			t.Errorf("PlaceholderName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFindPathAndNeighbors(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "1.md", []byte("@p.john and @p.mary"))
	_, _ = svc.CreateNote(ctx, "2.md", []byte("@p.Mary works at @pl.office"))

	p, err := svc.FindPath(ctx, "p.john", "@pl.office", 0)
	if err != nil {
		t.Fatalf("FindPath: %v", err)
	}
	if p.Hops != 2 {
		t.Errorf("hops = %d, want 2", p.Hops)
	}
	if _, err := svc.FindPath(ctx, "p.john", "pl.office", 1); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("depth 1 err = %v, want ErrNotFound", err)
	}
	if _, err := svc.FindPath(ctx, "john", "pl.office", 4); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad ref err = %v, want ErrInvalid", err)
	}

	_, n, err := svc.Neighbors(ctx, "p.mary")
	if err != nil || len(n) != 2 {
		t.Errorf("neighbors = %+v, %v", n, err)
	}
}

func TestArchiveAndTrash(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "keep.md", []byte("stays"))
	_, _ = svc.CreateNote(ctx, "shelf.md", []byte("---\ntitle: Shelf\n---\nold plans\n"))
	_, _ = svc.CreateNote(ctx, "bin.md", []byte("@p.amy drafts"))

	archived, err := svc.SetArchived(ctx, "shelf.md", true, "")
	if err != nil {
		t.Fatalf("SetArchived: %v", err)
	}
	if !archived.Archived || !strings.Contains(archived.Content, "archived: true") || !strings.Contains(archived.Content, "title: Shelf") {
		t.Errorf("archived content = %q", archived.Content)
	}

	if _, err := svc.Trash(ctx, "bin.md", "stale"); !errors.Is(err, apperr.ErrConflict) {
		t.Errorf("stale trash err = %v, want ErrConflict", err)
	}
	trashed, err := svc.Trash(ctx, "bin.md", "")
	if err != nil {
		t.Fatalf("Trash: %v", err)
	}
	if !trashed.Trashed || trashed.TrashedAt == nil {
		t.Errorf("trashed = %+v", trashed)
	}
	if !rec.has("note.updated:bin.md") {
		t.Errorf("events = %v", rec.events)
	}

	views := map[string][]string{
		"":         {"keep.md"},
		"archived": {"shelf.md"},
		"trash":    {"bin.md"},
	}
	for view, want := range views {
		items, total, err := svc.ListNotes(ctx, ListOptions{View: view, Sort: "path"})
		if err != nil || total != len(want) || len(items) == 0 || items[0].Path != want[0] {
			t.Errorf("view %q = %+v (%d, %v), want %v", view, items, total, err, want)
		}
	}
	if paths, _ := svc.NotesMentioning(ctx, "p.amy"); len(paths) != 1 {
		t.Errorf("trashed notes keep their mentions indexed: %v", paths)
	}
	if hits, _ := svc.Search(ctx, "drafts", 10); len(hits) != 0 {
		t.Errorf("search should skip the trash: %+v", hits)
	}

	restored, err := svc.Restore(ctx, "bin.md", trashed.Checksum)
	if err != nil {
		t.Fatalf("Restore: %v", err)
	}
	if restored.Trashed || strings.Contains(restored.Content, "trashed") {
		t.Errorf("restored content = %q", restored.Content)
	}
	if _, total, _ := svc.ListNotes(ctx, ListOptions{}); total != 2 {
		t.Errorf("active notes after restore = %d, want 2", total)
	}

	again, err := svc.Restore(ctx, "bin.md", "")
	if err != nil || again.Checksum != restored.Checksum {
		t.Errorf("restoring a live note should be a no-op: %v", err)
	}
	if _, err := svc.Trash(ctx, "missing.md", ""); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("missing trash err = %v, want ErrNotFound", err)
	}
}

func TestEmptyTrash(t *testing.T) {
	svc, rec := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "ancient.md", []byte("---\ntrashed: true\ntrashed_at: 2020-01-01T00:00:00Z\n---\nold\n"))
	_, _ = svc.CreateNote(ctx, "recent.md", []byte("fresh"))
	_, _ = svc.CreateNote(ctx, "live.md", []byte("live"))
	if _, err := svc.Trash(ctx, "recent.md", ""); err != nil {
		t.Fatalf("Trash: %v", err)
	}

	deleted, err := svc.EmptyTrash(ctx, 30*24*time.Hour)
	if err != nil {
		t.Fatalf("EmptyTrash: %v", err)
	}
	if len(deleted) != 1 || deleted[0] != "ancient.md" {
		t.Errorf("retention purge = %v, want [ancient.md]", deleted)
	}
	if !rec.has("note.deleted:ancient.md") {
		t.Errorf("events = %v", rec.events)
	}

	deleted, err = svc.EmptyTrash(ctx, 0)
	if err != nil || len(deleted) != 1 || deleted[0] != "recent.md" {
		t.Errorf("empty all = %v, %v; want [recent.md]", deleted, err)
	}
	if _, err := svc.GetNote(ctx, "recent.md"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("purged note still readable: %v", err)
	}
	if _, err := svc.GetNote(ctx, "live.md"); err != nil {
		t.Errorf("live note lost: %v", err)
	}
}

func TestPurgeTrash_RunsUntilCancelled(t *testing.T) {
	svc, _ := newTestService(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, _ = svc.CreateNote(ctx, "ancient.md", []byte("---\ntrashed: true\ntrashed_at: 2020-01-01T00:00:00Z\n---\nold\n"))

	done := make(chan struct{})
	go func() {
		svc.PurgeTrash(ctx, time.Hour, 10*time.Millisecond)
		close(done)
	}()

	deadline := time.Now().Add(5 * time.Second)
	for {
		if _, err := svc.GetNote(context.Background(), "ancient.md"); errors.Is(err, apperr.ErrNotFound) {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("trashed note not purged")
		}
		time.Sleep(10 * time.Millisecond)
	}

	cancel()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("PurgeTrash did not stop")
	}
}

func TestRelationQueries(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	_, _ = svc.CreateNote(ctx, "1.md", []byte("@p.john and @p.mary"))
	_, _ = svc.CreateNote(ctx, "2.md", []byte("@p.Mary works at @pl.office"))
	_, _ = svc.CreateNote(ctx, "3.md", []byte("@p.john visited @pl.office"))
	_, _ = svc.CreateNote(ctx, "4.md", []byte("@e.fair at @pl.barn"))
	gone, _ := svc.CreateNote(ctx, "5.md", []byte("@p.john met @e.fair"))
	if _, err := svc.Trash(ctx, "5.md", gone.Checksum); err != nil {
		t.Fatalf("Trash: %v", err)
	}

	a, err := svc.AnalyzeRelation(ctx, "p.mary", "pl.office", 0)
	if err != nil {
		t.Fatalf("AnalyzeRelation: %v", err)
	}
	if !a.Direct || a.Shortest.Steps[0].Relation != relations.WorksAt {
		t.Errorf("analysis = %+v", a)
	}

	common, err := svc.CommonConnections(ctx, "p.mary", "pl.office", 1)
	if err != nil || len(common) != 1 || common[0].Entity.Slug != "john" {
		t.Errorf("common = %+v, %v; want john", common, err)
	}

	paths, err := svc.FindAllPaths(ctx, "p.john", "pl.office", 0, 0)
	if err != nil || len(paths) != 2 {
		t.Errorf("paths = %+v, %v", paths, err)
	}

	comps, err := svc.Components(ctx)
	if err != nil || len(comps) != 2 || len(comps[0]) != 3 {
		t.Errorf("components = %v, %v; trashed co-mentions must not join them", comps, err)
	}

	stats, err := svc.RelationStats(ctx)
	if err != nil || stats.Entities != 5 || stats.Relations != 4 {
		t.Errorf("stats = %+v, %v", stats, err)
	}

	if _, err := svc.CommonConnections(ctx, "p.john", "nonsense", 0); !errors.Is(err, apperr.ErrInvalid) {
		t.Errorf("bad ref err = %v, want ErrInvalid", err)
	}
}
