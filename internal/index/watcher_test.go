package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/starford/almanac/internal/storage"
)

// watchEnv is a vault on disk plus an index, with a recorder for watcher
// callbacks.
type watchEnv struct {
	t      *testing.T
	vault  string
	store  storage.Provider
	db     *DB
	logger *slog.Logger

	mu     sync.Mutex
	events []string
}

func newWatchEnv(t *testing.T) *watchEnv {
	t.Helper()
	vault := t.TempDir()
	store, err := storage.NewFS(vault)
	if err != nil {
		t.Fatal(err)
	}
	return &watchEnv{
		t:      t,
		vault:  vault,
		store:  store,
		db:     testDB(t),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// write creates or replaces a vault file directly on disk.
func (e *watchEnv) write(rel, content string) {
	e.t.Helper()
	abs := filepath.Join(e.vault, rel)
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		e.t.Fatal(err)
	}
	if err := os.WriteFile(abs, []byte(content), 0o644); err != nil {
		e.t.Fatal(err)
	}
}

func (e *watchEnv) sync() {
	e.t.Helper()
	if err := Sync(e.db, e.store, e.logger); err != nil {
		e.t.Fatalf("Sync: %v", err)
	}
}

// start runs the watcher until the test ends and gives it time to register.
func (e *watchEnv) start() {
	ctx, cancel := context.WithCancel(context.Background())
	e.t.Cleanup(cancel)
	go Watch(ctx, e.db, e.store, e.vault, e.logger, func(kind, path string) {
		e.mu.Lock()
		e.events = append(e.events, kind+":"+path)
		e.mu.Unlock()
	})
	time.Sleep(100 * time.Millisecond)
}

func (e *watchEnv) seen(event string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return slices.Contains(e.events, event)
}

func (e *watchEnv) indexed(rel string) bool {
	cs, _ := e.db.GetChecksum(rel)
	return cs != ""
}

// eventually polls cond until it holds or five seconds pass.
func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(50 * time.Millisecond)
	}
	t.Error(msg)
}

func TestWatcher_NewFileIndexed(t *testing.T) {
	env := newWatchEnv(t)
	env.start()

	env.write("new.md", "# New")

	eventually(t, func() bool { return env.indexed("new.md") }, "new file not indexed")
	eventually(t, func() bool { return env.seen("created:new.md") }, "no created:new.md callback")
}

func TestWatcher_ModifiedFileReported(t *testing.T) {
	env := newWatchEnv(t)
	env.write("edit.md", "first")
	env.sync()
	env.start()

	env.write("edit.md", "second with @e.review")

	eventually(t, func() bool { return env.seen("updated:edit.md") }, "no updated:edit.md callback")
	n, err := env.db.GetNote("edit.md")
	if err != nil {
		t.Fatalf("GetNote: %v", err)
	}
	if len(n.Mentions.Events) != 1 || n.Mentions.Events[0].Slug != "review" {
		t.Errorf("mentions = %+v", n.Mentions)
	}
}

func TestWatcher_NewDirWatched(t *testing.T) {
	env := newWatchEnv(t)
	env.start()

	if err := os.Mkdir(filepath.Join(env.vault, "journal"), 0o755); err != nil {
		t.Fatal(err)
	}
	time.Sleep(100 * time.Millisecond)
	env.write("journal/deep.md", "# Deep")

	rel := filepath.Join("journal", "deep.md")
	eventually(t, func() bool { return env.indexed(rel) }, "file in new directory not indexed")
}

func TestWatcher_DeleteRemovesFromIndex(t *testing.T) {
	env := newWatchEnv(t)
	env.write("del.md", "# Delete Me")
	env.sync()
	if !env.indexed("del.md") {
		t.Fatal("precondition: file should be indexed")
	}
	env.start()

	if err := os.Remove(filepath.Join(env.vault, "del.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool { return !env.indexed("del.md") }, "deleted file still indexed")
	eventually(t, func() bool { return env.seen("deleted:del.md") }, "no deleted:del.md callback")
}

func TestWatcher_RenameReconciles(t *testing.T) {
	env := newWatchEnv(t)
	env.write("old.md", "# Rename")
	env.sync()
	env.start()

	if err := os.Rename(filepath.Join(env.vault, "old.md"), filepath.Join(env.vault, "renamed.md")); err != nil {
		t.Fatal(err)
	}

	eventually(t, func() bool {
		return !env.indexed("old.md") && env.indexed("renamed.md")
	}, "old path should be dropped and new path indexed")
}

func TestWatcher_IndexesMentions(t *testing.T) {
	env := newWatchEnv(t)
	env.start()

	env.write("trip.md", "---\npinned: true\n---\nHiking with @p.sam at @pl.ridge\n")

	eventually(t, func() bool {
		n, err := env.db.GetNote("trip.md")
		return err == nil && n.Pinned && len(n.Mentions.Persons) == 1 && len(n.Mentions.Places) == 1
	}, "mentions and pin state not indexed")
}

func TestWatcher_IgnoresTempAndForeignFiles(t *testing.T) {
	env := newWatchEnv(t)
	env.start()

	env.write(".almanac-tmp-123.md", "# tmp")
	env.write("image.png", "not a note")
	env.write("real.md", "# real")

	eventually(t, func() bool { return env.indexed("real.md") }, "real file not indexed")
	for _, rel := range []string{".almanac-tmp-123.md", "image.png"} {
		if env.indexed(rel) {
			t.Errorf("%s should not be indexed", rel)
		}
	}
}

func TestWatcher_SkipsAlreadyIndexedContent(t *testing.T) {
	env := newWatchEnv(t)
	env.start()

	// Index first, as the service does, then let the write land on disk.
	data := []byte("saved through the service @p.amy")
	if err := IndexFile(env.db, "same.md", data); err != nil {
		t.Fatal(err)
	}
	if err := env.store.Write("same.md", data); err != nil {
		t.Fatal(err)
	}

	time.Sleep(500 * time.Millisecond)
	for _, kind := range []string{"created", "updated"} {
		if env.seen(kind + ":same.md") {
			t.Errorf("unexpected %s event for already indexed content", kind)
		}
	}
}
