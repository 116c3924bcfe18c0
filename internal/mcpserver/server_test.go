package mcpserver

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/noteservice"
	"github.com/starford/almanac/internal/testutil"
)

func testServer(t *testing.T) (*Server, *noteservice.Service) {
	t.Helper()
	_, store := testutil.TestVault(t)
	db := testutil.TestDB(t)
	svc := noteservice.NewService(store, db)
	return New(svc, "test"), svc
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	// mcp-go has no direct "call tool" test helper, so handlers are invoked
	// directly.
	handlers := map[string]func(context.Context, mcp.CallToolRequest) (*mcp.CallToolResult, error){
		"search_notes":        srv.searchNotes,
		"read_note":           srv.readNote,
		"create_note":         srv.createNote,
		"update_note":         srv.updateNote,
		"list_notes":          srv.listNotes,
		"archive_note":        srv.archiveNote,
		"trash_note":          srv.trashNote,
		"restore_note":        srv.restoreNote,
		"extract_mentions":    srv.extractMentions,
		"suggest_entities":    srv.suggestEntities,
		"create_entity":       srv.createEntity,
		"notes_mentioning":    srv.notesMentioning,
		"find_relation":       srv.findRelation,
		"analyze_relation":    srv.analyzeRelation,
		"common_connections":  srv.commonConnections,
		"relation_components": srv.relationComponents,
		"relation_stats":      srv.relationStats,
		"get_mention_grammar": srv.getMentionGrammar,
	}
	h, ok := handlers[name]
	if !ok {
		t.Fatalf("unknown tool: %s", name)
	}
	result, err := h(ctx, req)
	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestCreateAndReadNote(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_note", map[string]interface{}{
		"path":    "test.md",
		"content": "# Test\nHello @p.ann",
	})
	text := resultText(r)
	if text != "created: test.md\nnew entities: @p.ann" {
		t.Errorf("create result = %q", text)
	}

	r = callTool(t, srv, "read_note", map[string]interface{}{
		"path": "test.md",
	})
	text = resultText(r)
	if !strings.HasPrefix(text, "checksum: ") || !strings.HasSuffix(text, "# Test\nHello @p.ann") {
		t.Errorf("read result = %q", text)
	}

	r = callTool(t, srv, "create_note", map[string]interface{}{"path": "test.md", "content": "again"})
	if !r.IsError {
		t.Error("expected error for duplicate note")
	}
}

func TestUpdateNote_StaleChecksum(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "u.md", "content": "v1"})

	r := callTool(t, srv, "update_note", map[string]interface{}{"path": "u.md", "content": "v2", "checksum": "stale"})
	if !r.IsError {
		t.Fatalf("stale update should fail: %q", resultText(r))
	}
	r = callTool(t, srv, "update_note", map[string]interface{}{"path": "u.md", "content": "v2"})
	if r.IsError || resultText(r) != "updated: u.md" {
		t.Errorf("update = %q", resultText(r))
	}
}

func TestListNotes(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "a.md", "content": "@e.launch"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "dir/b.md", "content": "b"})

	r := callTool(t, srv, "list_notes", map[string]interface{}{})
	if text := resultText(r); text != "a.md\ndir/b.md" {
		t.Errorf("list = %q", text)
	}
	r = callTool(t, srv, "list_notes", map[string]interface{}{"folder": "dir"})
	if text := resultText(r); text != "dir/b.md" {
		t.Errorf("folder list = %q", text)
	}
	r = callTool(t, srv, "list_notes", map[string]interface{}{"mention": "e.launch"})
	if text := resultText(r); text != "a.md" {
		t.Errorf("mention list = %q", text)
	}
}

func TestReadNoteMissing(t *testing.T) {
	srv, _ := testServer(t)
	r := callTool(t, srv, "read_note", map[string]interface{}{"path": "nope.md"})
	if !r.IsError {
		t.Error("expected error for missing note")
	}
}

func TestExtractMentions(t *testing.T) {
	srv, svc := testServer(t)
	_, _ = svc.CreateEntity(context.Background(), models.Entity{Type: mention.Place, Name: "Office"})

	r := callTool(t, srv, "extract_mentions", map[string]interface{}{"text": "@pl.office then @p.bob"})
	var x mention.Index
	if err := json.Unmarshal([]byte(resultText(r)), &x); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(x.Places) != 1 || x.Places[0].IsNew {
		t.Errorf("places = %+v", x.Places)
	}
	if len(x.Persons) != 1 || !x.Persons[0].IsNew {
		t.Errorf("persons = %+v", x.Persons)
	}
}

func TestSuggestAndCreateEntity(t *testing.T) {
	srv, _ := testServer(t)

	r := callTool(t, srv, "create_entity", map[string]interface{}{"type": "person", "name": "Grace Hopper"})
	if r.IsError {
		t.Fatalf("create_entity: %q", resultText(r))
	}
	r = callTool(t, srv, "suggest_entities", map[string]interface{}{"type": "person", "query": "hop"})
	if text := resultText(r); text != "@p.grace_hopper  Grace Hopper" {
		t.Errorf("suggest = %q", text)
	}
	r = callTool(t, srv, "suggest_entities", map[string]interface{}{"type": "place"})
	if text := resultText(r); text != "no matching entities" {
		t.Errorf("empty suggest = %q", text)
	}
	r = callTool(t, srv, "suggest_entities", map[string]interface{}{"type": "robot"})
	if !r.IsError {
		t.Error("expected error for unknown type")
	}
}

func TestNotesMentioningAndRelation(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "a.md", "content": "@p.amy and @p.ben"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "b.md", "content": "@p.ben at @pl.lab"})

	r := callTool(t, srv, "notes_mentioning", map[string]interface{}{"ref": "@p.ben"})
	if text := resultText(r); text != "a.md\nb.md" {
		t.Errorf("notes_mentioning = %q", text)
	}

	r = callTool(t, srv, "find_relation", map[string]interface{}{"from": "p.amy", "to": "pl.lab"})
	var p struct {
		Hops int `json:"hops"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &p); err != nil || p.Hops != 2 {
		t.Errorf("find_relation = %q", resultText(r))
	}
}

func TestMentionGrammar(t *testing.T) {
	srv, _ := testServer(t)
	text := resultText(callTool(t, srv, "get_mention_grammar", nil))
	for _, want := range []string{"| pl | place | `@pl.example_slug` |", "| p | person |", "| e | event |"} {
		if !strings.Contains(text, want) {
			t.Errorf("grammar missing %q", want)
		}
	}
	if strings.Index(text, "| pl |") > strings.Index(text, "| p |") {
		t.Error("longer codes should be listed first")
	}
}

func TestArchiveTrashRestore(t *testing.T) {
	srv, _ := testServer(t)
	for _, p := range []string{"keep.md", "old.md", "gone.md"} {
		_ = callTool(t, srv, "create_note", map[string]interface{}{"path": p, "content": "# " + p})
	}

	if text := resultText(callTool(t, srv, "archive_note", map[string]interface{}{"path": "old.md"})); text != "archived: old.md" {
		t.Errorf("archive_note = %q", text)
	}
	if text := resultText(callTool(t, srv, "trash_note", map[string]interface{}{"path": "gone.md"})); text != "trashed: gone.md" {
		t.Errorf("trash_note = %q", text)
	}

	views := map[string]string{
		"active":   "keep.md",
		"archived": "old.md (archived)",
		"trash":    "gone.md (trashed)",
		"all":      "gone.md (trashed)\nkeep.md\nold.md (archived)",
	}
	for view, want := range views {
		r := callTool(t, srv, "list_notes", map[string]interface{}{"view": view})
		if text := resultText(r); text != want {
			t.Errorf("list_notes view=%s = %q, want %q", view, text, want)
		}
	}

	_ = callTool(t, srv, "restore_note", map[string]interface{}{"path": "gone.md"})
	_ = callTool(t, srv, "archive_note", map[string]interface{}{"path": "old.md", "archived": false})
	r := callTool(t, srv, "list_notes", nil)
	if text := resultText(r); text != "gone.md\nkeep.md\nold.md" {
		t.Errorf("list_notes after restore = %q", text)
	}

	r = callTool(t, srv, "trash_note", map[string]interface{}{"path": "missing.md"})
	if !r.IsError || !strings.HasPrefix(resultText(r), "not found") {
		t.Errorf("trash_note missing = %q", resultText(r))
	}
}

func TestRelationTools(t *testing.T) {
	srv, _ := testServer(t)
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "a.md", "content": "@p.amy and @p.ben"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "b.md", "content": "@p.ben works at @pl.lab"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "c.md", "content": "@p.amy visited @pl.lab"})
	_ = callTool(t, srv, "create_note", map[string]interface{}{"path": "d.md", "content": "@p.cy with @p.dee"})

	r := callTool(t, srv, "analyze_relation", map[string]interface{}{"from": "p.ben", "to": "pl.lab"})
	var a struct {
		Direct     bool   `json:"direct"`
		Confidence string `json:"confidence"`
		Strength   int    `json:"strength"`
		Summary    string `json:"summary"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &a); err != nil {
		t.Fatalf("analyze_relation = %q", resultText(r))
	}
	if !a.Direct || a.Confidence != "high" || a.Strength != 20 {
		t.Errorf("analysis = %+v", a)
	}
	if a.Summary != "@p.ben and @pl.lab are directly related: works_at" {
		t.Errorf("summary = %q", a.Summary)
	}

	r = callTool(t, srv, "common_connections", map[string]interface{}{"a": "p.ben", "b": "pl.lab", "depth": 1})
	if text := resultText(r); text != "@p.amy  (1 hops from p.ben, 1 from pl.lab)" {
		t.Errorf("common_connections = %q", text)
	}
	r = callTool(t, srv, "common_connections", map[string]interface{}{"a": "p.cy", "b": "p.dee"})
	if text := resultText(r); text != "no common connections" {
		t.Errorf("common_connections disjoint = %q", text)
	}

	r = callTool(t, srv, "relation_components", nil)
	if text := resultText(r); text != "@p.amy, @p.ben, @pl.lab\n@p.cy, @p.dee" {
		t.Errorf("relation_components = %q", text)
	}

	r = callTool(t, srv, "relation_stats", nil)
	var st struct {
		Entities   int            `json:"entities"`
		Relations  int            `json:"relations"`
		Components int            `json:"components"`
		ByKind     map[string]int `json:"by_kind"`
	}
	if err := json.Unmarshal([]byte(resultText(r)), &st); err != nil {
		t.Fatalf("relation_stats = %q", resultText(r))
	}
	if st.Entities != 5 || st.Relations != 4 || st.Components != 2 {
		t.Errorf("stats = %+v", st)
	}
	if st.ByKind["knows"] != 2 || st.ByKind["works_at"] != 1 || st.ByKind["visits"] != 1 {
		t.Errorf("by kind = %v", st.ByKind)
	}

	r = callTool(t, srv, "analyze_relation", map[string]interface{}{"from": "p.amy", "to": "p.nobody"})
	if !r.IsError {
		t.Errorf("analyze_relation unknown = %q", resultText(r))
	}
}
