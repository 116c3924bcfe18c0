// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Almanac tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/models"
	"github.com/starford/almanac/internal/noteservice"
)

const grammarURI = "almanac://mention-grammar"

// Server wraps the MCP server with Almanac tools.
type Server struct {
	mcp *server.MCPServer
	svc *noteservice.Service
}

// New creates a new MCP server with all Almanac tools registered.
func New(svc *noteservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Almanac",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("search_notes",
		mcp.WithDescription("Full-text search through note titles, bodies and mentions."),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query string")),
		mcp.WithNumber("limit", mcp.Description("Maximum results (default 20)")),
	), s.searchNotes)

	s.mcp.AddTool(mcp.NewTool("read_note",
		mcp.WithDescription("Read the full content of a Markdown note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note (e.g. folder/note.md)")),
	), s.readNote)

	s.mcp.AddTool(mcp.NewTool("create_note",
		mcp.WithDescription("Create a new Markdown note at the specified path. "+
			"Mention entities inline as @p.slug, @pl.slug or @e.slug. Read the grammar first via "+
			"the get_mention_grammar tool or the "+grammarURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path for the new note (must end with .md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Markdown content with inline mentions")),
	), s.createNote)

	s.mcp.AddTool(mcp.NewTool("update_note",
		mcp.WithDescription("Replace the content of an existing note."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithString("content", mcp.Required(), mcp.Description("New Markdown content")),
		mcp.WithString("checksum", mcp.Description("Checksum from read_note; the update fails if the note changed since")),
	), s.updateNote)

	s.mcp.AddTool(mcp.NewTool("list_notes",
		mcp.WithDescription("List notes, pinned first, optionally in a folder or mentioning an entity."),
		mcp.WithString("folder", mcp.Description("Optional folder to list (empty for all)")),
		mcp.WithString("mention", mcp.Description("Optional entity reference, e.g. p.john")),
		mcp.WithString("view", mcp.Enum("active", "archived", "trash", "all"),
			mcp.Description("Lifecycle view (default active: neither archived nor trashed)")),
	), s.listNotes)

	s.mcp.AddTool(mcp.NewTool("archive_note",
		mcp.WithDescription("Archive a note, hiding it from the default listing, or bring it back."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
		mcp.WithBoolean("archived", mcp.DefaultBool(true), mcp.Description("false unarchives")),
	), s.archiveNote)

	s.mcp.AddTool(mcp.NewTool("trash_note",
		mcp.WithDescription("Move a note to the trash. Trashed notes leave search and relations until restored."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.trashNote)

	s.mcp.AddTool(mcp.NewTool("restore_note",
		mcp.WithDescription("Take a note out of the trash."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path to the note")),
	), s.restoreNote)

	s.mcp.AddTool(mcp.NewTool("extract_mentions",
		mcp.WithDescription("Extract the typed mentions of a text, flagging slugs missing from the directory."),
		mcp.WithString("text", mcp.Required(), mcp.Description("Text to scan")),
	), s.extractMentions)

	s.mcp.AddTool(mcp.NewTool("suggest_entities",
		mcp.WithDescription("Find directory entities of one type whose name contains a term."),
		mcp.WithString("type", mcp.Required(), mcp.Enum("person", "place", "event"), mcp.Description("Entity type")),
		mcp.WithString("query", mcp.Description("Case-insensitive name substring (empty for all)")),
	), s.suggestEntities)

	s.mcp.AddTool(mcp.NewTool("create_entity",
		mcp.WithDescription("Add a person, place or event to the entity directory."),
		mcp.WithString("type", mcp.Required(), mcp.Enum("person", "place", "event"), mcp.Description("Entity type")),
		mcp.WithString("name", mcp.Required(), mcp.Description("Display name")),
		mcp.WithString("slug", mcp.Description("Mention slug (derived from the name when empty)")),
		mcp.WithString("description", mcp.Description("Optional description")),
	), s.createEntity)

	s.mcp.AddTool(mcp.NewTool("notes_mentioning",
		mcp.WithDescription("Find all notes that mention the specified entity."),
		mcp.WithString("ref", mcp.Required(), mcp.Description("Entity reference, e.g. p.john or @pl.office")),
	), s.notesMentioning)

	s.mcp.AddTool(mcp.NewTool("find_relation",
		mcp.WithDescription("Shortest chain of notes linking two entities through shared mentions."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Start reference, e.g. p.john")),
		mcp.WithString("to", mcp.Required(), mcp.Description("End reference")),
		mcp.WithNumber("max_depth", mcp.Description("Hop limit between 1 and 10 (default 4)")),
	), s.findRelation)

	s.mcp.AddTool(mcp.NewTool("analyze_relation",
		mcp.WithDescription("How two entities connect: relation kinds, strongest paths, shared neighbours and a confidence grade."),
		mcp.WithString("from", mcp.Required(), mcp.Description("Start reference, e.g. p.john")),
		mcp.WithString("to", mcp.Required(), mcp.Description("End reference")),
		mcp.WithNumber("max_depth", mcp.Description("Hop limit between 1 and 10 (default 4)")),
	), s.analyzeRelation)

	s.mcp.AddTool(mcp.NewTool("common_connections",
		mcp.WithDescription("Entities within a few hops of both given entities."),
		mcp.WithString("a", mcp.Required(), mcp.Description("First reference")),
		mcp.WithString("b", mcp.Required(), mcp.Description("Second reference")),
		mcp.WithNumber("depth", mcp.Description("Hops from each side, 1 to 5 (default 2)")),
	), s.commonConnections)

	s.mcp.AddTool(mcp.NewTool("relation_components",
		mcp.WithDescription("Groups of entities connected through shared notes, largest first."),
	), s.relationComponents)

	s.mcp.AddTool(mcp.NewTool("relation_stats",
		mcp.WithDescription("Entity, relation and component counts of the co-mention graph."),
	), s.relationStats)

	s.mcp.AddTool(mcp.NewTool("get_mention_grammar",
		mcp.WithDescription("Returns the mention grammar and note format. "+
			"Call this before creating or updating notes."),
	), s.getMentionGrammar)

	s.mcp.AddResource(
		mcp.NewResource(grammarURI, "Mention Grammar",
			mcp.WithResourceDescription("Mention markers and the note format notes follow."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readGrammarResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

// toolError turns a service error into a tool-level error result.
func toolError(err error) *mcp.CallToolResult {
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		return mcp.NewToolResultError("not found: " + err.Error())
	case errors.Is(err, apperr.ErrConflict):
		return mcp.NewToolResultError("note changed since it was read; read it again")
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) *mcp.CallToolResult {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error())
	}
	return mcp.NewToolResultText(string(out))
}

func (s *Server) searchNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	query, err := req.RequireString("query")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	results, err := s.svc.Search(ctx, query, req.GetInt("limit", 20))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(results), nil
}

func (s *Server) readNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.GetNote(ctx, path)
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("checksum: %s\n\n%s", note.Checksum, note.Content)), nil
}

func (s *Server) createNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.CreateNote(ctx, path, []byte(content))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("created: %s%s", note.Path, s.newEntitiesNote(note.Mentions))), nil
}

func (s *Server) updateNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	note, err := s.svc.UpdateNote(ctx, path, []byte(content), req.GetString("checksum", ""))
	if err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("updated: %s%s", note.Path, s.newEntitiesNote(note.Mentions))), nil
}

// newEntitiesNote lists mentions missing from the directory, if any.
func (s *Server) newEntitiesNote(x mention.Index) string {
	var refs []string
	for _, m := range x.All() {
		if m.IsNew {
			refs = append(refs, s.svc.Registry().Format(m.Type, m.Slug))
		}
	}
	if len(refs) == 0 {
		return ""
	}
	return "\nnew entities: " + strings.Join(refs, ", ")
}

func (s *Server) listNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := strings.Trim(req.GetString("folder", ""), "/")
	view := req.GetString("view", "")
	if view == "active" {
		view = ""
	}
	items, _, err := s.svc.ListNotes(ctx, noteservice.ListOptions{
		Limit:   1000,
		Sort:    "path",
		Mention: req.GetString("mention", ""),
		View:    view,
	})
	if err != nil {
		return toolError(err), nil
	}

	var lines []string
	for _, it := range items {
		if folder != "" && !strings.HasPrefix(it.Path, folder+"/") {
			continue
		}
		line := it.Path
		switch {
		case it.Trashed:
			line += " (trashed)"
		case it.Archived:
			line += " (archived)"
		case it.Pinned:
			line += " (pinned)"
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return mcp.NewToolResultText("no notes found"), nil
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) extractMentions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	text, err := req.RequireString("text")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	x, err := s.svc.ExtractMentions(ctx, text)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(x), nil
}

func (s *Server) suggestEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	cands, err := s.svc.Suggest(ctx, mention.Type(t), req.GetString("query", ""))
	if err != nil {
		return toolError(err), nil
	}
	if len(cands) == 0 {
		return mcp.NewToolResultText("no matching entities"), nil
	}
	reg := s.svc.Registry()
	lines := make([]string, len(cands))
	for i, c := range cands {
		lines[i] = fmt.Sprintf("%s  %s", reg.Format(c.Type, c.Token()), c.Name)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) createEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	t, err := req.RequireString("type")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.CreateEntity(ctx, models.Entity{
		Type:        mention.Type(t),
		Name:        name,
		Slug:        req.GetString("slug", ""),
		Description: req.GetString("description", ""),
	})
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(e), nil
}

func (s *Server) notesMentioning(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ref, err := req.RequireString("ref")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	paths, err := s.svc.NotesMentioning(ctx, ref)
	if err != nil {
		return toolError(err), nil
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no notes mention " + ref), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) findRelation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	p, err := s.svc.FindPath(ctx, from, to, req.GetInt("max_depth", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(p), nil
}

func (s *Server) analyzeRelation(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	from, err := req.RequireString("from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	to, err := req.RequireString("to")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	a, err := s.svc.AnalyzeRelation(ctx, from, to, req.GetInt("max_depth", 0))
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(a), nil
}

func (s *Server) commonConnections(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	a, err := req.RequireString("a")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	b, err := req.RequireString("b")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	common, err := s.svc.CommonConnections(ctx, a, b, req.GetInt("depth", 0))
	if err != nil {
		return toolError(err), nil
	}
	if len(common) == 0 {
		return mcp.NewToolResultText("no common connections"), nil
	}
	lines := make([]string, len(common))
	for i, c := range common {
		lines[i] = fmt.Sprintf("%s  (%d hops from %s, %d from %s)",
			c.Entity, c.FromFirst.Hops, a, c.FromSecond.Hops, b)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) relationComponents(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	comps, err := s.svc.Components(ctx)
	if err != nil {
		return toolError(err), nil
	}
	if len(comps) == 0 {
		return mcp.NewToolResultText("no entities mentioned yet"), nil
	}
	lines := make([]string, len(comps))
	for i, c := range comps {
		refs := make([]string, len(c))
		for j, r := range c {
			refs[j] = r.String()
		}
		lines[i] = strings.Join(refs, ", ")
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) relationStats(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	stats, err := s.svc.RelationStats(ctx)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(stats), nil
}

func (s *Server) archiveNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	archived := req.GetBool("archived", true)
	if _, err := s.svc.SetArchived(ctx, path, archived, ""); err != nil {
		return toolError(err), nil
	}
	if archived {
		return mcp.NewToolResultText("archived: " + path), nil
	}
	return mcp.NewToolResultText("unarchived: " + path), nil
}

func (s *Server) trashNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.Trash(ctx, path, ""); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("trashed: " + path), nil
}

func (s *Server) restoreNote(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if _, err := s.svc.Restore(ctx, path, ""); err != nil {
		return toolError(err), nil
	}
	return mcp.NewToolResultText("restored: " + path), nil
}

func (s *Server) getMentionGrammar(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(MentionGrammar(s.svc.Registry())), nil
}

func (s *Server) readGrammarResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      grammarURI,
			MIMEType: "text/markdown",
			Text:     MentionGrammar(s.svc.Registry()),
		},
	}, nil
}
