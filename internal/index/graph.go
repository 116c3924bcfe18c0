package index

import (
	"fmt"
	"strings"

	"github.com/starford/almanac/internal/mention"
)

// GraphNode is a note or a mentioned entity.
type GraphNode struct {
	ID    string       `json:"id"`
	Kind  string       `json:"kind"` // "note" or "entity"
	Title string       `json:"title"`
	Type  mention.Type `json:"type,omitempty"`
	IsNew bool         `json:"is_new,omitempty"`
}

// GraphLink connects a note to an entity it mentions.
type GraphLink struct {
	Source string `json:"source"`
	Target string `json:"target"`
	Count  int    `json:"count"`
}

// RefID is the graph node ID of a mentioned entity, e.g. "person:john".
func RefID(t mention.Type, slug string) string {
	return string(t) + ":" + slug
}

// Graph returns every note outside the trash and every entity those notes
// mention as nodes, with one link per distinct (note, entity) pair.
func (db *DB) Graph() ([]GraphNode, []GraphLink, error) {
	rows, err := db.conn.Query(`SELECT path, title FROM notes WHERE trashed = 0 ORDER BY path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph notes: %w", err)
	}
	var nodes []GraphNode
	for rows.Next() {
		var n GraphNode
		if err := rows.Scan(&n.ID, &n.Title); err != nil {
			rows.Close()
			return nil, nil, err
		}
		n.Kind = "note"
		nodes = append(nodes, n)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	// Slugs are grouped case-insensitively; the first spelling seen wins.
	rows, err = db.conn.Query(`
		SELECT note_path, type, min(slug), count(*), max(is_new)
		FROM mentions
		WHERE note_path IN (SELECT path FROM notes WHERE trashed = 0)
		GROUP BY note_path, type, lower(slug)
		ORDER BY type, lower(slug), note_path`)
	if err != nil {
		return nil, nil, fmt.Errorf("index: graph mentions: %w", err)
	}
	defer rows.Close()

	seen := make(map[string]struct{})
	var links []GraphLink
	for rows.Next() {
		var path, typ, slug string
		var count int
		var isNew bool
		if err := rows.Scan(&path, &typ, &slug, &count, &isNew); err != nil {
			return nil, nil, err
		}
		t := mention.Type(typ)
		id := RefID(t, strings.ToLower(slug))
		if _, ok := seen[id]; !ok {
			seen[id] = struct{}{}
			nodes = append(nodes, GraphNode{ID: id, Kind: "entity", Title: slug, Type: t, IsNew: isNew})
		}
		links = append(links, GraphLink{Source: path, Target: id, Count: count})
	}
	return nodes, links, rows.Err()
}

// MentionedNote is a note body with the distinct entities it mentions.
type MentionedNote struct {
	Path     string
	Body     string
	Mentions []mention.Mention
}

// MentionedNotes returns every note outside the trash that mentions at least
// one entity, in path order. Each note lists its distinct entities in first
// occurrence order with lowercased slugs, so references compare without case.
func (db *DB) MentionedNotes() ([]MentionedNote, error) {
	rows, err := db.conn.Query(`
		SELECT m.note_path, n.body, m.type, lower(m.slug), min(m.position)
		FROM mentions m JOIN notes n ON n.path = m.note_path
		WHERE n.trashed = 0
		GROUP BY m.note_path, m.type, lower(m.slug)
		ORDER BY m.note_path, min(m.position)`)
	if err != nil {
		return nil, fmt.Errorf("index: mentioned notes: %w", err)
	}
	defer rows.Close()

	var out []MentionedNote
	for rows.Next() {
		var path, body, typ, slug string
		var pos int
		if err := rows.Scan(&path, &body, &typ, &slug, &pos); err != nil {
			return nil, err
		}
		if len(out) == 0 || out[len(out)-1].Path != path {
			out = append(out, MentionedNote{Path: path, Body: body})
		}
		last := &out[len(out)-1]
		last.Mentions = append(last.Mentions, mention.Mention{Type: mention.Type(typ), Slug: slug})
	}
	return out, rows.Err()
}
