// Package parser splits note files into frontmatter and body and derives the
// note's title, lifecycle flags, and mention index.
package parser

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/starford/almanac/internal/mention"
)

// Frontmatter keys understood by Almanac. Other keys are preserved untouched.
const (
	KeyTitle   = "title"
	KeyPinned  = "pinned"
	KeyCreated = "created"

	// KeyArchived hides a note from the default list without deleting it.
	KeyArchived = "archived"
	// KeyTrashed marks a note as deleted; KeyTrashedAt records when.
	KeyTrashed   = "trashed"
	KeyTrashedAt = "trashed_at"
)

// Result holds the output of parsing a note file.
type Result struct {
	Frontmatter map[string]interface{}
	Body        string
	Title       string
	Pinned      bool
	Archived    bool
	Trashed     bool
	Created     time.Time
	TrashedAt   time.Time
	Mentions    mention.Index
}

// Parse extracts frontmatter, body, title, pin state, and mentions from raw
// note bytes. Mentions are extracted from the body only; dir decides IsNew and
// may be nil.
func Parse(data []byte, dir *mention.Directory) (*Result, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	return &Result{
		Frontmatter: fm,
		Body:        body,
		Title:       deriveTitle(fm, body),
		Pinned:      boolField(fm, KeyPinned),
		Archived:    boolField(fm, KeyArchived),
		Trashed:     boolField(fm, KeyTrashed),
		Created:     timeField(fm, KeyCreated),
		TrashedAt:   timeField(fm, KeyTrashedAt),
		Mentions:    mention.Extract(body, dir),
	}, nil
}

// Compose renders frontmatter and body back into a note file. An empty
// frontmatter map produces a body-only file.
func Compose(fm map[string]interface{}, body string) ([]byte, error) {
	if len(fm) == 0 {
		return []byte(body), nil
	}
	yb, err := yaml.Marshal(fm)
	if err != nil {
		return nil, fmt.Errorf("parser: marshal frontmatter: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteString("---\n")
	buf.Write(yb)
	buf.WriteString("---\n")
	buf.WriteString(body)
	return buf.Bytes(), nil
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, string(data), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, string(data), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := strings.TrimLeft(string(afterDelim), "\n\r")

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		// Invalid YAML: keep the whole file as body.
		return nil, string(data), nil
	}

	return fm, body, nil
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s, ok := fm[KeyTitle].(string); ok && s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}

func boolField(fm map[string]interface{}, key string) bool {
	switch v := fm[key].(type) {
	case bool:
		return v
	case string:
		return strings.EqualFold(v, "true") || v == "yes"
	}
	return false
}

func timeField(fm map[string]interface{}, key string) time.Time {
	switch v := fm[key].(type) {
	case time.Time:
		return v
	case string:
		for _, layout := range []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02"} {
			if t, err := time.Parse(layout, v); err == nil {
				return t
			}
		}
	}
	return time.Time{}
}
