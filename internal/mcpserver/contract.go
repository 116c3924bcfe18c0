package mcpserver

import (
	"fmt"
	"strings"

	"github.com/starford/almanac/internal/mention"
)

// NoteFormatContract describes the canonical Markdown note format that
// LLM consumers should follow when creating or updating notes.
const NoteFormatContract = `# Almanac Note Format Contract

Every Markdown note stored in Almanac follows this structure.

## Structure

` + "```" + `markdown
---
title: Human-readable title        # OPTIONAL – falls back to the first heading
pinned: true                        # OPTIONAL – pinned notes list first
created: 2025-01-15                 # OPTIONAL – ISO-8601 date or datetime
---

Body text in standard Markdown.

Mention people, places and events inline: @p.john_doe met us at @pl.office
for the @e.kickoff.
` + "```" + `

## Rules

1. **Frontmatter is optional.** When present, the ` + "```" + `---` + "```" + ` fences must be
   the first thing in the file.
2. **Mentions** are ` + "`" + `@` + "`" + `, a type code, a dot, and a slug of letters, digits
   and underscores. A mention ends at the first other character.
3. **Slugs** should match an entity in the directory. Use ` + "`" + `suggest_entities` + "`" + `
   to find one; an unknown slug is shown as a new entity.
4. **File paths** end with ` + "`" + `.md` + "`" + ` and use forward slashes.
5. **Encoding** is UTF-8 with a trailing newline.
`

// MentionGrammar renders the mention markers of reg as a Markdown table
// followed by the note format contract.
func MentionGrammar(reg *mention.Registry) string {
	var b strings.Builder
	b.WriteString("# Mention Grammar\n\n| Code | Type | Example |\n|------|------|---------|\n")
	for _, m := range reg.Markers() {
		fmt.Fprintf(&b, "| %s | %s | `%s` |\n", m.Code, m.Type, reg.Format(m.Type, "example_slug"))
	}
	b.WriteString("\nLonger codes win: `@pl.x` is a place, never a person named `l.x`.\n\n")
	b.WriteString(NoteFormatContract)
	return b.String()
}
