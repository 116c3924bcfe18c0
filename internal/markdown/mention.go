// Package markdown renders note bodies to HTML with mentions shown as badges.
package markdown

import (
	"bytes"
	"fmt"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/renderer"
	"github.com/yuin/goldmark/text"
	"github.com/yuin/goldmark/util"

	"github.com/starford/almanac/internal/mention"
)

// KindMention is the AST kind of a mention badge.
var KindMention = ast.NewNodeKind("Mention")

// Mention is an inline node for "@<code>.<slug>".
type Mention struct {
	ast.BaseInline
	Marker mention.Marker
	Slug   string
	IsNew  bool
}

// Kind implements ast.Node.
func (n *Mention) Kind() ast.NodeKind { return KindMention }

// Dump implements ast.Node.
func (n *Mention) Dump(source []byte, level int) {
	ast.DumpHelper(n, source, level, map[string]string{
		"Type": string(n.Marker.Type),
		"Slug": n.Slug,
	}, nil)
}

type mentionParser struct {
	reg *mention.Registry
	dir *mention.Directory
}

func (p *mentionParser) Trigger() []byte {
	return []byte{'@'}
}

func (p *mentionParser) Parse(_ ast.Node, block text.Reader, _ parser.Context) ast.Node {
	line, _ := block.PeekLine()
	m, slug, n := p.reg.MatchPrefix(line)
	if n == 0 {
		return nil
	}
	block.Advance(n)
	return &Mention{
		Marker: m,
		Slug:   slug,
		IsNew:  p.dir != nil && !p.dir.Known(m.Type, slug),
	}
}

type mentionRenderer struct{}

func (r *mentionRenderer) RegisterFuncs(reg renderer.NodeRendererFuncRegisterer) {
	reg.Register(KindMention, r.render)
}

func (r *mentionRenderer) render(w util.BufWriter, _ []byte, node ast.Node, entering bool) (ast.WalkStatus, error) {
	if !entering {
		return ast.WalkContinue, nil
	}
	n := node.(*Mention)
	slug := util.EscapeHTML([]byte(n.Slug))

	_, _ = w.WriteString(`<span class="mention mention-`)
	_, _ = w.WriteString(string(n.Marker.Type))
	_, _ = w.WriteString(`" data-slug="`)
	_, _ = w.Write(slug)
	_, _ = w.WriteString(`"`)
	if n.IsNew {
		_, _ = w.WriteString(` data-new="true"`)
	}
	_, _ = w.WriteString(`>@`)
	_, _ = w.WriteString(n.Marker.Code)
	_ = w.WriteByte('.')
	_, _ = w.Write(slug)
	_, _ = w.WriteString(`</span>`)
	return ast.WalkSkipChildren, nil
}

// Extension adds mention badges to a goldmark.Markdown. A nil Registry uses
// the default markers; a nil Directory never marks mentions as new.
type Extension struct {
	Registry  *mention.Registry
	Directory *mention.Directory
}

// Extend implements goldmark.Extender.
func (e *Extension) Extend(m goldmark.Markdown) {
	reg := e.Registry
	if reg == nil {
		reg = mention.DefaultRegistry()
	}
	m.Parser().AddOptions(parser.WithInlineParsers(
		util.Prioritized(&mentionParser{reg: reg, dir: e.Directory}, 500),
	))
	m.Renderer().AddOptions(renderer.WithNodeRenderers(
		util.Prioritized(&mentionRenderer{}, 500),
	))
}

// Render converts a Markdown body to HTML with mention badges.
func Render(body []byte, dir *mention.Directory) ([]byte, error) {
	md := goldmark.New(goldmark.WithExtensions(&Extension{Directory: dir}))
	var buf bytes.Buffer
	if err := md.Convert(body, &buf); err != nil {
		return nil, fmt.Errorf("markdown: render: %w", err)
	}
	return buf.Bytes(), nil
}
