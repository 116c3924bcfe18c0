package markdown

import (
	"strings"
	"testing"

	"github.com/starford/almanac/internal/mention"
)

func TestRender_Badges(t *testing.T) {
	dir := mention.NewDirectory([]mention.Candidate{
		{Type: mention.Person, Name: "John", Slug: "john"},
	})
	out, err := Render([]byte("Met @p.john at @pl.office."), dir)
	if err != nil {
		t.Fatalf("Render: %v", err)
	}
	html := string(out)

	want := `<span class="mention mention-person" data-slug="john">@p.john</span>`
	if !strings.Contains(html, want) {
		t.Errorf("missing known badge %q in %q", want, html)
	}
	want = `<span class="mention mention-place" data-slug="office" data-new="true">@pl.office</span>`
	if !strings.Contains(html, want) {
		t.Errorf("missing new badge %q in %q", want, html)
	}
	if !strings.HasSuffix(strings.TrimSpace(html), "</span>.</p>") {
		t.Errorf("trailing text lost: %q", html)
	}
}

func TestRender_LongestMarkerWins(t *testing.T) {
	out, _ := Render([]byte("@pl.paris"), nil)
	if !strings.Contains(string(out), `mention-place" data-slug="paris"`) {
		t.Errorf("@pl. should be a place: %q", out)
	}
}

func TestRender_NilDirectoryNeverNew(t *testing.T) {
	out, _ := Render([]byte("@e.launch"), nil)
	if strings.Contains(string(out), "data-new") {
		t.Errorf("nil directory should not mark mentions new: %q", out)
	}
}

func TestRender_NotAMention(t *testing.T) {
	tests := []string{
		"email me @ home",
		"@x.unknown",
		"@p.",
		"`@p.code`",
	}
	for _, in := range tests {
		t.Run(in, func(t *testing.T) {
			out, err := Render([]byte(in), nil)
			if err != nil {
				t.Fatalf("Render: %v", err)
			}
			if strings.Contains(string(out), `class="mention`) {
				t.Errorf("unexpected badge in %q", out)
			}
		})
	}
}

func TestRender_InsideEmphasis(t *testing.T) {
	out, _ := Render([]byte("*with @p.amy*"), nil)
	want := `<em>with <span class="mention mention-person" data-slug="amy">@p.amy</span></em>`
	if !strings.Contains(string(out), want) {
		t.Errorf("got %q, want %q inside", out, want)
	}
}
