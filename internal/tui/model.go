// Package tui is a terminal note editor with inline mention autocomplete.
package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/starford/almanac/internal/apperr"
	"github.com/starford/almanac/internal/mention"
	"github.com/starford/almanac/internal/noteservice"
)

// maxOverlayRows bounds the visible suggestion list.
const maxOverlayRows = 6

// Service is the subset of *noteservice.Service the editor needs.
type Service interface {
	GetNote(ctx context.Context, p string) (*noteservice.NoteDetail, error)
	CreateNote(ctx context.Context, p string, content []byte) (*noteservice.NoteDetail, error)
	UpdateNote(ctx context.Context, p string, content []byte, ifMatch string) (*noteservice.NoteDetail, error)
	Reduce(ctx context.Context, state mention.State, act mention.Action) (mention.State, error)
	Registry() *mention.Registry
}

type savedMsg struct{ note *noteservice.NoteDetail }

type errMsg struct{ err error }

// Model is the bubbletea model of one open note.
type Model struct {
	ctx        context.Context
	svc        Service
	path       string
	checksum   string
	exists     bool
	dirty      bool
	state      mention.State
	keys       keyMap
	help       help.Model
	displayCap int
	width      int
	status     string
	err        error
}

// Option configures a Model.
type Option func(*Model)

// WithDisplayCap sets how many mentions per type the status bar shows.
func WithDisplayCap(n int) Option {
	return func(m *Model) {
		m.displayCap = n
	}
}

// New opens the note at path, or an empty buffer when it does not exist yet.
func New(ctx context.Context, svc Service, path string, opts ...Option) (*Model, error) {
	m := &Model{
		ctx:        ctx,
		svc:        svc,
		path:       path,
		keys:       defaultKeyMap(),
		help:       help.New(),
		displayCap: mention.DisplayCap,
		width:      80,
	}
	for _, o := range opts {
		o(m)
	}

	text, mentions := "", mention.NewIndex()
	note, err := svc.GetNote(ctx, path)
	switch {
	case err == nil:
		text, m.checksum, m.exists = note.Content, note.Checksum, true
		mentions = note.Mentions
	case errors.Is(err, apperr.ErrNotFound):
		m.status = "new note"
	default:
		return nil, err
	}

	m.state, err = svc.Reduce(ctx, mention.State{}, mention.Input{Text: text, Cursor: 0})
	if err != nil {
		return nil, err
	}
	m.state.Mentions = mentions
	return m, nil
}

// Run opens path in a full-screen editor and blocks until the user quits.
func Run(ctx context.Context, svc Service, path string, opts ...Option) error {
	m, err := New(ctx, svc, path, opts...)
	if err != nil {
		return err
	}
	_, err = tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}

// Text returns the buffer content.
func (m *Model) Text() string { return m.state.Text }

// State returns the current mention state.
func (m *Model) State() mention.State { return m.state }

// Dirty reports whether the buffer has unsaved changes.
func (m *Model) Dirty() bool { return m.dirty }

func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil
	case savedMsg:
		m.checksum, m.exists, m.dirty = msg.note.Checksum, true, false
		// Saving re-extracts against the freshest directory.
		m.state.Mentions = msg.note.Mentions
		m.err = nil
		m.status = "saved " + msg.note.Path
		return m, nil
	case errMsg:
		m.err = msg.err
		return m, nil
	case tea.KeyMsg:
		return m, m.handleKey(msg)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return tea.Quit
	case key.Matches(msg, m.keys.Save):
		return m.save()
	}

	if m.state.Open() {
		if k, ok := m.overlayKey(msg); ok {
			next := m.reduce(mention.KeyPress{Key: k})
			if next.Handled {
				if next.Text != m.state.Text {
					m.dirty = true
				}
				m.state = next
				return nil
			}
		}
	}

	runes := []rune(m.state.Text)
	cur := m.state.Cursor
	switch {
	case msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace:
		m.edit(insert(runes, cur, msg.Runes), cur+len(msg.Runes))
	case key.Matches(msg, m.keys.Enter):
		m.edit(insert(runes, cur, []rune{'\n'}), cur+1)
	case key.Matches(msg, m.keys.Backspace):
		if cur > 0 {
			m.edit(remove(runes, cur-1), cur-1)
		}
	case key.Matches(msg, m.keys.Delete):
		if cur < len(runes) {
			m.edit(remove(runes, cur), cur)
		}
	case key.Matches(msg, m.keys.Left):
		m.move(cur - 1)
	case key.Matches(msg, m.keys.Right):
		m.move(cur + 1)
	case key.Matches(msg, m.keys.Home):
		m.move(lineStart(runes, cur))
	case key.Matches(msg, m.keys.End):
		m.move(lineEnd(runes, cur))
	case key.Matches(msg, m.keys.Up):
		m.move(verticalMove(runes, cur, -1))
	case key.Matches(msg, m.keys.Down):
		m.move(verticalMove(runes, cur, 1))
	}
	return nil
}

// overlayKey maps a key press to the overlay key it stands for.
func (m *Model) overlayKey(msg tea.KeyMsg) (mention.Key, bool) {
	switch {
	case key.Matches(msg, m.keys.Up):
		return mention.KeyUp, true
	case key.Matches(msg, m.keys.Down):
		return mention.KeyDown, true
	case key.Matches(msg, m.keys.Enter):
		return mention.KeyEnter, true
	case key.Matches(msg, m.keys.Escape):
		return mention.KeyEscape, true
	}
	return "", false
}

func (m *Model) edit(runes []rune, cursor int) {
	m.dirty = true
	m.state = m.reduce(mention.Input{Text: string(runes), Cursor: cursor})
}

func (m *Model) move(cursor int) {
	m.state = m.reduce(mention.MoveCursor{Cursor: cursor})
}

func (m *Model) reduce(act mention.Action) mention.State {
	next, err := m.svc.Reduce(m.ctx, m.state, act)
	if err != nil {
		m.err = err
		return m.state
	}
	return next
}

func (m *Model) save() tea.Cmd {
	ctx, svc, path, content := m.ctx, m.svc, m.path, []byte(m.state.Text)
	exists, checksum := m.exists, m.checksum
	return func() tea.Msg {
		var (
			note *noteservice.NoteDetail
			err  error
		)
		if exists {
			note, err = svc.UpdateNote(ctx, path, content, checksum)
		} else {
			note, err = svc.CreateNote(ctx, path, content)
		}
		if errors.Is(err, apperr.ErrConflict) {
			return errMsg{fmt.Errorf("%s changed on disk; reopen it to merge", path)}
		}
		if err != nil {
			return errMsg{err}
		}
		return savedMsg{note}
	}
}

func insert(runes []rune, at int, ins []rune) []rune {
	out := make([]rune, 0, len(runes)+len(ins))
	out = append(out, runes[:at]...)
	out = append(out, ins...)
	return append(out, runes[at:]...)
}

func remove(runes []rune, at int) []rune {
	out := make([]rune, 0, len(runes))
	out = append(out, runes[:at]...)
	return append(out, runes[at+1:]...)
}

func lineStart(runes []rune, cur int) int {
	for i := cur; i > 0; i-- {
		if runes[i-1] == '\n' {
			return i
		}
	}
	return 0
}

func lineEnd(runes []rune, cur int) int {
	for i := cur; i < len(runes); i++ {
		if runes[i] == '\n' {
			return i
		}
	}
	return len(runes)
}

// verticalMove returns the offset one line up (dir -1) or down (dir 1),
// keeping the column where the target line is long enough.
func verticalMove(runes []rune, cur, dir int) int {
	start := lineStart(runes, cur)
	col := cur - start
	if dir < 0 {
		if start == 0 {
			return cur
		}
		prev := lineStart(runes, start-1)
		return min(prev+col, start-1)
	}
	end := lineEnd(runes, cur)
	if end == len(runes) {
		return cur
	}
	return min(end+1+col, lineEnd(runes, end+1))
}

func (m *Model) View() string {
	var b strings.Builder

	title := m.path
	if m.dirty {
		title += " *"
	}
	b.WriteString(titleStyle.Render(title) + "\n\n")
	b.WriteString(m.bufferView() + "\n")

	if m.state.Open() {
		b.WriteString(overlayStyle.Render(m.overlayView()) + "\n")
	}

	b.WriteString("\n" + m.summaryView() + "\n")
	switch {
	case m.err != nil:
		b.WriteString(errorStyle.Render(m.err.Error()) + "\n")
	case m.status != "":
		b.WriteString(statusStyle.Render(m.status) + "\n")
	}
	b.WriteString(m.help.View(m.keys))
	return b.String()
}

func (m *Model) bufferView() string {
	runes := []rune(m.state.Text)
	cur := min(max(m.state.Cursor, 0), len(runes))
	var b strings.Builder
	b.WriteString(string(runes[:cur]))
	switch {
	case cur == len(runes):
		b.WriteString(cursorStyle.Render(" "))
	case runes[cur] == '\n':
		b.WriteString(cursorStyle.Render(" ") + "\n")
	default:
		b.WriteString(cursorStyle.Render(string(runes[cur])))
	}
	if cur < len(runes) {
		b.WriteString(string(runes[cur+1:]))
	}
	return b.String()
}

func (m *Model) overlayView() string {
	reg := m.svc.Registry()
	t := m.state.Trigger
	if t.Kind == mention.NoMatch {
		return dimStyle.Render(fmt.Sprintf("no %s matches %q; type a slug to mention a new one", t.Type, t.Term))
	}
	lines := make([]string, 0, maxOverlayRows)
	first := 0
	if m.state.Highlight >= maxOverlayRows {
		first = m.state.Highlight - maxOverlayRows + 1
	}
	for i := first; i < len(m.state.Suggestions) && i < first+maxOverlayRows; i++ {
		c := m.state.Suggestions[i]
		line := fmt.Sprintf("%-24s %s", c.Name, dimStyle.Render(reg.Format(c.Type, c.Token())))
		if i == m.state.Highlight {
			line = selectedStyle.Render(fmt.Sprintf("%-24s %s", c.Name, reg.Format(c.Type, c.Token())))
		}
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

// summaryView renders the capped mention summary, e.g.
// "persons: john, mary, ann  places: office  +2 more".
func (m *Model) summaryView() string {
	s := mention.Summarize(m.state.Mentions, m.displayCap)
	if s.Total == 0 {
		return dimStyle.Render("no mentions")
	}
	var parts []string
	for _, g := range []struct {
		label string
		ms    []mention.Mention
	}{{"persons", s.Persons}, {"places", s.Places}, {"events", s.Events}} {
		if len(g.ms) == 0 {
			continue
		}
		names := make([]string, len(g.ms))
		for i, mm := range g.ms {
			if mm.IsNew {
				names[i] = newStyle.Render(mm.Slug + " (new)")
			} else {
				names[i] = knownStyle.Render(mm.Slug)
			}
		}
		parts = append(parts, g.label+": "+strings.Join(names, ", "))
	}
	if s.More > 0 {
		parts = append(parts, dimStyle.Render(fmt.Sprintf("+%d more", s.More)))
	}
	return strings.Join(parts, "  ")
}
