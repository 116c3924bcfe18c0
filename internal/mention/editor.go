package mention

// Key is a navigation key understood by the suggestion overlay.
type Key string

// Overlay keys.
const (
	KeyDown   Key = "down"
	KeyUp     Key = "up"
	KeyEnter  Key = "enter"
	KeyEscape Key = "escape"
)

// State is one editing session's mention state. Values are never mutated in
// place: Reduce returns a new State for every action.
type State struct {
	Text        string      `json:"text"`
	Cursor      int         `json:"cursor"`
	Trigger     Trigger     `json:"trigger"`
	Suggestions []Candidate `json:"suggestions"`
	Highlight   int         `json:"highlight"`
	Mentions    Index       `json:"mentions"`
	// Handled is set when the last event was consumed by the overlay, so the
	// caller must not apply its default action (newline, cursor move).
	Handled bool `json:"handled"`
}

// NewState returns the state for text with the cursor at its end.
func NewState(text string, dir *Directory) State {
	s := State{Text: text, Cursor: len([]rune(text)), Mentions: Extract(text, dir)}
	return DefaultRegistry().refresh(s, dir)
}

// Open reports whether the suggestion overlay is showing, either with
// suggestions or with the "no match" hint.
func (s State) Open() bool {
	return s.Trigger.Open()
}

// Highlighted returns the highlighted suggestion, if any.
func (s State) Highlighted() (Candidate, bool) {
	if len(s.Suggestions) == 0 {
		return Candidate{}, false
	}
	return s.Suggestions[clamp(s.Highlight, 0, len(s.Suggestions)-1)], true
}

// Action is an input to Reduce.
type Action interface {
	isAction()
}

// Input replaces the text and cursor after a keystroke or paste.
type Input struct {
	Text   string
	Cursor int
}

// MoveCursor places the cursor without editing.
type MoveCursor struct {
	Cursor int
}

// KeyPress is an overlay key.
type KeyPress struct {
	Key Key
}

// Select commits the suggestion at Index, as a pointer click would.
type Select struct {
	Index int
}

// Refresh signals that a new directory snapshot is available.
type Refresh struct{}

func (Input) isAction()      {}
func (MoveCursor) isAction() {}
func (KeyPress) isAction()   {}
func (Select) isAction()     {}
func (Refresh) isAction()    {}

// Reduce applies act to s using the directory snapshot dir.
func (r *Registry) Reduce(dir *Directory, s State, act Action) State {
	s.Handled = false
	switch e := act.(type) {
	case Input:
		s.Text = e.Text
		s.Cursor = clamp(e.Cursor, 0, len([]rune(e.Text)))
		s.Highlight = 0
		return r.refresh(s, dir)
	case MoveCursor:
		prev := s.Trigger
		s.Cursor = clamp(e.Cursor, 0, len([]rune(s.Text)))
		s = r.refresh(s, dir)
		if s.Trigger.Anchor != prev.Anchor || s.Trigger.Type != prev.Type {
			s.Highlight = 0
		}
		return s
	case Refresh:
		return r.refresh(s, dir)
	case Select:
		if !s.Open() || e.Index < 0 || e.Index >= len(s.Suggestions) {
			return s
		}
		s.Highlight = e.Index
		return r.commit(s, dir)
	case KeyPress:
		return r.key(s, dir, e.Key)
	}
	return s
}

// Reduce runs the default registry's reducer.
func Reduce(dir *Directory, s State, act Action) State {
	return defaultRegistry.Reduce(dir, s, act)
}

func (r *Registry) key(s State, dir *Directory, k Key) State {
	if !s.Open() {
		return s
	}
	n := len(s.Suggestions)
	switch k {
	case KeyDown:
		if n == 0 {
			return s
		}
		s.Highlight = (clamp(s.Highlight, 0, n-1) + 1) % n
		s.Handled = true
	case KeyUp:
		if n == 0 {
			return s
		}
		i := clamp(s.Highlight, 0, n-1)
		if i == 0 {
			s.Highlight = n - 1
		} else {
			s.Highlight = i - 1
		}
		s.Handled = true
	case KeyEnter:
		if n == 0 {
			return s
		}
		return r.commit(s, dir)
	case KeyEscape:
		s.Trigger = IdleTrigger()
		s.Suggestions = nil
		s.Highlight = 0
		s.Handled = true
	}
	return s
}

// commit replaces text[anchor:cursor] with the highlighted suggestion's
// canonical marker and moves the cursor past it.
func (r *Registry) commit(s State, dir *Directory) State {
	c, ok := s.Highlighted()
	if !ok || s.Trigger.Kind != Active {
		return s
	}
	token := r.Format(s.Trigger.Type, c.Token())
	if token == "" || c.Token() == "" {
		// Stale suggestion with nothing to insert; keep the overlay's key.
		s.Handled = true
		return s
	}
	runes := []rune(s.Text)
	anchor := clamp(s.Trigger.Anchor, 0, len(runes))
	cursor := clamp(s.Cursor, anchor, len(runes))

	out := make([]rune, 0, len(runes)+len(token))
	out = append(out, runes[:anchor]...)
	out = append(out, []rune(token)...)
	out = append(out, runes[cursor:]...)

	s.Text = string(out)
	s.Cursor = anchor + len([]rune(token))
	s.Trigger = IdleTrigger()
	s.Suggestions = nil
	s.Highlight = 0
	s.Mentions = r.Extract(s.Text, dir)
	s.Handled = true
	return s
}

// refresh re-runs detection and filtering for the current text and cursor.
func (r *Registry) refresh(s State, dir *Directory) State {
	t := r.Detect(s.Text, s.Cursor)
	s.Suggestions = dir.Filter(t)
	s.Trigger = Resolve(t, len(s.Suggestions))
	if len(s.Suggestions) == 0 {
		s.Highlight = 0
	} else {
		s.Highlight = clamp(s.Highlight, 0, len(s.Suggestions)-1)
	}
	return s
}
