package mention

import (
	"strings"
	"unicode"
)

// TriggerKind tags the variant held by a Trigger.
type TriggerKind string

// Trigger kinds.
const (
	Idle    TriggerKind = "idle"
	Active  TriggerKind = "active"
	NoMatch TriggerKind = "no_match"
)

// Trigger describes the in-progress mention the user is typing, if any.
// Type, Term and Anchor are meaningful only when Kind is Active or NoMatch.
// Anchor is the rune offset of the triggering '@'.
type Trigger struct {
	Kind   TriggerKind `json:"kind"`
	Type   Type        `json:"type,omitempty"`
	Term   string      `json:"search_term,omitempty"`
	Anchor int         `json:"anchor_index"`
}

// IdleTrigger is the zero-activity trigger.
func IdleTrigger() Trigger {
	return Trigger{Kind: Idle, Anchor: -1}
}

// Open reports whether the trigger is waiting on a suggestion choice.
func (t Trigger) Open() bool {
	return t.Kind == Active || t.Kind == NoMatch
}

// Detect inspects the text before cursor (a rune offset) and reports whether
// the user is composing a mention. Only the nearest '@' before the cursor is
// considered.
func (r *Registry) Detect(text string, cursor int) Trigger {
	runes := []rune(text)
	cursor = clamp(cursor, 0, len(runes))

	anchor := -1
	for i := cursor - 1; i >= 0; i-- {
		if runes[i] == '@' {
			anchor = i
			break
		}
	}
	if anchor < 0 {
		return IdleTrigger()
	}

	after := string(runes[anchor+1 : cursor])
	for _, m := range r.markers {
		if !strings.HasPrefix(after, m.Code) {
			continue
		}
		rest := after[len(m.Code):]
		if rest == "" || (rest[0] != '.' && rest[0] != ' ') {
			continue
		}
		// A mention never spans lines.
		if strings.ContainsAny(rest, "\n\r") {
			return IdleTrigger()
		}
		return Trigger{
			Kind:   Active,
			Type:   m.Type,
			Term:   strings.TrimFunc(rest[1:], unicode.IsSpace),
			Anchor: anchor,
		}
	}

	// Either a marker still being typed ("@p"), or an '@' the user has moved
	// past. Neither produces suggestions.
	return IdleTrigger()
}

// Detect runs the default registry's detector.
func Detect(text string, cursor int) Trigger {
	return defaultRegistry.Detect(text, cursor)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
