package ui

import (
	"charm.land/lipgloss/v2"
)

// composeRenderedHeight is the total height of the compose box (1 inner + 2 border).
const composeRenderedHeight = 3

// ComposeModel renders the message draft. The draft text itself is owned by
// the root model, which feeds every accepted rune through here.
type ComposeModel struct {
	value     string
	composing bool
	focused   bool
	width     int
	height    int
}

func NewComposeModel() ComposeModel {
	return ComposeModel{height: composeRenderedHeight}
}

func (m ComposeModel) SetSize(w, h int) ComposeModel {
	m.width = w
	m.height = h
	return m
}

func (m ComposeModel) SetFocused(f bool) ComposeModel {
	m.focused = f
	return m
}

// SetValue replaces the rendered draft text.
func (m ComposeModel) SetValue(v string) ComposeModel {
	m.value = v
	return m
}

// SetComposing toggles the insert cursor.
func (m ComposeModel) SetComposing(c bool) ComposeModel {
	m.composing = c
	return m
}

func (m ComposeModel) View() string {
	contentW := m.width - 4
	if contentW < 1 {
		contentW = 1
	}

	var line string
	switch {
	case m.value == "" && !m.composing:
		line = hintStyle.Render(truncateWidth("press i to compose", contentW))
	default:
		// Show the tail of the draft when it outgrows the box.
		text := m.value
		if r := []rune(text); len(r) > contentW-1 {
			text = "…" + string(r[len(r)-(contentW-2):])
		}
		line = text
		if m.composing {
			line += selectedStyle.Render(" ")
		}
	}

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Padding(0, 1).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused || m.composing)

	return style.Render(truncateHeight(line, m.height-2))
}
