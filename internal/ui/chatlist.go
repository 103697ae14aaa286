package ui

import (
	"fmt"
	"strings"

	"charm.land/lipgloss/v2"

	"github.com/mvolodin/teleterm/internal/domain"
)

// rowHeight is the number of lines one chat entry occupies (title + preview).
const rowHeight = 2

// ChatListModel renders the chat sidebar. Selection and filtering live in the
// store; this model only draws the projection it is handed.
type ChatListModel struct {
	chats    []domain.ChatSummary
	selected int
	offset   int

	sortMode  domain.SortMode
	searching bool
	query     string

	focused bool
	width   int
	height  int
}

func NewChatListModel() ChatListModel {
	return ChatListModel{}
}

// WithChats replaces the visible chats and the selected index.
func (m ChatListModel) WithChats(chats []domain.ChatSummary, selected int) ChatListModel {
	m.chats = chats
	m.selected = selected
	m = m.clampOffset()
	return m
}

// SetSortMode updates the ordering label shown in the pane title.
func (m ChatListModel) SetSortMode(mode domain.SortMode) ChatListModel {
	m.sortMode = mode
	return m
}

// SetSearch updates the live filter line shown in the pane title.
func (m ChatListModel) SetSearch(query string, active bool) ChatListModel {
	m.query = query
	m.searching = active
	return m
}

func (m ChatListModel) SetSize(w, h int) ChatListModel {
	m.width = w
	m.height = h
	m = m.clampOffset()
	return m
}

func (m ChatListModel) SetFocused(f bool) ChatListModel {
	m.focused = f
	return m
}

// visibleRows reports how many chat entries fit below the title line.
func (m ChatListModel) visibleRows() int {
	// Border takes 2 lines, the title line one more.
	n := (m.height - 3) / rowHeight
	if n < 1 {
		n = 1
	}
	return n
}

// clampOffset keeps the selected chat inside the scroll window.
func (m ChatListModel) clampOffset() ChatListModel {
	rows := m.visibleRows()
	if m.selected < m.offset {
		m.offset = m.selected
	}
	if m.selected >= m.offset+rows {
		m.offset = m.selected - rows + 1
	}
	if m.offset < 0 {
		m.offset = 0
	}
	return m
}

func (m ChatListModel) titleLine(contentWidth int) string {
	var title string
	if m.searching || m.query != "" {
		title = "Chats /" + m.query
		if m.searching {
			title += "▌"
		}
	} else {
		title = fmt.Sprintf("Chats · %s", m.sortMode)
	}
	style := lipgloss.NewStyle().Bold(true).MaxWidth(contentWidth).MaxHeight(1)
	return style.Render(truncateWidth(title, contentWidth))
}

func (m ChatListModel) View() string {
	contentH := m.height - 2
	contentW := m.width - 2
	if contentH < 0 {
		contentH = 0
	}
	if contentW < 1 {
		contentW = 1
	}

	var b strings.Builder
	b.WriteString(m.titleLine(contentW))
	b.WriteString("\n")

	rows := m.visibleRows()
	end := m.offset + rows
	if end > len(m.chats) {
		end = len(m.chats)
	}
	for i := m.offset; i < end; i++ {
		c := m.chats[i]

		// Account for the cursor prefix ("  " or "> ") in available width.
		avail := contentW - 2
		if avail < 1 {
			avail = 1
		}

		cursor := "  "
		titleStyle := lipgloss.NewStyle().MaxWidth(avail).MaxHeight(1)
		descStyle := previewStyle.MaxWidth(avail).MaxHeight(1)
		if i == m.selected {
			cursor = "> "
			titleStyle = titleStyle.Foreground(lipgloss.Color("170")).Bold(true)
			descStyle = descStyle.Foreground(lipgloss.Color("250"))
		}

		title := c.Title
		if c.Stale {
			title = staleStyle.Render(truncateWidth(title, avail))
		} else {
			badge := ""
			if c.UnreadCount > 0 {
				badge = " " + unreadBadgeStyle.Render(fmt.Sprintf(" %d ", c.UnreadCount))
				titleStyle = titleStyle.Bold(true)
			}
			title = titleStyle.Render(truncateWidth(title, avail-lipgloss.Width(badge))) + badge
		}

		preview := strings.ReplaceAll(c.LastMessage, "\n", " ")
		fmt.Fprintf(&b, "%s%s\n  %s\n", cursor, title, descStyle.Render(truncateWidth(preview, avail)))
	}

	if len(m.chats) == 0 {
		hint := "no chats"
		if m.query != "" {
			hint = "no matches"
		}
		b.WriteString(hintStyle.Render(hint))
	}

	content := truncateHeight(strings.TrimRight(b.String(), "\n"), contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	return style.Render(content)
}
