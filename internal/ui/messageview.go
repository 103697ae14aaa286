package ui

import (
	"fmt"
	"strings"

	"charm.land/bubbles/v2/viewport"
	"charm.land/lipgloss/v2"
	"github.com/charmbracelet/glamour"

	"github.com/mvolodin/teleterm/internal/domain"
)

// MessageViewModel displays messages using a viewport and glamour for markdown.
type MessageViewModel struct {
	viewport viewport.Model
	renderer *glamour.TermRenderer
	focused  bool
	width    int
	height   int

	messages   []domain.Message
	pendingNew int  // incoming messages below the current scroll position
	loading    bool // true while fetching older history
	hasMore    bool // false when history is exhausted
}

func NewMessageViewModel() MessageViewModel {
	vp := viewport.New()
	return MessageViewModel{viewport: vp}
}

// ScrollUp moves one line up. needOlder is true when the view hit the top and
// an older history page should be fetched.
func (m MessageViewModel) ScrollUp() (MessageViewModel, bool) {
	m.viewport.ScrollUp(1)
	needOlder := m.viewport.YOffset() == 0 && !m.loading && m.hasMore && len(m.messages) > 0
	if needOlder {
		m.loading = true
	}
	return m, needOlder
}

// ScrollDown moves one line down.
func (m MessageViewModel) ScrollDown() MessageViewModel {
	m.viewport.ScrollDown(1)
	if m.viewport.AtBottom() {
		m.pendingNew = 0
	}
	return m
}

// AtBottom reports whether the viewport is scrolled to the latest message.
func (m MessageViewModel) AtBottom() bool {
	return m.viewport.AtBottom()
}

// OldestLoadedChat returns the chat the current content belongs to, 0 if none.
func (m MessageViewModel) OldestLoadedChat() int64 {
	if len(m.messages) == 0 {
		return 0
	}
	return m.messages[0].ChatID
}

func (m MessageViewModel) View() string {
	contentH := m.height - 2
	if contentH < 0 {
		contentH = 0
	}

	content := truncateHeight(m.viewport.View(), contentH)

	style := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		Width(m.width).
		Height(m.height)
	style = applyBorderColor(style, m.focused)

	out := style.Render(content)

	if m.pendingNew > 0 {
		label := newMsgStyle.Render(fmt.Sprintf(" ↓ %d new ", m.pendingNew))
		x := m.width - lipgloss.Width(label) - 2
		if x < 0 {
			x = 0
		}
		bg := lipgloss.NewLayer(out)
		fg := lipgloss.NewLayer(label).X(x).Y(m.height - 1).Z(1)
		out = lipgloss.NewCompositor(bg, fg).Render()
	}
	return out
}

func (m MessageViewModel) SetSize(w, h int) MessageViewModel {
	m.width = w
	m.height = h
	// Viewport inner: subtract border (2)
	vpW := w - 2
	vpH := h - 2
	if vpW < 1 {
		vpW = 1
	}
	if vpH < 1 {
		vpH = 1
	}
	m.viewport.SetWidth(vpW)
	m.viewport.SetHeight(vpH)
	m = m.recreateRenderer()
	m = m.renderContentInner(m.viewport.AtBottom())
	return m
}

func (m MessageViewModel) SetFocused(f bool) MessageViewModel {
	m.focused = f
	return m
}

// SetPendingNew sets the count shown in the "new messages" indicator.
func (m MessageViewModel) SetPendingNew(n int) MessageViewModel {
	m.pendingNew = n
	return m
}

// PendingNew returns the current unseen-below-scroll count.
func (m MessageViewModel) PendingNew() int {
	return m.pendingNew
}

// SetMessages replaces the content. When stick is true the view scrolls to
// the bottom, otherwise the current offset is kept.
func (m MessageViewModel) SetMessages(msgs []domain.Message, stick bool) MessageViewModel {
	fresh := len(m.messages) == 0 || m.chatChanged(msgs)
	m.messages = msgs
	if fresh {
		m.hasMore = true
		m.loading = false
		m.pendingNew = 0
		stick = true
	}
	m = m.renderContentInner(stick)
	return m
}

func (m MessageViewModel) chatChanged(msgs []domain.Message) bool {
	if len(msgs) == 0 {
		return true
	}
	return msgs[0].ChatID != m.messages[0].ChatID
}

// AbortLoading clears the in-flight flag after a failed history fetch so a
// later scroll can retry.
func (m MessageViewModel) AbortLoading() MessageViewModel {
	m.loading = false
	return m
}

// PrependOlder replaces the content with all (which includes an older page
// merged at the front) and preserves the visual scroll position.
func (m MessageViewModel) PrependOlder(all []domain.Message, got int) MessageViewModel {
	m.loading = false
	m.hasMore = got > 0
	if got == 0 {
		return m
	}

	oldTotalLines := m.viewport.TotalLineCount()
	m.messages = all
	m = m.renderContentInner(false)

	// Keep the previously visible line in place.
	delta := m.viewport.TotalLineCount() - oldTotalLines
	if delta < 0 {
		delta = 0
	}
	m.viewport.SetYOffset(delta)
	return m
}

func (m MessageViewModel) recreateRenderer() MessageViewModel {
	wordWrap := m.viewport.Width() - 2
	if wordWrap < 10 {
		wordWrap = 10
	}
	r, err := glamour.NewTermRenderer(
		glamour.WithStylePath("dark"),
		glamour.WithWordWrap(wordWrap),
	)
	if err == nil {
		m.renderer = r
	}
	return m
}

func (m MessageViewModel) renderContentInner(gotoBottom bool) MessageViewModel {
	var b strings.Builder
	var currentDate string

	for _, msg := range m.messages {
		msgDate := msg.Timestamp.Format("January 2, 2006")
		if msgDate != currentDate {
			if currentDate != "" {
				b.WriteString("\n")
			}
			sep := daySeparatorStyle.Render(fmt.Sprintf("───── %s ─────", msgDate))
			b.WriteString(sep + "\n")
			currentDate = msgDate
		}

		ts := timeStyle.Render(msg.Timestamp.Format("15:04"))

		var name string
		if msg.Out {
			name = outNameStyle.Render(msg.SenderName + ":")
		} else {
			name = inNameStyle.Render(msg.SenderName + ":")
		}

		marker := ""
		if msg.Out {
			switch msg.Status {
			case domain.StatusPending:
				marker = " " + pendingStyle.Render("⋯")
			case domain.StatusFailed:
				marker = " " + failedStyle.Render("✗ failed")
			}
		}

		text := msg.Text
		multiLine := strings.Contains(text, "\n")
		if msg.HasMarkdown {
			rendered := m.renderMessageText(text)
			fmt.Fprintf(&b, "%s %s%s\n%s\n", ts, name, marker, rendered)
			b.WriteString("\n")
		} else if multiLine {
			fmt.Fprintf(&b, "%s %s%s\n%s\n", ts, name, marker, text)
			b.WriteString("\n")
		} else {
			fmt.Fprintf(&b, "%s %s %s%s\n", ts, name, text, marker)
		}
	}

	// Wrap content to viewport width so long lines don't overflow
	wrapped := lipgloss.NewStyle().Width(m.viewport.Width()).Render(b.String())
	m.viewport.SetContent(wrapped)
	if gotoBottom {
		m.viewport.GotoBottom()
		m.pendingNew = 0
	}
	return m
}

func (m MessageViewModel) renderMessageText(text string) string {
	if m.renderer == nil {
		return text
	}

	// Glamour collapses single newlines (standard markdown paragraph
	// continuation). To preserve line breaks from Telegram while still
	// supporting multi-line markdown constructs (tables, code blocks),
	// split text into blocks by blank lines. Blocks that are multi-line
	// markdown (tables, fenced code) are rendered as a whole; regular
	// text blocks are rendered line-by-line to preserve line breaks.
	blocks := strings.Split(text, "\n\n")
	renderedBlocks := make([]string, len(blocks))

	for i, block := range blocks {
		if block == "" {
			renderedBlocks[i] = ""
			continue
		}

		if isMultiLineMarkdown(block) {
			renderedBlocks[i] = m.renderBlock(block)
		} else {
			// Render each line individually to preserve line breaks.
			lines := strings.Split(block, "\n")
			renderedLines := make([]string, len(lines))
			for j, line := range lines {
				if line == "" {
					renderedLines[j] = ""
				} else {
					renderedLines[j] = m.renderBlock(line)
				}
			}
			renderedBlocks[i] = strings.Join(renderedLines, "\n")
		}
	}

	return strings.Join(renderedBlocks, "\n")
}

// renderBlock renders a single text block through glamour, trimming whitespace.
func (m MessageViewModel) renderBlock(text string) string {
	r, err := m.renderer.Render(text)
	if err != nil {
		return text
	}
	r = strings.TrimRight(r, "\n ")
	r = strings.TrimLeft(r, "\n")
	return r
}

// isMultiLineMarkdown returns true if the block is a multi-line markdown
// construct that must be rendered as a whole (tables, fenced code blocks).
func isMultiLineMarkdown(block string) bool {
	if !strings.Contains(block, "\n") {
		return false
	}
	trimmed := strings.TrimSpace(block)
	// Fenced code blocks.
	if strings.HasPrefix(trimmed, "```") {
		return true
	}
	// Tables: all lines contain pipes.
	lines := strings.Split(trimmed, "\n")
	allPipes := true
	for _, line := range lines {
		if !strings.Contains(line, "|") {
			allPipes = false
			break
		}
	}
	return allPipes
}
