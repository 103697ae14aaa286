package ui

import (
	"strings"
	"time"

	"charm.land/lipgloss/v2"

	"github.com/mvolodin/teleterm/internal/domain"
)

var (
	statusBarBg     = lipgloss.Color("#353533")
	statusPillBg    = lipgloss.Color("#FF5FAF")
	statusPillBgOff = lipgloss.Color("#6C5098")
	statusTimeBg    = lipgloss.Color("#6124DF")
	statusSortBg    = lipgloss.Color("#2E86AB")
)

type statusModel struct {
	text      string
	connected bool
	chatTitle string
	userName  string
	sortMode  domain.SortMode
	now       time.Time
	width     int
}

func newStatusModel() statusModel {
	return statusModel{
		text: "Connecting...",
		now:  time.Now(),
	}
}

// SetWidth sets the full terminal width for the status bar.
func (m statusModel) SetWidth(w int) statusModel {
	m.width = w
	return m
}

// SetChatTitle updates the active chat name shown on the left.
func (m statusModel) SetChatTitle(title string) statusModel {
	m.chatTitle = title
	return m
}

// SetUserName updates the logged-in user name shown on the right.
func (m statusModel) SetUserName(name string) statusModel {
	m.userName = name
	return m
}

// SetText replaces the status message shown in the pill.
func (m statusModel) SetText(text string, connected bool) statusModel {
	m.text = text
	m.connected = connected
	return m
}

// SetSortMode updates the chat ordering shown next to the clock.
func (m statusModel) SetSortMode(mode domain.SortMode) statusModel {
	m.sortMode = mode
	return m
}

// SetClock updates the time shown in the clock pill.
func (m statusModel) SetClock(t time.Time) statusModel {
	m.now = t
	return m
}

// View renders a full-width status bar:
// [STATUS pill] [chat title] ... [sort pill] [user name] [time pill]
func (m statusModel) View() string {
	pillBg := statusPillBgOff
	if m.connected {
		pillBg = statusPillBg
	}
	pillStyle := lipgloss.NewStyle().
		Background(pillBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	pill := pillStyle.Render(strings.ToUpper(m.text))

	titleStyle := lipgloss.NewStyle().
		Background(statusBarBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	title := titleStyle.Render(m.chatTitle)

	sortStyle := lipgloss.NewStyle().
		Background(statusSortBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Padding(0, 1)
	sortPill := sortStyle.Render(m.sortMode.String())

	clockStyle := lipgloss.NewStyle().
		Background(statusTimeBg).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	timePill := clockStyle.Render(m.now.Format("15:04"))

	userStyle := lipgloss.NewStyle().
		Background(lipgloss.Color("#7B5EA7")).
		Foreground(lipgloss.Color("#FFFFFF")).
		Bold(true).
		Padding(0, 1)
	userPill := userStyle.Render(m.userName)

	left := pill + title
	right := sortPill + userPill + timePill

	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right)
	if gap < 0 {
		gap = 0
	}
	filler := lipgloss.NewStyle().
		Background(statusBarBg).
		Render(strings.Repeat(" ", gap))

	barStyle := lipgloss.NewStyle().
		Background(statusBarBg).
		Width(m.width)

	return barStyle.Render(left + filler + right)
}
