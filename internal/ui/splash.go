package ui

import "charm.land/lipgloss/v2"

const splashArt = `
 _       _      _
| |_ ___| | ___| |_ ___ _ __ _ __ ___
| __/ _ \ |/ _ \ __/ _ \ '__| '_ ` + "`" + ` _ \
| ||  __/ |  __/ ||  __/ |  | | | | | |
 \__\___|_|\___|\__\___|_|  |_| |_| |_|
`

// SplashModel renders a centered splash overlay on startup.
// It stays visible for at least the minimum duration even if
// the session check finishes sooner.
type SplashModel struct {
	visible       bool
	timerDone     bool
	sessionDone   bool
	width, height int
}

// NewSplashModel creates a visible splash.
func NewSplashModel() SplashModel {
	return SplashModel{visible: true}
}

// SetSize updates the terminal dimensions for centering.
func (s SplashModel) SetSize(w, h int) SplashModel {
	s.width = w
	s.height = h
	return s
}

// IsVisible reports whether the splash is still showing.
func (s SplashModel) IsVisible() bool {
	return s.visible
}

// TimerDone marks the minimum display duration as elapsed.
func (s SplashModel) TimerDone() SplashModel {
	s.timerDone = true
	if s.sessionDone {
		s.visible = false
	}
	return s
}

// SessionChecked marks the stored-session restore as finished, whatever its
// outcome. The splash dismisses only once the minimum timer has also elapsed.
func (s SplashModel) SessionChecked() SplashModel {
	s.sessionDone = true
	if s.timerDone {
		s.visible = false
	}
	return s
}

// View renders the splash box (without full-screen placement).
func (s SplashModel) View() string {
	if !s.visible || s.width == 0 || s.height == 0 {
		return ""
	}

	return lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(highlightColor).
		Padding(1, 3).
		Render(splashArt)
}

// BoxOffset returns the (x, y) needed to center the splash box
// within the terminal dimensions.
func (s SplashModel) BoxOffset() (int, int) {
	box := s.View()
	x := (s.width - lipgloss.Width(box)) / 2
	y := (s.height - lipgloss.Height(box)) / 2
	if x < 0 {
		x = 0
	}
	if y < 0 {
		y = 0
	}
	return x, y
}
