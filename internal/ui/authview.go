package ui

import (
	"fmt"

	"charm.land/bubbles/v2/textinput"
	tea "charm.land/bubbletea/v2"
	"charm.land/lipgloss/v2"

	"github.com/mvolodin/teleterm/internal/auth"
)

// AuthModel renders the login flow: phone, code and two-factor password
// prompts driven by the auth state machine.
type AuthModel struct {
	input   textinput.Model
	state   auth.State
	busy    bool
	errText string
	width   int
	height  int
}

func NewAuthModel() AuthModel {
	ti := textinput.New()
	ti.Prompt = "> "
	ti.Focus()
	return AuthModel{input: ti}
}

// Show syncs the prompt with the machine state. busy disables input while a
// step is in flight.
func (m AuthModel) Show(st auth.State, busy bool) AuthModel {
	stageChanged := st.Kind != m.state.Kind
	m.state = st
	m.busy = busy

	if stageChanged {
		m.input.SetValue("")
		m.input.EchoMode = textinput.EchoNormal
		switch st.Kind {
		case auth.AwaitingCode:
			m.input.Placeholder = "12345"
		case auth.AwaitingPassword:
			m.input.EchoMode = textinput.EchoPassword
			m.input.Placeholder = ""
		default:
			m.input.Placeholder = "+1 555 0100"
		}
	}

	m.errText = ""
	if st.Kind == auth.Failed {
		m.errText = reasonText(st.Reason)
	}
	return m
}

// Value returns the current input text.
func (m AuthModel) Value() string {
	return m.input.Value()
}

// Reset clears the input text.
func (m AuthModel) Reset() AuthModel {
	m.input.SetValue("")
	return m
}

func (m AuthModel) SetSize(w, h int) AuthModel {
	m.width = w
	m.height = h
	return m
}

func (m AuthModel) Update(msg tea.Msg) (AuthModel, tea.Cmd) {
	if m.busy {
		return m, nil
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m AuthModel) promptLabel() string {
	switch m.state.Kind {
	case auth.AwaitingCode:
		phone := m.state.Phone
		if phone == "" {
			return "Enter the login code"
		}
		return fmt.Sprintf("Enter the code sent to %s", phone)
	case auth.AwaitingPassword:
		if m.state.Hint != "" {
			return fmt.Sprintf("Two-factor password (hint: %s)", m.state.Hint)
		}
		return "Two-factor password"
	default:
		return "Phone number (international format)"
	}
}

func (m AuthModel) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(highlightColor).Render("teleterm login")

	var status string
	switch {
	case m.busy:
		status = hintStyle.Render("checking…")
	case m.errText != "":
		status = errorStyle.Render(m.errText)
	default:
		status = hintStyle.Render("Enter to submit · Ctrl+C to quit")
	}

	body := lipgloss.JoinVertical(lipgloss.Left,
		title,
		"",
		m.promptLabel(),
		m.input.View(),
		"",
		status,
	)

	box := lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(highlightColor).
		Padding(1, 3).
		Render(body)

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}

func reasonText(r auth.FailReason) string {
	switch r {
	case auth.FailInvalidCode:
		return "The code was rejected. Enter your phone number to start over."
	case auth.FailInvalidPassword:
		return "Wrong password. Enter your phone number to start over."
	case auth.FailRateLimited:
		return "Too many attempts, Telegram asked us to slow down. Try again later."
	default:
		return "Sign-in failed. Enter your phone number to start over."
	}
}
