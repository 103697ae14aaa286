package keymap

import (
	"unicode/utf8"

	"github.com/mvolodin/teleterm/internal/domain"
)

// Action is a logical command produced by mapping a key event.
type Action int

const (
	ActNone Action = iota
	ActFocusNext
	ActFocusPrev
	ActMoveUp
	ActMoveDown
	ActEnterCompose
	ActExitMode
	ActSendComposed
	ActStartSearch
	ActToggleSort
	ActToggleHelp
	ActQuit
	ActInsertRune
	ActBackspace
)

// Command pairs an Action with its rune payload (set for ActInsertRune).
type Command struct {
	Action Action
	Rune   rune
}

// Hotkey tables are keyed by logical command and enumerate every accepted
// physical key, so a QWERTY key and its ЙЦУКЕН counterpart map to the same
// command. Keys must not appear under two commands (see the conflict test).
var hotkeys = map[Action][]string{
	ActQuit:         {"q", "й"},
	ActEnterCompose: {"i", "ш"},
	ActToggleSort:   {"s", "ы"},
	ActStartSearch:  {"/", "."},
	ActToggleHelp:   {"?", "f1"},
}

func isHotkey(key string, act Action) bool {
	for _, k := range hotkeys[act] {
		if key == k {
			return true
		}
	}
	return false
}

// Map translates a key event (bubbletea key string form) into a Command,
// given the focused pane and input mode. It is total: every input yields
// exactly one Command, defaulting to ActNone.
func Map(key string, focus domain.Focus, mode domain.Mode) Command {
	switch key {
	case "ctrl+c":
		return Command{Action: ActQuit}
	case "tab":
		return Command{Action: ActFocusNext}
	case "shift+tab":
		return Command{Action: ActFocusPrev}
	case "up":
		if focus == domain.FocusCompose {
			return Command{Action: ActNone}
		}
		return Command{Action: ActMoveUp}
	case "down":
		if focus == domain.FocusCompose {
			return Command{Action: ActNone}
		}
		return Command{Action: ActMoveDown}
	case "enter":
		if mode == domain.ModeCompose {
			return Command{Action: ActSendComposed}
		}
		return Command{Action: ActNone}
	case "backspace":
		return Command{Action: ActBackspace}
	case "esc":
		return Command{Action: ActExitMode}
	case "f1":
		return Command{Action: ActToggleHelp}
	case "space":
		if mode == domain.ModeCompose || mode == domain.ModeSearch {
			return Command{Action: ActInsertRune, Rune: ' '}
		}
		return Command{Action: ActNone}
	}

	r, size := utf8.DecodeRuneInString(key)
	printable := size == len(key) && r != utf8.RuneError
	if !printable {
		return Command{Action: ActNone}
	}

	// In Compose and Search every printable key is text, hotkeys included.
	if mode == domain.ModeCompose || mode == domain.ModeSearch {
		return Command{Action: ActInsertRune, Rune: r}
	}

	switch {
	case isHotkey(key, ActStartSearch):
		return Command{Action: ActStartSearch}
	case isHotkey(key, ActToggleSort) && focus == domain.FocusChats:
		return Command{Action: ActToggleSort}
	case isHotkey(key, ActEnterCompose):
		return Command{Action: ActEnterCompose}
	case isHotkey(key, ActToggleHelp):
		return Command{Action: ActToggleHelp}
	case isHotkey(key, ActQuit):
		return Command{Action: ActQuit}
	}

	return Command{Action: ActNone}
}
