package keymap_test

import (
	"testing"

	"github.com/mvolodin/teleterm/internal/domain"
	"github.com/mvolodin/teleterm/internal/keymap"
)

func TestMap_NormalMode(t *testing.T) {
	tests := []struct {
		key   string
		focus domain.Focus
		want  keymap.Action
	}{
		{"up", domain.FocusChats, keymap.ActMoveUp},
		{"down", domain.FocusChats, keymap.ActMoveDown},
		{"up", domain.FocusMessages, keymap.ActMoveUp},
		{"down", domain.FocusMessages, keymap.ActMoveDown},
		{"up", domain.FocusCompose, keymap.ActNone},
		{"tab", domain.FocusChats, keymap.ActFocusNext},
		{"shift+tab", domain.FocusChats, keymap.ActFocusPrev},
		{"esc", domain.FocusChats, keymap.ActExitMode},
		{"q", domain.FocusChats, keymap.ActQuit},
		{"i", domain.FocusChats, keymap.ActEnterCompose},
		{"s", domain.FocusChats, keymap.ActToggleSort},
		{"s", domain.FocusMessages, keymap.ActNone},
		{"/", domain.FocusChats, keymap.ActStartSearch},
		{"ctrl+c", domain.FocusCompose, keymap.ActQuit},
		{"?", domain.FocusChats, keymap.ActToggleHelp},
		{"f1", domain.FocusMessages, keymap.ActToggleHelp},
		{"enter", domain.FocusChats, keymap.ActNone},
		{"x", domain.FocusChats, keymap.ActNone},
		{"f5", domain.FocusChats, keymap.ActNone},
	}

	for _, tt := range tests {
		got := keymap.Map(tt.key, tt.focus, domain.ModeNormal)
		if got.Action != tt.want {
			t.Errorf("Map(%q, %v, Normal) = %v, want %v", tt.key, tt.focus, got.Action, tt.want)
		}
	}
}

func TestMap_CyrillicLayoutAliases(t *testing.T) {
	aliases := map[string]string{
		"й": "q",
		"ш": "i",
		"ы": "s",
		".": "/",
	}

	for cyr, lat := range aliases {
		got := keymap.Map(cyr, domain.FocusChats, domain.ModeNormal)
		want := keymap.Map(lat, domain.FocusChats, domain.ModeNormal)
		if got != want {
			t.Errorf("Map(%q) = %v, Map(%q) = %v; layout aliases must match", cyr, got, lat, want)
		}
	}
}

func TestMap_HotkeysAreTextInComposeAndSearch(t *testing.T) {
	for _, mode := range []domain.Mode{domain.ModeCompose, domain.ModeSearch} {
		for _, key := range []string{"q", "й", "i", "s", "/", "."} {
			got := keymap.Map(key, domain.FocusCompose, mode)
			if got.Action != keymap.ActInsertRune {
				t.Errorf("Map(%q, mode %v) = %v, want ActInsertRune", key, mode, got.Action)
			}
			if string(got.Rune) != key {
				t.Errorf("Map(%q) rune = %q, want %q", key, got.Rune, key)
			}
		}
	}
}

func TestMap_EnterSendsOnlyInCompose(t *testing.T) {
	if got := keymap.Map("enter", domain.FocusCompose, domain.ModeCompose); got.Action != keymap.ActSendComposed {
		t.Errorf("enter in compose = %v, want ActSendComposed", got.Action)
	}
	if got := keymap.Map("enter", domain.FocusChats, domain.ModeSearch); got.Action != keymap.ActNone {
		t.Errorf("enter in search = %v, want ActNone", got.Action)
	}
}

func TestMap_SpaceInsertsInCompose(t *testing.T) {
	got := keymap.Map("space", domain.FocusCompose, domain.ModeCompose)
	if got.Action != keymap.ActInsertRune || got.Rune != ' ' {
		t.Errorf("space in compose = %+v, want insert ' '", got)
	}
	if got := keymap.Map("space", domain.FocusChats, domain.ModeNormal); got.Action != keymap.ActNone {
		t.Errorf("space in normal = %v, want ActNone", got.Action)
	}
}

func TestMap_Deterministic(t *testing.T) {
	first := keymap.Map("ы", domain.FocusChats, domain.ModeNormal)
	for i := 0; i < 100; i++ {
		if got := keymap.Map("ы", domain.FocusChats, domain.ModeNormal); got != first {
			t.Fatalf("Map not deterministic: %v vs %v", got, first)
		}
	}
}

func TestMap_NoPhysicalKeyConflicts(t *testing.T) {
	// Every hotkey must resolve to exactly one command from chat focus.
	seen := map[keymap.Action][]string{}
	for _, key := range []string{"q", "й", "i", "ш", "s", "ы", "/", "."} {
		cmd := keymap.Map(key, domain.FocusChats, domain.ModeNormal)
		if cmd.Action == keymap.ActNone {
			t.Errorf("hotkey %q maps to ActNone", key)
			continue
		}
		seen[cmd.Action] = append(seen[cmd.Action], key)
	}
	for act, keys := range seen {
		if len(keys) != 2 {
			t.Errorf("action %v bound to %v, want exactly one Latin and one Cyrillic key", act, keys)
		}
	}
}
