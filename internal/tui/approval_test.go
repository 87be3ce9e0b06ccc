package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
)

func TestConfirmModelKeys(t *testing.T) {
	tests := []struct {
		name     string
		msg      tea.KeyMsg
		answered bool
		accepted bool
	}{
		{name: "yes", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("y")}, answered: true, accepted: true},
		{name: "upper yes", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("Y")}, answered: true, accepted: true},
		{name: "no", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("n")}, answered: true},
		{name: "escape", msg: tea.KeyMsg{Type: tea.KeyEsc}, answered: true},
		{name: "other", msg: tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("x")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			next, cmd := newConfirmModel("Accept request?", "gpt-4o").Update(tt.msg)
			m := next.(confirmModel)
			if m.answered != tt.answered || m.accepted != tt.accepted {
				t.Fatalf("answered=%t accepted=%t", m.answered, m.accepted)
			}
			if tt.answered && cmd == nil {
				t.Fatal("expected quit command after an answer")
			}
		})
	}
}

func TestConfirmModelView(t *testing.T) {
	m := newConfirmModel("Accept request?", "POST /v1/messages")
	if view := m.View(); view == "" {
		t.Fatal("empty view")
	}
}
