package tui

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

type confirmKeys struct {
	Yes key.Binding
	No  key.Binding
}

var defaultConfirmKeys = confirmKeys{
	Yes: key.NewBinding(key.WithKeys("y", "Y"), key.WithHelp("y", "accept")),
	No:  key.NewBinding(key.WithKeys("n", "N", "esc", "ctrl+c"), key.WithHelp("n", "reject")),
}

// confirmModel is a single yes/no question.
type confirmModel struct {
	title    string
	detail   string
	keys     confirmKeys
	answered bool
	accepted bool
}

func newConfirmModel(title, detail string) confirmModel {
	return confirmModel{title: title, detail: detail, keys: defaultConfirmKeys}
}

func (m confirmModel) Init() tea.Cmd {
	return nil
}

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(keyMsg, m.keys.Yes):
		m.answered, m.accepted = true, true
		return m, tea.Quit
	case key.Matches(keyMsg, m.keys.No):
		m.answered, m.accepted = true, false
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.answered {
		if m.accepted {
			return acceptedStyle.Render("✓ accepted") + "\n"
		}
		return rejectedStyle.Render("✗ rejected") + "\n"
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render(m.title))
	if m.detail != "" {
		sb.WriteString("\n")
		sb.WriteString(detailStyle.Render(m.detail))
	}
	sb.WriteString("\n")
	sb.WriteString(hintStyle.Render(m.keys.Yes.Help().Key + " " + m.keys.Yes.Help().Desc + " · " + m.keys.No.Help().Key + " " + m.keys.No.Help().Desc))
	return promptBoxStyle.Render(sb.String()) + "\n"
}

// Confirm asks a yes/no question on the given terminal streams and blocks until
// it is answered or ctx is done. A cancelled prompt counts as a rejection and
// returns ctx's error.
func Confirm(ctx context.Context, in io.Reader, out io.Writer, title, detail string) (bool, error) {
	p := tea.NewProgram(newConfirmModel(title, detail),
		tea.WithContext(ctx),
		tea.WithInput(in),
		tea.WithOutput(out),
	)
	final, err := p.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return false, ctxErr
		}
		if errors.Is(err, tea.ErrProgramKilled) {
			return false, nil
		}
		return false, err
	}
	m, ok := final.(confirmModel)
	if !ok {
		return false, nil
	}
	return m.accepted, nil
}
