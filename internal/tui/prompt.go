package tui

import (
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
)

// prompt is a one-line input shown above the status bar. submit turns the
// entered text into a command; returning nil closes the prompt silently.
type prompt struct {
	label  string
	input  textinput.Model
	submit func(string) tea.Cmd
}

func newPrompt(label, placeholder, value string, submit func(string) tea.Cmd) *prompt {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 120
	in.SetValue(value)
	in.Focus()
	return &prompt{label: label, input: in, submit: submit}
}

func newSecretPrompt(label string, submit func(string) tea.Cmd) *prompt {
	p := newPrompt(label, "", "", submit)
	p.input.EchoMode = textinput.EchoPassword
	p.input.EchoCharacter = '•'
	p.input.CharLimit = 8
	return p
}

// confirm asks a yes/no question; only "y" runs yes.
func confirm(question string, yes func() tea.Cmd) *prompt {
	p := newPrompt(question+" (y/n)", "", "", func(answer string) tea.Cmd {
		if answer == "y" || answer == "Y" {
			return yes()
		}
		return nil
	})
	p.input.CharLimit = 1
	return p
}

// update handles a key while the prompt is open. done reports that the
// prompt should close.
func (p *prompt) update(msg tea.KeyMsg) (cmd tea.Cmd, done bool) {
	switch msg.Type {
	case tea.KeyEsc:
		return nil, true
	case tea.KeyEnter:
		return p.submit(p.input.Value()), true
	}
	var c tea.Cmd
	p.input, c = p.input.Update(msg)
	return c, false
}

func (p *prompt) view(t Theme) string {
	return t.Accent.Render(p.label+": ") + p.input.View()
}
