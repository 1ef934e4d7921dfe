package tui

import (
	"context"
	"errors"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/fampulse/internal/appstate"
)

// lock covers the UI until the PIN is entered.
func (m *Model) lock() {
	m.locked = true
	m.lockInput = newSecretPrompt("PIN", nil)
	m.prompt = nil
}

func (m Model) handleLockKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type != tea.KeyEnter {
		var cmd tea.Cmd
		m.lockInput.input, cmd = m.lockInput.input.Update(msg)
		return m, cmd
	}
	pin := m.lockInput.input.Value()
	m.lockInput.input.Reset()
	if err := m.state.Unlock(pin); err != nil {
		if errors.Is(err, appstate.ErrWrongPIN) {
			m.status, m.statusErr = "Wrong PIN, try again", true
		} else {
			m.setError(err)
		}
		return m, nil
	}
	m.locked = false
	m.lockInput = nil
	m.setStatus("Unlocked")
	return m, nil
}

// toggleLockSetting asks for a new PIN to turn the lock on, or the current
// one to turn it off.
func (m Model) toggleLockSetting() (tea.Model, tea.Cmd) {
	st := m.state
	if st.LockEnabled() {
		m.prompt = newSecretPrompt("Current PIN to disable the lock", func(pin string) tea.Cmd {
			return m.do("App lock disabled", func(context.Context) error {
				if err := st.DisableLock(pin); err != nil {
					return err
				}
				return st.Save()
			})
		})
		return m, nil
	}
	m.prompt = newSecretPrompt("New PIN (4-8 digits)", func(pin string) tea.Cmd {
		return m.do("App lock enabled", func(context.Context) error {
			if err := st.EnableLock(pin); err != nil {
				return err
			}
			return st.Save()
		})
	})
	return m, nil
}

func (m Model) renderLock() string {
	body := lipgloss.JoinVertical(lipgloss.Center,
		m.theme.Title.Render("FamPulse is locked"),
		"",
		m.lockInput.view(m.theme),
	)
	if m.status != "" && m.statusErr {
		body = lipgloss.JoinVertical(lipgloss.Center, body, "", m.theme.Error.Render(m.status))
	}
	box := m.theme.Border.Render(body)
	if m.width == 0 || m.height == 0 {
		return box
	}
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, box)
}
