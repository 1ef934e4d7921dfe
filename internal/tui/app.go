// Package tui is the Bubble Tea terminal client: one screen per module over
// the client services, plus the app lock.
package tui

import (
	"context"
	"errors"
	"strconv"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dukerupert/fampulse/internal/appstate"
	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/grocery"
	"github.com/dukerupert/fampulse/internal/milk"
	"github.com/dukerupert/fampulse/internal/model"
	"github.com/dukerupert/fampulse/internal/notify"
	"github.com/dukerupert/fampulse/internal/optimistic"
	"github.com/dukerupert/fampulse/internal/profile"
	"github.com/dukerupert/fampulse/internal/reconcile"
)

// Options configures the UI. Profile is optional.
type Options struct {
	Context context.Context
	State   *appstate.State
	UserID  string
	Grocery *grocery.Service
	Milk    *milk.Service
	Family  *family.Service
	Notify  *notify.Service
	Profile *profile.Service
	Caches  []*reconcile.Cache
	// Views maps a module to the cache that runs only while it is shown.
	Views map[string]*reconcile.Cache
}

var modules = []string{appstate.ModuleGrocery, appstate.ModuleMilk, appstate.ModuleFamily}

// Model is the root application state for Bubble Tea.
type Model struct {
	ctx     context.Context
	state   *appstate.State
	userID  string
	grocery *grocery.Service
	milk    *milk.Service
	family  *family.Service
	notify  *notify.Service
	profile *profile.Service
	views   *views

	theme    Theme
	keys     keyMap
	help     help.Model
	module   string
	width    int
	height   int
	showHelp bool

	locked    bool
	lockInput *prompt

	prompt    *prompt
	status    string
	statusErr bool

	groceryView groceryView
	milkView    milkView
	familyView  familyView
}

// New creates the root model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	m := Model{
		ctx:     ctx,
		state:   opts.State,
		userID:  opts.UserID,
		grocery: opts.Grocery,
		milk:    opts.Milk,
		family:  opts.Family,
		notify:  opts.Notify,
		profile: opts.Profile,
		views:   newViews(opts.Views),
		theme:   ThemeFor(opts.State.DarkMode()),
		keys:    defaultKeyMap(),
		help:    help.New(),
		module:  opts.State.Module(),
	}
	m.milkView.cursor = m.milk.DisplayedMonth()
	m.views.show(m.module)
	if opts.State.LockEnabled() {
		m.lock()
	}
	return m
}

// Messages

// updatedMsg reports that a cache scope landed a new snapshot.
type updatedMsg struct{ scope string }

// doneMsg is the result of a user action.
type doneMsg struct {
	status string
	err    error
}

// Commands

// do runs fn off the UI goroutine and reports status when it succeeds.
func (m Model) do(status string, fn func(ctx context.Context) error) tea.Cmd {
	ctx := m.ctx
	return func() tea.Msg {
		return doneMsg{status: status, err: fn(ctx)}
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.loadNotifications(), m.mount())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.help.Width = msg.Width
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case doneMsg:
		if msg.err != nil {
			m.setError(msg.err)
		} else if msg.status != "" {
			m.setStatus(msg.status)
		}
		return m, nil

	case updatedMsg:
		// Views read the scopes on render.
		return m, nil

	case searchMsg:
		return m.handleSearch(msg)

	case notificationsMsg:
		return m.handleNotifications(msg)

	case newNotificationMsg:
		return m.handleNewNotification(msg)
	}
	return m, nil
}

func (m *Model) setStatus(s string) {
	m.status, m.statusErr = s, false
}

// setError shows the user-facing part of err.
func (m *Model) setError(err error) {
	m.status, m.statusErr = userMessage(err), true
}

func userMessage(err error) string {
	var ve *optimistic.ValidationError
	if errors.As(err, &ve) {
		return ve.Message
	}
	return err.Error()
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.Type == tea.KeyCtrlC {
		return m, tea.Quit
	}
	if m.locked {
		return m.handleLockKey(msg)
	}
	if m.prompt != nil {
		cmd, done := m.prompt.update(msg)
		if done {
			m.prompt = nil
		}
		return m, cmd
	}
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}

	// Module screens get first claim on keys while a gesture or result
	// list is open.
	if m.captures() {
		return m.handleModuleKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.NextView):
		return m.switchModule(nextModule(m.module))
	case key.Matches(msg, m.keys.Grocery):
		return m.switchModule(appstate.ModuleGrocery)
	case key.Matches(msg, m.keys.Milk):
		return m.switchModule(appstate.ModuleMilk)
	case key.Matches(msg, m.keys.Family):
		return m.switchModule(appstate.ModuleFamily)
	case key.Matches(msg, m.keys.Dark):
		m.state.SetDarkMode(!m.state.DarkMode())
		m.theme = ThemeFor(m.state.DarkMode())
		return m, m.saveState()
	case key.Matches(msg, m.keys.Lock):
		return m.toggleLockSetting()
	}
	return m.handleModuleKey(msg)
}

func (m Model) captures() bool {
	switch m.module {
	case appstate.ModuleGrocery:
		return m.groceryView.capturing()
	}
	return false
}

func (m Model) handleModuleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.module {
	case appstate.ModuleGrocery:
		return m.handleGroceryKey(msg)
	case appstate.ModuleMilk:
		return m.handleMilkKey(msg)
	case appstate.ModuleFamily:
		return m.handleFamilyKey(msg)
	}
	return m, nil
}

func nextModule(cur string) string {
	for i, mod := range modules {
		if mod == cur {
			return modules[(i+1)%len(modules)]
		}
	}
	return modules[0]
}

func (m Model) switchModule(mod string) (tea.Model, tea.Cmd) {
	if mod == m.module {
		return m, nil
	}
	m.module = mod
	m.state.SetModule(mod)
	m.status = ""
	m.views.show(mod)
	cmds := []tea.Cmd{m.saveState(), m.mount()}
	if mod == appstate.ModuleFamily {
		cmds = append(cmds, m.loadNotifications())
	}
	return m, tea.Batch(cmds...)
}

func (m Model) saveState() tea.Cmd {
	st := m.state
	return func() tea.Msg {
		if err := st.Save(); err != nil {
			return doneMsg{err: err}
		}
		return nil
	}
}

func (m Model) View() string {
	if m.locked {
		return m.renderLock()
	}
	if m.showHelp {
		return m.theme.Title.Render("FamPulse keys") + "\n\n" + m.help.FullHelpView(m.keys.FullHelp())
	}

	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n\n")
	switch m.module {
	case appstate.ModuleGrocery:
		b.WriteString(m.renderGrocery())
	case appstate.ModuleMilk:
		b.WriteString(m.renderMilk())
	case appstate.ModuleFamily:
		b.WriteString(m.renderFamily())
	}
	b.WriteString("\n")
	b.WriteString(m.renderFooter())
	return b.String()
}

func (m Model) renderHeader() string {
	tabs := []string{m.theme.Title.Render("FamPulse")}
	for i, mod := range modules {
		label := string(rune('1'+i)) + " " + strings.ToUpper(mod[:1]) + mod[1:]
		if mod == m.module {
			tabs = append(tabs, m.theme.ActiveTab.Render(label))
		} else {
			tabs = append(tabs, m.theme.Tab.Render(label))
		}
	}
	if n := m.familyView.unread(); n > 0 {
		tabs = append(tabs, m.theme.Accent.Render("• "+strconv.Itoa(n)+" new"))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, tabs...)
}

func (m Model) renderFooter() string {
	var lines []string
	if m.prompt != nil {
		lines = append(lines, m.prompt.view(m.theme))
	}
	if m.status != "" {
		if m.statusErr {
			lines = append(lines, m.theme.Error.Render(m.status))
		} else {
			lines = append(lines, m.theme.Status.Render(m.status))
		}
	}
	lines = append(lines, m.help.ShortHelpView(m.keys.ShortHelp()))
	return strings.Join(lines, "\n")
}

// Run starts the Bubble Tea program and forwards cache updates to it until
// the user quits.
func Run(opts Options) error {
	if opts.Context == nil {
		opts.Context = context.Background()
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(opts.Context))
	for _, c := range opts.Caches {
		c.OnUpdate(func(scope string) { p.Send(updatedMsg{scope: scope}) })
	}
	if opts.Notify != nil {
		stop, err := opts.Notify.Watch(opts.UserID, func(n model.Notification) {
			p.Send(newNotificationMsg{n: n})
		})
		if err != nil {
			return err
		}
		defer stop()
	}
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) {
		return nil
	}
	return err
}
