package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dukerupert/fampulse/internal/family"
	"github.com/dukerupert/fampulse/internal/model"
)

// notificationLimit is how many recent notifications the family screen lists.
const notificationLimit = 10

type familyView struct {
	cursor        int
	notifications []model.Notification
	unreadCount   int
}

func (v familyView) unread() int { return v.unreadCount }

type notificationsMsg struct {
	list   []model.Notification
	unread int
	err    error
}

// newNotificationMsg carries a notification pushed while the UI runs.
type newNotificationMsg struct{ n model.Notification }

func (m Model) loadNotifications() tea.Cmd {
	if m.notify == nil {
		return nil
	}
	ctx, svc, user := m.ctx, m.notify, m.userID
	return func() tea.Msg {
		list, err := svc.List(ctx, user, notificationLimit)
		if err != nil {
			return notificationsMsg{err: err}
		}
		n, err := svc.UnreadCount(ctx, user)
		return notificationsMsg{list: list, unread: n, err: err}
	}
}

func (m Model) handleNotifications(msg notificationsMsg) (tea.Model, tea.Cmd) {
	if msg.err != nil {
		m.setError(msg.err)
		return m, nil
	}
	m.familyView.notifications = msg.list
	m.familyView.unreadCount = msg.unread
	return m, nil
}

func (m Model) handleNewNotification(msg newNotificationMsg) (tea.Model, tea.Cmd) {
	m.setStatus(msg.n.Message)
	return m, m.loadNotifications()
}

func (m Model) selectedMember() (model.FamilyMember, bool) {
	members := m.family.Members.Get()
	if len(members) == 0 {
		return model.FamilyMember{}, false
	}
	return members[min(m.familyView.cursor, len(members)-1)], true
}

var roleCycle = []model.Role{model.RoleAdmin, model.RoleAdminLite, model.RoleKid}

func nextRole(r model.Role) model.Role {
	for i, role := range roleCycle {
		if role == r {
			return roleCycle[(i+1)%len(roleCycle)]
		}
	}
	return model.RoleKid
}

func (m Model) handleFamilyKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	v := &m.familyView
	switch {
	case key.Matches(msg, m.keys.Up):
		if v.cursor > 0 {
			v.cursor--
		}
	case key.Matches(msg, m.keys.Down):
		if v.cursor < len(m.family.Members.Get())-1 {
			v.cursor++
		}
	case key.Matches(msg, m.keys.Role):
		mem, ok := m.selectedMember()
		if !ok {
			return m, nil
		}
		role := nextRole(mem.Role)
		return m, m.do(mem.Profile.DisplayName()+" is now "+string(role), func(ctx context.Context) error {
			return m.family.UpdateRole(ctx, mem.ID, role)
		})
	case key.Matches(msg, m.keys.Remove):
		mem, ok := m.selectedMember()
		if !ok {
			return m, nil
		}
		m.prompt = confirm("Remove "+mem.Profile.DisplayName()+" from the family?", func() tea.Cmd {
			return m.do("Member removed", func(ctx context.Context) error {
				return m.family.RemoveMember(ctx, mem.ID)
			})
		})
	case key.Matches(msg, m.keys.Add):
		m.prompt = newPrompt("Add member", "phone [admin|admin_lite|kid]", "", func(s string) tea.Cmd {
			f := strings.Fields(s)
			if len(f) == 0 {
				return nil
			}
			role := model.RoleKid
			if len(f) > 1 {
				role = model.Role(f[1])
			}
			return m.addMember(f[0], role)
		})
	case key.Matches(msg, m.keys.Invite):
		m.prompt = newPrompt("Invite phone number", "", "", func(phone string) tea.Cmd {
			return m.do("Opened invite", func(ctx context.Context) error {
				return m.family.SendInvite(ctx, phone)
			})
		})
	case key.Matches(msg, m.keys.Rename):
		m.prompt = newPrompt("Family name", "", m.family.Family.Get().Name, func(name string) tea.Cmd {
			return m.do("Family renamed", func(ctx context.Context) error {
				return m.family.RenameFamily(ctx, name)
			})
		})
	case key.Matches(msg, m.keys.Notifications):
		return m, m.loadNotifications()
	case key.Matches(msg, m.keys.ReadAll):
		if m.notify == nil {
			return m, nil
		}
		svc, user := m.notify, m.userID
		return m, tea.Sequence(
			m.do("", func(ctx context.Context) error { return svc.MarkAllRead(ctx, user) }),
			m.loadNotifications(),
		)
	case key.Matches(msg, m.keys.Profile):
		if m.profile == nil {
			return m, nil
		}
		me := m.profile.Me.Get()
		value := ""
		if me.FullName != "" {
			value = me.FullName + ", " + me.Phone
		}
		m.prompt = newPrompt("Your name, phone", "Asha Rao, 9876543210", value, func(s string) tea.Cmd {
			name, phone, _ := cutLast(s, ",")
			return m.do("Profile saved", func(ctx context.Context) error {
				return m.profile.Update(ctx, name, phone)
			})
		})
	}
	return m, nil
}

func cutLast(s, sep string) (before, after string, found bool) {
	if i := strings.LastIndex(s, sep); i >= 0 {
		return strings.TrimSpace(s[:i]), strings.TrimSpace(s[i+len(sep):]), true
	}
	return strings.TrimSpace(s), "", false
}

// addMember reports an unregistered number as a notice: the invite was
// still sent.
func (m Model) addMember(phone string, role model.Role) tea.Cmd {
	ctx, svc := m.ctx, m.family
	return func() tea.Msg {
		err := svc.AddMember(ctx, phone, role)
		switch {
		case errors.Is(err, family.ErrNotRegistered):
			return doneMsg{status: "Not registered yet, invite sent to " + phone}
		case err != nil:
			return doneMsg{err: err}
		}
		return doneMsg{status: "Member added"}
	}
}

func (m Model) renderFamily() string {
	t := m.theme
	var b strings.Builder

	fam := m.family.Family.Get()
	title := "Family"
	if fam.Name != "" {
		title = fam.Name
	}
	b.WriteString(t.Title.Render(title))
	if fam.InviteCode != "" {
		b.WriteString(t.Muted.Render("  invite code " + fam.InviteCode))
	}
	b.WriteString("\n")

	members := m.family.Members.Get()
	cursor := min(m.familyView.cursor, len(members)-1)
	for i, mem := range members {
		line := fmt.Sprintf("%-24s %-11s %s", mem.Profile.DisplayName(), mem.Role, mem.Profile.Phone)
		if mem.UserID == m.userID {
			line += t.Muted.Render(" (you)")
		}
		if i == cursor {
			b.WriteString(t.Selected.Render("> "+line) + "\n")
		} else {
			b.WriteString("  " + line + "\n")
		}
	}

	if gens := m.family.Tree().Generations(); len(gens) > 0 {
		b.WriteString("\n" + t.Title.Render("Tree") + "\n")
		renderNodes(&b, t, gens, 1)
	}

	b.WriteString("\n" + t.Title.Render("Notifications"))
	if n := m.familyView.unreadCount; n > 0 {
		b.WriteString(t.Accent.Render(fmt.Sprintf("  %d unread", n)))
	}
	b.WriteString("\n")
	if len(m.familyView.notifications) == 0 {
		b.WriteString(t.Muted.Render("  Nothing yet") + "\n")
	}
	for _, n := range m.familyView.notifications {
		when := t.Muted.Render(n.CreatedAt.Local().Format("2 Jan 15:04"))
		msg := n.Message
		if !n.Read {
			msg = t.Accent.Render("• ") + msg
		} else {
			msg = "  " + msg
		}
		b.WriteString("  " + msg + "  " + when + "\n")
	}
	return b.String()
}

func renderNodes(b *strings.Builder, t Theme, nodes []family.Node, depth int) {
	for _, n := range nodes {
		line := n.Member.Profile.DisplayName()
		if n.Spouse != nil {
			line += t.Danger.Render(" ♥ ") + n.Spouse.Profile.DisplayName()
		}
		b.WriteString(strings.Repeat("  ", depth) + line + "\n")
		renderNodes(b, t, n.Children, depth+1)
	}
}
