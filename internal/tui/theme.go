package tui

import "github.com/charmbracelet/lipgloss"

// Theme holds the styles of one color scheme.
type Theme struct {
	Name string

	Title     lipgloss.Style
	Tab       lipgloss.Style
	ActiveTab lipgloss.Style
	Selected  lipgloss.Style
	Muted     lipgloss.Style
	Accent    lipgloss.Style
	Danger    lipgloss.Style
	Success   lipgloss.Style
	Border    lipgloss.Style
	Status    lipgloss.Style
	Error     lipgloss.Style

	Delivered lipgloss.Style
	Cancelled lipgloss.Style
	Locked    lipgloss.Style
}

type palette struct {
	fg, muted, accent, danger, success, selBg, border lipgloss.Color
}

var (
	darkPalette = palette{
		fg: "#f8f8f2", muted: "#6272a4", accent: "#8be9fd", danger: "#ff5555",
		success: "#50fa7b", selBg: "#44475a", border: "#6272a4",
	}
	lightPalette = palette{
		fg: "#1f2328", muted: "#6e7781", accent: "#0969da", danger: "#cf222e",
		success: "#1a7f37", selBg: "#ddf4ff", border: "#d0d7de",
	}
)

func newTheme(name string, p palette) Theme {
	return Theme{
		Name:      name,
		Title:     lipgloss.NewStyle().Bold(true).Foreground(p.accent),
		Tab:       lipgloss.NewStyle().Foreground(p.muted).Padding(0, 1),
		ActiveTab: lipgloss.NewStyle().Bold(true).Foreground(p.fg).Background(p.selBg).Padding(0, 1),
		Selected:  lipgloss.NewStyle().Foreground(p.fg).Background(p.selBg),
		Muted:     lipgloss.NewStyle().Foreground(p.muted),
		Accent:    lipgloss.NewStyle().Foreground(p.accent),
		Danger:    lipgloss.NewStyle().Foreground(p.danger),
		Success:   lipgloss.NewStyle().Foreground(p.success),
		Border:    lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(p.border).Padding(0, 1),
		Status:    lipgloss.NewStyle().Foreground(p.success),
		Error:     lipgloss.NewStyle().Foreground(p.danger).Bold(true),
		Delivered: lipgloss.NewStyle().Foreground(p.success).Bold(true),
		Cancelled: lipgloss.NewStyle().Foreground(p.danger).Strikethrough(true),
		Locked:    lipgloss.NewStyle().Foreground(p.muted).Faint(true),
	}
}

// ThemeFor returns the dark or light theme.
func ThemeFor(dark bool) Theme {
	if dark {
		return newTheme("dark", darkPalette)
	}
	return newTheme("light", lightPalette)
}
