package tui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines the keyboard bindings. Module screens interpret the
// generic ones (Left, Right, Release...) in their own way.
type keyMap struct {
	// Global
	Quit     key.Binding
	Help     key.Binding
	NextView key.Binding
	Grocery  key.Binding
	Milk     key.Binding
	Family   key.Binding
	Dark     key.Binding
	Lock     key.Binding
	Escape   key.Binding

	// Navigation
	Up    key.Binding
	Down  key.Binding
	Left  key.Binding
	Right key.Binding

	// Grocery
	Search      key.Binding
	Pick        key.Binding
	NewItem     key.Binding
	More        key.Binding
	Less        key.Binding
	Release     key.Binding
	Buy         key.Binding
	Price       key.Binding
	Archive     key.Binding
	History     key.Binding
	Filter      key.Binding
	NewCategory key.Binding

	// Milk
	PrevMonth key.Binding
	NextMonth key.Binding
	Toggle    key.Binding
	Quantity  key.Binding
	Pay       key.Binding
	Vendor    key.Binding
	Defaults  key.Binding

	// Family
	Role          key.Binding
	Remove        key.Binding
	Add           key.Binding
	Invite        key.Binding
	Rename        key.Binding
	Notifications key.Binding
	ReadAll       key.Binding
	Profile       key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Quit:     key.NewBinding(key.WithKeys("ctrl+c", "q"), key.WithHelp("q", "quit")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		NextView: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next module")),
		Grocery:  key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "grocery")),
		Milk:     key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "milk")),
		Family:   key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "family")),
		Dark:     key.NewBinding(key.WithKeys("D"), key.WithHelp("D", "dark mode")),
		Lock:     key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "app lock")),
		Escape:   key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "cancel")),

		Up:    key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:  key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Left:  key.NewBinding(key.WithKeys("left", "h"), key.WithHelp("←/h", "swipe left")),
		Right: key.NewBinding(key.WithKeys("right", "l"), key.WithHelp("→/l", "swipe right")),

		Search:      key.NewBinding(key.WithKeys("/"), key.WithHelp("/", "search items")),
		Pick:        key.NewBinding(key.WithKeys("1", "2", "3", "4", "5"), key.WithHelp("1-5", "add result")),
		NewItem:     key.NewBinding(key.WithKeys("n"), key.WithHelp("n", "new item")),
		More:        key.NewBinding(key.WithKeys("+", "="), key.WithHelp("+", "more")),
		Less:        key.NewBinding(key.WithKeys("-"), key.WithHelp("-", "less")),
		Release:     key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "release swipe")),
		Buy:         key.NewBinding(key.WithKeys("b"), key.WithHelp("b", "buy")),
		Price:       key.NewBinding(key.WithKeys("p"), key.WithHelp("p", "add price")),
		Archive:     key.NewBinding(key.WithKeys("A"), key.WithHelp("A", "archive priced")),
		History:     key.NewBinding(key.WithKeys("H"), key.WithHelp("H", "history")),
		Filter:      key.NewBinding(key.WithKeys("f"), key.WithHelp("f", "filter history")),
		NewCategory: key.NewBinding(key.WithKeys("c"), key.WithHelp("c", "new category")),

		PrevMonth: key.NewBinding(key.WithKeys("["), key.WithHelp("[", "prev month")),
		NextMonth: key.NewBinding(key.WithKeys("]"), key.WithHelp("]", "next month")),
		Toggle:    key.NewBinding(key.WithKeys(" ", "enter"), key.WithHelp("space", "toggle day")),
		Quantity:  key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "set liters")),
		Pay:       key.NewBinding(key.WithKeys("P"), key.WithHelp("P", "record payment")),
		Vendor:    key.NewBinding(key.WithKeys("v"), key.WithHelp("v", "message vendor")),
		Defaults:  key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "defaults")),

		Role:          key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "change role")),
		Remove:        key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "remove member")),
		Add:           key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add member")),
		Invite:        key.NewBinding(key.WithKeys("i"), key.WithHelp("i", "invite")),
		Rename:        key.NewBinding(key.WithKeys("R"), key.WithHelp("R", "rename family")),
		Notifications: key.NewBinding(key.WithKeys("N"), key.WithHelp("N", "notifications")),
		ReadAll:       key.NewBinding(key.WithKeys("m"), key.WithHelp("m", "mark all read")),
		Profile:       key.NewBinding(key.WithKeys("e"), key.WithHelp("e", "edit profile")),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.NextView, k.Help, k.Quit}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Grocery, k.Milk, k.Family, k.NextView, k.Dark, k.Lock, k.Quit},
		{k.Search, k.NewItem, k.More, k.Less, k.Left, k.Right, k.Release, k.Buy, k.Price, k.Archive, k.History, k.Filter, k.NewCategory},
		{k.PrevMonth, k.NextMonth, k.Toggle, k.Quantity, k.Pay, k.Vendor, k.Defaults},
		{k.Role, k.Remove, k.Add, k.Invite, k.Rename, k.Notifications, k.ReadAll, k.Profile},
	}
}
