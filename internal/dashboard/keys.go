package dashboard

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Start   key.Binding
	Stop    key.Binding
	Refresh key.Binding
	NextTab key.Binding
	PrevTab key.Binding
	Logout  key.Binding
	Quit    key.Binding

	Up     key.Binding
	Down   key.Binding
	Add    key.Binding
	Delete key.Binding
}

var keys = keyMap{
	Start:   key.NewBinding(key.WithKeys("s"), key.WithHelp("s", "start")),
	Stop:    key.NewBinding(key.WithKeys("x"), key.WithHelp("x", "stop")),
	Refresh: key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
	NextTab: key.NewBinding(key.WithKeys("tab"), key.WithHelp("tab", "next view")),
	PrevTab: key.NewBinding(key.WithKeys("shift+tab"), key.WithHelp("shift+tab", "prev view")),
	Logout:  key.NewBinding(key.WithKeys("L"), key.WithHelp("L", "logout")),
	Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),

	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Add:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "add stock")),
	Delete: key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "delete stock")),
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Start, k.Stop, k.Refresh, k.NextTab, k.Logout, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Start, k.Stop, k.Refresh},
		{k.NextTab, k.PrevTab, k.Logout, k.Quit},
		{k.Up, k.Down, k.Add, k.Delete},
	}
}
