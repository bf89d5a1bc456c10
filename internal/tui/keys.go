package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Left     key.Binding
	Right    key.Binding
	Up       key.Binding
	Down     key.Binding
	MovePrev key.Binding
	MoveNext key.Binding
	MoveUp   key.Binding
	MoveDown key.Binding
	Refresh  key.Binding
	Help     key.Binding
	Quit     key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Left:     key.NewBinding(key.WithKeys("h", "left"), key.WithHelp("h/←", "prev stage")),
		Right:    key.NewBinding(key.WithKeys("l", "right"), key.WithHelp("l/→", "next stage")),
		Up:       key.NewBinding(key.WithKeys("k", "up"), key.WithHelp("k/↑", "prev card")),
		Down:     key.NewBinding(key.WithKeys("j", "down"), key.WithHelp("j/↓", "next card")),
		MovePrev: key.NewBinding(key.WithKeys("H", "shift+left"), key.WithHelp("H", "move to prev stage")),
		MoveNext: key.NewBinding(key.WithKeys("L", "shift+right"), key.WithHelp("L", "move to next stage")),
		MoveUp:   key.NewBinding(key.WithKeys("K", "shift+up"), key.WithHelp("K", "move card up")),
		MoveDown: key.NewBinding(key.WithKeys("J", "shift+down"), key.WithHelp("J", "move card down")),
		Refresh:  key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "refresh")),
		Help:     key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "help")),
		Quit:     key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.MovePrev, k.MoveNext, k.Refresh, k.Help, k.Quit}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Left, k.Right, k.Up, k.Down},
		{k.MovePrev, k.MoveNext, k.MoveUp, k.MoveDown},
		{k.Refresh, k.Help, k.Quit},
	}
}
