package app

import (
	"github.com/charmbracelet/bubbles/key"
)

// applicationKeyMap satisfies help.KeyMap.
type applicationKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	PageUp   key.Binding
	PageDown key.Binding
	Top      key.Binding
	Bottom   key.Binding
	Help     key.Binding
	Quit     key.Binding
	Jump     key.Binding

	newEntry    key.Binding
	removeEntry key.Binding
	touchEntry  key.Binding
	moveDown    key.Binding
	moveUp      key.Binding
	reloadMonth key.Binding
	dropMonth   key.Binding
	reloadAll   key.Binding
	moreLeading key.Binding
	lessLeading key.Binding
}

var (
	inputKeys = struct {
		accept key.Binding
		cancel key.Binding
	}{
		accept: key.NewBinding(key.WithKeys("enter")),
		cancel: key.NewBinding(key.WithKeys("esc", "ctrl+c")),
	}
)

// ShortHelp returns keybindings to be shown in the mini help view. It's part
// of the key.Map interface.
func (k applicationKeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Up, k.Down, k.newEntry, k.Jump, k.Help, k.Quit}
}

// FullHelp returns keybindings for the expanded help view. It's part of the
// key.Map interface.
func (k applicationKeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Up, k.Down, k.PageUp, k.PageDown, k.Top, k.Bottom},
		{k.newEntry, k.removeEntry, k.touchEntry, k.moveDown, k.moveUp},
		{k.reloadMonth, k.dropMonth, k.reloadAll, k.moreLeading, k.lessLeading},
		{k.Jump, k.Help, k.Quit},
	}
}

// DefaultKeyMap returns a default set of keybindings.
func DefaultKeyMap() applicationKeyMap {
	return applicationKeyMap{
		// Browsing.
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
		PageUp: key.NewBinding(
			key.WithKeys("pgup", "b", "u"),
			key.WithHelp("pgup", "prev page"),
		),
		PageDown: key.NewBinding(
			key.WithKeys("pgdown", "f", "d", " "),
			key.WithHelp("pgdn", "next page"),
		),
		Top: key.NewBinding(
			key.WithKeys("home", "g"),
			key.WithHelp("home/g", "top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("end", "G"),
			key.WithHelp("end/G", "bottom"),
		),
		Help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "more"),
		),
		Quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		Jump: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "jump to"),
		),

		// Editing.
		newEntry: key.NewBinding(
			key.WithKeys("n"),
			key.WithHelp("n", "new entry"),
		),
		removeEntry: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "delete entry"),
		),
		touchEntry: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "touch entry"),
		),
		moveDown: key.NewBinding(
			key.WithKeys("J"),
			key.WithHelp("J", "move entry down"),
		),
		moveUp: key.NewBinding(
			key.WithKeys("K"),
			key.WithHelp("K", "move entry up"),
		),
		reloadMonth: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "reload month"),
		),
		dropMonth: key.NewBinding(
			key.WithKeys("X"),
			key.WithHelp("X", "unload month"),
		),
		reloadAll: key.NewBinding(
			key.WithKeys("R"),
			key.WithHelp("R", "reload all"),
		),
		moreLeading: key.NewBinding(
			key.WithKeys("+", "="),
			key.WithHelp("+", "prefetch more"),
		),
		lessLeading: key.NewBinding(
			key.WithKeys("-"),
			key.WithHelp("-", "prefetch less"),
		),
	}
}
