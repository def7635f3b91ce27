package audit

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Switch key.Binding
	Open   key.Binding
	Back   key.Binding
	Quit   key.Binding
	Visit  key.Binding
	Desc   key.Binding
}

var keys = keyMap{
	Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
	Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
	Switch: key.NewBinding(key.WithKeys("tab", "left", "right"), key.WithHelp("tab", "switch pane")),
	Open:   key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "detail")),
	Back:   key.NewBinding(key.WithKeys("esc", "b", "backspace"), key.WithHelp("esc", "back")),
	Quit:   key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
	Visit:  key.NewBinding(key.WithKeys("o"), key.WithHelp("o", "open apply link")),
	Desc:   key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "description")),
}

// helpLine renders bindings as "key action" pairs for the status bar.
func helpLine(bindings ...key.Binding) string {
	var s string
	for _, b := range bindings {
		if !b.Enabled() {
			continue
		}
		if s != "" {
			s += "  "
		}
		h := b.Help()
		s += h.Key + " " + h.Desc
	}
	return s
}
