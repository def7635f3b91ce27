package audit

import (
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/amishk599/boardwatch/internal/config"
)

type pickerModel struct {
	searches []config.SearchConfig
	cursor   int
	chosen   int // index of the chosen search; -1 while undecided or after quit
}

func (m pickerModel) Init() tea.Cmd {
	return nil
}

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	km, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch {
	case key.Matches(km, keys.Quit), key.Matches(km, keys.Back):
		m.chosen = -1
		return m, tea.Quit
	case key.Matches(km, keys.Up):
		m.cursor = max(m.cursor-1, 0)
	case key.Matches(km, keys.Down):
		m.cursor = min(m.cursor+1, len(m.searches)-1)
	case key.Matches(km, keys.Open):
		m.chosen = m.cursor
		return m, tea.Quit
	}
	return m, nil
}

func searchLabel(s config.SearchConfig) string {
	target := s.Keywords
	switch {
	case s.URL != "":
		target = s.URL
	case s.Location != "":
		target += " @ " + s.Location
	}
	label := s.Name + " (" + target + ")"
	if s.Filter == "" {
		label += " [no filter]"
	}
	return label
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString(heading.Foreground(colorAccent).Padding(1, 0, 0, 2).Render("Filter audit: pick a search"))
	b.WriteString("\n")

	for i, s := range m.searches {
		if i == m.cursor {
			b.WriteString(itemTitle.Foreground(colorAccent).Render("  > "+searchLabel(s)) + "\n")
			if s.Filter != "" {
				b.WriteString(hint.Render("      "+s.Filter) + "\n")
			}
			continue
		}
		b.WriteString("    " + searchLabel(s) + "\n")
	}

	b.WriteString("\n" + rule.PaddingLeft(2).Render(helpLine(keys.Up, keys.Down, keys.Open, keys.Quit)))
	return b.String()
}

// RunSearchPicker shows an interactive search selector.
// Returns the index of the chosen search, or -1 if the user quit.
func RunSearchPicker(searches []config.SearchConfig) (int, error) {
	p := tea.NewProgram(pickerModel{searches: searches, chosen: -1})
	result, err := p.Run()
	if err != nil {
		return -1, err
	}
	return result.(pickerModel).chosen, nil
}
