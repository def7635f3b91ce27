package audit

import "github.com/charmbracelet/lipgloss"

const (
	colorAccent = lipgloss.Color("39")  // bright blue
	colorDim    = lipgloss.Color("240") // gray
	colorMuted  = lipgloss.Color("245")
	colorText   = lipgloss.Color("252")
	colorMatch  = lipgloss.Color("42")
	colorReject = lipgloss.Color("196")
	colorSelect = lipgloss.Color("24")
)

var (
	borderStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder())
	titleStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	statusStyle = lipgloss.NewStyle().Padding(0, 1).Foreground(colorText).Background(lipgloss.Color("236"))

	itemTitle    = lipgloss.NewStyle().Bold(true)
	itemSubtitle = lipgloss.NewStyle().Foreground(colorMuted)
	itemSelected = lipgloss.NewStyle().Background(colorSelect).Foreground(lipgloss.Color("15"))

	fieldLabel = lipgloss.NewStyle().Bold(true).Foreground(colorAccent).Width(16)
	heading    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).MarginBottom(1)
	verdictOK  = lipgloss.NewStyle().Bold(true).Foreground(colorMatch)
	verdictNo  = lipgloss.NewStyle().Bold(true).Foreground(colorReject)
	hint       = lipgloss.NewStyle().Foreground(colorMuted).Italic(true)
	rule       = lipgloss.NewStyle().Foreground(colorDim)
	body       = lipgloss.NewStyle().Foreground(colorText)
)

// focus returns the border and title styles for a pane.
func focus(active bool) (lipgloss.Style, lipgloss.Style) {
	if active {
		return borderStyle.BorderForeground(colorAccent), titleStyle.Foreground(colorAccent)
	}
	return borderStyle.BorderForeground(colorDim), titleStyle.Foreground(colorDim)
}
