package audit

import (
	"fmt"
	"os/exec"
	"runtime"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/amishk599/boardwatch/internal/dedup"
	"github.com/amishk599/boardwatch/internal/model"
)

// rowsPerJob is the height of one list entry: title, subtitle, gap.
const rowsPerJob = 3

// pane is one scrollable job list.
type pane struct {
	title  string
	jobs   []model.JobRecord
	cursor int
	vp     viewport.Model
}

func (p *pane) move(delta int) {
	if len(p.jobs) == 0 {
		return
	}
	p.cursor = min(max(p.cursor+delta, 0), len(p.jobs)-1)

	top := p.cursor * rowsPerJob
	bottom := top + rowsPerJob - 1
	switch {
	case top < p.vp.YOffset:
		p.vp.SetYOffset(top)
	case bottom >= p.vp.YOffset+p.vp.Height:
		p.vp.SetYOffset(bottom - p.vp.Height + 1)
	}
}

func (p *pane) selected() (model.JobRecord, bool) {
	if len(p.jobs) == 0 {
		return model.JobRecord{}, false
	}
	return p.jobs[p.cursor], true
}

func (p *pane) render(active bool) {
	if len(p.jobs) == 0 {
		p.vp.SetContent("  (no jobs)")
		return
	}

	var b strings.Builder
	for i, j := range p.jobs {
		if i > 0 {
			b.WriteString("\n\n")
		}
		posted := j.PostedAt
		if posted == "" {
			posted = "n/a"
		}
		title, sub := itemTitle, itemSubtitle
		marker := "  "
		if active && i == p.cursor {
			title, sub = title.Inherit(itemSelected), sub.Inherit(itemSelected)
			marker = "> "
		}
		b.WriteString(marker + title.Render(j.Title) + "\n")
		b.WriteString(marker + sub.Render(j.Company+" · "+j.Location+" · "+posted))
	}
	p.vp.SetContent(b.String())
}

type auditModel struct {
	panes     [2]pane // extracted, matched
	focused   int
	matched   map[string]bool
	stored    dedup.Membership // may be nil
	criterion string

	width, height int
	ready         bool

	detail     *model.JobRecord // non-nil while the detail view is open
	detailVP   viewport.Model
	expandDesc bool

	openURL  func(string)
	wantQuit bool
}

func newAuditModel(allJobs, matchedJobs []model.JobRecord, criterion string, stored dedup.Membership) auditModel {
	matched := make(map[string]bool, len(matchedJobs))
	for _, j := range matchedJobs {
		matched[j.Fingerprint] = true
	}
	return auditModel{
		panes: [2]pane{
			{title: "Extracted", jobs: allJobs},
			{title: "Matched", jobs: matchedJobs},
		},
		matched:   matched,
		stored:    stored,
		criterion: criterion,
		openURL:   openURL,
	}
}

func (m auditModel) Init() tea.Cmd {
	return nil
}

func (m auditModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		return m, nil
	case tea.KeyMsg:
		if key.Matches(msg, keys.Quit) {
			m.wantQuit = true
			return m, tea.Quit
		}
		if m.detail != nil {
			return m.updateDetail(msg)
		}
		return m.updateList(msg)
	}
	return m, nil
}

func (m auditModel) updateList(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := &m.panes[m.focused]
	switch {
	case key.Matches(msg, keys.Back):
		return m, tea.Quit
	case key.Matches(msg, keys.Switch):
		m.focused = 1 - m.focused
	case key.Matches(msg, keys.Up):
		p.move(-1)
	case key.Matches(msg, keys.Down):
		p.move(1)
	case key.Matches(msg, keys.Open):
		if j, ok := p.selected(); ok {
			m.detail = &j
			m.expandDesc = false
			m.detailVP = viewport.New(m.width-4, m.height-4)
			m.detailVP.SetContent(m.renderDetail())
		}
		return m, nil
	default:
		var cmd tea.Cmd
		p.vp, cmd = p.vp.Update(msg)
		return m, cmd
	}
	m.refresh()
	return m, nil
}

func (m auditModel) updateDetail(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, keys.Back):
		m.detail = nil
		return m, nil
	case key.Matches(msg, keys.Visit):
		if target := m.detail.ApplyTarget(); strings.HasPrefix(target, "http") {
			m.openURL(target)
		}
		return m, nil
	case key.Matches(msg, keys.Desc):
		if m.detail.Description != "" {
			m.expandDesc = !m.expandDesc
			m.detailVP.SetContent(m.renderDetail())
			m.detailVP.GotoTop()
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.detailVP, cmd = m.detailVP.Update(msg)
	return m, cmd
}

func (m *auditModel) resize(width, height int) {
	m.width, m.height = width, height

	// Two bordered panes side by side with a one-column gap; a title row
	// above and a status row below.
	w := max((width-5)/2, 20)
	h := max(height-4, 5)
	for i := range m.panes {
		if !m.ready {
			m.panes[i].vp = viewport.New(w, h)
		} else {
			m.panes[i].vp.Width, m.panes[i].vp.Height = w, h
		}
	}
	m.ready = true
	m.refresh()

	if m.detail != nil {
		m.detailVP.Width, m.detailVP.Height = width-4, height-4
		m.detailVP.SetContent(m.renderDetail())
	}
}

func (m *auditModel) refresh() {
	for i := range m.panes {
		m.panes[i].render(i == m.focused)
	}
}

func (m auditModel) View() string {
	switch {
	case !m.ready:
		return "Initializing..."
	case m.detail != nil:
		return m.viewDetail()
	default:
		return m.viewList()
	}
}

func (m auditModel) viewList() string {
	var titles, boxes []string
	for i, p := range m.panes {
		border, title := focus(i == m.focused)
		label := fmt.Sprintf(" %s (%d)", p.title, len(p.jobs))
		titles = append(titles, lipgloss.NewStyle().Width(p.vp.Width+2).Render(title.Render(label)))
		boxes = append(boxes, border.Width(p.vp.Width).Render(p.vp.View()))
	}

	criterion := m.criterion
	if criterion == "" {
		criterion = "(none)"
	}
	all, kept := len(m.panes[0].jobs), len(m.panes[1].jobs)
	status := fmt.Sprintf("%d extracted | %d matched | %d rejected | filter: %s    %s",
		all, kept, all-kept, criterion,
		helpLine(keys.Switch, keys.Up, keys.Down, keys.Open, keys.Back, keys.Quit))

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, titles[0], " ", titles[1]),
		lipgloss.JoinHorizontal(lipgloss.Top, boxes[0], " ", boxes[1]),
		statusStyle.Width(m.width).Render(status),
	)
}

func (m auditModel) viewDetail() string {
	desc := keys.Desc
	desc.SetEnabled(m.detail.Description != "")
	border, _ := focus(true)
	return lipgloss.JoinVertical(lipgloss.Left,
		heading.Render("Job Details"),
		border.Width(m.width-2).Render(m.detailVP.View()),
		statusStyle.Width(m.width).Render(helpLine(keys.Visit, desc, keys.Back, keys.Quit)),
	)
}

func (m auditModel) renderDetail() string {
	j := m.detail
	if j == nil {
		return ""
	}

	var b strings.Builder
	field := func(label, value string) {
		if value != "" {
			b.WriteString(fieldLabel.Render(label) + value + "\n")
		}
	}

	if m.matched[j.Fingerprint] {
		b.WriteString(verdictOK.Render("✓ matches filter") + "\n\n")
	} else {
		b.WriteString(verdictNo.Render("✗ rejected by filter") + "\n\n")
	}

	field("Title", j.Title)
	field("Company", j.Company)
	field("Location", j.Location)
	field("Salary", j.Salary)
	field("Job Type", j.JobType)
	field("Posted", j.PostedAt)
	b.WriteByte('\n')

	field("Source", j.Source)
	field("Fingerprint", j.Fingerprint)
	if m.stored != nil && m.stored.Contains(j.Fingerprint) {
		field("Stored", "yes, already seen")
	}
	if !j.ExtractedAt.IsZero() {
		field("Extracted At", j.ExtractedAt.Local().Format("2006-01-02 15:04 MST"))
	}
	b.WriteByte('\n')

	field("Job URL", j.URL)
	if j.ApplicationTarget != "" && j.ApplicationTarget != j.URL {
		field("Apply ("+j.ApplicationType+")", j.ApplicationTarget)
	}

	if j.Description == "" {
		return b.String()
	}
	b.WriteByte('\n')
	if !m.expandDesc {
		b.WriteString(hint.Render("  press r to read the description") + "\n")
		return b.String()
	}
	width := max(m.width-8, 20)
	b.WriteString(rule.Render("── Description "+strings.Repeat("─", max(width-15, 3))) + "\n\n")
	b.WriteString(body.Render(wordWrap(j.Description, width)) + "\n")
	return b.String()
}

func wordWrap(text string, width int) string {
	var out, line strings.Builder
	for _, w := range strings.Fields(text) {
		if line.Len() > 0 && line.Len()+1+len(w) > width {
			out.WriteString(line.String() + "\n")
			line.Reset()
		}
		if line.Len() > 0 {
			line.WriteByte(' ')
		}
		line.WriteString(w)
	}
	out.WriteString(line.String())
	return out.String()
}

// openURL hands url to the platform opener without waiting for it.
func openURL(url string) {
	var cmd *exec.Cmd
	switch runtime.GOOS {
	case "darwin":
		cmd = exec.Command("open", url)
	case "linux":
		cmd = exec.Command("xdg-open", url)
	case "windows":
		cmd = exec.Command("cmd", "/c", "start", url)
	default:
		return
	}
	_ = cmd.Start()
}

// RunAuditTUI launches the split-pane audit view: every extracted posting on
// the left, the ones the filter accepted on the right. stored may be nil; when
// set, the detail view flags postings the store has already seen.
// Returns wantQuit=true if the user pressed q/ctrl+c, false if they backed out to the picker.
func RunAuditTUI(allJobs, matchedJobs []model.JobRecord, criterion string, stored dedup.Membership) (bool, error) {
	p := tea.NewProgram(newAuditModel(allJobs, matchedJobs, criterion, stored), tea.WithAltScreen())
	result, err := p.Run()
	if err != nil {
		return false, err
	}
	return result.(auditModel).wantQuit, nil
}
