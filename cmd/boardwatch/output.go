package main

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/amishk599/boardwatch/internal/model"
	"github.com/amishk599/boardwatch/internal/pipeline"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39")).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableBorderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	okStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("42"))
	failStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
	warnStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	mutedStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))
	headingStyle = lipgloss.NewStyle().Bold(true).MarginTop(1)
)

func jobsTable(records []model.JobRecord) string {
	rows := make([][]string, 0, len(records))
	for _, r := range records {
		rows = append(rows, []string{
			truncate(r.Title, 40),
			truncate(r.Company, 24),
			truncate(r.Location, 20),
			truncate(orDash(r.Salary), 20),
			truncate(orDash(r.PostedAt), 14),
			truncate(r.ApplyTarget(), 60),
		})
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(tableBorderStyle).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return tableHeaderStyle
			}
			return tableCellStyle
		}).
		Headers("TITLE", "COMPANY", "LOCATION", "SALARY", "POSTED", "APPLY").
		Rows(rows...)
	return t.String()
}

// printOutcome writes a human summary of a run to stdout.
func printOutcome(out pipeline.Outcome) {
	if out.OK() {
		fmt.Println(okStyle.Render("✓ run complete") + mutedStyle.Render("  "+out.Source))
	} else {
		fmt.Println(failStyle.Render(fmt.Sprintf("✗ run failed at %s", out.FailedStage)) + mutedStyle.Render("  "+out.Source))
		fmt.Printf("  %v\n", out.Err)
	}

	fmt.Printf("  extracted %d | matched %d | rejected %d | new %d | notification %s\n",
		out.Extracted, out.Filtered, out.Rejected, out.New, out.NotifyStatus)
	if out.NotifyErr != nil {
		fmt.Println(warnStyle.Render(fmt.Sprintf("  notification error: %v", out.NotifyErr)))
	}
	for _, reason := range out.DegradedReasons {
		fmt.Println(warnStyle.Render("  degraded: " + reason))
	}
	if out.Screenshot != "" {
		fmt.Println(mutedStyle.Render("  screenshot: " + out.Screenshot))
	}

	if len(out.Records) > 0 {
		fmt.Println(headingStyle.Render(fmt.Sprintf("New jobs (%d)", len(out.Records))))
		fmt.Println(jobsTable(out.Records))
	}
	if out.Summary != "" {
		fmt.Println(headingStyle.Render("Summary"))
		fmt.Println(out.Summary)
	}
}

func orDash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}

// mask hides all but the last four characters of a secret.
func mask(secret string) string {
	if secret == "" {
		return "(not set)"
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****" + secret[len(secret)-4:]
}
