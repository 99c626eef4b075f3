package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"harvester/internal/analysis"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	infoStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFF7DB")).
			Border(lipgloss.RoundedBorder()).
			Padding(0, 1).
			Margin(0, 1)

	alertStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF5F87"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

const recentShown = 8

func (m HarvestModel) View() string {
	title := titleStyle.Render(fmt.Sprintf("Harvester - radio: %s  wired: %s", m.radio, m.wired))

	summary := fmt.Sprintf("Entries: %d\nRate: %.2f/s", m.total, m.rate)
	summaryBox := infoStyle.Render(summary)

	engineBox := infoStyle.Render("Engines\n" + m.table.View())

	var recent []string
	start := len(m.recent) - recentShown
	if start < 0 {
		start = 0
	}
	for _, e := range m.recent[start:] {
		recent = append(recent, fmt.Sprintf("%s  %-12s %s",
			e.Timestamp.Format("15:04:05"), shortLabel(e.Log), e.Line))
	}
	if len(recent) == 0 {
		recent = append(recent, "Waiting for data...")
	}
	recentBox := infoStyle.Render("Recent harvest\n" + strings.Join(recent, "\n"))

	var alerts []string
	for _, a := range m.alerts {
		alerts = append(alerts, alertStyle.Render(fmt.Sprintf("[%s] %s", a.Type, a.Message)))
	}
	if len(alerts) == 0 {
		alerts = append(alerts, "No alerts.")
	}
	alertBox := infoStyle.Render("Alerts\n" + strings.Join(alerts, "\n"))

	row1 := lipgloss.JoinHorizontal(lipgloss.Top, summaryBox, engineBox)
	sections := []string{title, row1, recentBox, alertBox}
	if len(m.lines) > 0 {
		sections = append(sections, dimStyle.Render(strings.Join(m.lines, "\n")))
	}
	body := lipgloss.JoinVertical(lipgloss.Left, sections...)

	footer := "\n1/2/3 toggle engine  r report  q quit"
	if m.message != "" {
		footer = "\n" + m.message + footer
	}
	return body + footer
}

func shortLabel(logName string) string {
	label := analysis.GetLogLabel(logName)
	if i := strings.IndexByte(label, ' '); i > 0 {
		return label[:i]
	}
	return label
}
