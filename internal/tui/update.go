package tui

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"harvester/internal/registry"
	"harvester/internal/reporting"
)

func (m HarvestModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch key := msg.String(); key {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "1", "2", "3":
			i, _ := strconv.Atoi(key)
			name := registry.Names[i-1]
			if err := m.ctrl.Toggle(name); err != nil {
				m.message = fmt.Sprintf("%s: %v", name, err)
			} else {
				m.message = ""
			}
			m.refresh()
			return m, nil
		case "r":
			path, err := reporting.GenerateSessionReport(m.stats, m.reportDir, "html")
			if err != nil {
				m.message = fmt.Sprintf("report failed: %v", err)
			} else {
				m.message = "report written to " + path
			}
			return m, nil
		}

	case TickMsg:
		m.rate = m.stats.GetRate()
		m.refresh()
		return m, tickCmd()
	}

	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

// refresh pulls fresh state from the registry and the stats.
func (m *HarvestModel) refresh() {
	m.status = m.ctrl.Status()
	m.total = m.stats.Total()
	m.recent = m.stats.GetRecent()
	m.alerts = m.stats.GetAlerts(5)
	if m.logs != nil {
		m.lines = m.logs.Lines(6)
	}

	rows := make([]table.Row, len(m.status))
	for i, s := range m.status {
		rows[i] = table.Row{
			strconv.Itoa(i + 1),
			s.Name,
			stateLabel(s),
			strconv.FormatUint(s.Captured, 10),
			strconv.FormatUint(s.Dropped, 10),
			s.Detail,
		}
	}
	m.table.SetRows(rows)
}

func stateLabel(s registry.Status) string {
	switch {
	case s.Running:
		return "running"
	case s.Enabled:
		return "stopped"
	default:
		return "disabled"
	}
}
