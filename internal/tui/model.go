package tui

import (
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"harvester/internal/analysis"
	"harvester/internal/logging"
	"harvester/internal/registry"
)

// TickMsg refreshes the dashboard.
type TickMsg time.Time

// Controller is the part of the registry the dashboard drives.
type Controller interface {
	Status() []registry.Status
	Toggle(name string) error
}

// HarvestModel is the operator dashboard.
type HarvestModel struct {
	ctrl      Controller
	stats     *analysis.HarvestStats
	logs      *logging.Ring
	reportDir string
	radio     string
	wired     string

	table   table.Model
	status  []registry.Status
	rate    float64
	total   int64
	recent  []analysis.Entry
	alerts  []analysis.Alert
	lines   []string
	message string
}

// NewHarvestModel builds the dashboard. logs may be nil.
func NewHarvestModel(ctrl Controller, stats *analysis.HarvestStats, logs *logging.Ring, reportDir, radioIface, wiredIface string) HarvestModel {
	columns := []table.Column{
		{Title: "Key", Width: 4},
		{Title: "Engine", Width: 8},
		{Title: "State", Width: 9},
		{Title: "Captured", Width: 9},
		{Title: "Dropped", Width: 9},
		{Title: "Detail", Width: 24},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(len(registry.Names)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)

	return HarvestModel{
		ctrl:      ctrl,
		stats:     stats,
		logs:      logs,
		reportDir: reportDir,
		radio:     radioIface,
		wired:     wiredIface,
		table:     t,
	}
}

func (m HarvestModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(250*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}
