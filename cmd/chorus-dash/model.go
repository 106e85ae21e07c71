package main

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
)

// pollInterval is the refresh cadence when no file change fires first.
const pollInterval = 2 * time.Second

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	paneStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))
	dimStyle   = lipgloss.NewStyle().Faint(true)
)

// tickMsg drives the polling fallback.
type tickMsg time.Time

type model struct {
	dbPath string
	bots   table.Model
	runID  string
	events []string
	err    error
	width  int
}

func newModel(dbPath string) model {
	cols := []table.Column{
		{Title: "Bot", Width: 18},
		{Title: "Channel", Width: 40},
	}
	t := table.New(table.WithColumns(cols), table.WithHeight(8), table.WithFocused(true))
	return model{dbPath: dbPath, bots: t}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(fetchCmd(m.dbPath), tickCmd(), watchEventLog(m.dbPath))
}

func tickCmd() tea.Cmd {
	return tea.Tick(pollInterval, func(t time.Time) tea.Msg { return tickMsg(t) })
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		case "r":
			return m, fetchCmd(m.dbPath)
		}
		var cmd tea.Cmd
		m.bots, cmd = m.bots.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tickMsg:
		return m, tea.Batch(fetchCmd(m.dbPath), tickCmd())

	case fsChangeMsg:
		// Re-arm the watcher: each watcher command delivers one change.
		return m, tea.Batch(fetchCmd(m.dbPath), watchEventLog(m.dbPath))

	case snapshotMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.runID = msg.RunID
		rows := make([]table.Row, 0, len(msg.Bots))
		for _, b := range msg.Bots {
			rows = append(rows, table.Row{b.Name, b.Channel})
		}
		m.bots.SetRows(rows)
		m.events = m.events[:0]
		for _, e := range msg.Events {
			line := fmt.Sprintf("%s  %-18s %s", e.CreatedAt, e.Type, e.Source)
			if e.Payload != "" {
				line += "  " + e.Payload
			}
			m.events = append(m.events, line)
		}
		return m, nil
	}
	return m, nil
}

func (m model) View() string {
	header := titleStyle.Render("chorus farm")
	if m.runID != "" {
		header += dimStyle.Render("  run " + m.runID)
	}

	if m.err != nil {
		return header + "\n" + errStyle.Render("error: "+m.err.Error()) + "\n" +
			dimStyle.Render("r to retry, q to quit")
	}

	botsPane := paneStyle.Render(m.bots.View())

	events := "no events yet"
	if len(m.events) > 0 {
		events = ""
		for i, line := range m.events {
			if i > 0 {
				events += "\n"
			}
			events += line
		}
	}
	eventsPane := paneStyle.Render(events)

	help := dimStyle.Render("r refresh · q quit")
	return lipgloss.JoinVertical(lipgloss.Left, header, botsPane, eventsPane, help)
}
