package main

import (
	"context"

	"chorus/pkg/eventlog"

	tea "github.com/charmbracelet/bubbletea"
)

// recentEventCount is how many log lines the events pane shows.
const recentEventCount = 20

// botRow is one line of the active-bots table.
type botRow struct {
	Name    string
	Channel string
}

// snapshotMsg carries one refresh of everything the dashboard shows.
type snapshotMsg struct {
	RunID  string
	Bots   []botRow
	Events []eventlog.Entry
	Err    error
}

// fetchCmd reads the event log and produces a snapshotMsg.
func fetchCmd(dbPath string) tea.Cmd {
	return func() tea.Msg {
		return fetchSnapshot(dbPath)
	}
}

// fetchSnapshot opens the log fresh each refresh; the master owns the
// long-lived write connection and WAL keeps readers cheap.
func fetchSnapshot(dbPath string) snapshotMsg {
	ctx := context.Background()

	store, err := eventlog.Open(dbPath)
	if err != nil {
		return snapshotMsg{Err: err}
	}
	defer func() { _ = store.Close() }()

	runID, err := store.LatestRun(ctx)
	if err != nil {
		return snapshotMsg{Err: err}
	}

	var bots []botRow
	if runID != "" {
		names, err := store.ActiveBots(ctx, runID)
		if err != nil {
			return snapshotMsg{Err: err}
		}
		for _, name := range names {
			bots = append(bots, botRow{Name: name, Channel: lastChannel(ctx, store, name)})
		}
	}

	events, err := store.Recent(ctx, recentEventCount)
	if err != nil {
		return snapshotMsg{Err: err}
	}

	return snapshotMsg{RunID: runID, Bots: bots, Events: events}
}

// lastChannel finds the most recent channel recorded for a bot.
func lastChannel(ctx context.Context, store *eventlog.Store, name string) string {
	entries, err := store.ByBot(ctx, name, 5)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if e.Channel != "" {
			return e.Channel
		}
	}
	return ""
}
