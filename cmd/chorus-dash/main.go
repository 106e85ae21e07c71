// Package main implements the chorus-dash interactive dashboard.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

func main() {
	if !isatty.IsTerminal(os.Stdout.Fd()) {
		fmt.Fprintln(os.Stderr, "chorus-dash needs an interactive terminal")
		os.Exit(1)
	}

	dbPath, err := resolveEventLogPath()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	p := tea.NewProgram(newModel(dbPath), tea.WithAltScreen())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running dashboard: %v\n", err)
		os.Exit(1)
	}
}

// resolveEventLogPath mirrors the chorus CLI's path resolution: CHORUS_DB_PATH
// wins, then $CHORUS_HOME/events.db, then ~/.chorus/events.db.
func resolveEventLogPath() (string, error) {
	if v := os.Getenv("CHORUS_DB_PATH"); v != "" {
		return v, nil
	}
	if v := os.Getenv("CHORUS_HOME"); v != "" {
		return filepath.Join(v, "events.db"), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".chorus", "events.db"), nil
}
