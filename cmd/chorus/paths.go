package main

import (
	"fmt"
	"os"
	"path/filepath"
)

// Paths holds all resolved chorus state file paths.
// Use ResolvePaths() to populate this struct with defaults + env overrides.
type Paths struct {
	ChorusHome   string // ~/.chorus or CHORUS_HOME
	ConfigPath   string // config.toml or CHORUS_CONFIG
	PIDPath      string // chorus.pid or CHORUS_PID_PATH
	EventLogPath string // events.db or CHORUS_DB_PATH
}

// ResolvePaths returns all chorus paths, respecting env var overrides.
// Environment variables:
//   - CHORUS_HOME: base directory for all chorus state (default: ~/.chorus)
//   - CHORUS_CONFIG: farm config file (default: $CHORUS_HOME/config.toml)
//   - CHORUS_PID_PATH: master PID file (default: $CHORUS_HOME/chorus.pid)
//   - CHORUS_DB_PATH: lifecycle event log (default: $CHORUS_HOME/events.db)
func ResolvePaths() (*Paths, error) {
	home, err := resolveChorusHome()
	if err != nil {
		return nil, err
	}

	return &Paths{
		ChorusHome:   home,
		ConfigPath:   resolvePathWithEnv("CHORUS_CONFIG", home, "config.toml"),
		PIDPath:      resolvePathWithEnv("CHORUS_PID_PATH", home, "chorus.pid"),
		EventLogPath: resolvePathWithEnv("CHORUS_DB_PATH", home, "events.db"),
	}, nil
}

// resolveChorusHome returns the chorus home directory from CHORUS_HOME or
// ~/.chorus.
func resolveChorusHome() (string, error) {
	if v := os.Getenv("CHORUS_HOME"); v != "" {
		return v, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("get home dir: %w", err)
	}
	return filepath.Join(home, ".chorus"), nil
}

// resolvePathWithEnv returns the env var value if set, otherwise base/name.
func resolvePathWithEnv(envVar, base, name string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return filepath.Join(base, name)
}

// ensureHome creates the chorus home directory if it does not exist.
func ensureHome(p *Paths) error {
	if err := os.MkdirAll(p.ChorusHome, 0o700); err != nil {
		return fmt.Errorf("create chorus home %s: %w", p.ChorusHome, err)
	}
	return nil
}
