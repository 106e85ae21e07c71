// Package eventlog persists the farm's lifecycle events to SQLite and
// answers the queries behind "chorus logs", "chorus status", and the
// dashboard.
package eventlog

import (
	"context"
	"database/sql"
	"fmt"

	"chorus/pkg/protocol"

	_ "modernc.org/sqlite" // sqlite driver
)

// Store is an append/query handle over the event log database.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the event log at path with production-safe
// defaults: WAL journal mode and a 5-second busy timeout, schema applied.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}

	ctx := context.Background()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set WAL mode on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout on %s: %w", path, err)
	}
	if _, err := db.ExecContext(ctx, protocol.SchemaDDL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema on %s: %w", path, err)
	}
	return &Store{db: db}, nil
}

// New wraps an already-open database. The caller owns the schema.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close event log: %w", err)
	}
	return nil
}

// Entry is one event log row.
type Entry struct {
	ID        int64
	RunID     string
	RequestID string
	Type      string
	Source    string
	Bot       string
	Channel   string
	Payload   string
	CreatedAt string
}

// Append writes one event. CreatedAt is assigned by the database.
func (s *Store) Append(ctx context.Context, e Entry) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO events (run_id, request_id, type, source, bot, channel, payload) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.RunID, e.RequestID, e.Type, e.Source, e.Bot, e.Channel, e.Payload)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

// Recent returns the newest events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, COALESCE(request_id, ''), type, source, COALESCE(bot, ''), COALESCE(channel, ''), COALESCE(payload, ''), created_at
		 FROM events ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent events: %w", err)
	}
	return scanEntries(rows)
}

// ByBot returns the newest events for one bot name, newest first.
func (s *Store) ByBot(ctx context.Context, bot string, limit int) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, run_id, COALESCE(request_id, ''), type, source, COALESCE(bot, ''), COALESCE(channel, ''), COALESCE(payload, ''), created_at
		 FROM events WHERE bot = ? ORDER BY id DESC LIMIT ?`, bot, limit)
	if err != nil {
		return nil, fmt.Errorf("query events for bot %s: %w", bot, err)
	}
	return scanEntries(rows)
}

// ActiveBots reconstructs the set of live bots for a run from the log:
// every bot_created without a matching bot_disconnected.
func (s *Store) ActiveBots(ctx context.Context, runID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT bot, type FROM events
		 WHERE run_id = ? AND type IN (?, ?) ORDER BY id`,
		runID, protocol.EvBotCreated, protocol.EvBotDisconnected)
	if err != nil {
		return nil, fmt.Errorf("query active bots: %w", err)
	}
	defer func() { _ = rows.Close() }()

	// seen fixes each name's position at first sighting; live tracks the
	// latest created/disconnected transition. A name released and re-used
	// later in the run must not appear twice.
	live := make(map[string]bool)
	seen := make(map[string]bool)
	var order []string
	for rows.Next() {
		var bot, typ string
		if err := rows.Scan(&bot, &typ); err != nil {
			return nil, fmt.Errorf("scan active bots: %w", err)
		}
		if typ == protocol.EvBotCreated {
			if !seen[bot] {
				seen[bot] = true
				order = append(order, bot)
			}
			live[bot] = true
		} else {
			live[bot] = false
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate active bots: %w", err)
	}

	var out []string
	for _, bot := range order {
		if live[bot] {
			out = append(out, bot)
		}
	}
	return out, nil
}

// LatestRun returns the run_id of the newest event, or "" on an empty log.
func (s *Store) LatestRun(ctx context.Context) (string, error) {
	var runID string
	err := s.db.QueryRowContext(ctx,
		`SELECT run_id FROM events ORDER BY id DESC LIMIT 1`).Scan(&runID)
	if err != nil {
		if err == sql.ErrNoRows { //nolint:errorlint // database/sql returns this sentinel unwrapped
			return "", nil
		}
		return "", fmt.Errorf("query latest run: %w", err)
	}
	return runID, nil
}

func scanEntries(rows *sql.Rows) ([]Entry, error) {
	defer func() { _ = rows.Close() }()
	var out []Entry
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.RunID, &e.RequestID, &e.Type, &e.Source, &e.Bot, &e.Channel, &e.Payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return out, nil
}
