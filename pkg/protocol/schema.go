package protocol

// SchemaDDL defines the SQLite schema for the chorus lifecycle event log.
// Execute against a SQLite database with: db.Exec(SchemaDDL)
const SchemaDDL = `
-- Lifecycle event log: master and bot events for one or more farm runs
CREATE TABLE IF NOT EXISTS events (
    id INTEGER PRIMARY KEY,
    run_id TEXT NOT NULL,
    request_id TEXT,
    type TEXT NOT NULL,
    source TEXT NOT NULL,
    bot TEXT,
    channel TEXT,
    payload TEXT,
    created_at TEXT NOT NULL DEFAULT (datetime('now'))
);

CREATE INDEX IF NOT EXISTS events_run_idx ON events (run_id, id);
CREATE INDEX IF NOT EXISTS events_bot_idx ON events (bot, id);
`

// Event log type constants. The dashboard and "chorus logs" key off these.
const (
	EvMasterConnected = "master_connected"
	EvPoke            = "poke"
	EvBotCreated      = "bot_created"
	EvCreationDenied  = "creation_denied"
	EvBotDisconnected = "bot_disconnected"
	EvQuit            = "quit"
	EvConnectionLost  = "connection_lost"
	EvFault           = "fault"
)
