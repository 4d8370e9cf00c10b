// CLAUDE:SUMMARY SQLite-backed daemon observability: connection events, IPC command audit, worker heartbeats.
// Package observability records the daemon's operational history in a
// dedicated SQLite database (separate from any application state so a slow
// disk never backpressures the event loop).
//
// All writes are best-effort: failures are logged via slog and never
// propagate. The store is history only — the daemon never reads it back to
// rebuild state, so tree and profiling data stay in-memory by design.
package observability

import "database/sql"

// Schema contains the complete DDL for the observability tables.
const Schema = `
-- Runtime backend connection history
CREATE TABLE IF NOT EXISTS connection_events (
    event_id TEXT PRIMARY KEY,
    conn_id TEXT NOT NULL,
    event_type TEXT NOT NULL, -- "connected", "disconnected", "reconnected"
    timestamp INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_connection_events_time
    ON connection_events(timestamp DESC);

-- IPC command audit trail
CREATE TABLE IF NOT EXISTS command_audit (
    entry_id TEXT PRIMARY KEY,
    timestamp INTEGER NOT NULL,
    request_id TEXT,
    command TEXT NOT NULL,
    parameters TEXT NOT NULL DEFAULT '{}',
    status TEXT NOT NULL, -- "success", "error"
    error_message TEXT,
    duration_ms INTEGER NOT NULL,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_command_audit_time
    ON command_audit(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_command_audit_command
    ON command_audit(command, timestamp DESC);

-- Daemon liveness probes
CREATE TABLE IF NOT EXISTS worker_heartbeats (
    heartbeat_id TEXT PRIMARY KEY,
    worker_name TEXT NOT NULL,
    hostname TEXT NOT NULL,
    worker_pid INTEGER NOT NULL,
    timestamp INTEGER NOT NULL,
    goroutines_count INTEGER,
    memory_alloc_mb REAL,
    memory_sys_mb REAL,
    gc_count INTEGER,
    created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now'))
);
CREATE INDEX IF NOT EXISTS idx_heartbeats_worker_time
    ON worker_heartbeats(worker_name, timestamp DESC);
`

// Init applies the schema. Idempotent.
func Init(db *sql.DB) error {
	_, err := db.Exec(Schema)
	return err
}
