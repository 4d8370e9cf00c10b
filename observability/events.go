package observability

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/hazyhaar/reactwatch/idgen"
)

// EventLogger writes connection lifecycle events.
type EventLogger struct {
	db    *sql.DB
	newID idgen.Generator
}

// EventLoggerOption configures an EventLogger.
type EventLoggerOption func(*EventLogger)

// WithEventIDGenerator sets a custom ID generator for event IDs.
func WithEventIDGenerator(gen idgen.Generator) EventLoggerOption {
	return func(l *EventLogger) { l.newID = gen }
}

// NewEventLogger creates a logger backed by the observability database.
func NewEventLogger(db *sql.DB, opts ...EventLoggerOption) *EventLogger {
	l := &EventLogger{
		db:    db,
		newID: idgen.Prefixed("evt_", idgen.Default),
	}
	for _, o := range opts {
		o(l)
	}
	return l
}

// LogConnectionEvent records one connection lifecycle transition.
// Best-effort contract: errors are logged via slog but do not propagate,
// so a failing observability store never fails the daemon. The insert
// runs synchronously on the caller's goroutine.
func (l *EventLogger) LogConnectionEvent(ctx context.Context, connID, eventType string, at time.Time) {
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO connection_events (event_id, conn_id, event_type, timestamp)
		VALUES (?,?,?,?)`,
		l.newID(), connID, eventType, at.UnixMilli())
	if err != nil {
		slog.Error("observability: connection event log failed",
			"error", err, "conn", connID, "event_type", eventType)
	}
}
