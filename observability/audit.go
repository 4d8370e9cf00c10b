package observability

import (
	"context"
	"database/sql"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hazyhaar/reactwatch/dbopen"
	"github.com/hazyhaar/reactwatch/idgen"
)

// AuditEntry is a single IPC command record in the audit trail.
type AuditEntry struct {
	EntryID      string
	Timestamp    time.Time
	RequestID    string
	Command      string
	Parameters   string // JSON
	Status       string // "success", "error"
	ErrorMessage string
	DurationMs   int64
}

// AuditLogger persists command audit entries asynchronously.
type AuditLogger struct {
	db    *sql.DB
	newID idgen.Generator
	ch    chan *AuditEntry
	stop  chan struct{}
	done  chan struct{}
}

// AuditOption configures an AuditLogger.
type AuditOption func(*AuditLogger)

// WithAuditIDGenerator sets a custom ID generator for audit entry IDs.
func WithAuditIDGenerator(gen idgen.Generator) AuditOption {
	return func(a *AuditLogger) { a.newID = gen }
}

// NewAuditLogger creates an async audit logger. Recommended bufferSize: 256.
func NewAuditLogger(db *sql.DB, bufferSize int, opts ...AuditOption) *AuditLogger {
	a := &AuditLogger{
		db:    db,
		newID: idgen.Prefixed("audit_", idgen.Default),
		ch:    make(chan *AuditEntry, bufferSize),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, o := range opts {
		o(a)
	}
	go a.flushLoop()
	return a
}

// NewEntry builds an AuditEntry from a handled command. Params are
// marshalled to JSON; a nil cmdErr records success.
func (a *AuditLogger) NewEntry(requestID, command string, params any, cmdErr error, duration time.Duration) *AuditEntry {
	entry := &AuditEntry{
		EntryID:    a.newID(),
		Timestamp:  time.Now(),
		RequestID:  requestID,
		Command:    command,
		Parameters: "{}",
		Status:     "success",
		DurationMs: duration.Milliseconds(),
	}
	if params != nil {
		if b, err := json.Marshal(params); err == nil {
			entry.Parameters = string(b)
		}
	}
	if cmdErr != nil {
		entry.Status = "error"
		entry.ErrorMessage = cmdErr.Error()
	}
	return entry
}

// LogAsync queues an entry for async persistence. When the buffer is full
// the entry is dropped with a warning: audit must never block a command.
func (a *AuditLogger) LogAsync(entry *AuditEntry) {
	select {
	case a.ch <- entry:
	default:
		slog.Warn("observability: audit buffer full, entry dropped", "command", entry.Command)
	}
}

// Close drains queued entries and stops the flush loop.
func (a *AuditLogger) Close() {
	close(a.stop)
	<-a.done
}

func (a *AuditLogger) flushLoop() {
	defer close(a.done)
	for {
		select {
		case entry := <-a.ch:
			a.insert(entry)
		case <-a.stop:
			for {
				select {
				case entry := <-a.ch:
					a.insert(entry)
				default:
					return
				}
			}
		}
	}
}

func (a *AuditLogger) insert(entry *AuditEntry) {
	_, err := dbopen.Exec(context.Background(), a.db, `
		INSERT INTO command_audit (
			entry_id, timestamp, request_id, command,
			parameters, status, error_message, duration_ms
		) VALUES (?,?,?,?,?,?,?,?)`,
		entry.EntryID, entry.Timestamp.UnixMilli(), entry.RequestID, entry.Command,
		entry.Parameters, entry.Status, entry.ErrorMessage, entry.DurationMs)
	if err != nil {
		slog.Error("observability: audit insert failed", "error", err, "command", entry.Command)
	}
}
