// CLAUDE:SUMMARY Daemon orchestrator: owns tree/profiler/health/waiters, serialises mutation, manages lifecycle and state files.
package daemon

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hazyhaar/reactwatch/bridge"
	"github.com/hazyhaar/reactwatch/dbopen"
	"github.com/hazyhaar/reactwatch/ipc"
	"github.com/hazyhaar/reactwatch/observability"
	"github.com/hazyhaar/reactwatch/profiler"
	"github.com/hazyhaar/reactwatch/tree"
	"github.com/hazyhaar/reactwatch/wall"
)

// Daemon is the orchestrator. All mutation of the tree, profiler, health
// tracker, and wait registry is serialised through mu: bridge callbacks
// and IPC handlers run on their own goroutines but never touch shared
// state without it.
type Daemon struct {
	cfg    *Config
	logger *slog.Logger

	mu     sync.Mutex
	tree   *tree.Tree
	prof   *profiler.Profiler
	health *healthTracker
	waits  *waitRegistry

	br        *bridge.Bridge
	ipcServer *ipc.Server

	obsDB     *sql.DB
	events    *observability.EventLogger
	audit     *observability.AuditLogger
	heartbeat *observability.HeartbeatWriter

	startedAt time.Time
}

// Option configures a Daemon.
type Option func(*Daemon)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Daemon) { d.logger = l }
}

// New creates a Daemon from configuration.
func New(cfg *Config, opts ...Option) *Daemon {
	d := &Daemon{
		cfg:    cfg,
		logger: slog.Default(),
		tree:   tree.New(),
		health: newHealthTracker(cfg.ReconnectWindow),
		waits:  newWaitRegistry(),
	}
	for _, o := range opts {
		o(d)
	}
	d.prof = profiler.New(profiler.WithLogger(d.logger))
	d.br = bridge.New(cfg.Port, bridge.Handlers{
		OnConnect:       d.onConnect,
		OnOperations:    d.onOperations,
		OnProfilingData: d.onProfilingData,
		OnDisconnect:    d.onDisconnect,
		Health:          d.healthzBody,
	}, bridge.WithLogger(d.logger))
	d.ipcServer = ipc.New(cfg.SocketPath(), d.handleCommand, ipc.WithLogger(d.logger))
	return d
}

// Start claims the state directory, opens the observability store, and
// brings up the WebSocket and IPC listeners. Bind failures are fatal.
func (d *Daemon) Start(ctx context.Context) error {
	if err := prepareStateDir(d.cfg); err != nil {
		return err
	}

	d.startedAt = time.Now()
	if err := writeDaemonFile(d.cfg, d.startedAt); err != nil {
		return err
	}

	if d.cfg.Observability.Enabled {
		if err := d.openObservability(ctx); err != nil {
			// History is best-effort; the daemon runs without it.
			d.logger.Warn("daemon: observability disabled", "error", err)
		}
	}

	if err := d.br.Start(); err != nil {
		removeStateFiles(d.cfg)
		return err
	}
	if err := d.ipcServer.Start(ctx); err != nil {
		d.br.Shutdown(context.Background())
		removeStateFiles(d.cfg)
		return err
	}

	d.logger.Info("daemon: started",
		"port", d.cfg.Port, "socket", d.cfg.SocketPath(), "state_dir", d.cfg.StateDir)
	return nil
}

// Run blocks until ctx is cancelled, then shuts down cleanly.
func (d *Daemon) Run(ctx context.Context) {
	<-ctx.Done()
	d.logger.Info("daemon: shutdown signal received")
	d.Shutdown()
}

// Shutdown closes listeners, flushes observability, and removes the state
// files. The IPC listener and client connections close first; in-flight
// IPC handlers are then waited for before the bridge shuts down.
func (d *Daemon) Shutdown() {
	d.ipcServer.Shutdown()

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := d.br.Shutdown(ctx); err != nil {
		d.logger.Warn("daemon: bridge shutdown", "error", err)
	}

	if d.heartbeat != nil {
		d.heartbeat.Stop()
	}
	if d.audit != nil {
		d.audit.Close()
	}
	if d.obsDB != nil {
		d.obsDB.Close()
	}

	removeStateFiles(d.cfg)
	d.logger.Info("daemon: stopped")
}

func (d *Daemon) openObservability(ctx context.Context) error {
	db, err := dbopen.Open(d.cfg.ObservabilityDBPath(),
		dbopen.WithSchema(observability.Schema))
	if err != nil {
		return fmt.Errorf("daemon: open observability store: %w", err)
	}
	d.obsDB = db
	d.events = observability.NewEventLogger(db)
	d.audit = observability.NewAuditLogger(db, 256)
	d.heartbeat = observability.NewHeartbeatWriter(db, "reactwatch-daemon",
		d.cfg.Observability.HeartbeatInterval)
	d.heartbeat.Start(ctx)
	return nil
}

// onConnect handles a backend WebSocket opening.
func (d *Daemon) onConnect(connID string) {
	now := time.Now()
	d.mu.Lock()
	kind := d.health.onConnect(now)
	d.waits.signalConnected()
	d.mu.Unlock()

	if d.events != nil {
		d.events.LogConnectionEvent(context.Background(), connID, kind, now)
	}
}

// onOperations applies a decoded batch and signals component waiters.
func (d *Daemon) onOperations(connID string, batch *wall.Batch) {
	d.mu.Lock()
	added := d.tree.ApplyBatch(batch)
	d.waits.signalAdded(added)
	size := d.tree.Size()
	d.mu.Unlock()

	d.logger.Debug("daemon: batch applied",
		"conn", connID, "root", batch.RootID, "added", len(added), "nodes", size)
}

// onProfilingData feeds the active session.
func (d *Daemon) onProfilingData(payload any) {
	d.mu.Lock()
	d.prof.ProcessPayload(payload)
	d.mu.Unlock()
}

// onDisconnect removes exactly the roots the connection owned.
func (d *Daemon) onDisconnect(connID string, roots []uint32) {
	now := time.Now()
	d.mu.Lock()
	for _, rootID := range roots {
		d.tree.RemoveRoot(rootID)
	}
	kind := d.health.onDisconnect(now)
	d.mu.Unlock()

	if d.events != nil {
		d.events.LogConnectionEvent(context.Background(), connID, kind, now)
	}
}

// resolveNameLocked is the profiler's live-tree name source. Callers hold mu.
func (d *Daemon) resolveNameLocked(id uint32) (string, bool) {
	if n := d.tree.GetNode(id); n != nil {
		return n.DisplayName, true
	}
	return "", false
}

// healthzBody builds the /healthz response.
func (d *Daemon) healthzBody() any {
	d.mu.Lock()
	defer d.mu.Unlock()
	return map[string]any{
		"status":          "ok",
		"uptime_ms":       time.Since(d.startedAt).Milliseconds(),
		"connected_apps":  d.health.live,
		"component_count": d.tree.Size(),
	}
}
