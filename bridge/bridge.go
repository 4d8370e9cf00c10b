// CLAUDE:SUMMARY Stateful WebSocket endpoint speaking the DevTools Wall protocol: handshake, event demux, inspect correlation, profiling fan-out.
// Package bridge hosts the WebSocket endpoint runtime backends connect to.
// It speaks the Wall message protocol: handshake, operations ingest,
// profiling commands, and request/response element inspection.
//
// The bridge decodes frames and correlates responses; all tree and
// profiler mutation happens in the daemon through the Handlers callbacks.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/hazyhaar/reactwatch/idgen"
	"github.com/hazyhaar/reactwatch/wall"
)

// Handlers are the daemon's callbacks. All of them may be invoked from
// per-connection reader goroutines; the daemon serialises internally.
type Handlers struct {
	// OnConnect fires when a backend completes the WebSocket upgrade.
	OnConnect func(connID string)
	// OnOperations delivers a decoded operations batch.
	OnOperations func(connID string, batch *wall.Batch)
	// OnProfilingData delivers a raw profilingData payload.
	OnProfilingData func(payload any)
	// OnDisconnect fires when a backend's socket closes, carrying the
	// root ids that connection owned.
	OnDisconnect func(connID string, roots []uint32)
	// Health serves the /healthz response body.
	Health func() any
}

// Bridge is the WebSocket endpoint. One per daemon.
type Bridge struct {
	port      int
	handlers  Handlers
	logger    *slog.Logger
	newConnID idgen.Generator
	upgrader  websocket.Upgrader
	server    *http.Server

	mu      sync.Mutex
	conns   map[string]*conn
	pending map[uint32]chan *InspectedElement

	// profilingArrived pulses when a profilingData frame lands, so
	// StopProfilingAndCollect can cut its grace window short.
	profilingArrived chan struct{}
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithLogger sets a custom logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Bridge) { b.logger = l }
}

// WithConnIDGenerator sets a custom connection ID generator.
func WithConnIDGenerator(gen idgen.Generator) Option {
	return func(b *Bridge) { b.newConnID = gen }
}

// New creates a Bridge listening on the given TCP port (loopback only).
func New(port int, handlers Handlers, opts ...Option) *Bridge {
	b := &Bridge{
		port:      port,
		handlers:  handlers,
		logger:    slog.Default(),
		newConnID: idgen.Prefixed("conn_", idgen.Default),
		upgrader: websocket.Upgrader{
			// Backends connect from arbitrary page origins; the
			// listener is loopback-bound so origin checks add nothing.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:            make(map[string]*conn),
		pending:          make(map[uint32]chan *InspectedElement),
		profilingArrived: make(chan struct{}, 1),
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Start binds the listener and begins serving. A bind failure is returned
// to the caller and is fatal at daemon startup.
func (b *Bridge) Start() error {
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(b.port))
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("bridge: bind %s: %w", addr, err)
	}

	r := chi.NewRouter()
	r.Get("/healthz", b.handleHealthz)
	r.HandleFunc("/*", b.handleWS)

	b.server = &http.Server{Handler: r}
	go func() {
		if err := b.server.Serve(ln); err != nil && err != http.ErrServerClosed {
			b.logger.Error("bridge: serve", "error", err)
		}
	}()

	b.logger.Info("bridge: listening", "addr", addr)
	return nil
}

// Shutdown closes every peer connection and stops the HTTP server.
func (b *Bridge) Shutdown(ctx context.Context) error {
	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.close()
	}
	if b.server != nil {
		return b.server.Shutdown(ctx)
	}
	return nil
}

// LiveConnections returns the number of connected backends.
func (b *Bridge) LiveConnections() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.conns)
}

func (b *Bridge) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	var body any = map[string]string{"status": "ok"}
	if b.handlers.Health != nil {
		body = b.handlers.Health()
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		b.logger.Warn("bridge: healthz encode", "error", err)
	}
}

func (b *Bridge) handleWS(w http.ResponseWriter, r *http.Request) {
	ws, err := b.upgrader.Upgrade(w, r, nil)
	if err != nil {
		b.logger.Warn("bridge: upgrade failed", "error", err, "remote", r.RemoteAddr)
		return
	}

	c := newConn(b.newConnID(), ws, b.logger)
	b.mu.Lock()
	b.conns[c.id] = c
	b.mu.Unlock()

	b.logger.Info("bridge: backend connected", "conn", c.id, "remote", r.RemoteAddr)
	if b.handlers.OnConnect != nil {
		b.handlers.OnConnect(c.id)
	}

	go c.writeLoop()
	go b.readLoop(c)
}

func (b *Bridge) readLoop(c *conn) {
	defer b.dropConn(c)

	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			return
		}

		var msg wall.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			// Unparseable frames are discarded per-frame; the
			// connection stays up.
			b.logger.Debug("bridge: bad frame dropped", "conn", c.id, "error", err)
			continue
		}
		if b.dispatch(c, &msg) {
			return
		}
	}
}

// dispatch handles one inbound message. Returns true when the connection
// should close (peer-initiated shutdown).
func (b *Bridge) dispatch(c *conn, msg *wall.Message) bool {
	switch msg.Event {
	case wall.EventBackendInitialized:
		b.handshake(c)

	case wall.EventRenderer, wall.EventRendererAttached:
		c.recordRenderer(msg.Payload)

	case wall.EventOperations:
		b.handleOperations(c, msg.Payload)

	case wall.EventInspectedElement:
		b.handleInspected(msg.Payload)

	case wall.EventProfilingData:
		if b.handlers.OnProfilingData != nil {
			b.handlers.OnProfilingData(msg.Payload)
		}
		select {
		case b.profilingArrived <- struct{}{}:
		default:
		}

	case wall.EventShutdown:
		b.logger.Info("bridge: backend requested shutdown", "conn", c.id)
		return true

	case "bridgeProtocol", "backendVersion", "profilingStatus",
		"overrideComponentFilters", "hookSettings",
		"isBackendStorageAPISupported", "isReactNativeEnvironment",
		"isReloadAndProfileSupportedByBackend", "isSynchronousXHRSupported",
		"syncSelectionFromNativeElementsPanel", "unsupportedRendererVersion":
		// Handshake replies and capability chatter. Accepted silently.

	default:
		b.logger.Debug("bridge: unhandled event", "conn", c.id, "event", msg.Event)
	}
	return false
}

// handshake sends the fixed frontend greeting sequence.
func (b *Bridge) handshake(c *conn) {
	for _, event := range []string{
		wall.EventGetBridgeProtocol,
		wall.EventGetBackendVersion,
		wall.EventGetUnsupportedRenderer,
		wall.EventGetHookSettings,
		wall.EventGetProfilingStatus,
	} {
		c.send(wall.Message{Event: event})
	}
}

func (b *Bridge) handleOperations(c *conn, payload any) {
	ints, ok := intSlice(payload)
	if !ok {
		b.logger.Warn("bridge: operations payload not an integer array", "conn", c.id)
		return
	}

	batch, err := wall.DecodeBatch(ints, &c.decode)
	if err != nil {
		// Malformed batches are dropped; backends send self-contained
		// batches so the connection stays up.
		b.logger.Warn("bridge: batch dropped", "conn", c.id, "error", err)
		return
	}

	c.ownRoot(batch.RootID)
	if b.handlers.OnOperations != nil {
		b.handlers.OnOperations(c.id, batch)
	}
}

func (b *Bridge) dropConn(c *conn) {
	c.close()

	b.mu.Lock()
	_, present := b.conns[c.id]
	delete(b.conns, c.id)
	b.mu.Unlock()
	if !present {
		return
	}

	roots := c.ownedRoots()
	b.logger.Info("bridge: backend disconnected", "conn", c.id, "roots", len(roots))
	if b.handlers.OnDisconnect != nil {
		b.handlers.OnDisconnect(c.id, roots)
	}
}

// broadcast sends a message to every connected backend.
func (b *Bridge) broadcast(msg wall.Message) int {
	b.mu.Lock()
	conns := make([]*conn, 0, len(b.conns))
	for _, c := range b.conns {
		conns = append(conns, c)
	}
	b.mu.Unlock()

	for _, c := range conns {
		c.send(msg)
	}
	return len(conns)
}

// StartProfiling broadcasts the profiling start command.
func (b *Bridge) StartProfiling() {
	b.broadcast(wall.Message{Event: wall.EventStartProfiling})
}

// StopProfilingAndCollect broadcasts the stop command, then waits up to
// grace for a trailing profilingData frame so the session picks it up.
func (b *Bridge) StopProfilingAndCollect(grace time.Duration) {
	// Drain a stale pulse so only post-stop data cuts the wait short.
	select {
	case <-b.profilingArrived:
	default:
	}

	n := b.broadcast(wall.Message{Event: wall.EventStopProfiling})
	if n == 0 {
		return
	}

	select {
	case <-b.profilingArrived:
	case <-time.After(grace):
	}
}

// intSlice converts a JSON-decoded array into ints.
func intSlice(payload any) ([]int, bool) {
	list, ok := payload.([]any)
	if !ok {
		return nil, false
	}
	ints := make([]int, len(list))
	for i, v := range list {
		f, ok := v.(float64)
		if !ok {
			return nil, false
		}
		ints[i] = int(f)
	}
	return ints, true
}
