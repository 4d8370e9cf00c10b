package bridge

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/hazyhaar/reactwatch/wall"
)

// conn is one connected runtime backend. Writes go through a single writer
// goroutine fed by sendCh; gorilla connections allow one concurrent writer.
type conn struct {
	id     string
	ws     *websocket.Conn
	logger *slog.Logger

	sendCh chan wall.Message
	done   chan struct{}

	// decode is this connection's operations decoder state (extended-ADD
	// latch). Reader-goroutine only.
	decode wall.DecodeState

	mu         sync.Mutex
	rendererID uint32
	roots      map[uint32]struct{}
	closed     bool
}

func newConn(id string, ws *websocket.Conn, logger *slog.Logger) *conn {
	return &conn{
		id:     id,
		ws:     ws,
		logger: logger,
		sendCh: make(chan wall.Message, 64),
		done:   make(chan struct{}),
		roots:  make(map[uint32]struct{}),
	}
}

func (c *conn) writeLoop() {
	for {
		select {
		case msg := <-c.sendCh:
			if err := c.ws.WriteJSON(msg); err != nil {
				c.logger.Debug("bridge: write failed", "conn", c.id, "error", err)
				return
			}
		case <-c.done:
			return
		}
	}
}

// send enqueues a message. Drops it when the writer is saturated or the
// connection is closing; the Wall protocol tolerates lost frontend frames.
func (c *conn) send(msg wall.Message) {
	select {
	case c.sendCh <- msg:
	case <-c.done:
	default:
		c.logger.Warn("bridge: send buffer full, frame dropped", "conn", c.id, "event", msg.Event)
	}
}

func (c *conn) close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.mu.Unlock()

	close(c.done)
	c.ws.Close()
}

// recordRenderer captures the renderer id from renderer/rendererAttached
// payloads of the shape {id: <int>, ...}.
func (c *conn) recordRenderer(payload any) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return
	}
	id, ok := obj["id"].(float64)
	if !ok {
		return
	}
	c.mu.Lock()
	c.rendererID = uint32(id)
	c.mu.Unlock()
}

// ownRoot attributes a root id to this connection for disconnect cleanup.
func (c *conn) ownRoot(rootID uint32) {
	c.mu.Lock()
	c.roots[rootID] = struct{}{}
	c.mu.Unlock()
}

// ownedRoots returns the connection's root set in ascending order.
func (c *conn) ownedRoots() []uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]uint32, 0, len(c.roots))
	for id := range c.roots {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
