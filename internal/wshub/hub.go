// Package wshub implements the connection manager (§4.L): a set of live
// WebSocket subscribers, broadcast of pre-serialised frames, and
// drop-on-slow-peer semantics. Grounded on internal/ws/broadcast.go's
// client-registry pattern, but without that file's per-client buffered
// send channel -- §4.L is explicit that there is no per-peer queue, so a
// write that errors, or that blocks past writeTimeout, drops the peer
// synchronously instead of being buffered.
package wshub

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds each frame write; a peer that cannot take a frame
// within it fails the write and is dropped.
const writeTimeout = 5 * time.Second

// Peer is one live WebSocket subscriber.
type Peer struct {
	conn *websocket.Conn
	mu   sync.Mutex // guards concurrent writes to conn, which gorilla requires
}

// Hub tracks the set of live peers and fans out broadcasts to all of
// them.
type Hub struct {
	mu    sync.RWMutex
	peers map[*Peer]struct{}
}

// New creates an empty Hub.
func New() *Hub {
	return &Hub{peers: make(map[*Peer]struct{})}
}

// Register adds conn as a new subscriber, registered on WebSocket open.
func (h *Hub) Register(conn *websocket.Conn) *Peer {
	p := &Peer{conn: conn}
	h.mu.Lock()
	h.peers[p] = struct{}{}
	h.mu.Unlock()
	return p
}

// Unregister removes peer, called on WebSocket close.
func (h *Hub) Unregister(p *Peer) {
	h.mu.Lock()
	delete(h.peers, p)
	h.mu.Unlock()
	p.conn.Close()
}

// Count returns the number of live peers.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.peers)
}

// Broadcast sends a pre-serialised JSON frame to every peer. Any send
// error removes that peer immediately -- there is no retry and no
// per-peer queue, so a slow or dead peer holds up the fan-out for at most
// writeTimeout.
func (h *Hub) Broadcast(frame []byte) {
	h.mu.RLock()
	peers := make([]*Peer, 0, len(h.peers))
	for p := range h.peers {
		peers = append(peers, p)
	}
	h.mu.RUnlock()

	var dead []*Peer
	for _, p := range peers {
		if err := p.writeText(frame); err != nil {
			dead = append(dead, p)
		}
	}
	for _, p := range dead {
		h.Unregister(p)
	}
}

// BroadcastJSON marshals v and broadcasts it. Marshal errors are
// programming errors (an internal type failed to encode) and are
// swallowed here rather than propagated -- there is no caller in a
// broadcast fan-out that could usefully react to them.
func (h *Hub) BroadcastJSON(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	h.Broadcast(data)
}

// SendInit sends the one-time "init" frame to a single newly connected
// peer, containing the current snapshot of every kind.
func (p *Peer) SendInit(frame any) error {
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	return p.writeText(data)
}

// ReadLoop blocks reading control/ping frames from the peer until the
// connection closes or errors, calling onClose exactly once on exit. The
// HTTP handler that accepted the WebSocket upgrade should run this in its
// own goroutine per connection.
func (p *Peer) ReadLoop(onClose func()) {
	defer onClose()
	for {
		if _, _, err := p.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (p *Peer) writeText(data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return err
	}
	return p.conn.WriteMessage(websocket.TextMessage, data)
}
