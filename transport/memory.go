package transport

import (
	"context"
	"sync"

	"github.com/mkrell/triviamesh/protocol"
)

// Mesh is an in-process stand-in for the relay: every endpoint joined to the
// same room receives every other endpoint's frames. Used by tests and by
// anything that wants to run several peers inside one process.
//
// Delivery is asynchronous through a per-endpoint buffered queue, so the
// ordering and timing guarantees match the real transport: none.
type Mesh struct {
	mu        sync.Mutex
	endpoints map[*MemTransport]bool

	// Drop, when set, is consulted per delivery; returning true loses the
	// frame. Lets tests simulate an unreliable mesh.
	Drop func(env protocol.Envelope) bool
}

// NewMesh creates an empty mesh.
func NewMesh() *Mesh {
	return &Mesh{
		endpoints: make(map[*MemTransport]bool),
	}
}

// Endpoint creates a new, unconnected transport attached to this mesh.
func (m *Mesh) Endpoint() *MemTransport {
	return &MemTransport{mesh: m}
}

func (m *Mesh) broadcast(from *MemTransport, env protocol.Envelope) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for ep := range m.endpoints {
		if ep == from || ep.room() != from.room() {
			continue
		}
		if m.Drop != nil && m.Drop(env) {
			continue
		}
		select {
		case ep.inbox <- env:
		default:
			// Lagging endpoint; frame is lost, like any other frame.
		}
	}
}

// MemTransport is one endpoint on a Mesh.
type MemTransport struct {
	mesh *Mesh

	mu        sync.Mutex
	roomID    string
	connected bool
	onMessage func(protocol.Envelope)
	peers     map[string]bool
	inbox     chan protocol.Envelope
	done      chan struct{}
}

// Connect joins the room. Reconnecting to the same room is a no-op.
func (t *MemTransport) Connect(ctx context.Context, roomID string, onMessage func(protocol.Envelope)) error {
	t.mu.Lock()
	if t.connected && t.roomID == roomID {
		t.mu.Unlock()
		return nil
	}
	t.roomID = roomID
	t.connected = true
	t.onMessage = onMessage
	t.peers = make(map[string]bool)
	t.inbox = make(chan protocol.Envelope, 64)
	t.done = make(chan struct{})
	inbox, done := t.inbox, t.done
	t.mu.Unlock()

	t.mesh.mu.Lock()
	t.mesh.endpoints[t] = true
	t.mesh.mu.Unlock()

	go func() {
		for {
			select {
			case env := <-inbox:
				t.mu.Lock()
				if t.peers != nil {
					t.peers[env.SenderID] = true
				}
				handler := t.onMessage
				t.mu.Unlock()
				if handler != nil {
					handler(env)
				}
			case <-done:
				return
			case <-ctx.Done():
				return
			}
		}
	}()

	return nil
}

func (t *MemTransport) room() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.roomID
}

// Send broadcasts to every other endpoint in the room.
func (t *MemTransport) Send(env protocol.Envelope) bool {
	t.mu.Lock()
	connected := t.connected
	t.mu.Unlock()
	if !connected {
		return false
	}
	t.mesh.broadcast(t, env)
	return true
}

// Disconnect leaves the mesh and clears peer tracking.
func (t *MemTransport) Disconnect() {
	t.mu.Lock()
	if !t.connected {
		t.mu.Unlock()
		return
	}
	t.connected = false
	t.peers = nil
	close(t.done)
	t.mu.Unlock()

	t.mesh.mu.Lock()
	delete(t.mesh.endpoints, t)
	t.mesh.mu.Unlock()
}

// State reports readiness and the number of distinct sender ids seen.
func (t *MemTransport) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ConnState{
		IsConnected: t.connected,
		PeerCount:   len(t.peers),
		RoomID:      t.roomID,
	}
}
