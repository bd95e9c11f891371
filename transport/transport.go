// Package transport moves protocol envelopes between the peers of a room.
//
// Delivery is best effort: frames may be dropped, duplicated, or arbitrarily
// delayed, and nothing above this package may assume otherwise. The game
// protocol compensates with idempotent handlers and periodic re-broadcast.
package transport

import (
	"context"

	"github.com/mkrell/triviamesh/protocol"
)

// ConnState is a point-in-time report of a transport's health.
type ConnState struct {
	IsConnected bool
	PeerCount   int
	RoomID      string
}

// Transport joins a logical room and broadcasts envelopes to everyone in it.
type Transport interface {
	// Connect joins the room and registers the inbound handler. Calling it
	// again for the same room is a no-op; callers may send before the
	// connection is fully negotiated, since implementations queue.
	Connect(ctx context.Context, roomID string, onMessage func(protocol.Envelope)) error

	// Send attempts a best-effort broadcast to every known peer. The return
	// value means "the transport accepted the frame", not that any peer
	// received it.
	Send(env protocol.Envelope) bool

	// Disconnect leaves the room and clears peer tracking.
	Disconnect()

	// State reports connection readiness and the number of peers seen.
	State() ConnState
}
