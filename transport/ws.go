package transport

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkrell/triviamesh/protocol"
)

// Dial retry tuning. Vars so tests can shrink them.
var (
	dialBackoffInitial = 500 * time.Millisecond
	dialBackoffCap     = 8 * time.Second
	dialAttempts       = 6
)

const (
	pingInterval  = 2 * time.Second
	sendQueueSize = 64
)

// WS is the websocket adapter: it dials the relay's per-room endpoint and
// broadcasts envelopes through it. Connection failures are retried with
// capped exponential backoff up to a bounded attempt count, after which the
// transport settles into a disconnected state; nothing here ever panics or
// surfaces a hard error to the caller.
type WS struct {
	baseURL string
	selfID  string

	mu        sync.Mutex
	roomID    string
	dialed    bool
	ready     bool
	gaveUp    bool
	onMessage func(protocol.Envelope)
	peers     map[string]bool
	sendCh    chan []byte
	cancel    context.CancelFunc
}

// NewWS creates an adapter that dials baseURL + "/play/<room>/ws". baseURL
// is a ws:// or wss:// URL without a trailing slash.
func NewWS(baseURL, selfID string) *WS {
	return &WS{
		baseURL: baseURL,
		selfID:  selfID,
	}
}

// Connect starts the dial loop for the room. Reconnecting to the same room
// is a no-op. Send may be called immediately; frames queue until the socket
// is up.
func (t *WS) Connect(ctx context.Context, roomID string, onMessage func(protocol.Envelope)) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.roomID == roomID && t.cancel != nil {
		return nil
	}
	if t.cancel != nil {
		t.cancel()
	}

	ctx, cancel := context.WithCancel(ctx)
	t.roomID = roomID
	t.onMessage = onMessage
	t.peers = make(map[string]bool)
	t.sendCh = make(chan []byte, sendQueueSize)
	t.cancel = cancel
	t.gaveUp = false

	go t.run(ctx, roomID, t.sendCh)

	return nil
}

func (t *WS) run(ctx context.Context, roomID string, sendCh chan []byte) {
	backoff := dialBackoffInitial
	attempts := 0

	for {
		if ctx.Err() != nil {
			return
		}

		conn, _, err := websocket.DefaultDialer.DialContext(ctx, t.baseURL+"/play/"+roomID+"/ws", nil)
		if err != nil {
			attempts++
			if attempts >= dialAttempts {
				t.mu.Lock()
				t.gaveUp = true
				t.dialed = false
				t.ready = false
				t.mu.Unlock()
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			if backoff *= 2; backoff > dialBackoffCap {
				backoff = dialBackoffCap
			}
			continue
		}

		attempts = 0
		backoff = dialBackoffInitial

		t.mu.Lock()
		t.dialed = true
		t.mu.Unlock()

		stop := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			t.writePump(ctx, conn, sendCh, stop)
		}()
		go func() {
			defer wg.Done()
			t.pingLoop(ctx, stop)
		}()

		t.readLoop(ctx, conn)

		close(stop)
		_ = conn.Close()
		wg.Wait()

		t.mu.Lock()
		t.dialed = false
		t.ready = false
		t.mu.Unlock()
	}
}

func (t *WS) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			// Malformed frames are dropped; the sender's retry loop is
			// the only recovery path.
			continue
		}
		if env.SenderID == t.selfID {
			continue
		}

		switch env.Kind {
		case protocol.KindPong:
			// Any completed round trip marks the connection ready.
			t.mu.Lock()
			t.ready = true
			t.mu.Unlock()
			continue
		case protocol.KindPing:
			continue
		}

		t.mu.Lock()
		if t.peers != nil {
			t.peers[env.SenderID] = true
		}
		t.ready = true
		handler := t.onMessage
		t.mu.Unlock()

		if handler != nil {
			handler(env)
		}
	}
}

func (t *WS) writePump(ctx context.Context, conn *websocket.Conn, sendCh chan []byte, stop chan struct{}) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case data := <-sendCh:
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}
}

// pingLoop emits PING frames until the round trip succeeds. Pings only mark
// readiness; they never gate Send.
func (t *WS) pingLoop(ctx context.Context, stop chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		t.mu.Lock()
		ready := t.ready
		t.mu.Unlock()
		if ready {
			return
		}

		env, err := protocol.New(protocol.KindPing, t.selfID, nil)
		if err == nil {
			t.Send(env)
		}

		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
		}
	}
}

// Send queues a frame for broadcast. False means the transport refused it:
// never connected, already gave up, or the queue is full.
func (t *WS) Send(env protocol.Envelope) bool {
	t.mu.Lock()
	sendCh := t.sendCh
	gaveUp := t.gaveUp
	t.mu.Unlock()

	if sendCh == nil || gaveUp {
		return false
	}

	data, err := env.Encode()
	if err != nil {
		return false
	}

	select {
	case sendCh <- data:
		return true
	default:
		return false
	}
}

// Disconnect leaves the room and clears peer tracking.
func (t *WS) Disconnect() {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.cancel != nil {
		t.cancel()
		t.cancel = nil
	}
	t.roomID = ""
	t.dialed = false
	t.ready = false
	t.peers = nil
	t.sendCh = nil
}

// State reports readiness and the number of distinct peer ids observed.
func (t *WS) State() ConnState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ConnState{
		IsConnected: t.dialed && t.ready,
		PeerCount:   len(t.peers),
		RoomID:      t.roomID,
	}
}
