package transport

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrell/triviamesh/protocol"
)

// testRelay is a minimal fan-out hub: every frame goes to every other
// client on the same path, and PING envelopes are answered with PONG.
type testRelay struct {
	mu    sync.Mutex
	rooms map[string]map[*websocket.Conn]bool
}

func newTestRelay() *testRelay {
	return &testRelay{rooms: make(map[string]map[*websocket.Conn]bool)}
}

func (tr *testRelay) handler(w http.ResponseWriter, r *http.Request) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	conn, err := up.Upgrade(w, r, nil)
	if err != nil {
		return
	}

	room := r.URL.Path

	tr.mu.Lock()
	if tr.rooms[room] == nil {
		tr.rooms[room] = make(map[*websocket.Conn]bool)
	}
	tr.rooms[room][conn] = true
	tr.mu.Unlock()

	defer func() {
		tr.mu.Lock()
		delete(tr.rooms[room], conn)
		tr.mu.Unlock()
		conn.Close()
	}()

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		env, err := protocol.Decode(data)
		if err != nil {
			continue
		}

		tr.mu.Lock()
		if env.Kind == protocol.KindPing {
			pong, _ := protocol.New(protocol.KindPong, "relay", nil)
			raw, _ := pong.Encode()
			_ = conn.WriteMessage(websocket.TextMessage, raw)
		} else {
			for other := range tr.rooms[room] {
				if other != conn {
					_ = other.WriteMessage(websocket.TextMessage, data)
				}
			}
		}
		tr.mu.Unlock()
	}
}

func wsBase(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWSConnectAndExchange(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(newTestRelay().handler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ra, rb recorder
	a := NewWS(wsBase(srv), "a")
	b := NewWS(wsBase(srv), "b")
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, b.Connect(ctx, "ROOM", rb.handle))

	// Readiness comes from the ping/pong round trip.
	require.Eventually(t, func() bool {
		return a.State().IsConnected && b.State().IsConnected
	}, 5*time.Second, 20*time.Millisecond)

	env, err := protocol.New(protocol.KindChatMessage, "a", protocol.ChatMessage{Content: "hi"})
	require.NoError(t, err)
	require.True(t, a.Send(env))

	require.Eventually(t, func() bool {
		return rb.count() == 1
	}, 5*time.Second, 20*time.Millisecond)
	assert.Zero(t, ra.count())

	assert.Eventually(t, func() bool {
		return b.State().PeerCount == 1
	}, 5*time.Second, 20*time.Millisecond)

	a.Disconnect()
	assert.False(t, a.State().IsConnected)
}

// TestWSFiltersSelfEcho runs against a hub that reflects every frame back to
// all connections, sender included: the adapter must drop frames carrying its
// own sender id rather than hand them to the peer.
func TestWSFiltersSelfEcho(t *testing.T) {
	up := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			env, err := protocol.Decode(data)
			if err != nil {
				continue
			}
			if env.Kind == protocol.KindPing {
				pong, _ := protocol.New(protocol.KindPong, "relay", nil)
				raw, _ := pong.Encode()
				_ = conn.WriteMessage(websocket.TextMessage, raw)
			}
			_ = conn.WriteMessage(websocket.TextMessage, data)
		}
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ra recorder
	a := NewWS(wsBase(srv), "a")
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))

	require.Eventually(t, func() bool {
		return a.State().IsConnected
	}, 5*time.Second, 20*time.Millisecond)

	env, err := protocol.New(protocol.KindChatMessage, "a", protocol.ChatMessage{Content: "hi"})
	require.NoError(t, err)
	require.True(t, a.Send(env))

	time.Sleep(200 * time.Millisecond)
	assert.Zero(t, ra.count(), "frames with our own sender id must be dropped")
}

func TestWSQueuesBeforeReady(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(newTestRelay().handler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ra, rb recorder
	a := NewWS(wsBase(srv), "a")
	b := NewWS(wsBase(srv), "b")
	require.NoError(t, b.Connect(ctx, "ROOM", rb.handle))
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))

	// Send immediately, before the round trip has marked us ready.
	env, err := protocol.New(protocol.KindChatMessage, "a", protocol.ChatMessage{Content: "early"})
	require.NoError(t, err)
	assert.True(t, a.Send(env), "sends before readiness must queue, not fail")

	require.Eventually(t, func() bool {
		return rb.count() == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestWSGivesUpAfterBoundedAttempts(t *testing.T) {
	oldInitial, oldCap, oldAttempts := dialBackoffInitial, dialBackoffCap, dialAttempts
	dialBackoffInitial = 5 * time.Millisecond
	dialBackoffCap = 10 * time.Millisecond
	dialAttempts = 3
	defer func() {
		dialBackoffInitial, dialBackoffCap, dialAttempts = oldInitial, oldCap, oldAttempts
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Nothing listens here.
	a := NewWS("ws://127.0.0.1:1", "a")
	require.NoError(t, a.Connect(ctx, "ROOM", func(protocol.Envelope) {}))

	require.Eventually(t, func() bool {
		a.mu.Lock()
		defer a.mu.Unlock()
		return a.gaveUp
	}, 5*time.Second, 10*time.Millisecond)

	assert.False(t, a.State().IsConnected)
	env, err := protocol.New(protocol.KindPing, "a", nil)
	require.NoError(t, err)
	assert.False(t, a.Send(env), "a transport that gave up refuses frames")
}

func TestWSConnectIdempotent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(newTestRelay().handler))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var ra recorder
	a := NewWS(wsBase(srv), "a")
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
}
