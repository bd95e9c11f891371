package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mkrell/triviamesh/protocol"
)

type recorder struct {
	mu   sync.Mutex
	envs []protocol.Envelope
}

func (r *recorder) handle(env protocol.Envelope) {
	r.mu.Lock()
	r.envs = append(r.envs, env)
	r.mu.Unlock()
}

func (r *recorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.envs)
}

func TestMeshFanOutExcludesSender(t *testing.T) {
	mesh := NewMesh()
	ctx := context.Background()

	var ra, rb, rc recorder
	a := mesh.Endpoint()
	b := mesh.Endpoint()
	c := mesh.Endpoint()
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, b.Connect(ctx, "ROOM", rb.handle))
	require.NoError(t, c.Connect(ctx, "ROOM", rc.handle))

	env, err := protocol.New(protocol.KindChatMessage, "a", protocol.ChatMessage{Content: "hi"})
	require.NoError(t, err)
	require.True(t, a.Send(env))

	assert.Eventually(t, func() bool {
		return rb.count() == 1 && rc.count() == 1
	}, time.Second, 10*time.Millisecond)
	assert.Zero(t, ra.count(), "sender must not receive its own frame")
}

func TestMeshRoomsAreIsolated(t *testing.T) {
	mesh := NewMesh()
	ctx := context.Background()

	var ra, rb recorder
	a := mesh.Endpoint()
	b := mesh.Endpoint()
	require.NoError(t, a.Connect(ctx, "ROOM1", ra.handle))
	require.NoError(t, b.Connect(ctx, "ROOM2", rb.handle))

	env, err := protocol.New(protocol.KindPing, "a", nil)
	require.NoError(t, err)
	a.Send(env)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rb.count())
}

func TestMeshPeerTracking(t *testing.T) {
	mesh := NewMesh()
	ctx := context.Background()

	var ra, rb recorder
	a := mesh.Endpoint()
	b := mesh.Endpoint()
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, b.Connect(ctx, "ROOM", rb.handle))

	env, err := protocol.New(protocol.KindChatMessage, "b", protocol.ChatMessage{Content: "hi"})
	require.NoError(t, err)
	b.Send(env)

	assert.Eventually(t, func() bool {
		return a.State().PeerCount == 1
	}, time.Second, 10*time.Millisecond)

	st := a.State()
	assert.True(t, st.IsConnected)
	assert.Equal(t, "ROOM", st.RoomID)
}

func TestMeshDisconnect(t *testing.T) {
	mesh := NewMesh()
	ctx := context.Background()

	var ra, rb recorder
	a := mesh.Endpoint()
	b := mesh.Endpoint()
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, b.Connect(ctx, "ROOM", rb.handle))

	b.Disconnect()
	assert.False(t, b.State().IsConnected)
	assert.False(t, b.Send(protocol.Envelope{Kind: protocol.KindPing, SenderID: "b"}))

	env, err := protocol.New(protocol.KindChatMessage, "a", protocol.ChatMessage{Content: "hi"})
	require.NoError(t, err)
	a.Send(env)

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rb.count())
}

func TestMeshConnectIdempotent(t *testing.T) {
	mesh := NewMesh()
	ctx := context.Background()

	var ra recorder
	a := mesh.Endpoint()
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle), "reconnecting to the same room is a no-op")
}

func TestMeshDropHook(t *testing.T) {
	mesh := NewMesh()
	mesh.Drop = func(protocol.Envelope) bool { return true }
	ctx := context.Background()

	var ra, rb recorder
	a := mesh.Endpoint()
	b := mesh.Endpoint()
	require.NoError(t, a.Connect(ctx, "ROOM", ra.handle))
	require.NoError(t, b.Connect(ctx, "ROOM", rb.handle))

	env, err := protocol.New(protocol.KindChatMessage, "a", protocol.ChatMessage{Content: "hi"})
	require.NoError(t, err)
	require.True(t, a.Send(env), "Send reports transport acceptance, not delivery")

	time.Sleep(50 * time.Millisecond)
	assert.Zero(t, rb.count())
}
