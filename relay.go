// Triviamesh room relay
//
// The relay is the delivery substrate under the peer protocol: it knows
// nothing about games. Every text frame received from one socket in a room
// is forwarded verbatim to every other socket in the same room. Two
// exceptions: frames that do not decode as protocol envelopes are dropped,
// and PING envelopes are answered with a PONG directly (the peers' readiness
// probe) instead of being forwarded.
//
// Features:
// - WebSockets per room code: /play/:room and /play/:room/ws
// - GET /play redirects to a freshly coded room
// - Room codes are short, human-typed, crypto-random, collision-checked
// - Slow clients are dropped rather than allowed to stall the room
// - Idle rooms auto-reaped after a configurable timeout
// - In-browser QR code to share the room URL, backed by go-qrcode

package main

import (
	"crypto/rand"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
	"github.com/skip2/go-qrcode"

	"github.com/mkrell/triviamesh/protocol"
)

const relaySenderID = "relay"

type relayClient struct {
	conn *websocket.Conn
	send chan []byte
}

type frame struct {
	from *relayClient
	data []byte
}

type relayRoom struct {
	id      string
	clients map[*relayClient]bool

	register chan *relayClient
	unreg    chan *relayClient
	frames   chan frame

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newRelayRoom(roomID string) *relayRoom {
	now := time.Now()
	return &relayRoom{
		id:         roomID,
		clients:    make(map[*relayClient]bool),
		register:   make(chan *relayClient),
		unreg:      make(chan *relayClient),
		frames:     make(chan frame, 64),
		createdAt:  now,
		lastActive: now,
	}
}

func (rm *relayRoom) run(cfg *Config) {
	for {
		select {
		case c := <-rm.register:
			rm.mu.Lock()
			rm.lastActive = time.Now()
			rm.clients[c] = true
			count := len(rm.clients)
			rm.mu.Unlock()

			logf(cfg, "ROOMS: %d peer(s) connected to %s", count, rm.id)

		case c := <-rm.unreg:
			rm.mu.Lock()
			rm.lastActive = time.Now()
			if _, ok := rm.clients[c]; ok {
				delete(rm.clients, c)
				close(c.send)
			}
			rm.mu.Unlock()

		case f := <-rm.frames:
			rm.handleFrame(cfg, f)
		}
	}
}

// handleFrame validates and fans out one inbound frame. The relay never
// rewrites payloads; peers own all game semantics.
func (rm *relayRoom) handleFrame(cfg *Config, f frame) {
	env, err := protocol.Decode(f.data)
	if err != nil {
		logf(cfg, "ROOMS: dropping malformed frame (%s) in %s", humanReadableSize(int64(len(f.data))), rm.id)
		return
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	rm.lastActive = time.Now()

	// Readiness probe: answer directly, don't forward.
	if env.Kind == protocol.KindPing {
		pong, err := protocol.New(protocol.KindPong, relaySenderID, nil)
		if err != nil {
			return
		}
		data, err := pong.Encode()
		if err != nil {
			return
		}
		select {
		case f.from.send <- data:
		default:
			delete(rm.clients, f.from)
			close(f.from.send)
		}
		return
	}

	for client := range rm.clients {
		if client == f.from {
			continue
		}
		select {
		case client.send <- f.data:
		default:
			delete(rm.clients, client)
			close(client.send)
		}
	}
}

// closeAll disconnects all clients of this room (used by reaper).
func (rm *relayRoom) closeAll() {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	for c := range rm.clients {
		close(c.send)
		_ = c.conn.Close()
		delete(rm.clients, c)
	}
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// RoomManager holds the live rooms keyed by code, so each /play/:room is its
// own isolated mesh.
type RoomManager struct {
	mu          sync.Mutex
	rooms       map[string]*relayRoom
	idleTimeout time.Duration
}

func newRoomManager(idleTimeout time.Duration) *RoomManager {
	rms := &RoomManager{
		rooms:       make(map[string]*relayRoom),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		go rms.reaperLoop()
	}
	return rms
}

func (rms *RoomManager) getRoom(cfg *Config, roomID string) *relayRoom {
	rms.mu.Lock()
	defer rms.mu.Unlock()

	if rm, ok := rms.rooms[roomID]; ok {
		return rm
	}

	rm := newRelayRoom(roomID)
	rms.rooms[roomID] = rm
	go rm.run(cfg)
	return rm
}

// roomCodeAlphabet omits characters that read ambiguously over a shoulder
// (0/O, 1/I/L). Codes are typed by hand, so short and unambiguous wins.
const roomCodeAlphabet = "ABCDEFGHJKMNPQRSTUVWXYZ23456789"

// newRoomCode generates a crypto-random room code and ensures it doesn't
// collide with a live room.
func (rms *RoomManager) newRoomCode() string {
	const codeLen = 6
	for {
		buf := make([]byte, codeLen)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, codeLen)
		for i := range out {
			out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
		}
		code := string(out)

		rms.mu.Lock()
		_, exists := rms.rooms[code]
		rms.mu.Unlock()

		if !exists {
			return code
		}
	}
}

// reaperLoop periodically removes rooms that have been idle longer than
// idleTimeout.
func (rms *RoomManager) reaperLoop() {
	ticker := time.NewTicker(rms.idleTimeout / 2)
	for range ticker.C {
		cutoff := time.Now().Add(-rms.idleTimeout)

		rms.mu.Lock()
		for id, rm := range rms.rooms {
			rm.mu.RLock()
			last := rm.lastActive
			rm.mu.RUnlock()

			if last.Before(cutoff) {
				delete(rms.rooms, id)
				go rm.closeAll()
			}
		}
		rms.mu.Unlock()
	}
}

// Websocket handler that picks the room based on :room.
func serveRelayWS(cfg *Config, rms *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
		roomID := strings.ToUpper(ps.ByName("room"))
		if roomID == "" {
			http.Error(w, "missing room code", http.StatusBadRequest)
			return
		}

		rm := rms.getRoom(cfg, roomID)

		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("upgrade error:", err)
			return
		}

		client := &relayClient{
			conn: conn,
			send: make(chan []byte, 16),
		}

		rm.register <- client

		go client.writePump()
		client.readPump(rm)
	}
}

func (c *relayClient) readPump(rm *relayRoom) {
	defer func() {
		rm.unreg <- c
		_ = c.conn.Close()
	}()

	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}

		rm.frames <- frame{from: c, data: data}
	}
}

func (c *relayClient) writePump() {
	defer c.conn.Close()

	for data := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}

const roomHTML = `<!doctype html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>triviamesh room</title>
<style>
  body { font-family: system-ui, -apple-system, BlinkMacSystemFont, "Segoe UI", sans-serif; margin: 2rem; }
  code { font-size: 2rem; letter-spacing: 0.3rem; }
  img { margin-top: 1rem; }
</style>
</head>
<body>
<h1>Room</h1>
<p>Share this code with the other players:</p>
<code id="code"></code>
<p><img id="qr" width="320" height="320" alt="QR code for this room"></p>
<p>Headless players can join with:
<pre id="cli"></pre></p>
<script>
(function() {
  const parts = location.pathname.replace(/\/$/, '').split('/');
  const code = parts[parts.length - 1];
  document.getElementById('code').textContent = code;
  document.getElementById('qr').src = location.pathname.replace(/\/$/, '') + '/qr';
  document.getElementById('cli').textContent =
    'triviamesh bot --relay ws://' + location.host + ' --room ' + code;
})();
</script>
</body>
</html>
`

func serveRoomPage(cfg *Config) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "public, max-age=3600")
		w.Header().Set("Expires", time.Now().Add(time.Hour).UTC().Format(http.TimeFormat))
		securityHeaders(cfg, w)

		_, _ = w.Write([]byte(roomHTML))
	}
}

// QR handler: generates a PNG QR code for the current room URL.
func qrHandler(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	roomID := ps.ByName("room")
	if roomID == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}

	// Derive scheme (respecting TLS and X-Forwarded-Proto if present).
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}

	// We are at /play/:room/qr; strip trailing "/qr" to get the room URL.
	path := strings.TrimSuffix(r.URL.Path, "/qr")

	url := scheme + "://" + r.Host + path

	const qrSize = 320 // mobile-friendly size
	png, err := qrcode.Encode(url, qrcode.Medium, qrSize)
	if err != nil {
		http.Error(w, "qr generation failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// redirectNewRoom handles GET /play by generating a new room code (with
// server-side collision detection) and redirecting to /play/:room.
func redirectNewRoom(cfg *Config, path string, rms *RoomManager) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		roomID := rms.newRoomCode()
		logf(cfg, "ROOMS: Created room %s/%s", path, roomID)
		http.Redirect(w, r, path+"/"+roomID, http.StatusTemporaryRedirect)
	}
}

// registerRelay sets up routes so that:
//   - $path            → redirects to a new random room (6-char code)
//   - $path/:room      → HTML share page
//   - $path/:room/ws   → WebSocket fan-out for that room
//   - $path/:room/qr   → PNG QR code for that room URL
func registerRelay(cfg *Config, path string, mux *httprouter.Router) {
	rms := newRoomManager(cfg.roomTimeout)

	// Root path → redirect to new random room
	mux.GET(path, redirectNewRoom(cfg, path, rms))

	// Per-room share page (HTML)
	mux.GET(path+"/:room", serveRoomPage(cfg))

	// Per-room websocket
	mux.GET(path+"/:room/ws", serveRelayWS(cfg, rms))

	// Per-room QR code
	mux.GET(path+"/:room/qr", qrHandler)
}
