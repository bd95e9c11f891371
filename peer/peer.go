// Package peer implements one participant in a trivia room: the join
// handshake, the action-forwarding pipeline, and the host's round scheduler.
//
// Authority is replicated, not assigned: a peer is host exactly when the
// player flagged isHost in its own current copy of the state carries its id.
// The check is re-derived on every use, so role follows whatever snapshot
// arrived last.
package peer

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkrell/triviamesh/game"
	"github.com/mkrell/triviamesh/match"
	"github.com/mkrell/triviamesh/protocol"
	"github.com/mkrell/triviamesh/transport"
)

// Options tune a peer. Zero values fall back to the defaults below, so
// tests can shrink every interval.
type Options struct {
	// ID is the session id used on the wire. Leave empty for a fresh random
	// one; set it when the transport was built around the same id, so its
	// self-echo filter sees this peer's frames.
	ID string

	Name   string
	Avatar string
	IsBot  bool

	// MatchThreshold is the fuzzy-match similarity floor.
	MatchThreshold float64

	TickInterval      time.Duration // host scheduler period
	JoinRetryInterval time.Duration // gap between JOIN_REQUEST retries
	JoinAttempts      int           // retries before the join loop gives up
	ResultPause       time.Duration // reveal time between rounds

	// Question replenishment for AI decks: when the unplayed buffer drops
	// to ReplenishWatermark, one background generation of ReplenishBatch
	// questions is started.
	ReplenishWatermark int
	ReplenishBatch     int

	Generator game.Generator
	Images    game.ImageResolver

	// OnState fires after every snapshot replacement, with a copy.
	OnState func(game.State)
	// OnChat fires for chat messages from other peers.
	OnChat func(protocol.ChatMessage)
	// Logf receives diagnostic output; nil discards it.
	Logf func(format string, args ...any)
}

const (
	defaultTickInterval      = 500 * time.Millisecond
	defaultJoinRetryInterval = time.Second
	defaultJoinAttempts      = 15
	defaultResultPause       = 5 * time.Second
	defaultWatermark         = 3
	defaultBatch             = 5
)

func (o *Options) fillDefaults() {
	if o.MatchThreshold <= 0 {
		o.MatchThreshold = match.DefaultThreshold
	}
	if o.TickInterval <= 0 {
		o.TickInterval = defaultTickInterval
	}
	if o.JoinRetryInterval <= 0 {
		o.JoinRetryInterval = defaultJoinRetryInterval
	}
	if o.JoinAttempts <= 0 {
		o.JoinAttempts = defaultJoinAttempts
	}
	if o.ResultPause <= 0 {
		o.ResultPause = defaultResultPause
	}
	if o.ReplenishWatermark <= 0 {
		o.ReplenishWatermark = defaultWatermark
	}
	if o.ReplenishBatch <= 0 {
		o.ReplenishBatch = defaultBatch
	}
}

// Peer is one tab's worth of game: a session id, a transport, and a local
// copy of the replicated state.
type Peer struct {
	id   string
	opts Options
	tr   transport.Transport

	mu          sync.Mutex
	state       game.State
	joinGivenUp bool
	generating  bool
	resultTimer *time.Timer
	rebroadcast *time.Timer
	cancel      context.CancelFunc
}

// New creates a peer. The session id is random per peer and stable only for
// this peer's lifetime.
func New(tr transport.Transport, opts Options) *Peer {
	opts.fillDefaults()
	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	return &Peer{
		id:    id,
		opts:  opts,
		tr:    tr,
		state: game.State{Status: game.StatusLanding},
	}
}

// ID returns the peer's session id.
func (p *Peer) ID() string { return p.id }

// State returns a copy of the current local snapshot.
func (p *Peer) State() game.State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.Clone()
}

// ConnState reports transport health.
func (p *Peer) ConnState() transport.ConnState {
	return p.tr.State()
}

// IsHost reports whether this peer currently resolves itself as host.
func (p *Peer) IsHost() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.IsHost(p.id)
}

func (p *Peer) logf(format string, args ...any) {
	if p.opts.Logf != nil {
		p.opts.Logf(format, args...)
	}
}

// CreateRoom connects to the room and seeds a lobby with this peer as the
// sole, host-flagged player.
func (p *Peer) CreateRoom(ctx context.Context, roomID string, settings game.Settings) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := p.tr.Connect(ctx, roomID, p.handleEnvelope); err != nil {
		cancel()
		return err
	}

	p.mu.Lock()
	p.cancel = cancel
	p.state = game.State{
		RoomID: roomID,
		Status: game.StatusLobby,
		Players: []game.Player{{
			ID:     p.id,
			Name:   p.opts.Name,
			Avatar: p.opts.Avatar,
			IsHost: true,
			IsBot:  p.opts.IsBot,
		}},
		Settings: settings,
	}
	p.broadcastStateLocked()
	p.notifyStateLocked()
	p.mu.Unlock()

	go p.schedulerLoop(ctx)

	return nil
}

// JoinRoom connects to the room and starts the join retry loop, which
// broadcasts JOIN_REQUEST until this peer's id shows up in a received player
// list or the attempts run out.
func (p *Peer) JoinRoom(ctx context.Context, roomID string) error {
	ctx, cancel := context.WithCancel(ctx)

	if err := p.tr.Connect(ctx, roomID, p.handleEnvelope); err != nil {
		cancel()
		return err
	}

	p.mu.Lock()
	p.cancel = cancel
	p.joinGivenUp = false
	p.state = game.State{
		RoomID: roomID,
		Status: game.StatusLobby,
	}
	p.notifyStateLocked()
	p.mu.Unlock()

	go p.joinLoop(ctx, roomID)
	go p.schedulerLoop(ctx)

	return nil
}

// Leave tears down timers and the transport and returns to landing.
func (p *Peer) Leave() {
	p.mu.Lock()
	if p.cancel != nil {
		p.cancel()
		p.cancel = nil
	}
	if p.resultTimer != nil {
		p.resultTimer.Stop()
		p.resultTimer = nil
	}
	if p.rebroadcast != nil {
		p.rebroadcast.Stop()
		p.rebroadcast = nil
	}
	p.state = game.State{Status: game.StatusLanding}
	p.mu.Unlock()

	p.tr.Disconnect()
}

// Joined reports whether this peer appears in its own player list.
func (p *Peer) Joined() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state.FindPlayer(p.id) >= 0
}

// JoinFailed reports that the retry loop exhausted its attempts.
func (p *Peer) JoinFailed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.joinGivenUp
}

// joinLoop re-sends JOIN_REQUEST on a fixed interval. Peer-mesh negotiation
// is asynchronous and early frames may silently drop, so one send is never
// enough; the loop stops as soon as a received snapshot contains our id.
func (p *Peer) joinLoop(ctx context.Context, roomID string) {
	ticker := time.NewTicker(p.opts.JoinRetryInterval)
	defer ticker.Stop()

	for attempt := 0; attempt < p.opts.JoinAttempts; attempt++ {
		if p.Joined() {
			return
		}

		env, err := protocol.New(protocol.KindJoinRequest, p.id, protocol.JoinRequest{
			Name:   p.opts.Name,
			Avatar: p.opts.Avatar,
		})
		if err == nil {
			p.tr.Send(env)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}

	if !p.Joined() {
		p.mu.Lock()
		p.joinGivenUp = true
		p.mu.Unlock()
		p.logf("JOIN: giving up on %s after %d attempts", roomID, p.opts.JoinAttempts)
	}
}

// handleEnvelope dispatches inbound frames. Unknown kinds and undecodable
// payloads are dropped with a log line; the sender's retry loop is the only
// recovery path.
func (p *Peer) handleEnvelope(env protocol.Envelope) {
	switch env.Kind {
	case protocol.KindStateUpdate:
		var s game.State
		if err := env.DecodePayload(&s); err != nil {
			p.logf("WIRE: dropping malformed STATE_UPDATE from %s", env.SenderID)
			return
		}
		p.applySnapshot(s)

	case protocol.KindJoinRequest:
		var req protocol.JoinRequest
		if err := env.DecodePayload(&req); err != nil {
			p.logf("WIRE: dropping malformed JOIN_REQUEST from %s", env.SenderID)
			return
		}
		p.handleJoinRequest(env.SenderID, req)

	case protocol.KindPlayerAction:
		var act protocol.PlayerAction
		if err := env.DecodePayload(&act); err != nil {
			p.logf("WIRE: dropping malformed PLAYER_ACTION from %s", env.SenderID)
			return
		}
		p.handlePlayerAction(env.SenderID, act)

	case protocol.KindPlayerUpdate:
		var upd protocol.PlayerUpdate
		if err := env.DecodePayload(&upd); err != nil {
			p.logf("WIRE: dropping malformed PLAYER_UPDATE from %s", env.SenderID)
			return
		}
		p.handlePlayerUpdate(env.SenderID, upd)

	case protocol.KindChatMessage:
		var msg protocol.ChatMessage
		if err := env.DecodePayload(&msg); err != nil {
			return
		}
		if p.opts.OnChat != nil {
			p.opts.OnChat(msg)
		}
	}
}

// applySnapshot replaces the local state wholesale. There is no versioning
// and no recency check: snapshot replication means the receiver's copy is
// always whatever arrived last.
func (p *Peer) applySnapshot(s game.State) {
	p.mu.Lock()
	p.state = s
	p.notifyStateLocked()
	p.mu.Unlock()
}

// handleJoinRequest runs only on the peer that resolves itself as host.
// Appending is idempotent on the sender id, and the full state is re-sent on
// every request, known id or not: the guest cannot otherwise tell a lost
// STATE_UPDATE from an unprocessed join.
func (p *Peer) handleJoinRequest(senderID string, req protocol.JoinRequest) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) {
		return
	}

	next, added := game.AddPlayer(p.state, senderID, req.Name, req.Avatar, false)
	if added {
		p.state = next
		p.logf("GAMES: player %q joined %s", req.Name, p.state.RoomID)
		p.notifyStateLocked()
	}
	p.broadcastStateLocked()

	// One delayed re-send as a cheap stand-in for acknowledged delivery.
	if p.rebroadcast != nil {
		p.rebroadcast.Stop()
	}
	p.rebroadcast = time.AfterFunc(p.opts.JoinRetryInterval/2, func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.state.IsHost(p.id) {
			p.broadcastStateLocked()
		}
	})
}

// handlePlayerAction applies a forwarded intent. Only the host processes
// actions; everyone else sees the result via the follow-up STATE_UPDATE.
func (p *Peer) handlePlayerAction(senderID string, act protocol.PlayerAction) {
	var guess string
	if len(act.Data) > 0 {
		var data protocol.AnswerData
		if err := json.Unmarshal(act.Data, &data); err == nil {
			guess = data.Guess
		}
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) {
		return
	}

	next, applied := game.Apply(p.state, senderID, game.Action(act.Action), guess, time.Now())
	if !applied {
		return
	}
	p.state = next
	p.notifyStateLocked()
	p.broadcastStateLocked()
}

func (p *Peer) handlePlayerUpdate(senderID string, upd protocol.PlayerUpdate) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) {
		return
	}

	next, applied := game.UpdateProfile(p.state, senderID, upd.Name, upd.Avatar)
	if !applied {
		return
	}
	p.state = next
	p.notifyStateLocked()
	p.broadcastStateLocked()
}

// submitAction routes an intent: in-process when this peer is host, over the
// wire otherwise. Either way the resulting state reaches other peers only as
// a STATE_UPDATE, so they cannot tell the difference.
func (p *Peer) submitAction(action string, guess string) {
	p.mu.Lock()
	isHost := p.state.IsHost(p.id)
	p.mu.Unlock()

	if isHost {
		p.handlePlayerAction(p.id, protocol.PlayerAction{Action: action, Data: answerData(guess)})
		return
	}

	env, err := protocol.New(protocol.KindPlayerAction, p.id, protocol.PlayerAction{
		Action: action,
		Data:   answerData(guess),
	})
	if err != nil {
		return
	}
	p.tr.Send(env)
}

func answerData(guess string) json.RawMessage {
	if guess == "" {
		return nil
	}
	raw, err := json.Marshal(protocol.AnswerData{Guess: guess})
	if err != nil {
		return nil
	}
	return raw
}

// ToggleReady flips this peer's lobby ready flag.
func (p *Peer) ToggleReady() {
	p.submitAction(protocol.ActionReadyToggle, "")
}

// SubmitAnswer checks the guess against the current question locally and
// forwards the matching action. The correctness verdict drives immediate UI
// feedback; the host trusts the asserted action kind when scoring.
func (p *Peer) SubmitAnswer(guess string) bool {
	p.mu.Lock()
	q, ok := p.state.CurrentQuestion()
	threshold := p.opts.MatchThreshold
	p.mu.Unlock()

	if !ok {
		return false
	}

	if match.Guess(guess, q.Answer, q.AcceptedAnswers, threshold) {
		p.submitAction(protocol.ActionAnswerCorrect, guess)
		return true
	}
	p.submitAction(protocol.ActionAnswerWrong, guess)
	return false
}

// SendChat broadcasts a chat message to the room. Chat is not host-mediated.
func (p *Peer) SendChat(content, msgType string) {
	p.mu.Lock()
	name := p.opts.Name
	p.mu.Unlock()

	env, err := protocol.New(protocol.KindChatMessage, p.id, protocol.ChatMessage{
		ID:         uuid.NewString(),
		SenderID:   p.id,
		SenderName: name,
		Content:    content,
		Type:       msgType,
		Timestamp:  time.Now().UnixMilli(),
	})
	if err != nil {
		return
	}
	p.tr.Send(env)
}

// UpdateProfile changes this peer's name/avatar, host-mediated.
func (p *Peer) UpdateProfile(name, avatar string) {
	p.mu.Lock()
	p.opts.Name = name
	if avatar != "" {
		p.opts.Avatar = avatar
	}
	isHost := p.state.IsHost(p.id)
	p.mu.Unlock()

	if isHost {
		p.handlePlayerUpdate(p.id, protocol.PlayerUpdate{Name: name, Avatar: avatar})
		return
	}

	env, err := protocol.New(protocol.KindPlayerUpdate, p.id, protocol.PlayerUpdate{
		Name:   name,
		Avatar: avatar,
	})
	if err != nil {
		return
	}
	p.tr.Send(env)
}

// UpdateSettings replaces the game settings. Host-only, lobby-only.
func (p *Peer) UpdateSettings(settings game.Settings) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) || p.state.Status != game.StatusLobby {
		return false
	}
	next := p.state.Clone()
	next.Settings = settings
	p.state = next
	p.notifyStateLocked()
	p.broadcastStateLocked()
	return true
}

// broadcastStateLocked sends the entire current snapshot as STATE_UPDATE.
// Callers hold p.mu.
func (p *Peer) broadcastStateLocked() {
	env, err := protocol.New(protocol.KindStateUpdate, p.id, p.state)
	if err != nil {
		p.logf("WIRE: encoding state failed: %v", err)
		return
	}
	p.tr.Send(env)
}

func (p *Peer) notifyStateLocked() {
	if p.opts.OnState == nil {
		return
	}
	snapshot := p.state.Clone()
	go p.opts.OnState(snapshot)
}
