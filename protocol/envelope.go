// Package protocol defines the wire format spoken between peers.
//
// Every frame on the mesh is an Envelope: a tagged union with a Kind, an
// opaque payload, the sender's session id, and a millisecond timestamp.
// Payloads are decoded lazily by whoever cares about that kind; unknown
// kinds are ignored by receivers.
package protocol

import (
	"encoding/json"
	"errors"
	"time"
)

// Kind identifies the payload carried by an Envelope.
type Kind string

const (
	KindJoinRequest  Kind = "JOIN_REQUEST"
	KindStateUpdate  Kind = "STATE_UPDATE"
	KindPlayerAction Kind = "PLAYER_ACTION"
	KindPlayerUpdate Kind = "PLAYER_UPDATE"
	KindChatMessage  Kind = "CHAT_MESSAGE"
	KindPing         Kind = "PING"
	KindPong         Kind = "PONG"
)

// Envelope is the single frame type exchanged between peers.
type Envelope struct {
	Kind      Kind            `json:"type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	SenderID  string          `json:"senderId"`
	Timestamp int64           `json:"timestamp"`
}

var ErrMalformed = errors.New("protocol: malformed envelope")

// JoinRequest asks the current host to add the sender to the player list.
type JoinRequest struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// PlayerAction is a gameplay intent forwarded to the host.
type PlayerAction struct {
	Action string          `json:"action"`
	Data   json.RawMessage `json:"data,omitempty"`
}

// PlayerUpdate propagates a profile change through the host.
type PlayerUpdate struct {
	Name   string `json:"name"`
	Avatar string `json:"avatar"`
}

// ChatMessage is delivered to every peer without host mediation.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"senderId"`
	SenderName string `json:"senderName"`
	Content    string `json:"content"`
	Type       string `json:"type"` // "text", "emoji" or "gif"
	Timestamp  int64  `json:"timestamp"`
}

// Action names carried inside PlayerAction.
const (
	ActionReadyToggle   = "READY_TOGGLE"
	ActionAnswerCorrect = "ANSWER_CORRECT"
	ActionAnswerWrong   = "ANSWER_WRONG"
)

// AnswerData is the Data payload for ANSWER_CORRECT and ANSWER_WRONG.
type AnswerData struct {
	Guess string `json:"guess"`
}

// New builds an Envelope for the given kind, marshaling payload. A nil
// payload produces an envelope with no payload bytes (PING/PONG).
func New(kind Kind, senderID string, payload any) (Envelope, error) {
	env := Envelope{
		Kind:      kind,
		SenderID:  senderID,
		Timestamp: time.Now().UnixMilli(),
	}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, err
	}
	env.Payload = raw
	return env, nil
}

// Encode renders the envelope as a JSON frame.
func (e Envelope) Encode() ([]byte, error) {
	return json.Marshal(e)
}

// Decode parses a JSON frame into an Envelope. Frames missing a kind or a
// sender id are rejected; receivers drop them silently.
func Decode(data []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return Envelope{}, ErrMalformed
	}
	if env.Kind == "" || env.SenderID == "" {
		return Envelope{}, ErrMalformed
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into dst.
func (e Envelope) DecodePayload(dst any) error {
	if len(e.Payload) == 0 {
		return ErrMalformed
	}
	if err := json.Unmarshal(e.Payload, dst); err != nil {
		return ErrMalformed
	}
	return nil
}
