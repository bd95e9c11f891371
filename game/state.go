// Package game holds the replicated trivia game state and the pure rules
// that mutate it. Nothing here talks to the network; the peer package feeds
// snapshots in and broadcasts the results out.
package game

// Status is the coarse phase of a game.
type Status string

const (
	StatusLanding     Status = "landing"
	StatusLobby       Status = "lobby"
	StatusGenerating  Status = "generating"
	StatusPlaying     Status = "playing"
	StatusRoundResult Status = "round_result"
	StatusGameOver    Status = "game_over"
)

// Player is one entry in the replicated player list. IDs are per-session
// random tokens; they are stable only for the lifetime of one peer.
type Player struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Avatar           string `json:"avatar"`
	Score            int    `json:"score"`
	Streak           int    `json:"streak"`
	IsHost           bool   `json:"isHost"`
	IsReady          bool   `json:"isReady"`
	HasAnsweredRound bool   `json:"hasAnsweredRound"`
	LastWrongGuess   string `json:"lastWrongGuess,omitempty"`
	FinalAnswer      string `json:"finalAnswer,omitempty"`
	AnswerTime       int64  `json:"answerTime,omitempty"` // ms after round start
	IsBot            bool   `json:"isBot,omitempty"`
}

// QuestionType distinguishes text/emoji prompts from image prompts.
type QuestionType string

const (
	QuestionText  QuestionType = "text"
	QuestionImage QuestionType = "image"
)

// Question is immutable once created. The question list may grow while a
// game is running, but entries are never edited or reordered.
type Question struct {
	ID              string       `json:"id"`
	Type            QuestionType `json:"type"`
	Content         string       `json:"content"` // literal text/emoji, or image URL
	QuestionText    string       `json:"questionText,omitempty"`
	Answer          string       `json:"answer"`
	AcceptedAnswers []string     `json:"acceptedAnswers,omitempty"`
	Category        string       `json:"category,omitempty"`
	ImageType       string       `json:"imageType,omitempty"`
}

// DeckType selects the question source.
type DeckType string

const (
	DeckClassic DeckType = "classic"
	DeckAI      DeckType = "ai"
)

// Settings are mutable only by the host, and only in the lobby.
type Settings struct {
	RoundDuration int      `json:"roundDuration"` // seconds
	PointsToWin   int      `json:"pointsToWin"`
	DeckType      DeckType `json:"deckType"`
	AITopic       string   `json:"aiTopic,omitempty"`
}

// State is the unit of replication. Every STATE_UPDATE carries the whole
// structure and receivers replace their copy wholesale; there is no
// field-level merging anywhere.
type State struct {
	RoomID               string     `json:"roomId"`
	Status               Status     `json:"status"`
	Players              []Player   `json:"players"`
	CurrentQuestionIndex int        `json:"currentQuestionIndex"`
	Questions            []Question `json:"questions"`
	Settings             Settings   `json:"settings"`
	RoundStartTime       int64      `json:"roundStartTime"` // unix ms, host clock
}

// Clone deep-copies the state so reducers can stay pure.
func (s State) Clone() State {
	out := s
	out.Players = append([]Player(nil), s.Players...)
	out.Questions = make([]Question, len(s.Questions))
	for i, q := range s.Questions {
		out.Questions[i] = q
		out.Questions[i].AcceptedAnswers = append([]string(nil), q.AcceptedAnswers...)
	}
	return out
}

// FindPlayer returns the index of the player with the given id, or -1.
func (s State) FindPlayer(id string) int {
	for i := range s.Players {
		if s.Players[i].ID == id {
			return i
		}
	}
	return -1
}

// HostID returns the id of the player currently flagged as host, if any.
func (s State) HostID() string {
	for i := range s.Players {
		if s.Players[i].IsHost {
			return s.Players[i].ID
		}
	}
	return ""
}

// IsHost reports whether the given id currently resolves as host. Host role
// is derived from the local copy of the player list on every call, never
// cached; it is a consequence of replicated state, not an independent fact.
func (s State) IsHost(id string) bool {
	return id != "" && s.HostID() == id
}

// CurrentQuestion returns the active question, if the index is in range.
func (s State) CurrentQuestion() (Question, bool) {
	if s.CurrentQuestionIndex < 0 || s.CurrentQuestionIndex >= len(s.Questions) {
		return Question{}, false
	}
	return s.Questions[s.CurrentQuestionIndex], true
}

// RemainingQuestions counts questions after the current one.
func (s State) RemainingQuestions() int {
	left := len(s.Questions) - s.CurrentQuestionIndex - 1
	if left < 0 {
		return 0
	}
	return left
}
