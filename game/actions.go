package game

import "time"

// Action names a gameplay intent a player may send to the host.
type Action string

const (
	ActionReadyToggle   Action = "READY_TOGGLE"
	ActionAnswerCorrect Action = "ANSWER_CORRECT"
	ActionAnswerWrong   Action = "ANSWER_WRONG"
)

// PointsPerCorrect is the fixed award for the first correct answer a player
// gives in a round. Scores only ever go up.
const PointsPerCorrect = 10

// Apply processes one player intent against a snapshot and returns the new
// snapshot. It is a pure function of its inputs: the receiver state is never
// modified. applied reports whether the action changed anything; an action
// whose precondition does not hold (unknown player, repeat answer) returns
// the input state unchanged.
func Apply(s State, playerID string, action Action, guess string, now time.Time) (State, bool) {
	idx := s.FindPlayer(playerID)
	if idx < 0 {
		return s, false
	}

	switch action {
	case ActionReadyToggle:
		out := s.Clone()
		out.Players[idx].IsReady = !out.Players[idx].IsReady
		return out, true

	case ActionAnswerCorrect:
		// First correct answer per round wins; later ones are no-ops.
		if s.Players[idx].HasAnsweredRound {
			return s, false
		}
		out := s.Clone()
		p := &out.Players[idx]
		p.HasAnsweredRound = true
		p.Score += PointsPerCorrect
		p.Streak++
		p.FinalAnswer = guess
		p.AnswerTime = now.UnixMilli() - s.RoundStartTime
		return out, true

	case ActionAnswerWrong:
		// Recorded for display only; no score or completion change.
		out := s.Clone()
		out.Players[idx].LastWrongGuess = guess
		return out, true
	}

	return s, false
}

// UpdateProfile renames a player and swaps their avatar. Host-mediated, so
// it follows the same clone-and-replace discipline as Apply.
func UpdateProfile(s State, playerID, name, avatar string) (State, bool) {
	idx := s.FindPlayer(playerID)
	if idx < 0 {
		return s, false
	}
	out := s.Clone()
	if name != "" {
		out.Players[idx].Name = name
	}
	if avatar != "" {
		out.Players[idx].Avatar = avatar
	}
	return out, true
}

// AddPlayer appends a new player with default flags. Adding an id that is
// already present is a no-op, which makes duplicate join requests safe.
func AddPlayer(s State, id, name, avatar string, isBot bool) (State, bool) {
	if s.FindPlayer(id) >= 0 {
		return s, false
	}
	out := s.Clone()
	out.Players = append(out.Players, Player{
		ID:     id,
		Name:   name,
		Avatar: avatar,
		IsBot:  isBot,
	})
	return out, true
}

// RemovePlayer drops a player from the list, e.g. after a disconnect grace
// period. Removing the host is refused; there is no hand-off mechanism.
func RemovePlayer(s State, id string) (State, bool) {
	idx := s.FindPlayer(id)
	if idx < 0 || s.Players[idx].IsHost {
		return s, false
	}
	out := s.Clone()
	out.Players = append(out.Players[:idx], out.Players[idx+1:]...)
	return out, true
}
