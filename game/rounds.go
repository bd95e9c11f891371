package game

import "time"

// AllAnswered reports whether every player has completed the current round.
// An empty player list never counts as all-answered.
func AllAnswered(s State) bool {
	if len(s.Players) == 0 {
		return false
	}
	for i := range s.Players {
		if !s.Players[i].HasAnsweredRound {
			return false
		}
	}
	return true
}

// RoundOver reports whether the active round should end: everyone answered,
// or the round clock ran out. Elapsed time is computed from the host-stamped
// RoundStartTime; peer clock skew is not compensated.
func RoundOver(s State, now time.Time) bool {
	if s.Status != StatusPlaying {
		return false
	}
	if AllAnswered(s) {
		return true
	}
	elapsed := now.UnixMilli() - s.RoundStartTime
	return elapsed >= int64(s.Settings.RoundDuration)*1000
}

// Leader returns the sole player at or above PointsToWin. If two or more
// players are tied at the top score at or above the threshold, there is no
// leader: ties continue the game until scores diverge or questions run out.
func Leader(s State) (Player, bool) {
	best := -1
	count := 0
	var leader Player
	for i := range s.Players {
		p := s.Players[i]
		if p.Score > best {
			best = p.Score
			count = 1
			leader = p
		} else if p.Score == best {
			count++
		}
	}
	if count == 1 && best >= s.Settings.PointsToWin && s.Settings.PointsToWin > 0 {
		return leader, true
	}
	return Player{}, false
}

// Finished reports whether the game should end after the current round: a
// sole leader has reached the win threshold, or the question supply is
// exhausted.
func Finished(s State) bool {
	if _, ok := Leader(s); ok {
		return true
	}
	return s.CurrentQuestionIndex+1 >= len(s.Questions)
}

// FinishRound moves a playing state to round_result so every peer reveals
// the answer.
func FinishRound(s State) State {
	out := s.Clone()
	out.Status = StatusRoundResult
	return out
}

// NextRound advances to the next question: bumps the index, clears the
// per-round player flags, and stamps a fresh round start time.
func NextRound(s State, now time.Time) State {
	out := s.Clone()
	out.Status = StatusPlaying
	out.CurrentQuestionIndex++
	out.RoundStartTime = now.UnixMilli()
	for i := range out.Players {
		out.Players[i].HasAnsweredRound = false
		out.Players[i].LastWrongGuess = ""
		out.Players[i].FinalAnswer = ""
		out.Players[i].AnswerTime = 0
	}
	return out
}

// StartGame moves a lobby to the first round. The caller is responsible for
// having loaded at least one question.
func StartGame(s State, now time.Time) State {
	out := s.Clone()
	out.Status = StatusPlaying
	out.CurrentQuestionIndex = 0
	out.RoundStartTime = now.UnixMilli()
	for i := range out.Players {
		out.Players[i].HasAnsweredRound = false
		out.Players[i].LastWrongGuess = ""
		out.Players[i].FinalAnswer = ""
		out.Players[i].AnswerTime = 0
		out.Players[i].Score = 0
		out.Players[i].Streak = 0
	}
	return out
}

// EndGame marks the game over.
func EndGame(s State) State {
	out := s.Clone()
	out.Status = StatusGameOver
	return out
}
