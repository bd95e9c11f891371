package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoundOverWhenEveryoneAnswered(t *testing.T) {
	s := playingState()
	now := time.UnixMilli(s.RoundStartTime) // no time has passed at all

	for i := range s.Players {
		s.Players[i].HasAnsweredRound = true
	}

	assert.True(t, RoundOver(s, now), "round should end when all answered, regardless of elapsed time")
}

func TestRoundOverOnTimeout(t *testing.T) {
	s := playingState()
	start := time.UnixMilli(s.RoundStartTime)

	assert.False(t, RoundOver(s, start.Add(10*time.Second)))
	assert.True(t, RoundOver(s, start.Add(30*time.Second)))
	assert.True(t, RoundOver(s, start.Add(45*time.Second)))
}

func TestRoundOverOnlyWhilePlaying(t *testing.T) {
	s := playingState()
	s.Status = StatusRoundResult
	assert.False(t, RoundOver(s, time.Now().Add(time.Hour)))
}

func TestAllAnsweredEmptyList(t *testing.T) {
	assert.False(t, AllAnswered(State{}))
}

func TestLeaderSoleWinner(t *testing.T) {
	s := playingState()
	s.Players[0].Score = 50
	s.Players[1].Score = 30

	leader, ok := Leader(s)
	require.True(t, ok)
	assert.Equal(t, "host", leader.ID)
}

func TestLeaderTieMeansNoLeader(t *testing.T) {
	s := playingState()
	s.Players[0].Score = 50
	s.Players[1].Score = 50

	_, ok := Leader(s)
	assert.False(t, ok, "a tie at or above the threshold must not produce a winner")
}

func TestLeaderBelowThreshold(t *testing.T) {
	s := playingState()
	s.Players[0].Score = 40
	s.Players[1].Score = 20

	_, ok := Leader(s)
	assert.False(t, ok)
}

func TestFinishedTieContinues(t *testing.T) {
	s := playingState()
	s.Players[0].Score = 60
	s.Players[1].Score = 60
	// Plenty of questions left.
	s.CurrentQuestionIndex = 0

	assert.False(t, Finished(s), "tied leaders must continue the game")
}

func TestFinishedOnQuestionExhaustion(t *testing.T) {
	s := playingState()
	s.CurrentQuestionIndex = len(s.Questions) - 1

	assert.True(t, Finished(s))
}

func TestNextRoundResetsFlags(t *testing.T) {
	s := playingState()
	s.Players[0].HasAnsweredRound = true
	s.Players[0].FinalAnswer = "titanic"
	s.Players[0].AnswerTime = 1234
	s.Players[1].LastWrongGuess = "boat"
	s.Players[0].Score = 10

	now := time.Now()
	next := NextRound(s, now)

	assert.Equal(t, StatusPlaying, next.Status)
	assert.Equal(t, s.CurrentQuestionIndex+1, next.CurrentQuestionIndex)
	assert.Equal(t, now.UnixMilli(), next.RoundStartTime)
	for _, p := range next.Players {
		assert.False(t, p.HasAnsweredRound)
		assert.Empty(t, p.FinalAnswer)
		assert.Empty(t, p.LastWrongGuess)
		assert.Zero(t, p.AnswerTime)
	}
	// Scores survive round transitions.
	assert.Equal(t, 10, next.Players[0].Score)
}

func TestStartGameResetsScores(t *testing.T) {
	s := playingState()
	s.Status = StatusLobby
	s.Players[0].Score = 99
	s.Players[0].Streak = 4

	now := time.Now()
	started := StartGame(s, now)

	assert.Equal(t, StatusPlaying, started.Status)
	assert.Zero(t, started.CurrentQuestionIndex)
	assert.Equal(t, now.UnixMilli(), started.RoundStartTime)
	assert.Zero(t, started.Players[0].Score)
	assert.Zero(t, started.Players[0].Streak)
}

func TestFinishRoundAndEndGame(t *testing.T) {
	s := playingState()

	finished := FinishRound(s)
	assert.Equal(t, StatusRoundResult, finished.Status)

	over := EndGame(finished)
	assert.Equal(t, StatusGameOver, over.Status)
}
