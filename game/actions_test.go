package game

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func playingState() State {
	return State{
		RoomID: "ABC234",
		Status: StatusPlaying,
		Players: []Player{
			{ID: "host", Name: "Ada", IsHost: true},
			{ID: "guest", Name: "Grace"},
		},
		Questions: []Question{
			{ID: "q1", Type: QuestionText, Content: "🧊🚢", Answer: "Titanic"},
			{ID: "q2", Type: QuestionText, Content: "🦈", Answer: "Jaws"},
		},
		Settings:       Settings{RoundDuration: 30, PointsToWin: 50, DeckType: DeckClassic},
		RoundStartTime: time.Now().Add(-5 * time.Second).UnixMilli(),
	}
}

func TestAddPlayerIdempotent(t *testing.T) {
	s := State{RoomID: "ABC234", Status: StatusLobby}

	s1, added := AddPlayer(s, "p1", "Ada", "🦊", false)
	require.True(t, added)
	require.Len(t, s1.Players, 1)

	// Duplicate join requests from the same id must not create duplicates.
	s2, added := AddPlayer(s1, "p1", "Ada", "🦊", false)
	assert.False(t, added)
	assert.Len(t, s2.Players, 1)
}

func TestApplyAnswerCorrectScoresOnce(t *testing.T) {
	s := playingState()
	now := time.Now()

	s1, applied := Apply(s, "guest", ActionAnswerCorrect, "titanic", now)
	require.True(t, applied)

	guest := s1.Players[s1.FindPlayer("guest")]
	assert.Equal(t, PointsPerCorrect, guest.Score)
	assert.Equal(t, 1, guest.Streak)
	assert.True(t, guest.HasAnsweredRound)
	assert.Equal(t, "titanic", guest.FinalAnswer)
	assert.GreaterOrEqual(t, guest.AnswerTime, int64(0))

	// Second correct answer in the same round is a no-op.
	s2, applied := Apply(s1, "guest", ActionAnswerCorrect, "titanic again", now)
	assert.False(t, applied)
	assert.Equal(t, PointsPerCorrect, s2.Players[s2.FindPlayer("guest")].Score)
}

func TestApplyScoresAreMonotonic(t *testing.T) {
	s := playingState()
	now := time.Now()

	actions := []struct {
		player string
		action Action
		guess  string
	}{
		{"guest", ActionAnswerWrong, "boat"},
		{"guest", ActionAnswerCorrect, "titanic"},
		{"guest", ActionAnswerCorrect, "titanic"},
		{"host", ActionReadyToggle, ""},
		{"guest", ActionAnswerWrong, "still boat"},
	}

	prev := map[string]int{}
	for _, a := range actions {
		next, _ := Apply(s, a.player, a.action, a.guess, now)
		for _, p := range next.Players {
			assert.GreaterOrEqual(t, p.Score, prev[p.ID], "score for %s decreased", p.ID)
			prev[p.ID] = p.Score
		}
		s = next
	}
}

func TestApplyAnswerWrongRecordsGuessOnly(t *testing.T) {
	s := playingState()

	s1, applied := Apply(s, "guest", ActionAnswerWrong, "boat movie", time.Now())
	require.True(t, applied)

	guest := s1.Players[s1.FindPlayer("guest")]
	assert.Equal(t, "boat movie", guest.LastWrongGuess)
	assert.Zero(t, guest.Score)
	assert.False(t, guest.HasAnsweredRound)
}

func TestApplyReadyToggle(t *testing.T) {
	s := playingState()

	s1, applied := Apply(s, "guest", ActionReadyToggle, "", time.Now())
	require.True(t, applied)
	assert.True(t, s1.Players[s1.FindPlayer("guest")].IsReady)

	s2, _ := Apply(s1, "guest", ActionReadyToggle, "", time.Now())
	assert.False(t, s2.Players[s2.FindPlayer("guest")].IsReady)
}

func TestApplyUnknownPlayerIsNoOp(t *testing.T) {
	s := playingState()
	_, applied := Apply(s, "stranger", ActionAnswerCorrect, "titanic", time.Now())
	assert.False(t, applied)
}

func TestApplyDoesNotMutateInput(t *testing.T) {
	s := playingState()
	before := s.Clone()

	_, _ = Apply(s, "guest", ActionAnswerCorrect, "titanic", time.Now())

	assert.Equal(t, before, s, "Apply must not modify its input state")
}

func TestUpdateProfile(t *testing.T) {
	s := playingState()

	s1, applied := UpdateProfile(s, "guest", "Hopper", "🐇")
	require.True(t, applied)
	guest := s1.Players[s1.FindPlayer("guest")]
	assert.Equal(t, "Hopper", guest.Name)
	assert.Equal(t, "🐇", guest.Avatar)

	// Empty fields leave the existing values alone.
	s2, applied := UpdateProfile(s1, "guest", "", "")
	require.True(t, applied)
	assert.Equal(t, "Hopper", s2.Players[s2.FindPlayer("guest")].Name)

	_, applied = UpdateProfile(s, "stranger", "X", "")
	assert.False(t, applied)
}

func TestRemovePlayer(t *testing.T) {
	s := playingState()

	s1, removed := RemovePlayer(s, "guest")
	require.True(t, removed)
	assert.Equal(t, -1, s1.FindPlayer("guest"))

	// The host cannot be removed; there is no hand-off.
	_, removed = RemovePlayer(s, "host")
	assert.False(t, removed)
}
