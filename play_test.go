package main

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/mkrell/triviamesh/game"
)

func TestPickGuess(t *testing.T) {
	sure := &botPlayer{accuracy: 1}
	for i := 0; i < 20; i++ {
		assert.Equal(t, "Titanic", sure.pickGuess("Titanic"))
	}

	clueless := &botPlayer{accuracy: 0}
	assert.Equal(t, "no idea", clueless.pickGuess("Titanic"))
}

func TestRandomRoomCodeShape(t *testing.T) {
	for i := 0; i < 20; i++ {
		code := randomRoomCode()
		assert.Len(t, code, 6)
		for _, r := range code {
			assert.Contains(t, roomCodeAlphabet, string(r))
		}
	}
}

func TestLobbyReady(t *testing.T) {
	s := game.State{
		Status: game.StatusLobby,
		Players: []game.Player{
			{ID: "h", IsHost: true},
			{ID: "g1", IsReady: true},
			{ID: "g2"},
		},
	}
	assert.False(t, lobbyReady(s))

	s.Players[2].IsReady = true
	assert.True(t, lobbyReady(s))

	// The host's own ready flag never gates the start.
	assert.False(t, s.Players[0].IsReady)

	s.Status = game.StatusPlaying
	assert.False(t, lobbyReady(s))
}

func TestPrintScoresDoesNotPanic(t *testing.T) {
	printScores(game.State{Players: []game.Player{
		{Name: strings.Repeat("x", 30), Score: 50, IsHost: true},
	}})
}
