// Headless peers: "triviamesh host" runs the authoritative side of a game
// from a terminal, "triviamesh bot" joins a room as an auto-answering
// player. Both are ordinary peers built on the same packages a UI would use;
// the relay cannot tell them apart from anything else.

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	mrand "math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/mkrell/triviamesh/game"
	"github.com/mkrell/triviamesh/peer"
	"github.com/mkrell/triviamesh/transport"
)

// randomRoomCode generates a code locally, for hosts that create rooms from
// the CLI rather than through the relay's redirect. Same alphabet as the
// relay, so codes stay shoulder-readable.
func randomRoomCode() string {
	const codeLen = 6
	buf := make([]byte, codeLen)
	if _, err := rand.Read(buf); err != nil {
		panic("crypto/rand failure: " + err.Error())
	}
	out := make([]byte, codeLen)
	for i := range out {
		out[i] = roomCodeAlphabet[int(buf[i])%len(roomCodeAlphabet)]
	}
	return string(out)
}

func peerLogf(cfg *Config) func(format string, args ...any) {
	return func(format string, args ...any) {
		logf(cfg, format, args...)
	}
}

func newHostCmd(cfg *Config) *cobra.Command {
	var (
		relayURL      string
		roomID        string
		name          string
		deck          string
		topic         string
		roundDuration int
		pointsToWin   int
		minPlayers    int
	)

	cmd := &cobra.Command{
		Use:   "host",
		Short: "Create a room and run the game from this terminal.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				roomID = randomRoomCode()
			}
			roomID = strings.ToUpper(roomID)

			settings := game.Settings{
				RoundDuration: roundDuration,
				PointsToWin:   pointsToWin,
				DeckType:      game.DeckType(deck),
				AITopic:       topic,
			}
			if settings.DeckType != game.DeckClassic && settings.DeckType != game.DeckAI {
				return fmt.Errorf("unknown deck type: %q", deck)
			}

			id := uuid.NewString()
			tr := transport.NewWS(relayURL, id)
			p := peer.New(tr, peer.Options{
				ID:   id,
				Name: name,
				Logf: peerLogf(cfg),
			})

			ctx := cmd.Context()
			if err := p.CreateRoom(ctx, roomID, settings); err != nil {
				return err
			}
			defer p.Leave()

			fmt.Printf("Room code: %s\n", roomID)

			return runHost(ctx, p, minPlayers)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&relayURL, "relay", "ws://localhost:8080", "relay base URL")
	fs.StringVar(&roomID, "room", "", "room code (generated when empty)")
	fs.StringVar(&name, "name", "host", "display name")
	fs.StringVar(&deck, "deck", string(game.DeckClassic), "deck type: classic or ai")
	fs.StringVar(&topic, "topic", "", "topic for ai decks")
	fs.IntVar(&roundDuration, "round-duration", 30, "seconds per round")
	fs.IntVar(&pointsToWin, "points-to-win", 50, "score that ends the game")
	fs.IntVar(&minPlayers, "min-players", 2, "players required before the game starts")

	return cmd
}

// runHost waits for the lobby to fill, starts the game, and reports rounds
// until the game ends.
func runHost(ctx context.Context, p *peer.Peer, minPlayers int) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	started := false
	lastStatus := game.Status("")

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		s := p.State()

		if s.Status != lastStatus {
			lastStatus = s.Status
			switch s.Status {
			case game.StatusRoundResult:
				if q, ok := s.CurrentQuestion(); ok {
					fmt.Printf("Round %d over. Answer: %s\n", s.CurrentQuestionIndex+1, q.Answer)
				}
				printScores(s)
			case game.StatusGameOver:
				fmt.Println("Game over.")
				printScores(s)
				return nil
			}
		}

		if started {
			continue
		}

		if len(s.Players) >= minPlayers && lobbyReady(s) {
			if p.StartGame(ctx) {
				started = true
				fmt.Println("Starting game.")
			}
		}
	}
}

// lobbyReady reports whether every guest has toggled ready. The host's own
// entry does not need the flag.
func lobbyReady(s game.State) bool {
	if s.Status != game.StatusLobby {
		return false
	}
	for _, p := range s.Players {
		if !p.IsHost && !p.IsReady {
			return false
		}
	}
	return true
}

func printScores(s game.State) {
	for _, pl := range s.Players {
		marker := ""
		if pl.IsHost {
			marker = " (host)"
		}
		fmt.Printf("  %-16s %3d points, streak %d%s\n", pl.Name, pl.Score, pl.Streak, marker)
	}
}

func newBotCmd(cfg *Config) *cobra.Command {
	var (
		relayURL string
		roomID   string
		name     string
		accuracy float64
		delay    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "bot",
		Short: "Join a room as an auto-answering player.",
		Args:  cobra.ExactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			if roomID == "" {
				return errors.New("--room is required")
			}
			roomID = strings.ToUpper(roomID)

			id := uuid.NewString()
			tr := transport.NewWS(relayURL, id)

			bot := &botPlayer{accuracy: accuracy, delay: delay}
			p := peer.New(tr, peer.Options{
				ID:      id,
				Name:    name,
				IsBot:   true,
				OnState: bot.onState,
				Logf:    peerLogf(cfg),
			})
			bot.peer = p

			ctx := cmd.Context()
			if err := p.JoinRoom(ctx, roomID); err != nil {
				return err
			}
			defer p.Leave()

			return bot.run(ctx)
		},
	}

	fs := cmd.Flags()
	fs.StringVar(&relayURL, "relay", "ws://localhost:8080", "relay base URL")
	fs.StringVar(&roomID, "room", "", "room code to join")
	fs.StringVar(&name, "name", "bot", "display name")
	fs.Float64Var(&accuracy, "accuracy", 0.7, "chance per round of answering correctly")
	fs.DurationVar(&delay, "delay", 3*time.Second, "thinking time before answering")

	return cmd
}

// botPlayer answers each round once, after a fixed delay, correctly with the
// configured probability. Its guesses go through the same SubmitAnswer path
// a typing player uses, fuzzy match included.
type botPlayer struct {
	peer     *peer.Peer
	accuracy float64
	delay    time.Duration

	mu        sync.Mutex
	lastRound int64
	readied   bool
}

func (b *botPlayer) onState(s game.State) {
	switch s.Status {
	case game.StatusLobby:
		b.mu.Lock()
		ready := !b.readied && b.peer.Joined()
		if ready {
			b.readied = true
		}
		b.mu.Unlock()
		if ready {
			b.peer.ToggleReady()
		}

	case game.StatusPlaying:
		// RoundStartTime is unique per round, so it doubles as a round key.
		b.mu.Lock()
		stale := s.RoundStartTime == 0 || s.RoundStartTime == b.lastRound
		if !stale {
			b.lastRound = s.RoundStartTime
		}
		b.mu.Unlock()
		if stale {
			return
		}

		q, ok := s.CurrentQuestion()
		if !ok {
			return
		}

		guess := b.pickGuess(q.Answer)
		time.AfterFunc(b.delay, func() {
			b.peer.SubmitAnswer(guess)
		})
	}
}

// pickGuess returns the right answer with the configured probability, and a
// deliberately wrong one otherwise.
func (b *botPlayer) pickGuess(answer string) string {
	if mrand.Float64() > b.accuracy {
		return "no idea"
	}
	return answer
}

func (b *botPlayer) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}

		if b.peer.JoinFailed() {
			return errors.New("could not join room: no host answered")
		}

		s := b.peer.State()
		if s.Status == game.StatusGameOver {
			printScores(s)
			return nil
		}
	}
}
