package peer

import (
	"context"
	"time"

	"github.com/mkrell/triviamesh/game"
)

// StartGame moves the lobby into play. For a classic deck the built-in
// questions load synchronously; for an AI deck the peer broadcasts a
// generating state first so guests show a waiting screen, then starts the
// first round once questions arrive. Generation failure falls back to the
// classic deck rather than blocking.
func (p *Peer) StartGame(ctx context.Context) bool {
	p.mu.Lock()

	if !p.state.IsHost(p.id) || p.state.Status != game.StatusLobby {
		p.mu.Unlock()
		return false
	}

	if p.state.Settings.DeckType != game.DeckAI || p.opts.Generator == nil {
		next := p.state.Clone()
		next.Questions = game.ClassicDeck()
		p.state = game.StartGame(next, time.Now())
		p.notifyStateLocked()
		p.broadcastStateLocked()
		p.mu.Unlock()
		return true
	}

	next := p.state.Clone()
	next.Status = game.StatusGenerating
	p.state = next
	topic := p.state.Settings.AITopic
	p.notifyStateLocked()
	p.broadcastStateLocked()
	p.mu.Unlock()

	go p.generateAndStart(ctx, topic)

	return true
}

func (p *Peer) generateAndStart(ctx context.Context, topic string) {
	batch, err := p.opts.Generator.Generate(ctx, topic, p.opts.ReplenishBatch*2, nil)
	if err != nil {
		p.logf("GAMES: question generation failed: %v", err)
	}
	if len(batch) == 0 {
		batch = game.ClassicDeck()
	}
	p.resolveImages(ctx, batch)

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) || p.state.Status != game.StatusGenerating {
		return
	}
	next := game.AppendQuestions(p.state, batch)
	if len(next.Questions) == 0 {
		next.Questions = append(next.Questions, game.Placeholder())
	}
	p.state = game.StartGame(next, time.Now())
	p.notifyStateLocked()
	p.broadcastStateLocked()
}

// resolveImages fills in image URLs for image-type questions. A resolver
// miss leaves the question as text with its literal content.
func (p *Peer) resolveImages(ctx context.Context, batch []game.Question) {
	if p.opts.Images == nil {
		return
	}
	for i := range batch {
		if batch[i].Type != game.QuestionImage {
			continue
		}
		url, err := p.opts.Images.Resolve(ctx, batch[i].Answer, batch[i].ImageType)
		if err != nil || url == "" {
			batch[i].Type = game.QuestionText
			continue
		}
		batch[i].Content = url
	}
}

// schedulerLoop is the round driver. Every peer runs it, but each tick
// re-derives host status from the current snapshot and does nothing unless
// this peer resolves as host, so guests tick idly. If host status changed
// under us mid-game, a stale host's loop would simply keep ticking; nothing
// hands the role off.
func (p *Peer) schedulerLoop(ctx context.Context) {
	ticker := time.NewTicker(p.opts.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.tick(ctx)
		}
	}
}

func (p *Peer) tick(ctx context.Context) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) {
		return
	}
	if p.state.Status != game.StatusPlaying {
		return
	}
	if !game.RoundOver(p.state, time.Now()) {
		return
	}

	p.endRoundLocked(ctx)
}

// endRoundLocked reveals the answer and schedules the post-result decision.
// Callers hold p.mu.
func (p *Peer) endRoundLocked(ctx context.Context) {
	// Keep the question buffer topped up before the supply matters. Never
	// blocks the transition; a single generation is in flight at most.
	if p.state.Settings.DeckType == game.DeckAI &&
		p.opts.Generator != nil &&
		!p.generating &&
		p.state.RemainingQuestions() <= p.opts.ReplenishWatermark {
		p.generating = true
		go p.replenish(ctx)
	}

	p.state = game.FinishRound(p.state)
	p.notifyStateLocked()
	p.broadcastStateLocked()

	if p.resultTimer != nil {
		p.resultTimer.Stop()
	}
	p.resultTimer = time.AfterFunc(p.opts.ResultPause, p.afterResult)
}

// afterResult runs once the reveal pause elapses: either the game is over,
// or the next round begins with reset flags and a fresh start time.
func (p *Peer) afterResult() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.state.IsHost(p.id) || p.state.Status != game.StatusRoundResult {
		return
	}

	if game.Finished(p.state) {
		p.state = game.EndGame(p.state)
	} else {
		p.state = game.NextRound(p.state, time.Now())
	}
	p.notifyStateLocked()
	p.broadcastStateLocked()
}

// replenish asks the generator for more questions and appends whatever comes
// back. A stale response landing after the game moved on is still appended;
// the list is append-only so that is harmless.
func (p *Peer) replenish(ctx context.Context) {
	p.mu.Lock()
	topic := p.state.Settings.AITopic
	existing := game.ExistingAnswers(p.state)
	batchSize := p.opts.ReplenishBatch
	p.mu.Unlock()

	batch, err := p.opts.Generator.Generate(ctx, topic, batchSize, existing)
	if err == nil && len(batch) > 0 {
		p.resolveImages(ctx, batch)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.generating = false

	if err != nil {
		p.logf("GAMES: replenish failed: %v", err)
		return
	}
	if len(batch) == 0 {
		return
	}
	if !p.state.IsHost(p.id) {
		return
	}
	p.state = game.AppendQuestions(p.state, batch)
	p.notifyStateLocked()
	p.broadcastStateLocked()
}

// Threshold returns the fuzzy-match threshold in effect, for UIs that want
// to display near-miss feedback.
func (p *Peer) Threshold() float64 {
	return p.opts.MatchThreshold
}
