package game

import (
	"context"

	"github.com/google/uuid"
)

// Generator produces questions for AI decks. Implementations may return
// fewer questions than asked for, or none at all; callers must cope with
// partial results and fall back rather than block gameplay.
type Generator interface {
	Generate(ctx context.Context, topic string, count int, existingAnswers []string) ([]Question, error)
}

// ImageResolver turns a subject into a best-effort image URL. An empty URL
// with a nil error means "nothing found"; callers substitute a placeholder.
type ImageResolver interface {
	Resolve(ctx context.Context, subject, typeHint string) (string, error)
}

// Placeholder is the question substituted when generation fails outright.
func Placeholder() Question {
	return Question{
		ID:       uuid.NewString(),
		Type:     QuestionText,
		Content:  "🎬🧊🚢",
		Answer:   "Titanic",
		Category: "movies",
	}
}

// ClassicDeck returns the built-in emoji movie deck. Every call returns a
// fresh copy with fresh ids, so two games never share question slices.
func ClassicDeck() []Question {
	deck := make([]Question, len(classicQuestions))
	for i, q := range classicQuestions {
		deck[i] = q
		deck[i].ID = uuid.NewString()
		deck[i].AcceptedAnswers = append([]string(nil), q.AcceptedAnswers...)
	}
	return deck
}

var classicQuestions = []Question{
	{Type: QuestionText, Content: "🦁👑", QuestionText: "Which movie?", Answer: "The Lion King", AcceptedAnswers: []string{"Lion King"}, Category: "movies"},
	{Type: QuestionText, Content: "🕷️🧑", QuestionText: "Which movie?", Answer: "Spider-Man", AcceptedAnswers: []string{"Spiderman"}, Category: "movies"},
	{Type: QuestionText, Content: "🧊🚢💔", QuestionText: "Which movie?", Answer: "Titanic", Category: "movies"},
	{Type: QuestionText, Content: "🤠🚀🧸", QuestionText: "Which movie?", Answer: "Toy Story", Category: "movies"},
	{Type: QuestionText, Content: "🐠🔍", QuestionText: "Which movie?", Answer: "Finding Nemo", AcceptedAnswers: []string{"Nemo"}, Category: "movies"},
	{Type: QuestionText, Content: "💍🌋🧙", QuestionText: "Which movie?", Answer: "The Lord of the Rings", AcceptedAnswers: []string{"Lord of the Rings", "LOTR"}, Category: "movies"},
	{Type: QuestionText, Content: "🦖🏝️", QuestionText: "Which movie?", Answer: "Jurassic Park", Category: "movies"},
	{Type: QuestionText, Content: "👻🚫📞", QuestionText: "Which movie?", Answer: "Ghostbusters", Category: "movies"},
	{Type: QuestionText, Content: "⭐⚔️", QuestionText: "Which movie?", Answer: "Star Wars", Category: "movies"},
	{Type: QuestionText, Content: "🧙‍♂️⚡🏰", QuestionText: "Which movie?", Answer: "Harry Potter", Category: "movies"},
	{Type: QuestionText, Content: "🦈🏖️", QuestionText: "Which movie?", Answer: "Jaws", Category: "movies"},
	{Type: QuestionText, Content: "🚗⚡🕰️", QuestionText: "Which movie?", Answer: "Back to the Future", AcceptedAnswers: []string{"BTTF"}, Category: "movies"},
	{Type: QuestionText, Content: "❄️👭👑", QuestionText: "Which movie?", Answer: "Frozen", Category: "movies"},
	{Type: QuestionText, Content: "🟢👹😤", QuestionText: "Which movie?", Answer: "Shrek", Category: "movies"},
	{Type: QuestionText, Content: "🕶️💊🐇", QuestionText: "Which movie?", Answer: "The Matrix", AcceptedAnswers: []string{"Matrix"}, Category: "movies"},
	{Type: QuestionText, Content: "🏃🍫🪶", QuestionText: "Which movie?", Answer: "Forrest Gump", Category: "movies"},
	{Type: QuestionText, Content: "🤖🗑️🌱", QuestionText: "Which movie?", Answer: "WALL-E", AcceptedAnswers: []string{"WALLE", "Wall E"}, Category: "movies"},
	{Type: QuestionText, Content: "🦇🃏", QuestionText: "Which movie?", Answer: "The Dark Knight", AcceptedAnswers: []string{"Dark Knight", "Batman"}, Category: "movies"},
	{Type: QuestionText, Content: "👨‍🍳🐀🇫🇷", QuestionText: "Which movie?", Answer: "Ratatouille", Category: "movies"},
	{Type: QuestionText, Content: "🎈🏠👴", QuestionText: "Which movie?", Answer: "Up", Category: "movies"},
}

// AppendQuestions adds newly generated questions to the list, skipping any
// whose answer already appears. The list is append-only: existing entries
// are never touched or reordered, so a stale generation response landing
// late is harmless.
func AppendQuestions(s State, batch []Question) State {
	out := s.Clone()
	seen := make(map[string]bool, len(out.Questions))
	for _, q := range out.Questions {
		seen[q.Answer] = true
	}
	for _, q := range batch {
		if q.Answer == "" || seen[q.Answer] {
			continue
		}
		if q.ID == "" {
			q.ID = uuid.NewString()
		}
		seen[q.Answer] = true
		out.Questions = append(out.Questions, q)
	}
	return out
}

// ExistingAnswers lists every answer already in the deck, for generators to
// avoid repeats.
func ExistingAnswers(s State) []string {
	answers := make([]string, 0, len(s.Questions))
	for _, q := range s.Questions {
		answers = append(answers, q.Answer)
	}
	return answers
}
