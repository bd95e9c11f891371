// Package match decides whether a typed guess counts as a correct answer.
//
// The same check runs on the guessing peer (for immediate feedback) and is
// what the host's reducer would compute, so it must be deterministic and
// side-effect free.
package match

import (
	"strings"
	"unicode"

	"github.com/agnivade/levenshtein"
)

const (
	// DefaultThreshold is the minimum normalized similarity for a fuzzy hit.
	DefaultThreshold = 0.85

	// shortAnswerMax is the longest normalized answer still considered
	// "short", where fuzzy ratios are meaningless and a near-exact match
	// is required instead.
	shortAnswerMax = 4

	// substringMin is the shortest guess allowed to match by prefix or
	// substring against a longer canonical answer.
	substringMin = 5
)

// Normalize lowercases the input and strips everything except letters and
// digits, so "The Lord of the Rings!" and "thelordoftherings" compare equal.
func Normalize(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Similarity returns (maxLen - editDistance) / maxLen over the normalized
// forms of a and b, in [0, 1]. Two empty strings are not similar.
func Similarity(a, b string) float64 {
	na, nb := Normalize(a), Normalize(b)
	maxLen := len([]rune(na))
	if l := len([]rune(nb)); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein.ComputeDistance(na, nb)
	return float64(maxLen-dist) / float64(maxLen)
}

// Guess reports whether guess is an acceptable rendition of the canonical
// answer or any of its accepted aliases, at the given similarity threshold.
func Guess(guess, answer string, aliases []string, threshold float64) bool {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	if matches(guess, answer, threshold) {
		return true
	}
	for _, alias := range aliases {
		if matches(guess, alias, threshold) {
			return true
		}
	}
	return false
}

func matches(guess, canonical string, threshold float64) bool {
	g := Normalize(guess)
	c := Normalize(canonical)
	if g == "" || c == "" {
		return false
	}
	if g == c {
		return true
	}

	gr, cr := []rune(g), []rune(c)

	// Short answers: one edit at most, and the first rune must agree, so
	// "cat" does not accept "bat".
	if len(cr) <= shortAnswerMax {
		return levenshtein.ComputeDistance(g, c) <= 1 && gr[0] == cr[0]
	}

	if Similarity(g, c) >= threshold {
		return true
	}

	// Initialisms: "lotr" for "The Lord of the Rings".
	if init := initialism(canonical); len(init) >= 2 && g == init {
		return true
	}

	// Long-enough guesses may match a prefix or substring of the answer.
	if len(gr) >= substringMin && strings.Contains(c, g) {
		return true
	}

	return false
}

// initialism joins the first letter of each word of the canonical answer,
// skipping leading articles: "The Lord of the Rings" becomes "lotr", the
// form people actually type.
func initialism(canonical string) string {
	words := strings.Fields(strings.ToLower(canonical))
	for len(words) > 0 && (words[0] == "the" || words[0] == "a" || words[0] == "an") {
		words = words[1:]
	}

	var b strings.Builder
	for _, word := range words {
		for _, r := range word {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				b.WriteRune(r)
				break
			}
		}
	}
	return b.String()
}
