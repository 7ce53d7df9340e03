package teleprompter

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// Scorer rates how similar two normalised words are. Implementations must be
// symmetric and return a value in [0, 1].
type Scorer func(a, b string) float64

// ScorerName selects a built-in [Scorer] by name.
type ScorerName string

const (
	// ScorerPositional is [WordSimilarity]. This is the default.
	ScorerPositional ScorerName = "positional"

	// ScorerJaroWinkler is [JaroWinklerSimilarity].
	ScorerJaroWinkler ScorerName = "jaro-winkler"
)

// IsValid reports whether n names a built-in scorer.
func (n ScorerName) IsValid() bool {
	return n == ScorerPositional || n == ScorerJaroWinkler
}

// Scorer returns the [Scorer] for n. Unknown names return [WordSimilarity].
func (n ScorerName) Scorer() Scorer {
	if n == ScorerJaroWinkler {
		return JaroWinklerSimilarity
	}
	return WordSimilarity
}

// WordSimilarity returns a similarity score in [0, 1] for two normalised
// words:
//
//   - identical words score 1;
//   - a word shorter than 2 characters scores 0 against anything else;
//   - when the shorter word (at least 3 characters) is contained in the
//     longer one, the score is len(shorter)/len(longer), which tolerates
//     truncated recognitions;
//   - otherwise the score is the number of positions (over the shorter
//     length) holding the same character, divided by the longer length.
func WordSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	ra, rb := []rune(a), []rune(b)
	if len(ra) < 2 || len(rb) < 2 {
		return 0
	}

	longer, shorter := ra, rb
	if len(rb) > len(ra) {
		longer, shorter = rb, ra
	}
	if len(shorter) >= 3 && strings.Contains(string(longer), string(shorter)) {
		return float64(len(shorter)) / float64(len(longer))
	}

	matches := 0
	for i := range shorter {
		if ra[i] == rb[i] {
			matches++
		}
	}
	return float64(matches) / float64(len(longer))
}

// JaroWinklerSimilarity scores two normalised words with the Jaro-Winkler
// metric. Identical words score 1 and words shorter than 2 characters score 0,
// matching [WordSimilarity] at the edges. The arguments are ordered before
// scoring so the result is symmetric.
func JaroWinklerSimilarity(a, b string) float64 {
	if a == b {
		return 1
	}
	if len([]rune(a)) < 2 || len([]rune(b)) < 2 {
		return 0
	}
	if a > b {
		a, b = b, a
	}
	s := matchr.JaroWinkler(a, b, false)
	switch {
	case s < 0:
		return 0
	case s > 1:
		return 1
	}
	return s
}
