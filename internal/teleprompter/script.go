// Package teleprompter implements the voice-following teleprompter: script
// tokenisation, word normalisation and similarity, the forward-only script
// aligner, the shared script cursor, and the [Follower] that drives the
// cursor from a streaming speech recogniser.
//
// The aligner maps a noisy, partial and frequently re-emitted transcript onto
// the furthest plausible position in a fixed script:
//
//  1. Spoken words are normalised ([NormalizeWord]) and words shorter than
//     the minimum length are dropped.
//  2. Only the most recent few spoken words are considered, and only a
//     bounded window of script words ahead of the cursor is searched.
//  3. Each spoken word greedily claims the nearest window word whose
//     similarity ([WordSimilarity]) clears the threshold.
//  4. The longest strictly increasing subsequence of claimed script indices
//     is kept; out-of-order claims are recogniser noise.
//
// The aligner never proposes an index behind the cursor. Manual navigation
// on [Cursor] bypasses it entirely.
package teleprompter

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ScriptWord is one token of a prepared script.
type ScriptWord struct {
	// Original is the literal token including punctuation and case. Used for
	// display.
	Original string `json:"original"`

	// Normalized is the comparison form produced by [NormalizeWord].
	Normalized string `json:"normalized"`

	// Index is the 0-based position in the script.
	Index int `json:"index"`
}

// PrepareScript splits text on whitespace and returns the ordered script
// words. Empty or whitespace-only text yields an empty (non-nil) slice.
func PrepareScript(text string) []ScriptWord {
	fields := strings.Fields(text)
	words := make([]ScriptWord, 0, len(fields))
	for i, f := range fields {
		words = append(words, ScriptWord{
			Original:   f,
			Normalized: NormalizeWord(f),
			Index:      i,
		})
	}
	return words
}

// NormalizeWord lowercases word, strips diacritics via canonical
// decomposition, and keeps only the characters a-z, 0-9 and ñ.
//
// Because ñ decomposes into n plus a combining tilde, it normalises to n.
// Punctuation-only input yields the empty string.
func NormalizeWord(word string) string {
	lower := strings.ToLower(word)

	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)))
	stripped, _, err := transform.String(t, lower)
	if err != nil {
		stripped = lower
	}

	var b strings.Builder
	b.Grow(len(stripped))
	for _, r := range stripped {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == 'ñ' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// keywords returns the distinctive words of script suitable as recogniser
// vocabulary hints: unique, at least minLen normalised characters, in script
// order, capped at limit entries.
func keywords(script []ScriptWord, minLen, limit int) []string {
	seen := make(map[string]struct{}, len(script))
	var out []string
	for _, w := range script {
		if len(out) >= limit {
			break
		}
		if len(w.Normalized) < minLen {
			continue
		}
		if _, dup := seen[w.Normalized]; dup {
			continue
		}
		seen[w.Normalized] = struct{}{}
		out = append(out, strings.TrimFunc(w.Original, func(r rune) bool {
			return !unicode.IsLetter(r) && !unicode.IsDigit(r)
		}))
	}
	return out
}
