package teleprompter

const (
	// DefaultLookAhead is the number of script words searched ahead of the
	// cursor, cursor included.
	DefaultLookAhead = 20

	// DefaultRecentWords is the number of most recent spoken words considered.
	DefaultRecentWords = 5

	// DefaultMinWordLength is the minimum normalised length of a spoken or
	// script word for it to take part in matching.
	DefaultMinWordLength = 3

	// DefaultMinSimilarity is the minimum score for a spoken word to claim a
	// script word.
	DefaultMinSimilarity = 0.70
)

// Match is a proposed cursor position.
type Match struct {
	// Index is the script index the speaker has plausibly reached.
	Index int `json:"index"`

	// Matches is the length of the increasing run of matched words that
	// supports Index.
	Matches int `json:"matches"`
}

// Option configures an [Aligner].
type Option func(*Aligner)

// WithLookAhead sets the forward search window size. Values < 1 are ignored.
func WithLookAhead(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.lookAhead = n
		}
	}
}

// WithRecentWords sets how many of the latest spoken words are matched.
// Values < 1 are ignored.
func WithRecentWords(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.recentWords = n
		}
	}
}

// WithMinWordLength sets the minimum normalised word length. Values < 1 are
// ignored.
func WithMinWordLength(n int) Option {
	return func(a *Aligner) {
		if n > 0 {
			a.minWordLength = n
		}
	}
}

// WithMinSimilarity sets the claim threshold. Values outside (0, 1] are
// ignored.
func WithMinSimilarity(s float64) Option {
	return func(a *Aligner) {
		if s > 0 && s <= 1 {
			a.minSimilarity = s
		}
	}
}

// WithScorer replaces the similarity function. A nil scorer is ignored.
func WithScorer(s Scorer) Option {
	return func(a *Aligner) {
		if s != nil {
			a.score = s
		}
	}
}

// Aligner proposes forward cursor positions from spoken words. It is
// read-only after construction and safe for concurrent use.
type Aligner struct {
	lookAhead     int
	recentWords   int
	minWordLength int
	minSimilarity float64
	score         Scorer
}

// NewAligner returns an [Aligner] with the default tuning, modified by opts.
func NewAligner(opts ...Option) *Aligner {
	a := &Aligner{
		lookAhead:     DefaultLookAhead,
		recentWords:   DefaultRecentWords,
		minWordLength: DefaultMinWordLength,
		minSimilarity: DefaultMinSimilarity,
		score:         WordSimilarity,
	}
	for _, o := range opts {
		o(a)
	}
	return a
}

var defaultAligner = NewAligner()

// FindBestMatch runs the default [Aligner]. See [Aligner.FindBestMatch].
func FindBestMatch(spoken []string, script []ScriptWord, startIndex int) (Match, bool) {
	return defaultAligner.FindBestMatch(spoken, script, startIndex)
}

// FindBestMatch returns the furthest script position the speaker has
// plausibly reached, given the raw recognised words (oldest first), the
// prepared script and the current cursor.
//
// The returned index is never below startIndex. ok is false when nothing in
// the forward window matches, when the spoken words are all too short, or
// when the script is empty or exhausted.
func (a *Aligner) FindBestMatch(spoken []string, script []ScriptWord, startIndex int) (m Match, ok bool) {
	if startIndex < 0 {
		startIndex = 0
	}

	recent := a.recentSpoken(spoken)
	if len(recent) == 0 {
		return Match{}, false
	}

	if startIndex >= len(script) {
		return Match{}, false
	}
	end := min(startIndex+a.lookAhead, len(script))
	window := script[startIndex:end]

	candidates := make([]int, 0, len(recent))
	for _, word := range recent {
		for _, expected := range window {
			if len(expected.Normalized) < a.minWordLength {
				continue
			}
			if a.score(word, expected.Normalized) >= a.minSimilarity {
				candidates = append(candidates, expected.Index)
				break
			}
		}
	}

	run := longestIncreasing(candidates)
	if len(run) == 0 {
		return Match{}, false
	}
	last := run[len(run)-1]
	if last < startIndex {
		return Match{}, false
	}
	return Match{Index: last, Matches: len(run)}, true
}

// recentSpoken normalises spoken, drops short words and keeps the last
// recentWords of what remains.
func (a *Aligner) recentSpoken(spoken []string) []string {
	valid := make([]string, 0, len(spoken))
	for _, w := range spoken {
		n := NormalizeWord(w)
		if len(n) >= a.minWordLength {
			valid = append(valid, n)
		}
	}
	if len(valid) > a.recentWords {
		valid = valid[len(valid)-a.recentWords:]
	}
	return valid
}

// longestIncreasing returns the longest strictly increasing subsequence of
// seq. Among runs of equal maximal length the first completed one wins,
// except that for length 1 the smallest value wins (nearest to the cursor).
func longestIncreasing(seq []int) []int {
	if len(seq) == 0 {
		return nil
	}

	length := make([]int, len(seq))
	prev := make([]int, len(seq))
	best := -1
	for i, v := range seq {
		length[i], prev[i] = 1, -1
		for j := 0; j < i; j++ {
			if seq[j] < v && length[j]+1 > length[i] {
				length[i], prev[i] = length[j]+1, j
			}
		}
		switch {
		case best < 0 || length[i] > length[best]:
			best = i
		case length[i] == 1 && length[best] == 1 && v < seq[best]:
			best = i
		}
	}

	run := make([]int, length[best])
	for i, k := best, len(run)-1; i >= 0; i, k = prev[i], k-1 {
		run[k] = seq[i]
	}
	return run
}
