package teleprompter

import "sync"

// Cursor owns a prepared script and the index of the word currently being
// read. Voice following only ever moves it forward; manual navigation may
// move it anywhere inside the script.
//
// All methods are safe for concurrent use.
type Cursor struct {
	aligner *Aligner

	mu    sync.RWMutex
	words []ScriptWord
	index int
}

// NewCursor prepares text and returns a cursor at index 0. A nil aligner
// uses the default tuning.
func NewCursor(text string, aligner *Aligner) *Cursor {
	if aligner == nil {
		aligner = defaultAligner
	}
	return &Cursor{
		aligner: aligner,
		words:   PrepareScript(text),
	}
}

// Load replaces the script with a freshly prepared text and resets the
// cursor to 0.
func (c *Cursor) Load(text string) {
	words := PrepareScript(text)
	c.mu.Lock()
	c.words = words
	c.index = 0
	c.mu.Unlock()
}

// Words returns the prepared script. The slice must not be modified.
func (c *Cursor) Words() []ScriptWord {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.words
}

// Len returns the number of script words.
func (c *Cursor) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.words)
}

// Index returns the current word index.
func (c *Cursor) Index() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.index
}

// Set moves the cursor to i, clamped to [0, len-1], and returns the new
// index. On an empty script the cursor stays at 0.
func (c *Cursor) Set(i int) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = clamp(i, len(c.words))
	return c.index
}

// Next moves one word forward, stopping at the last word.
func (c *Cursor) Next() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = clamp(c.index+1, len(c.words))
	return c.index
}

// Prev moves one word back, stopping at 0.
func (c *Cursor) Prev() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.index = clamp(c.index-1, len(c.words))
	return c.index
}

// Reset moves the cursor back to the first word.
func (c *Cursor) Reset() {
	c.mu.Lock()
	c.index = 0
	c.mu.Unlock()
}

// Follow aligns spoken against the script from the current index and, on a
// match, advances the cursor to min(match.Index, len-1). It never moves the
// cursor backward. moved reports whether the index changed.
func (c *Cursor) Follow(spoken []string) (m Match, moved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m, ok := c.aligner.FindBestMatch(spoken, c.words, c.index)
	if !ok {
		return Match{}, false
	}
	next := min(m.Index, len(c.words)-1)
	if next <= c.index {
		return m, false
	}
	c.index = next
	return m, true
}

func clamp(i, n int) int {
	if i >= n {
		i = n - 1
	}
	if i < 0 {
		i = 0
	}
	return i
}
