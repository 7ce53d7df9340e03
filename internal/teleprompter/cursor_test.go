package teleprompter_test

import (
	"sync"
	"testing"

	"github.com/MrWong99/podium/internal/teleprompter"
)

func TestCursor_ManualNavigationClamps(t *testing.T) {
	t.Parallel()

	c := teleprompter.NewCursor("uno dos tres cuatro", nil)
	if c.Len() != 4 || c.Index() != 0 {
		t.Fatalf("new cursor: len=%d index=%d", c.Len(), c.Index())
	}

	steps := []struct {
		name string
		op   func() int
		want int
	}{
		{"prev at start", c.Prev, 0},
		{"next", c.Next, 1},
		{"set past end", func() int { return c.Set(99) }, 3},
		{"next at end", c.Next, 3},
		{"set negative", func() int { return c.Set(-5) }, 0},
		{"set middle", func() int { return c.Set(2) }, 2},
		{"prev", c.Prev, 1},
	}
	for _, s := range steps {
		if got := s.op(); got != s.want {
			t.Fatalf("%s: got %d, want %d", s.name, got, s.want)
		}
	}

	c.Reset()
	if c.Index() != 0 {
		t.Errorf("after Reset: index %d", c.Index())
	}
}

func TestCursor_EmptyScriptStaysAtZero(t *testing.T) {
	t.Parallel()

	c := teleprompter.NewCursor("   ", nil)
	for _, got := range []int{c.Next(), c.Prev(), c.Set(7)} {
		if got != 0 {
			t.Errorf("empty script cursor moved to %d", got)
		}
	}
	if _, moved := c.Follow([]string{"hola", "mundo"}); moved {
		t.Error("Follow on empty script must not move")
	}
}

func TestCursor_FollowForwardOnly(t *testing.T) {
	t.Parallel()

	c := teleprompter.NewCursor("Hoy vamos a hablar de ventas", nil)

	m, moved := c.Follow([]string{"hoy", "vamos", "hablar"})
	if !moved || c.Index() != 3 || m.Index != 3 {
		t.Fatalf("Follow: match %+v moved=%v index=%d, want 3", m, moved, c.Index())
	}

	// Re-hearing an earlier word cannot pull the cursor back.
	if _, moved := c.Follow([]string{"vamos"}); moved {
		t.Error("cursor moved on a word behind it")
	}
	if c.Index() != 3 {
		t.Errorf("index = %d, want 3", c.Index())
	}

	// Matching the cursor word itself is not a move.
	if _, moved := c.Follow([]string{"hablar"}); moved {
		t.Error("matching the current word should not report a move")
	}

	if _, moved := c.Follow([]string{"ventas"}); !moved || c.Index() != 5 {
		t.Errorf("index = %d, want 5", c.Index())
	}
}

func TestCursor_LoadResets(t *testing.T) {
	t.Parallel()

	c := teleprompter.NewCursor("uno dos tres", nil)
	c.Set(2)
	c.Load("cuatro cinco")
	if c.Index() != 0 {
		t.Errorf("index after Load = %d, want 0", c.Index())
	}
	if w := c.Words(); len(w) != 2 || w[1].Normalized != "cinco" {
		t.Errorf("words after Load = %+v", w)
	}
}

func TestCursor_CustomAligner(t *testing.T) {
	t.Parallel()

	c := teleprompter.NewCursor("alfa bravo charlie delta echo",
		teleprompter.NewAligner(teleprompter.WithLookAhead(2)))
	if _, moved := c.Follow([]string{"echo"}); moved {
		t.Error("custom look-ahead should keep echo out of reach")
	}
	if _, moved := c.Follow([]string{"bravo"}); !moved || c.Index() != 1 {
		t.Errorf("index = %d, want 1", c.Index())
	}
}

func TestCursor_ConcurrentUse(t *testing.T) {
	t.Parallel()

	c := teleprompter.NewCursor("alfa bravo charlie delta echo foxtrot golf hotel", nil)
	var wg sync.WaitGroup
	for i := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range 50 {
				switch i % 4 {
				case 0:
					c.Next()
				case 1:
					c.Prev()
				case 2:
					c.Follow([]string{"delta"})
				default:
					_ = c.Index()
				}
			}
		}()
	}
	wg.Wait()

	if i := c.Index(); i < 0 || i >= c.Len() {
		t.Errorf("index %d out of range", i)
	}
}
