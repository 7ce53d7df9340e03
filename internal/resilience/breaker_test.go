package resilience_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/podium/internal/resilience"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

var errBoom = errors.New("boom")

func fail() error { return errBoom }
func ok() error   { return nil }

func newBreaker(clock *fakeClock) *resilience.Breaker {
	return resilience.NewBreaker(resilience.BreakerConfig{
		Name:         "test",
		MaxFailures:  2,
		ResetTimeout: time.Minute,
		Now:          clock.Now,
	})
}

func TestBreaker_OpensAfterConsecutiveFailures(t *testing.T) {
	t.Parallel()
	b := newBreaker(&fakeClock{now: time.Unix(0, 0)})

	_ = b.Do(fail)
	if b.State() != resilience.Closed {
		t.Fatalf("after one failure state = %v, want closed", b.State())
	}
	_ = b.Do(fail)
	if b.State() != resilience.Open {
		t.Fatalf("after two failures state = %v, want open", b.State())
	}

	called := false
	err := b.Do(func() error { called = true; return nil })
	if !errors.Is(err, resilience.ErrOpen) || called {
		t.Errorf("open breaker: err = %v called = %v, want ErrOpen without a call", err, called)
	}
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	t.Parallel()
	b := newBreaker(&fakeClock{now: time.Unix(0, 0)})

	_ = b.Do(fail)
	_ = b.Do(ok)
	_ = b.Do(fail)
	if b.State() != resilience.Closed {
		t.Errorf("state = %v, want closed since failures were not consecutive", b.State())
	}
}

func TestBreaker_HalfOpenTrial(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		trial func() error
		want  resilience.State
	}{
		{"trial succeeds", ok, resilience.Closed},
		{"trial fails", fail, resilience.Open},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			clock := &fakeClock{now: time.Unix(0, 0)}
			b := newBreaker(clock)
			_ = b.Do(fail)
			_ = b.Do(fail)

			clock.Advance(time.Minute)
			if b.State() != resilience.HalfOpen {
				t.Fatalf("after timeout state = %v, want half-open", b.State())
			}
			_ = b.Do(tt.trial)
			if b.State() != tt.want {
				t.Errorf("after trial state = %v, want %v", b.State(), tt.want)
			}
		})
	}
}

func TestBreaker_SingleTrial(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(0, 0)}
	b := newBreaker(clock)
	_ = b.Do(fail)
	_ = b.Do(fail)
	clock.Advance(time.Minute)

	release := make(chan struct{})
	started := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- b.Do(func() error {
			close(started)
			<-release
			return nil
		})
	}()
	<-started

	if err := b.Do(ok); !errors.Is(err, resilience.ErrOpen) {
		t.Errorf("second caller during trial: err = %v, want ErrOpen", err)
	}
	close(release)
	if err := <-done; err != nil {
		t.Errorf("trial: %v", err)
	}
	if b.State() != resilience.Closed {
		t.Errorf("state = %v, want closed", b.State())
	}
}

func TestState_String(t *testing.T) {
	t.Parallel()
	for s, want := range map[resilience.State]string{
		resilience.Closed:   "closed",
		resilience.Open:     "open",
		resilience.HalfOpen: "half-open",
		resilience.State(9): "unknown",
	} {
		if got := s.String(); got != want {
			t.Errorf("State(%d).String() = %q, want %q", s, got, want)
		}
	}
}
