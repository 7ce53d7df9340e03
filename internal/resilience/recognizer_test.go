package resilience_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/MrWong99/podium/internal/resilience"
	"github.com/MrWong99/podium/pkg/provider/stt"
	sttmock "github.com/MrWong99/podium/pkg/provider/stt/mock"
)

func TestNewRecognizer_Invalid(t *testing.T) {
	t.Parallel()
	if _, err := resilience.NewRecognizer(resilience.BreakerConfig{}); err == nil {
		t.Error("no backends should be rejected")
	}
	if _, err := resilience.NewRecognizer(resilience.BreakerConfig{}, resilience.Backend{Name: "nil"}); err == nil {
		t.Error("nil provider should be rejected")
	}
}

func TestRecognizer_PrefersPrimary(t *testing.T) {
	t.Parallel()
	primary := &sttmock.Provider{}
	secondary := &sttmock.Provider{}
	r, err := resilience.NewRecognizer(resilience.BreakerConfig{},
		resilience.Backend{Name: "primary", Provider: primary},
		resilience.Backend{Name: "secondary", Provider: secondary},
	)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	sess, err := r.StartStream(context.Background(), stt.StreamConfig{Language: "es"})
	if err != nil {
		t.Fatalf("StartStream: %v", err)
	}
	defer sess.Close()
	if len(primary.Calls()) != 1 || len(secondary.Calls()) != 0 {
		t.Errorf("calls primary=%d secondary=%d, want 1/0", len(primary.Calls()), len(secondary.Calls()))
	}
	if primary.Calls()[0].Cfg.Language != "es" {
		t.Errorf("stream config not forwarded: %+v", primary.Calls()[0].Cfg)
	}
}

func TestRecognizer_FailsOverAndSkipsOpenBreaker(t *testing.T) {
	t.Parallel()
	clock := &fakeClock{now: time.Unix(0, 0)}
	primary := &sttmock.Provider{StartStreamErr: errors.New("401 unauthorized")}
	secondary := &sttmock.Provider{}
	r, err := resilience.NewRecognizer(
		resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Minute, Now: clock.Now},
		resilience.Backend{Name: "primary", Provider: primary},
		resilience.Backend{Name: "secondary", Provider: secondary},
	)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	for range 2 {
		sess, err := r.StartStream(context.Background(), stt.StreamConfig{})
		if err != nil {
			t.Fatalf("StartStream: %v", err)
		}
		sess.Close()
	}
	if got := len(primary.Calls()); got != 1 {
		t.Errorf("primary calls = %d, want 1 (breaker open on the second stream)", got)
	}
	if got := len(secondary.Calls()); got != 2 {
		t.Errorf("secondary calls = %d, want 2", got)
	}
	if st := r.States(); st["primary"] != resilience.Open || st["secondary"] != resilience.Closed {
		t.Errorf("States() = %v", st)
	}
	if err := r.Check(context.Background()); err != nil {
		t.Errorf("Check with a healthy fallback: %v", err)
	}
}

func TestRecognizer_AllFailed(t *testing.T) {
	t.Parallel()
	down := errors.New("dial tcp: connection refused")
	r, err := resilience.NewRecognizer(resilience.BreakerConfig{MaxFailures: 1, ResetTimeout: time.Hour},
		resilience.Backend{Name: "a", Provider: &sttmock.Provider{StartStreamErr: down}},
		resilience.Backend{Name: "b", Provider: &sttmock.Provider{StartStreamErr: down}},
	)
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}

	_, err = r.StartStream(context.Background(), stt.StreamConfig{})
	if !errors.Is(err, resilience.ErrAllFailed) || !errors.Is(err, down) {
		t.Errorf("err = %v, want ErrAllFailed wrapping the last failure", err)
	}
	if err := r.Check(context.Background()); !errors.Is(err, resilience.ErrAllFailed) {
		t.Errorf("Check = %v, want ErrAllFailed", err)
	}
}

func TestRecognizer_CancelledContext(t *testing.T) {
	t.Parallel()
	p := &sttmock.Provider{}
	r, err := resilience.NewRecognizer(resilience.BreakerConfig{}, resilience.Backend{Name: "a", Provider: p})
	if err != nil {
		t.Fatalf("NewRecognizer: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := r.StartStream(ctx, stt.StreamConfig{}); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if len(p.Calls()) != 0 {
		t.Error("no backend should be called with a cancelled context")
	}
}
