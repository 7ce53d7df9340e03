package teleprompter_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/MrWong99/podium/internal/teleprompter"
	"github.com/MrWong99/podium/pkg/provider/stt"
	"github.com/MrWong99/podium/pkg/provider/stt/mock"
)

const followerScript = "Hoy vamos a hablar de ventas del trimestre y del presupuesto"

type advanceRecorder struct {
	mu      sync.Mutex
	indexes []int
}

func (r *advanceRecorder) record(_ teleprompter.Match, index int) {
	r.mu.Lock()
	r.indexes = append(r.indexes, index)
	r.mu.Unlock()
}

func (r *advanceRecorder) last() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.indexes) == 0 {
		return -1
	}
	return r.indexes[len(r.indexes)-1]
}

func TestFollower_AdvancesFromTranscripts(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	p := &mock.Provider{Sessions: []*mock.Session{sess}}
	cursor := teleprompter.NewCursor(followerScript, nil)
	rec := &advanceRecorder{}

	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider:  p,
		Cursor:    cursor,
		Stream:    stt.StreamConfig{SampleRate: 16000, Channels: 1, Language: "es"},
		OnAdvance: rec.record,
	})
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	if got := f.Status(); got != teleprompter.StatusListening {
		t.Errorf("status = %q, want listening", got)
	}

	_ = sess.Emit(stt.Transcript{Text: "hoy vamos"})
	waitFor(t, func() bool { return cursor.Index() == 1 })

	_ = sess.Emit(stt.Transcript{Text: "hoy vamos a hablar"})
	waitFor(t, func() bool { return cursor.Index() == 3 })

	_ = sess.Emit(stt.Transcript{Text: "hoy vamos a hablar de ventas", IsFinal: true})
	waitFor(t, func() bool { return cursor.Index() == 5 })

	_ = sess.Emit(stt.Transcript{Text: "del trimestre"})
	waitFor(t, func() bool { return cursor.Index() == 7 })

	if rec.last() != 7 {
		t.Errorf("last OnAdvance index = %d, want 7", rec.last())
	}
	if got := f.Transcript(); got != "hoy vamos a hablar de ventas del trimestre" {
		t.Errorf("Transcript = %q", got)
	}
}

func TestFollower_SendsScriptKeywords(t *testing.T) {
	t.Parallel()

	p := &mock.Provider{}
	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider:     p,
		Cursor:       teleprompter.NewCursor(followerScript+" ¡presupuesto!", nil),
		KeywordBoost: 3,
	})
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("StartStream calls = %d, want 1", len(calls))
	}
	var got []string
	for _, kw := range calls[0].Cfg.Keywords {
		if kw.Boost != 3 {
			t.Errorf("keyword %q boost = %v, want 3", kw.Keyword, kw.Boost)
		}
		got = append(got, kw.Keyword)
	}
	if want := "vamos hablar ventas trimestre presupuesto"; strings.Join(got, " ") != want {
		t.Errorf("keywords = %v, want %q", got, want)
	}
}

func TestFollower_RecognizerUnavailableKeepsManualMode(t *testing.T) {
	t.Parallel()

	var statuses []string
	var mu sync.Mutex
	cursor := teleprompter.NewCursor(followerScript, nil)
	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider: &mock.Provider{StartStreamErr: errors.New("no api key")},
		Cursor:   cursor,
		OnStatus: func(s string) {
			mu.Lock()
			statuses = append(statuses, s)
			mu.Unlock()
		},
	})

	err := f.Start(context.Background())
	if err == nil {
		t.Fatal("expected Start to report the recognizer failure")
	}
	if got := f.Status(); got != "recognizer unavailable: no api key" {
		t.Errorf("status = %q", got)
	}
	if err := f.SendAudio([]byte{0, 1}); err == nil {
		t.Error("SendAudio without a session should fail")
	}

	if cursor.Next() != 1 {
		t.Error("manual navigation must keep working")
	}
	if _, moved := f.Feed(stt.Transcript{Text: "hoy vamos a hablar", IsFinal: true}); !moved || cursor.Index() != 3 {
		t.Errorf("Feed should still drive the cursor, index = %d", cursor.Index())
	}

	mu.Lock()
	defer mu.Unlock()
	if len(statuses) != 1 || !strings.HasPrefix(statuses[0], "recognizer unavailable") {
		t.Errorf("statuses = %v", statuses)
	}
}

func TestFollower_ReopensDroppedSession(t *testing.T) {
	t.Parallel()

	first, second := mock.NewSession(), mock.NewSession()
	p := &mock.Provider{Sessions: []*mock.Session{first, second}}
	cursor := teleprompter.NewCursor(followerScript, nil)
	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider: p,
		Cursor:   cursor,
		Backoff:  time.Millisecond,
	})
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	_ = first.Emit(stt.Transcript{Text: "hoy vamos", IsFinal: true})
	waitFor(t, func() bool { return cursor.Index() == 1 })

	first.End()
	waitFor(t, func() bool { return len(p.Started()) == 2 })

	_ = second.Emit(stt.Transcript{Text: "a hablar"})
	waitFor(t, func() bool { return cursor.Index() == 3 })

	if err := f.SendAudio([]byte{1, 2}); err != nil {
		t.Fatalf("SendAudio: %v", err)
	}
	if n := len(second.Audio()); n != 1 {
		t.Errorf("second session got %d chunks, want 1", n)
	}
}

func TestFollower_GivesUpAfterMaxRestarts(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	p := &mock.Provider{Sessions: []*mock.Session{sess}}
	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider:    p,
		Cursor:      teleprompter.NewCursor(followerScript, nil),
		MaxRestarts: 2,
		Backoff:     time.Millisecond,
	})

	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer f.Stop()

	p.StartStreamErr = errors.New("quota exceeded")
	sess.End()

	waitFor(t, func() bool { return strings.HasPrefix(f.Status(), "recognizer unavailable") })
	if n := len(p.Calls()); n != 3 {
		t.Errorf("StartStream calls = %d, want 1 + 2 restarts", n)
	}
}

func TestFollower_StopClosesSession(t *testing.T) {
	t.Parallel()

	sess := mock.NewSession()
	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Provider: &mock.Provider{Sessions: []*mock.Session{sess}},
		Cursor:   teleprompter.NewCursor(followerScript, nil),
	})
	if err := f.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	if err := f.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if err := f.Stop(); err != nil {
		t.Fatalf("second Stop: %v", err)
	}
	if sess.CloseCount() != 1 {
		t.Errorf("Close called %d times, want 1", sess.CloseCount())
	}
	if f.Status() != teleprompter.StatusStopped {
		t.Errorf("status = %q, want stopped", f.Status())
	}
}

func TestFollower_ClearTranscript(t *testing.T) {
	t.Parallel()

	f := teleprompter.NewFollower(teleprompter.FollowerConfig{
		Cursor: teleprompter.NewCursor(followerScript, nil),
	})
	f.Feed(stt.Transcript{Text: "hoy vamos", IsFinal: true})
	f.Feed(stt.Transcript{Text: "a hablar"})
	if f.Transcript() != "hoy vamos a hablar" {
		t.Fatalf("Transcript = %q", f.Transcript())
	}
	f.ClearTranscript()
	if f.Transcript() != "" {
		t.Errorf("Transcript after clear = %q", f.Transcript())
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met within 2s")
}
