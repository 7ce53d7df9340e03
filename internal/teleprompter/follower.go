package teleprompter

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/podium/pkg/provider/stt"
)

// Follower status values. A failed recogniser is reported as
// "recognizer unavailable: <reason>".
const (
	StatusIdle      = "idle"
	StatusListening = "listening"
	StatusStopped   = "stopped"
)

// Default follower parameters.
const (
	defaultHistoryWords  = 32
	defaultKeywordLimit  = 50
	defaultKeywordBoost  = 2
	defaultMaxRestarts   = 5
	defaultBackoff       = 500 * time.Millisecond
	defaultMaxBackoff    = 10 * time.Second
	keywordMinWordLength = 5
)

// FollowerConfig configures a [Follower].
type FollowerConfig struct {
	// Provider opens recognition sessions. Required.
	Provider stt.Provider

	// Cursor is advanced by recognised speech. Required.
	Cursor *Cursor

	// Stream is passed to the provider. Keywords are filled from the script.
	Stream stt.StreamConfig

	// KeywordLimit caps the number of script words sent as keyword boosts.
	// Defaults to 50. Negative disables keyword boosts.
	KeywordLimit int

	// KeywordBoost is the boost applied to each script keyword. Defaults to 2.
	KeywordBoost float64

	// MaxRestarts bounds how many times a dropped session is reopened before
	// the follower gives up. Defaults to 5.
	MaxRestarts int

	// Backoff is the initial delay before reopening, doubling up to
	// MaxBackoff. Defaults to 500ms and 10s.
	Backoff    time.Duration
	MaxBackoff time.Duration

	// OnAdvance is called with the match and the new cursor index each time
	// speech moves the cursor. May be nil.
	OnAdvance func(m Match, index int)

	// OnStatus is called on every status change. May be nil.
	OnStatus func(status string)
}

// Follower drives a [Cursor] from a streaming recogniser. Partials replace
// the in-flight utterance, finals are committed to a bounded history, and
// after every transcript the aligner runs over history plus utterance.
//
// When the recogniser cannot be started the follower stays in manual-only
// mode: the cursor still works, only voice following is off.
//
// All methods are safe for concurrent use.
type Follower struct {
	cfg FollowerConfig

	mu        sync.Mutex
	status    string
	sess      stt.SessionHandle
	committed []string
	inflight  []string

	done     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewFollower returns an idle [Follower]. Zero-value config fields are
// replaced with defaults.
func NewFollower(cfg FollowerConfig) *Follower {
	if cfg.KeywordLimit == 0 {
		cfg.KeywordLimit = defaultKeywordLimit
	}
	if cfg.KeywordBoost <= 0 {
		cfg.KeywordBoost = defaultKeywordBoost
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = defaultMaxRestarts
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = defaultBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Follower{
		cfg:    cfg,
		status: StatusIdle,
		done:   make(chan struct{}),
	}
}

// Start opens a recognition session and begins following. A failure leaves
// the follower in manual-only mode with an "unavailable" status; the
// returned error is informational and not fatal to the caller.
func (f *Follower) Start(ctx context.Context) error {
	if f.cfg.Provider == nil || f.cfg.Cursor == nil {
		return errors.New("teleprompter: follower: provider and cursor are required")
	}

	sess, err := f.open(ctx)
	if err != nil {
		f.setStatus(unavailable(err))
		return fmt.Errorf("teleprompter: start follower: %w", err)
	}

	f.mu.Lock()
	f.sess = sess
	f.mu.Unlock()
	f.setStatus(StatusListening)

	f.wg.Add(1)
	go f.run(ctx, sess)
	return nil
}

// SendAudio forwards a PCM chunk to the active session.
func (f *Follower) SendAudio(chunk []byte) error {
	f.mu.Lock()
	sess := f.sess
	f.mu.Unlock()
	if sess == nil {
		return errors.New("teleprompter: follower: no active recognition session")
	}
	return sess.SendAudio(chunk)
}

// Feed applies one transcript to the buffer and runs the aligner. It is what
// the session loop calls for every partial and final, and may be used
// directly by callers that receive transcripts from elsewhere.
func (f *Follower) Feed(t stt.Transcript) (Match, bool) {
	words := strings.Fields(t.Text)

	f.mu.Lock()
	if t.IsFinal {
		f.committed = append(f.committed, words...)
		if n := len(f.committed); n > defaultHistoryWords {
			f.committed = append([]string(nil), f.committed[n-defaultHistoryWords:]...)
		}
		f.inflight = nil
	} else {
		f.inflight = words
	}
	spoken := make([]string, 0, len(f.committed)+len(f.inflight))
	spoken = append(spoken, f.committed...)
	spoken = append(spoken, f.inflight...)
	f.mu.Unlock()

	m, moved := f.cfg.Cursor.Follow(spoken)
	if moved && f.cfg.OnAdvance != nil {
		f.cfg.OnAdvance(m, f.cfg.Cursor.Index())
	}
	return m, moved
}

// Transcript returns the buffered speech: committed history followed by the
// in-flight utterance.
func (f *Follower) Transcript() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return strings.Join(append(append([]string(nil), f.committed...), f.inflight...), " ")
}

// ClearTranscript drops the buffered speech, e.g. after the script is
// replaced.
func (f *Follower) ClearTranscript() {
	f.mu.Lock()
	f.committed, f.inflight = nil, nil
	f.mu.Unlock()
}

// Status returns the current status string.
func (f *Follower) Status() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.status
}

// Stop releases the recognition session and waits for the session loop to
// exit. Safe to call more than once.
func (f *Follower) Stop() error {
	var err error
	f.stopOnce.Do(func() {
		close(f.done)

		f.mu.Lock()
		sess := f.sess
		f.sess = nil
		f.mu.Unlock()

		if sess != nil {
			err = sess.Close()
		}
		f.wg.Wait()
		f.setStatus(StatusStopped)
	})
	return err
}

func (f *Follower) open(ctx context.Context) (stt.SessionHandle, error) {
	cfg := f.cfg.Stream
	if f.cfg.KeywordLimit > 0 {
		cfg.Keywords = nil
		for _, kw := range keywords(f.cfg.Cursor.Words(), keywordMinWordLength, f.cfg.KeywordLimit) {
			cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: kw, Boost: f.cfg.KeywordBoost})
		}
	}
	return f.cfg.Provider.StartStream(ctx, cfg)
}

// run consumes sess until it ends, then reopens with backoff unless the
// follower is stopping.
func (f *Follower) run(ctx context.Context, sess stt.SessionHandle) {
	defer f.wg.Done()

	for {
		f.consume(ctx, sess)

		select {
		case <-f.done:
			return
		case <-ctx.Done():
			_ = sess.Close()
			return
		default:
		}

		_ = sess.Close()
		next, err := f.reopen(ctx)
		if err != nil {
			slog.Warn("teleprompter: recognizer gave up", "err", err)
			f.mu.Lock()
			f.sess = nil
			f.mu.Unlock()
			f.setStatus(unavailable(err))
			return
		}
		sess = next
	}
}

// consume returns once either transcript channel is closed or the follower
// stops.
func (f *Follower) consume(ctx context.Context, sess stt.SessionHandle) {
	partials, finals := sess.Partials(), sess.Finals()
	for {
		select {
		case t, ok := <-partials:
			if !ok {
				return
			}
			f.Feed(t)
		case t, ok := <-finals:
			if !ok {
				return
			}
			f.Feed(t)
		case <-f.done:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (f *Follower) reopen(ctx context.Context) (stt.SessionHandle, error) {
	backoff := f.cfg.Backoff
	var lastErr error

	for attempt := 1; attempt <= f.cfg.MaxRestarts; attempt++ {
		slog.Info("teleprompter: reopening recognizer session",
			"attempt", attempt,
			"max_restarts", f.cfg.MaxRestarts,
			"backoff", backoff,
		)

		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-f.done:
			timer.Stop()
			return nil, errors.New("follower stopped")
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		}

		sess, err := f.open(ctx)
		if err == nil {
			f.mu.Lock()
			select {
			case <-f.done:
				f.mu.Unlock()
				_ = sess.Close()
				return nil, errors.New("follower stopped")
			default:
			}
			f.sess = sess
			f.mu.Unlock()
			f.setStatus(StatusListening)
			return sess, nil
		}
		lastErr = err

		backoff *= 2
		if backoff > f.cfg.MaxBackoff {
			backoff = f.cfg.MaxBackoff
		}
	}
	return nil, fmt.Errorf("reopen after %d attempts: %w", f.cfg.MaxRestarts, lastErr)
}

func (f *Follower) setStatus(s string) {
	f.mu.Lock()
	changed := f.status != s
	f.status = s
	f.mu.Unlock()
	if changed && f.cfg.OnStatus != nil {
		f.cfg.OnStatus(s)
	}
}

func unavailable(err error) string {
	return "recognizer unavailable: " + err.Error()
}
