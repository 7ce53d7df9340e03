// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out Sessions in order and records every StartStream call.
// A Session lets tests push transcripts with Emit and simulate a dropped
// stream with End.
//
// Example:
//
//	sess := mock.NewSession()
//	p := &mock.Provider{Sessions: []*mock.Session{sess}}
//	// ... start the consumer ...
//	sess.Emit(stt.Transcript{Text: "hoy vamos", IsFinal: false})
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/MrWong99/podium/pkg/provider/stt"
)

// ErrSessionClosed is returned by Session methods after Close or End.
var ErrSessionClosed = errors.New("mock: session closed")

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// Sessions are returned by successive StartStream calls. Once exhausted,
	// StartStream creates fresh Sessions.
	Sessions []*Session

	// StartStreamErr, if non-nil, is returned by StartStream.
	StartStreamErr error

	// FailFirst makes the first FailFirst calls return StartStreamErr, after
	// which StartStream succeeds.
	FailFirst int

	calls   []StartStreamCall
	started []*Session
}

var _ stt.Provider = (*Provider)(nil)

// StartStream records the call and returns the next Session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, StartStreamCall{Ctx: ctx, Cfg: cfg})

	if p.StartStreamErr != nil && (p.FailFirst == 0 || len(p.calls) <= p.FailFirst) {
		return nil, p.StartStreamErr
	}

	var s *Session
	if len(p.Sessions) > 0 {
		s, p.Sessions = p.Sessions[0], p.Sessions[1:]
	} else {
		s = NewSession()
	}
	p.started = append(p.started, s)
	return s, nil
}

// Calls returns a copy of the recorded StartStream calls.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]StartStreamCall, len(p.calls))
	copy(out, p.calls)
	return out
}

// Started returns the Sessions handed out so far, oldest first.
func (p *Provider) Started() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Session, len(p.started))
	copy(out, p.started)
	return out
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	partials chan stt.Transcript
	finals   chan stt.Transcript

	// SetKeywordsErr, if non-nil, is returned by SetKeywords.
	SetKeywordsErr error

	mu       sync.Mutex
	closed   bool
	audio    [][]byte
	keywords [][]stt.KeywordBoost
	closes   int
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession returns a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 32),
		finals:   make(chan stt.Transcript, 32),
	}
}

// Emit delivers t on Partials or Finals depending on t.IsFinal. It returns
// ErrSessionClosed once the session has ended.
func (s *Session) Emit(t stt.Transcript) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	if t.IsFinal {
		s.finals <- t
	} else {
		s.partials <- t
	}
	return nil
}

// End closes both channels without a Close call, as a provider does when the
// connection drops.
func (s *Session) End() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.end()
}

func (s *Session) end() {
	if s.closed {
		return
	}
	s.closed = true
	close(s.partials)
	close(s.finals)
}

// SendAudio records a copy of chunk.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrSessionClosed
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return nil
}

func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords records a copy of keywords and returns SetKeywordsErr.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, append([]stt.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// Close ends the session. It is safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closes++
	s.end()
	return nil
}

// Audio returns the recorded audio chunks.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// KeywordUpdates returns the recorded SetKeywords arguments.
func (s *Session) KeywordUpdates() [][]stt.KeywordBoost {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]stt.KeywordBoost(nil), s.keywords...)
}

// CloseCount returns how many times Close was called.
func (s *Session) CloseCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closes
}

// Closed reports whether the session has ended.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
