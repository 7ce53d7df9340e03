// Package stt defines the Provider interface for streaming speech
// recognition backends.
//
// The teleprompter consumes recognised words only; audio capture belongs to
// the client. A provider opens a SessionHandle that accepts raw PCM audio and
// emits two streams of Transcript values: low-latency partials, which are
// re-emitted with growing text while an utterance is in flight, and finals,
// which commit the utterance.
//
// Implementations must be safe for concurrent use.
package stt

import (
	"context"
	"errors"
	"time"
)

// ErrNotSupported is returned by optional session operations the backend
// cannot perform.
var ErrNotSupported = errors.New("stt: operation not supported")

// Transcript is a recognition result. Partials and finals share the type.
type Transcript struct {
	// Text is the recognised speech.
	Text string

	// IsFinal reports whether the provider has committed to this result.
	IsFinal bool

	// Confidence is the overall confidence in [0, 1]; zero when unreported.
	Confidence float64

	// Words holds per-word detail when the provider reports it.
	Words []WordDetail

	// Timestamp marks the utterance start relative to the session start.
	Timestamp time.Duration

	// Duration is the utterance length.
	Duration time.Duration
}

// WordDetail holds per-word recognition metadata.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost raises the recognition probability of a word, typically an
// uncommon term taken from the script being read.
type KeywordBoost struct {
	Keyword string

	// Boost is the intensity on the provider's own scale.
	Boost float64
}

// StreamConfig describes the audio format and recognition hints for a new
// session.
type StreamConfig struct {
	// SampleRate in Hz. Zero uses the provider default.
	SampleRate int

	// Channels is the channel count. 1 = mono.
	Channels int

	// Language is a BCP-47 tag (e.g. "es-ES"). Empty uses the provider default.
	Language string

	// Keywords are vocabulary hints.
	Keywords []KeywordBoost
}

// SessionHandle is an open recognition session.
//
// Callers must call Close when done. After Close returns, the Partials and
// Finals channels are closed. All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of PCM audio matching the StreamConfig.
	SendAudio(chunk []byte) error

	// Partials emits interim results. Closed when the session ends.
	Partials() <-chan Transcript

	// Finals emits committed results. Closed when the session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword hints mid-session, or returns
	// ErrNotSupported.
	SetKeywords(keywords []KeywordBoost) error

	// Close terminates the session. Calling Close more than once is safe.
	Close() error
}

// Provider opens recognition sessions.
type Provider interface {
	// StartStream opens a new session. The caller owns the returned handle.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
