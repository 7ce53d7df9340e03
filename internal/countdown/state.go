// Package countdown keeps per-client speaker countdowns in step with the
// authoritative timer snapshot.
//
// A [Synchronizer] owns one local ticker and reconciles it against incoming
// [TimerState] snapshots with one of two strategies: [Authoritative] snaps to
// the drift-projected value on every snapshot, [Damped] only adopts values
// that differ by more than a small tolerance. A [Controller] issues the
// control commands (play, pause, skip, reset, finish) for a meeting and
// persists every resulting snapshot.
package countdown

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// TimerState is the shared, persisted snapshot of a meeting's countdown.
type TimerState struct {
	IsRunning           bool `json:"isRunning"`
	IsPaused            bool `json:"isPaused"`
	RemainingSeconds    int  `json:"remainingSeconds"`
	CurrentSpeakerIndex int  `json:"currentSpeakerIndex"`

	// LastUpdatedAt stamps when RemainingSeconds was last authoritative. It
	// is set only while the timer is actively counting.
	LastUpdatedAt *time.Time `json:"lastUpdatedAt,omitempty"`
}

// Active reports whether the snapshot describes a ticking countdown.
func (s TimerState) Active() bool {
	return s.IsRunning && !s.IsPaused
}

// Validate reports structural problems in a snapshot received from a client.
func (s TimerState) Validate() error {
	var errs []error
	if s.CurrentSpeakerIndex < 0 {
		errs = append(errs, fmt.Errorf("currentSpeakerIndex %d is negative", s.CurrentSpeakerIndex))
	}
	if s.IsPaused && !s.IsRunning && s.LastUpdatedAt != nil {
		errs = append(errs, errors.New("stopped snapshot must not carry lastUpdatedAt"))
	}
	return errors.Join(errs...)
}

// stamped returns a copy of s with LastUpdatedAt set to now in UTC.
func (s TimerState) stamped(now time.Time) TimerState {
	t := now.UTC()
	s.LastUpdatedAt = &t
	return s
}

// unstamped returns a copy of s without LastUpdatedAt.
func (s TimerState) unstamped() TimerState {
	s.LastUpdatedAt = nil
	return s
}

// DecodeState parses a JSON snapshot.
func DecodeState(data []byte) (TimerState, error) {
	var s TimerState
	if err := json.Unmarshal(data, &s); err != nil {
		return TimerState{}, fmt.Errorf("countdown: decode snapshot: %w", err)
	}
	return s, nil
}
