// Package realtime fans meeting events out to subscribers. Each meeting has
// one room; an [Event] published to a room reaches every websocket client and
// in-process callback registered for that meeting.
package realtime

import (
	"errors"
	"slices"
	"strings"
	"time"

	"github.com/MrWong99/podium/internal/countdown"
)

// Event types.
const (
	EventTimerState      = "timer_state"
	EventPrivateMessage  = "private_message"
	EventReaction        = "reaction"
	EventMeetingFinished = "meeting_finished"
	EventScriptCursor    = "script_cursor"
)

// Event validation errors.
var (
	ErrEmptyMessage    = errors.New("realtime: message text is empty")
	ErrInvalidReaction = errors.New("realtime: reaction is not an allowed emoji")
	ErrInvalidTarget   = errors.New("realtime: target speaker index is negative")
)

// AllowedReactions is the emoji set accepted by [NewReaction].
var AllowedReactions = []string{"👏", "❤️", "👍", "🔥", "😂"}

// Event is one message in a meeting room. Payload is one of
// [countdown.TimerState], [PrivateMessage], [Reaction], [ScriptCursor] or
// nil for [EventMeetingFinished].
type Event struct {
	Type      string    `json:"type"`
	MeetingID string    `json:"meetingId"`
	Payload   any       `json:"payload,omitempty"`
	SentAt    time.Time `json:"sentAt"`
}

// PrivateMessage is a nudge from the host to the speaker at
// TargetSpeakerIndex. Every subscriber receives it; clients show it only when
// their identity matches the target.
type PrivateMessage struct {
	Text               string `json:"text"`
	TargetSpeakerIndex int    `json:"targetSpeakerIndex"`
}

// Reaction is an audience emoji.
type Reaction struct {
	Emoji string `json:"emoji"`
}

// ScriptCursor reports a teleprompter cursor move.
type ScriptCursor struct {
	Index   int `json:"index"`
	Matches int `json:"matches,omitempty"`
}

// TimerStateEvent wraps a snapshot.
func TimerStateEvent(meetingID string, st countdown.TimerState) Event {
	return Event{Type: EventTimerState, MeetingID: meetingID, Payload: st, SentAt: time.Now()}
}

// NewPrivateMessage validates and builds a private message event.
func NewPrivateMessage(meetingID, text string, target int) (Event, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return Event{}, ErrEmptyMessage
	}
	if target < 0 {
		return Event{}, ErrInvalidTarget
	}
	return Event{
		Type:      EventPrivateMessage,
		MeetingID: meetingID,
		Payload:   PrivateMessage{Text: text, TargetSpeakerIndex: target},
		SentAt:    time.Now(),
	}, nil
}

// NewReaction validates emoji against [AllowedReactions] and builds a
// reaction event.
func NewReaction(meetingID, emoji string) (Event, error) {
	if !slices.Contains(AllowedReactions, emoji) {
		return Event{}, ErrInvalidReaction
	}
	return Event{Type: EventReaction, MeetingID: meetingID, Payload: Reaction{Emoji: emoji}, SentAt: time.Now()}, nil
}

// FinishedEvent announces the end of a meeting.
func FinishedEvent(meetingID string) Event {
	return Event{Type: EventMeetingFinished, MeetingID: meetingID, SentAt: time.Now()}
}

// CursorEvent reports a teleprompter cursor move.
func CursorEvent(meetingID string, index, matches int) Event {
	return Event{
		Type:      EventScriptCursor,
		MeetingID: meetingID,
		Payload:   ScriptCursor{Index: index, Matches: matches},
		SentAt:    time.Now(),
	}
}

// target returns the speaker a private message is for, or -1.
func (e Event) target() int {
	if pm, ok := e.Payload.(PrivateMessage); ok && e.Type == EventPrivateMessage {
		return pm.TargetSpeakerIndex
	}
	return -1
}
