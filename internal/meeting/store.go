package meeting

import (
	"context"

	"github.com/MrWong99/podium/internal/countdown"
)

// Store persists meetings and talk time. Implementations must be safe for
// concurrent use. Lookups of unknown meetings return [ErrNotFound].
type Store interface {
	// Create inserts m. m.ID must be unique.
	Create(ctx context.Context, m *Meeting) error

	// Get returns the meeting with the given ID.
	Get(ctx context.Context, id string) (*Meeting, error)

	// List returns the host's meetings, newest first. An empty hostID lists
	// every meeting.
	List(ctx context.Context, hostID string) ([]Meeting, error)

	// UpdateTimer replaces the meeting's timer snapshot.
	UpdateTimer(ctx context.Context, id string, st countdown.TimerState) error

	// UpdateStatus sets the meeting status.
	UpdateStatus(ctx context.Context, id string, status Status) error

	// UpdateScript replaces the teleprompter script text.
	UpdateScript(ctx context.Context, id string, script string) error

	// LogSpeakerTime adds entry.SpokenSeconds and entry.CostIncurred to the
	// speaker's running totals, creating the record on first use. The
	// allocation and name/email snapshots are overwritten with entry's.
	LogSpeakerTime(ctx context.Context, entry SpeakerTime) error

	// SpeakerTimes returns the talk-time records of a meeting.
	SpeakerTimes(ctx context.Context, meetingID string) ([]SpeakerTime, error)
}
