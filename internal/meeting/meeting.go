// Package meeting holds the meeting model, the cost calculation and the
// stores that persist meetings and per-speaker talk time.
package meeting

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrWong99/podium/internal/countdown"
)

// Sentinel errors returned by stores and validation.
var (
	ErrNotFound = errors.New("meeting: not found")
	ErrInvalid  = errors.New("meeting: invalid")
)

// DefaultSpeakerMinutes is the allocation for a speaker scheduled without
// one.
const DefaultSpeakerMinutes = 5

// Status is the lifecycle stage of a meeting.
type Status string

const (
	StatusScheduled Status = "scheduled"
	StatusLive      Status = "live"
	StatusFinished  Status = "finished"
)

// Speaker is one scheduled turn.
type Speaker struct {
	SpeakerID string `json:"speakerId,omitempty"`
	Name      string `json:"name"`
	Email     string `json:"email,omitempty"`
	Minutes   int    `json:"minutes"`

	// CostPerHour prices the speaker's own time for the talk-time report.
	CostPerHour decimal.Decimal `json:"costPerHour"`
}

// AllocatedSeconds returns the speaker's turn length in seconds.
func (s Speaker) AllocatedSeconds() int {
	if s.Minutes <= 0 {
		return DefaultSpeakerMinutes * 60
	}
	return s.Minutes * 60
}

// key identifies the speaker in the talk-time log. Ad-hoc speakers without a
// directory ID are keyed by name.
func (s Speaker) key() string {
	if s.SpeakerID != "" {
		return s.SpeakerID
	}
	return "name:" + s.Name
}

// Meeting is a scheduled meeting with its shared countdown and script.
type Meeting struct {
	ID        string               `json:"id"`
	Title     string               `json:"title"`
	HostID    string               `json:"hostId"`
	Status    Status               `json:"status"`
	Speakers  []Speaker            `json:"speakers"`
	Timer     countdown.TimerState `json:"timer"`
	Cost      *CostInput           `json:"cost,omitempty"`
	Script    string               `json:"script,omitempty"`
	CreatedAt time.Time            `json:"createdAt"`
	UpdatedAt time.Time            `json:"updatedAt"`
}

// TotalMinutes sums the speakers' allocations.
func (m *Meeting) TotalMinutes() int {
	total := 0
	for _, s := range m.Speakers {
		total += s.AllocatedSeconds() / 60
	}
	return total
}

// CountdownSpeakers converts the speakers for a countdown controller.
func (m *Meeting) CountdownSpeakers() []countdown.Speaker {
	out := make([]countdown.Speaker, len(m.Speakers))
	for i, s := range m.Speakers {
		out[i] = countdown.Speaker{
			ID:               s.key(),
			Name:             s.Name,
			Email:            s.Email,
			AllocatedSeconds: s.AllocatedSeconds(),
		}
	}
	return out
}

// speakerByKey returns the speaker logged under key.
func (m *Meeting) speakerByKey(key string) (Speaker, bool) {
	for _, s := range m.Speakers {
		if s.key() == key {
			return s, true
		}
	}
	return Speaker{}, false
}

// Request is the input to [Schedule].
type Request struct {
	Title    string     `json:"title"`
	HostID   string     `json:"hostId"`
	Speakers []Speaker  `json:"speakers"`
	Cost     *CostInput `json:"cost,omitempty"`
	Script   string     `json:"script,omitempty"`
}

// Validate reports every problem with r, joined, each wrapping [ErrInvalid].
func (r Request) Validate() error {
	var errs []error
	if strings.TrimSpace(r.Title) == "" {
		errs = append(errs, fmt.Errorf("%w: title is required", ErrInvalid))
	}
	if len(r.Speakers) == 0 {
		errs = append(errs, fmt.Errorf("%w: at least one speaker is required", ErrInvalid))
	}
	for i, s := range r.Speakers {
		if strings.TrimSpace(s.Name) == "" {
			errs = append(errs, fmt.Errorf("%w: speakers[%d]: name is required", ErrInvalid, i))
		}
		if s.CostPerHour.IsNegative() {
			errs = append(errs, fmt.Errorf("%w: speakers[%d]: costPerHour must not be negative", ErrInvalid, i))
		}
	}
	if r.Cost != nil {
		if err := r.Cost.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Schedule validates r and returns a new meeting whose timer is seeded,
// stopped, with the first speaker's allocation.
func Schedule(r Request, now time.Time) (*Meeting, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	speakers := make([]Speaker, len(r.Speakers))
	copy(speakers, r.Speakers)
	for i := range speakers {
		if speakers[i].Minutes <= 0 {
			speakers[i].Minutes = DefaultSpeakerMinutes
		}
	}

	now = now.UTC()
	return &Meeting{
		ID:       uuid.NewString(),
		Title:    strings.TrimSpace(r.Title),
		HostID:   r.HostID,
		Status:   StatusScheduled,
		Speakers: speakers,
		Timer: countdown.TimerState{
			RemainingSeconds: speakers[0].AllocatedSeconds(),
		},
		Cost:      r.Cost,
		Script:    r.Script,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// SpeakerTime is the accumulated talk time of one speaker in one meeting.
type SpeakerTime struct {
	MeetingID        string          `json:"meetingId"`
	SpeakerID        string          `json:"speakerId"`
	NameSnapshot     string          `json:"name"`
	EmailSnapshot    string          `json:"email,omitempty"`
	SpokenSeconds    int             `json:"spokenSeconds"`
	AllocatedSeconds int             `json:"allocatedSeconds"`
	CostIncurred     decimal.Decimal `json:"costIncurred"`
}
