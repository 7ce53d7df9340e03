package meeting

import (
	"context"
	"fmt"

	"github.com/MrWong99/podium/internal/countdown"
)

// Persister writes countdown controller output for one meeting to a [Store].
// The first running snapshot moves a scheduled meeting to live.
type Persister struct {
	store   Store
	meeting *Meeting
}

var _ countdown.Persister = (*Persister)(nil)

// NewPersister returns a [Persister] for m. m supplies the per-speaker rates
// used to price logged talk time.
func NewPersister(store Store, m *Meeting) *Persister {
	return &Persister{store: store, meeting: m}
}

// SaveTimer implements [countdown.Persister].
func (p *Persister) SaveTimer(ctx context.Context, meetingID string, st countdown.TimerState) error {
	if err := p.store.UpdateTimer(ctx, meetingID, st); err != nil {
		return err
	}
	if st.IsRunning && p.meeting.Status == StatusScheduled {
		if err := p.store.UpdateStatus(ctx, meetingID, StatusLive); err != nil {
			return fmt.Errorf("meeting: go live: %w", err)
		}
		p.meeting.Status = StatusLive
	}
	return nil
}

// LogSpeakerTime implements [countdown.Persister].
func (p *Persister) LogSpeakerTime(ctx context.Context, meetingID string, sp countdown.Speaker, spokenSeconds int) error {
	entry := SpeakerTime{
		MeetingID:        meetingID,
		SpeakerID:        sp.ID,
		NameSnapshot:     sp.Name,
		EmailSnapshot:    sp.Email,
		SpokenSeconds:    spokenSeconds,
		AllocatedSeconds: sp.AllocatedSeconds,
	}
	if s, ok := p.meeting.speakerByKey(sp.ID); ok {
		entry.CostIncurred = SpeakerCost(s.CostPerHour, spokenSeconds)
	}
	return p.store.LogSpeakerTime(ctx, entry)
}

// FinishMeeting implements [countdown.Persister].
func (p *Persister) FinishMeeting(ctx context.Context, meetingID string) error {
	if err := p.store.UpdateStatus(ctx, meetingID, StatusFinished); err != nil {
		return err
	}
	p.meeting.Status = StatusFinished
	return nil
}
