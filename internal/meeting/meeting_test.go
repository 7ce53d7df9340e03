package meeting_test

import (
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/MrWong99/podium/internal/meeting"
)

var now = time.Date(2025, 3, 14, 9, 30, 0, 0, time.UTC)

func TestSchedule_SeedsTimerFromFirstSpeaker(t *testing.T) {
	t.Parallel()

	m, err := meeting.Schedule(meeting.Request{
		Title:  "  Revisión trimestral ",
		HostID: "host-1",
		Speakers: []meeting.Speaker{
			{Name: "Ana", Minutes: 10},
			{Name: "Bruno"},
		},
		Script: "Hoy vamos a hablar de ventas",
	}, now)
	if err != nil {
		t.Fatalf("Schedule: %v", err)
	}

	if _, err := uuid.Parse(m.ID); err != nil {
		t.Errorf("ID %q is not a UUID: %v", m.ID, err)
	}
	if m.Title != "Revisión trimestral" {
		t.Errorf("Title = %q", m.Title)
	}
	if m.Status != meeting.StatusScheduled {
		t.Errorf("Status = %q", m.Status)
	}
	if m.Timer.IsRunning || m.Timer.IsPaused || m.Timer.RemainingSeconds != 600 || m.Timer.LastUpdatedAt != nil {
		t.Errorf("Timer = %+v, want stopped at 600", m.Timer)
	}
	if m.Speakers[1].Minutes != meeting.DefaultSpeakerMinutes {
		t.Errorf("default minutes = %d", m.Speakers[1].Minutes)
	}
	if m.TotalMinutes() != 15 {
		t.Errorf("TotalMinutes = %d, want 15", m.TotalMinutes())
	}
	if !m.CreatedAt.Equal(now) || !m.UpdatedAt.Equal(now) {
		t.Errorf("timestamps = %v / %v", m.CreatedAt, m.UpdatedAt)
	}
}

func TestSchedule_Validation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		req  meeting.Request
	}{
		{"no title", meeting.Request{Speakers: []meeting.Speaker{{Name: "Ana"}}}},
		{"no speakers", meeting.Request{Title: "x"}},
		{"unnamed speaker", meeting.Request{Title: "x", Speakers: []meeting.Speaker{{Minutes: 3}}}},
		{"negative rate", meeting.Request{Title: "x", Speakers: []meeting.Speaker{{Name: "Ana", CostPerHour: decimal.NewFromInt(-1)}}}},
		{"negative attendees", meeting.Request{Title: "x", Speakers: []meeting.Speaker{{Name: "Ana"}}, Cost: &meeting.CostInput{Attendees: -2}}},
		{"negative extra", meeting.Request{Title: "x", Speakers: []meeting.Speaker{{Name: "Ana"}}, Cost: &meeting.CostInput{ExtraCosts: decimal.NewFromInt(-5)}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := meeting.Schedule(tt.req, now)
			if !errors.Is(err, meeting.ErrInvalid) {
				t.Errorf("err = %v, want ErrInvalid", err)
			}
		})
	}
}

func TestSpeaker_AllocatedSeconds(t *testing.T) {
	t.Parallel()

	for minutes, want := range map[int]int{0: 300, -3: 300, 1: 60, 12: 720} {
		if got := (meeting.Speaker{Minutes: minutes}).AllocatedSeconds(); got != want {
			t.Errorf("minutes %d: got %d, want %d", minutes, got, want)
		}
	}
}

func TestMeeting_CountdownSpeakers(t *testing.T) {
	t.Parallel()

	m := &meeting.Meeting{Speakers: []meeting.Speaker{
		{SpeakerID: "s-1", Name: "Ana", Email: "ana@example.com", Minutes: 2},
		{Name: "Invitado", Minutes: 0},
	}}
	got := m.CountdownSpeakers()
	if got[0].ID != "s-1" || got[0].AllocatedSeconds != 120 || got[0].Email != "ana@example.com" {
		t.Errorf("speaker 0 = %+v", got[0])
	}
	if got[1].ID != "name:Invitado" || got[1].AllocatedSeconds != 300 {
		t.Errorf("speaker 1 = %+v", got[1])
	}
}

func TestCalculateCost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name            string
		in              meeting.CostInput
		minutes         int
		hourly, total   string
		timeCost, extra string
	}{
		{
			name:     "round numbers",
			in:       meeting.CostInput{Attendees: 4, AvgMonthlyCost: decimal.NewFromInt(1_980_000), ExtraCosts: decimal.NewFromInt(5000)},
			minutes:  90,
			hourly:   "10000.00",
			timeCost: "60000.00",
			extra:    "5000.00",
			total:    "65000.00",
		},
		{
			name:     "repeating decimals",
			in:       meeting.CostInput{Attendees: 3, AvgMonthlyCost: decimal.NewFromInt(1000), ExtraCosts: decimal.RequireFromString("0.5")},
			minutes:  50,
			hourly:   "5.05",
			timeCost: "12.63",
			extra:    "0.50",
			total:    "13.13",
		},
		{
			name:     "empty input",
			in:       meeting.CostInput{},
			minutes:  30,
			hourly:   "0.00",
			timeCost: "0.00",
			extra:    "0.00",
			total:    "0.00",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			v := meeting.CalculateCost(tt.in, tt.minutes).View()
			if v.HourlyRate != tt.hourly || v.TimeCost != tt.timeCost || v.ExtraCosts != tt.extra || v.Total != tt.total {
				t.Errorf("got %+v, want hourly=%s time=%s extra=%s total=%s", v, tt.hourly, tt.timeCost, tt.extra, tt.total)
			}
			if v.Minutes != tt.minutes {
				t.Errorf("minutes = %d", v.Minutes)
			}
		})
	}
}

func TestSpeakerCost(t *testing.T) {
	t.Parallel()

	got := meeting.SpeakerCost(decimal.NewFromInt(36000), 550)
	if got.StringFixed(2) != "5500.00" {
		t.Errorf("SpeakerCost = %s, want 5500.00", got.StringFixed(2))
	}
}
