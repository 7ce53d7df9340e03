package meeting

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/podium/internal/countdown"
)

var _ Store = (*MemStore)(nil)

// MemStore is an in-memory [Store] for development and tests.
type MemStore struct {
	mu       sync.RWMutex
	meetings map[string]Meeting
	times    map[string][]SpeakerTime // by meeting ID, in first-logged order
	now      func() time.Time
}

// NewMemStore returns an empty [MemStore].
func NewMemStore() *MemStore {
	return &MemStore{
		meetings: make(map[string]Meeting),
		times:    make(map[string][]SpeakerTime),
		now:      time.Now,
	}
}

// Create implements [Store.Create].
func (s *MemStore) Create(_ context.Context, m *Meeting) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.meetings[m.ID]; exists {
		return fmt.Errorf("meeting: create: id %q already exists", m.ID)
	}
	s.meetings[m.ID] = clone(*m)
	return nil
}

// Get implements [Store.Get].
func (s *MemStore) Get(_ context.Context, id string) (*Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.meetings[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := clone(m)
	return &out, nil
}

// List implements [Store.List].
func (s *MemStore) List(_ context.Context, hostID string) ([]Meeting, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Meeting, 0, len(s.meetings))
	for _, m := range s.meetings {
		if hostID != "" && m.HostID != hostID {
			continue
		}
		out = append(out, clone(m))
	}
	slices.SortFunc(out, func(a, b Meeting) int {
		if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return out, nil
}

// UpdateTimer implements [Store.UpdateTimer].
func (s *MemStore) UpdateTimer(_ context.Context, id string, st countdown.TimerState) error {
	return s.update(id, func(m *Meeting) { m.Timer = st })
}

// UpdateStatus implements [Store.UpdateStatus].
func (s *MemStore) UpdateStatus(_ context.Context, id string, status Status) error {
	return s.update(id, func(m *Meeting) { m.Status = status })
}

// UpdateScript implements [Store.UpdateScript].
func (s *MemStore) UpdateScript(_ context.Context, id string, script string) error {
	return s.update(id, func(m *Meeting) { m.Script = script })
}

func (s *MemStore) update(id string, fn func(*Meeting)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	m, ok := s.meetings[id]
	if !ok {
		return ErrNotFound
	}
	fn(&m)
	m.UpdatedAt = s.now().UTC()
	s.meetings[id] = m
	return nil
}

// LogSpeakerTime implements [Store.LogSpeakerTime].
func (s *MemStore) LogSpeakerTime(_ context.Context, entry SpeakerTime) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.meetings[entry.MeetingID]; !ok {
		return ErrNotFound
	}

	logs := s.times[entry.MeetingID]
	for i := range logs {
		if logs[i].SpeakerID != entry.SpeakerID {
			continue
		}
		logs[i].SpokenSeconds += entry.SpokenSeconds
		logs[i].CostIncurred = logs[i].CostIncurred.Add(entry.CostIncurred)
		logs[i].AllocatedSeconds = entry.AllocatedSeconds
		logs[i].NameSnapshot = entry.NameSnapshot
		logs[i].EmailSnapshot = entry.EmailSnapshot
		return nil
	}
	s.times[entry.MeetingID] = append(logs, entry)
	return nil
}

// SpeakerTimes implements [Store.SpeakerTimes].
func (s *MemStore) SpeakerTimes(_ context.Context, meetingID string) ([]SpeakerTime, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if _, ok := s.meetings[meetingID]; !ok {
		return nil, ErrNotFound
	}
	return slices.Clone(s.times[meetingID]), nil
}

// clone copies the slices and pointers of m so callers cannot mutate stored
// state.
func clone(m Meeting) Meeting {
	m.Speakers = slices.Clone(m.Speakers)
	if m.Cost != nil {
		c := *m.Cost
		m.Cost = &c
	}
	if m.Timer.LastUpdatedAt != nil {
		t := *m.Timer.LastUpdatedAt
		m.Timer.LastUpdatedAt = &t
	}
	return m
}
