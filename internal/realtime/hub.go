package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/podium/internal/observe"
)

// Subscriber receives the events of one meeting room.
type Subscriber interface {
	// Deliver hands ev and its JSON encoding to the subscriber. It must not
	// block. Returning false tells the hub to drop the subscriber.
	Deliver(ev Event, data []byte) bool

	// Close releases the subscriber. Called once when it leaves the hub.
	Close()
}

// HubOption configures a [Hub].
type HubOption func(*Hub)

// WithMetrics records published events and subscriber counts on m.
func WithMetrics(m *observe.Metrics) HubOption {
	return func(h *Hub) {
		h.metrics = m
	}
}

// Hub holds the per-meeting rooms. All methods are safe for concurrent use.
type Hub struct {
	metrics *observe.Metrics

	mu     sync.RWMutex
	rooms  map[string]map[*member]struct{}
	closed bool
}

type member struct {
	sub       Subscriber
	meetingID string
	observer  bool // receives events without counting as a subscriber
	once      sync.Once
}

// NewHub returns an empty [Hub].
func NewHub(opts ...HubOption) *Hub {
	h := &Hub{rooms: make(map[string]map[*member]struct{})}
	for _, o := range opts {
		o(h)
	}
	return h
}

// Subscribe adds s to the room of meetingID. The returned function removes
// and closes it; calling it more than once is harmless. Subscribing to a
// closed hub closes s immediately.
func (h *Hub) Subscribe(meetingID string, s Subscriber) (unsubscribe func()) {
	return h.add(&member{sub: s, meetingID: meetingID})
}

// SubscribeFunc registers an in-process callback. fn runs synchronously on
// the publishing goroutine and must not block.
func (h *Hub) SubscribeFunc(meetingID string, fn func(Event)) (unsubscribe func()) {
	return h.Subscribe(meetingID, funcSubscriber(fn))
}

// Observe is like [Hub.SubscribeFunc] but fn is not counted as a subscriber:
// it is left out of [Hub.Count], the subscriber metrics and the delivery
// count returned by [Hub.Publish].
func (h *Hub) Observe(meetingID string, fn func(Event)) (unsubscribe func()) {
	return h.add(&member{sub: funcSubscriber(fn), meetingID: meetingID, observer: true})
}

func (h *Hub) add(m *member) (unsubscribe func()) {
	meetingID := m.meetingID

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		m.sub.Close()
		return func() {}
	}
	room := h.rooms[meetingID]
	if room == nil {
		room = make(map[*member]struct{})
		h.rooms[meetingID] = room
	}
	room[m] = struct{}{}
	h.mu.Unlock()

	if m.observer {
		return func() { h.remove(m) }
	}
	if h.metrics != nil {
		h.metrics.ActiveSubscribers.Add(context.Background(), 1)
	}
	slog.Debug("realtime: subscriber joined", "meeting_id", meetingID, "room_size", h.Count(meetingID))

	return func() { h.remove(m) }
}

// Publish encodes ev once and delivers it to every subscriber in the room of
// meetingID. Subscribers that refuse delivery are dropped. It returns the
// number of subscribers that accepted the event.
func (h *Hub) Publish(ctx context.Context, meetingID string, ev Event) (int, error) {
	if ev.MeetingID == "" {
		ev.MeetingID = meetingID
	}
	data, err := json.Marshal(ev)
	if err != nil {
		return 0, fmt.Errorf("realtime: marshal %s event: %w", ev.Type, err)
	}

	h.mu.RLock()
	members := make([]*member, 0, len(h.rooms[meetingID]))
	for m := range h.rooms[meetingID] {
		members = append(members, m)
	}
	h.mu.RUnlock()

	if h.metrics != nil {
		h.metrics.RecordRealtimeEvent(ctx, ev.Type)
	}

	delivered := 0
	for _, m := range members {
		if m.observer {
			m.sub.Deliver(ev, data)
			continue
		}
		if m.sub.Deliver(ev, data) {
			delivered++
			continue
		}
		slog.Warn("realtime: dropping slow subscriber", "meeting_id", meetingID, "event", ev.Type)
		if h.metrics != nil {
			h.metrics.SubscribersDropped.Add(ctx, 1)
		}
		h.remove(m)
	}
	return delivered, nil
}

// Count returns the number of subscribers in the room of meetingID.
func (h *Hub) Count(meetingID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for m := range h.rooms[meetingID] {
		if !m.observer {
			n++
		}
	}
	return n
}

// Run blocks until ctx is cancelled, then closes the hub.
func (h *Hub) Run(ctx context.Context) error {
	<-ctx.Done()
	h.Close()
	return nil
}

// Close removes and closes every subscriber. Later subscriptions are closed
// immediately.
func (h *Hub) Close() {
	h.mu.Lock()
	h.closed = true
	var members []*member
	for _, room := range h.rooms {
		for m := range room {
			members = append(members, m)
		}
	}
	h.mu.Unlock()

	for _, m := range members {
		h.remove(m)
	}
}

func (h *Hub) remove(m *member) {
	m.once.Do(func() {
		h.mu.Lock()
		if room, ok := h.rooms[m.meetingID]; ok {
			delete(room, m)
			if len(room) == 0 {
				delete(h.rooms, m.meetingID)
			}
		}
		h.mu.Unlock()

		if h.metrics != nil && !m.observer {
			h.metrics.ActiveSubscribers.Add(context.Background(), -1)
		}
		m.sub.Close()
	})
}

type funcSubscriber func(Event)

func (f funcSubscriber) Deliver(ev Event, _ []byte) bool {
	f(ev)
	return true
}

func (funcSubscriber) Close() {}
