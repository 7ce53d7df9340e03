package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/MrWong99/podium/internal/countdown"
	"github.com/MrWong99/podium/internal/meeting"
	"github.com/MrWong99/podium/internal/observe"
	"github.com/MrWong99/podium/internal/realtime"
	"github.com/MrWong99/podium/internal/teleprompter"
)

var (
	errAlreadyListening = errors.New("api: a voice follower is already running for this meeting")
	errNoRecognizer     = errors.New("api: no speech recognizer configured")
)

// room is the live state of one meeting: the authoritative countdown, a
// damped viewer countdown fed by the room's timer events and the
// teleprompter cursor.
type room struct {
	id        string
	ctrl      *countdown.Controller
	viewer    *countdown.Synchronizer
	unobserve func()
	cursor    *teleprompter.Cursor

	// publishMu orders state changes with their events so a new subscriber
	// never sees an event older than its first snapshot.
	publishMu sync.Mutex

	mu       sync.Mutex
	follower *teleprompter.Follower
}

// setFollower claims the voice follower slot. It fails when one is running.
func (r *room) setFollower(f *teleprompter.Follower) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.follower != nil {
		return errAlreadyListening
	}
	r.follower = f
	return nil
}

// clearFollower releases the slot if f still holds it.
func (r *room) clearFollower(f *teleprompter.Follower) {
	r.mu.Lock()
	if r.follower == f {
		r.follower = nil
	}
	r.mu.Unlock()
}

func (r *room) activeFollower() *teleprompter.Follower {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.follower
}

func (r *room) close() {
	if f := r.activeFollower(); f != nil {
		if err := f.Stop(); err != nil {
			slog.Debug("api: stop follower", "meeting_id", r.id, "err", err)
		}
	}
	r.unobserve()
	r.viewer.Dispose()
	r.ctrl.Dispose()
}

// rooms loads meeting rooms on first use and keeps them until Close.
type rooms struct {
	srv *Server

	mu     sync.Mutex
	byID   map[string]*room
	closed bool
}

func newRooms(srv *Server) *rooms {
	return &rooms{srv: srv, byID: make(map[string]*room)}
}

// lookup returns the loaded room for id, or nil.
func (rs *rooms) lookup(id string) *room {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.byID[id]
}

// get returns the room for id, loading the meeting from the store the first
// time it is asked for.
func (rs *rooms) get(ctx context.Context, id string) (*room, error) {
	if r := rs.lookup(id); r != nil {
		return r, nil
	}

	m, err := rs.srv.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	r, err := rs.build(m)
	if err != nil {
		return nil, err
	}

	rs.mu.Lock()
	if rs.closed {
		rs.mu.Unlock()
		r.close()
		return nil, fmt.Errorf("api: server is shutting down")
	}
	if existing, ok := rs.byID[id]; ok {
		rs.mu.Unlock()
		r.close()
		return existing, nil
	}
	rs.byID[id] = r
	rs.mu.Unlock()

	rs.srv.metrics.ActiveMeetings.Add(ctx, 1)
	slog.Info("api: meeting room loaded",
		"meeting_id", id,
		"status", m.Status,
		"speakers", len(m.Speakers),
	)
	return r, nil
}

func (rs *rooms) build(m *meeting.Meeting) (*room, error) {
	tp, cd, _ := rs.srv.tuning()
	id := m.ID

	opts := append(cd.SyncOptions(), countdown.OnTimesUp(func() {
		slog.Info("api: speaker time is up", "meeting_id", id)
	}))

	ctrl, err := countdown.NewController(countdown.ControllerConfig{
		MeetingID: id,
		Speakers:  m.CountdownSpeakers(),
		Initial:   m.Timer,
		Finished:  m.Status == meeting.StatusFinished,
		Persister: &meteredPersister{
			Persister: meeting.NewPersister(rs.srv.store, m),
			metrics:   rs.srv.metrics,
		},
		SyncOptions: opts,
		Clock:       rs.srv.now,
	})
	if err != nil {
		return nil, fmt.Errorf("api: load meeting %q: %w", id, err)
	}

	viewer := countdown.NewSynchronizer(countdown.Damped,
		append(cd.SyncOptions(), countdown.WithClock(rs.srv.now))...)
	if err := viewer.Reconcile(ctrl.Snapshot()); err != nil {
		ctrl.Dispose()
		return nil, fmt.Errorf("api: seed viewer countdown %q: %w", id, err)
	}
	unobserve := rs.srv.hub.Observe(id, func(ev realtime.Event) {
		st, ok := ev.Payload.(countdown.TimerState)
		if ev.Type != realtime.EventTimerState || !ok {
			return
		}
		if err := viewer.Reconcile(st); err != nil {
			slog.Debug("api: viewer countdown", "meeting_id", id, "err", err)
		}
	})

	return &room{
		id:        id,
		ctrl:      ctrl,
		viewer:    viewer,
		unobserve: unobserve,
		cursor:    teleprompter.NewCursor(m.Script, teleprompter.NewAligner(tp.AlignerOptions()...)),
	}, nil
}

func (rs *rooms) len() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return len(rs.byID)
}

// closeAll disposes every room. Rooms requested afterwards fail to load.
func (rs *rooms) closeAll() {
	rs.mu.Lock()
	rs.closed = true
	all := rs.byID
	rs.byID = make(map[string]*room)
	rs.mu.Unlock()

	for _, r := range all {
		r.close()
		rs.srv.metrics.ActiveMeetings.Add(context.Background(), -1)
	}
}

// meteredPersister records logged talk time before handing it on.
type meteredPersister struct {
	countdown.Persister
	metrics *observe.Metrics
}

func (p *meteredPersister) LogSpeakerTime(ctx context.Context, meetingID string, sp countdown.Speaker, spokenSeconds int) error {
	if err := p.Persister.LogSpeakerTime(ctx, meetingID, sp, spokenSeconds); err != nil {
		return err
	}
	p.metrics.SpokenSeconds.Add(ctx, int64(spokenSeconds))
	return nil
}

// publish sends ev to the meeting room and logs delivery failures.
func (s *Server) publish(ctx context.Context, meetingID string, ev realtime.Event) int {
	n, err := s.hub.Publish(ctx, meetingID, ev)
	if err != nil {
		observe.MeetingLogger(ctx, meetingID).Warn("api: publish event", "type", ev.Type, "err", err)
	}
	return n
}
