package countdown

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Controller errors.
var (
	ErrNoSpeakers = errors.New("countdown: meeting has no speakers")
	ErrFinished   = errors.New("countdown: meeting is finished")
)

// Speaker is the part of a meeting speaker the controller needs.
type Speaker struct {
	ID               string
	Name             string
	Email            string
	AllocatedSeconds int
}

// Persister receives every snapshot produced by a [Controller] command and
// the speaking time logged when a turn ends.
type Persister interface {
	SaveTimer(ctx context.Context, meetingID string, st TimerState) error
	LogSpeakerTime(ctx context.Context, meetingID string, sp Speaker, spokenSeconds int) error
	FinishMeeting(ctx context.Context, meetingID string) error
}

// Command names accepted by [Controller.Do].
const (
	CommandPlay   = "play"
	CommandSkip   = "skip"
	CommandBack   = "back"
	CommandReset  = "reset"
	CommandFinish = "finish"
)

// ControllerConfig configures a [Controller].
type ControllerConfig struct {
	MeetingID string
	Speakers  []Speaker

	// Initial is the persisted snapshot to resume from.
	Initial TimerState

	// Finished marks a meeting that already ended; every command fails.
	Finished bool

	Persister Persister

	// SyncOptions configure the controller's authoritative [Synchronizer].
	SyncOptions []Option

	// Clock replaces time.Now for timestamps. Also applied to the
	// synchronizer.
	Clock func() time.Time
}

// Controller applies control commands for one meeting. Each command updates
// the local countdown optimistically, stamps LastUpdatedAt when entering a
// running state, clears it when pausing or stopping, and persists the full
// snapshot. Commands are serialized.
type Controller struct {
	meetingID string
	speakers  []Speaker
	persister Persister
	now       func() time.Time
	sync      *Synchronizer

	mu       sync.Mutex
	state    TimerState
	finished bool
	// logged is the speaking time already logged for the current turn.
	logged int
}

// NewController validates cfg and returns a [Controller] whose synchronizer
// has been seeded with cfg.Initial.
func NewController(cfg ControllerConfig) (*Controller, error) {
	if len(cfg.Speakers) == 0 {
		return nil, ErrNoSpeakers
	}
	if cfg.Persister == nil {
		return nil, errors.New("countdown: controller requires a persister")
	}
	now := cfg.Clock
	if now == nil {
		now = time.Now
	}
	opts := append([]Option{WithClock(now)}, cfg.SyncOptions...)

	st := cfg.Initial
	if st.CurrentSpeakerIndex < 0 || st.CurrentSpeakerIndex >= len(cfg.Speakers) {
		st.CurrentSpeakerIndex = 0
	}

	c := &Controller{
		meetingID: cfg.MeetingID,
		speakers:  cfg.Speakers,
		persister: cfg.Persister,
		now:       now,
		sync:      NewSynchronizer(Authoritative, opts...),
		state:     st,
		finished:  cfg.Finished,
	}
	if err := c.sync.Reconcile(st); err != nil {
		return nil, err
	}
	return c, nil
}

// Snapshot returns the current state with RemainingSeconds taken from the
// local countdown. An active snapshot is stamped with the current time so
// receivers can project it further.
func (c *Controller) Snapshot() TimerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() TimerState {
	st := c.state
	st.RemainingSeconds, _ = c.sync.Value()
	if st.Active() {
		return st.stamped(c.now())
	}
	return st.unstamped()
}

// Speakers returns the meeting's speakers.
func (c *Controller) Speakers() []Speaker { return c.speakers }

// Finished reports whether Finish has been applied.
func (c *Controller) Finished() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.finished
}

// Do dispatches a command by name.
func (c *Controller) Do(ctx context.Context, command string) (TimerState, error) {
	switch command {
	case CommandPlay:
		return c.TogglePlay(ctx)
	case CommandSkip:
		return c.Skip(ctx, 1)
	case CommandBack:
		return c.Skip(ctx, -1)
	case CommandReset:
		return c.Reset(ctx)
	case CommandFinish:
		return c.Finish(ctx)
	default:
		return TimerState{}, fmt.Errorf("countdown: unknown command %q", command)
	}
}

// TogglePlay starts a stopped timer, pauses a running one and resumes a
// paused one. Pause and resume carry over the local countdown value.
func (c *Controller) TogglePlay(ctx context.Context) (TimerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.state, ErrFinished
	}

	st := c.state
	st.RemainingSeconds, _ = c.sync.Value()
	if st.Active() {
		st.IsPaused = true
		st = st.unstamped()
	} else {
		st.IsRunning = true
		st.IsPaused = false
		st = st.stamped(c.now())
	}
	return c.apply(ctx, st)
}

// Skip ends the current turn and moves offset speakers forward (negative to
// go back), restarting the countdown at that speaker's allocation. The
// current speaker's time is logged even when the offset leaves the speaker
// list; the timer itself is then left untouched.
func (c *Controller) Skip(ctx context.Context, offset int) (TimerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.state, ErrFinished
	}

	if offset == 0 {
		return c.snapshotLocked(), nil
	}
	c.logSpokenTime(ctx)

	next := c.state.CurrentSpeakerIndex + offset
	if next < 0 || next >= len(c.speakers) {
		return c.snapshotLocked(), nil
	}

	c.logged = 0
	st := TimerState{
		IsRunning:           true,
		RemainingSeconds:    c.speakers[next].AllocatedSeconds,
		CurrentSpeakerIndex: next,
	}
	return c.apply(ctx, st.stamped(c.now()))
}

// Reset restores the current speaker's allocation and stops the timer.
func (c *Controller) Reset(ctx context.Context) (TimerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.state, ErrFinished
	}

	c.logged = 0
	st := TimerState{
		RemainingSeconds:    c.speakers[c.state.CurrentSpeakerIndex].AllocatedSeconds,
		CurrentSpeakerIndex: c.state.CurrentSpeakerIndex,
	}
	return c.apply(ctx, st)
}

// Finish logs the current turn, freezes the countdown and marks the meeting
// finished.
func (c *Controller) Finish(ctx context.Context) (TimerState, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finished {
		return c.state, ErrFinished
	}

	c.logSpokenTime(ctx)

	st := c.state
	st.RemainingSeconds, _ = c.sync.Value()
	st.IsRunning = false
	st.IsPaused = true
	st = st.unstamped()

	out, err := c.apply(ctx, st)
	c.finished = true
	if ferr := c.persister.FinishMeeting(ctx, c.meetingID); ferr != nil {
		err = errors.Join(err, fmt.Errorf("countdown: finish meeting: %w", ferr))
	}
	return out, err
}

// Dispose stops the controller's local countdown.
func (c *Controller) Dispose() {
	c.sync.Dispose()
}

// apply reconciles st locally, records it and persists it. Must be called
// with c.mu held.
func (c *Controller) apply(ctx context.Context, st TimerState) (TimerState, error) {
	if err := c.sync.Reconcile(st); err != nil {
		return c.state, err
	}
	c.state = st
	if err := c.persister.SaveTimer(ctx, c.meetingID, st); err != nil {
		return st, fmt.Errorf("countdown: save timer: %w", err)
	}
	return st, nil
}

// logSpokenTime records allocation minus the local countdown for the current
// speaker, less what this turn already logged, when positive. Failures are
// logged, not returned. Must be called with c.mu held.
func (c *Controller) logSpokenTime(ctx context.Context) {
	sp := c.speakers[c.state.CurrentSpeakerIndex]
	local, _ := c.sync.Value()
	spoken := sp.AllocatedSeconds - local - c.logged
	if spoken <= 0 {
		return
	}
	c.logged += spoken
	if err := c.persister.LogSpeakerTime(ctx, c.meetingID, sp, spoken); err != nil {
		slog.Warn("countdown: failed to log speaker time",
			"meeting_id", c.meetingID,
			"speaker", sp.Name,
			"spoken_seconds", spoken,
			"err", err,
		)
	}
}
