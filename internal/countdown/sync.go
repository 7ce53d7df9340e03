package countdown

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// ErrDisposed is returned by a [Synchronizer] after [Synchronizer.Dispose].
var ErrDisposed = errors.New("countdown: synchronizer disposed")

// Defaults for [Synchronizer] tuning.
const (
	DefaultTolerance     = 2
	DefaultOvertimeFloor = -999
	DefaultInterval      = time.Second
)

// Strategy selects how a [Synchronizer] reconciles incoming snapshots.
type Strategy int

const (
	// Authoritative projects running snapshots forward by the wall time
	// elapsed since LastUpdatedAt and always overwrites the local value. Used
	// by the role that issues control commands.
	Authoritative Strategy = iota

	// Damped adopts the snapshot's RemainingSeconds only when it differs from
	// the local value by more than the tolerance, or the timer is not
	// running. Used by display-only viewers.
	Damped
)

// String returns the configuration name of the strategy.
func (s Strategy) String() string {
	switch s {
	case Authoritative:
		return "authoritative"
	case Damped:
		return "damped"
	default:
		return fmt.Sprintf("Strategy(%d)", int(s))
	}
}

// ParseStrategy maps a configuration name to a [Strategy].
func ParseStrategy(name string) (Strategy, error) {
	switch name {
	case "authoritative":
		return Authoritative, nil
	case "damped", "viewer":
		return Damped, nil
	default:
		return 0, fmt.Errorf("countdown: unknown strategy %q", name)
	}
}

// Option configures a [Synchronizer].
type Option func(*Synchronizer)

// WithTolerance sets the damped strategy's tolerance in seconds. Negative
// values are ignored.
func WithTolerance(seconds int) Option {
	return func(s *Synchronizer) {
		if seconds >= 0 {
			s.tolerance = seconds
		}
	}
}

// WithOvertimeFloor sets the value below which the local countdown stops
// decrementing. Values above zero are ignored.
func WithOvertimeFloor(floor int) Option {
	return func(s *Synchronizer) {
		if floor <= 0 {
			s.floor = floor
		}
	}
}

// WithInterval sets the tick interval. Non-positive values are ignored.
func WithInterval(d time.Duration) Option {
	return func(s *Synchronizer) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithClock replaces time.Now for drift projection.
func WithClock(now func() time.Time) Option {
	return func(s *Synchronizer) {
		if now != nil {
			s.now = now
		}
	}
}

// OnTimesUp registers fn to run once each time the countdown ticks from 1 to
// 0. It runs on the ticking goroutine without the synchronizer lock held. fn
// may call Stop, Reconcile or Start but must not call Dispose, which waits
// for that goroutine to exit.
func OnTimesUp(fn func()) Option {
	return func(s *Synchronizer) {
		s.onTimesUp = fn
	}
}

// OnChange registers fn to run after every change of the local value or
// running flag, without the synchronizer lock held. Like [OnTimesUp], fn must
// not call Dispose.
func OnChange(fn func(seconds int, running bool)) Option {
	return func(s *Synchronizer) {
		s.onChange = fn
	}
}

// Synchronizer is one client's view of a countdown. It ticks a local value
// once per interval while the last snapshot was active and reconciles that
// value against every snapshot it is given.
//
// Reconciliation and ticks are serialized: a snapshot always fully replaces
// local state before the next tick reads it. At most one ticker runs at a
// time; starting a ticker cancels the previous one first.
//
// All methods are safe for concurrent use.
type Synchronizer struct {
	strategy  Strategy
	tolerance int
	floor     int
	interval  time.Duration
	now       func() time.Time
	onTimesUp func()
	onChange  func(int, bool)

	mu       sync.Mutex
	seconds  int
	last     TimerState
	seeded   bool
	ticker   chan struct{} // closed to cancel the active tick loop; nil when stopped
	disposed bool
	wg       sync.WaitGroup
}

// NewSynchronizer returns a stopped [Synchronizer] at zero seconds.
func NewSynchronizer(strategy Strategy, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		strategy:  strategy,
		tolerance: DefaultTolerance,
		floor:     DefaultOvertimeFloor,
		interval:  DefaultInterval,
		now:       time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Strategy returns the reconciliation strategy.
func (s *Synchronizer) Strategy() Strategy { return s.strategy }

// Value returns the local seconds and whether the local ticker is running.
func (s *Synchronizer) Value() (seconds int, running bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.seconds, s.ticker != nil
}

// Last returns the most recently reconciled snapshot.
func (s *Synchronizer) Last() TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

// Snapshot returns the last reconciled snapshot carrying the local value. An
// active snapshot is stamped with the current time so receivers can project
// it further.
func (s *Synchronizer) Snapshot() TimerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := s.last
	st.RemainingSeconds = s.seconds
	if st.Active() {
		return st.stamped(s.now())
	}
	return st.unstamped()
}

// Reconcile adopts snap according to the strategy, then starts the ticker if
// snap is active and stops it otherwise.
func (s *Synchronizer) Reconcile(snap TimerState) error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}

	prev, wasRunning := s.seconds, s.ticker != nil

	switch {
	case s.strategy == Authoritative:
		s.seconds = s.project(snap)
	case !s.seeded || !snap.IsRunning || abs(snap.RemainingSeconds-s.seconds) > s.tolerance:
		s.seconds = snap.RemainingSeconds
	}
	s.seeded = true
	s.last = snap

	if snap.Active() {
		s.startTicker()
	} else {
		s.stopTicker()
	}

	seconds, running := s.seconds, s.ticker != nil
	s.mu.Unlock()

	if seconds != prev || running != wasRunning {
		s.changed(seconds, running)
	}
	return nil
}

// project computes the authoritative local value for snap. Must be called
// with s.mu held.
func (s *Synchronizer) project(snap TimerState) int {
	seconds := snap.RemainingSeconds
	if snap.Active() && snap.LastUpdatedAt != nil {
		elapsed := s.now().Sub(*snap.LastUpdatedAt)
		if elapsed > 0 {
			seconds -= int(elapsed / time.Second)
		}
	}
	return max(seconds, s.floor)
}

// Tick applies one interval's decrement if the ticker is running. The tick
// loop calls it every interval; it is exported for callers that drive time
// themselves.
func (s *Synchronizer) Tick() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.tickLocked()
}

// tickLocked decrements and fires hooks. It is entered with s.mu held and
// releases it.
func (s *Synchronizer) tickLocked() {
	if s.seconds <= s.floor {
		s.mu.Unlock()
		return
	}
	s.seconds--
	seconds := s.seconds
	s.mu.Unlock()

	if seconds == 0 && s.onTimesUp != nil {
		s.onTimesUp()
	}
	s.changed(seconds, true)
}

// Start resumes local ticking from the current value without a snapshot.
func (s *Synchronizer) Start() error {
	s.mu.Lock()
	if s.disposed {
		s.mu.Unlock()
		return ErrDisposed
	}
	if s.ticker != nil {
		s.mu.Unlock()
		return nil
	}
	s.startTicker()
	seconds := s.seconds
	s.mu.Unlock()

	s.changed(seconds, true)
	return nil
}

// Stop freezes the local value. The last value remains valid to display.
func (s *Synchronizer) Stop() {
	s.mu.Lock()
	if s.ticker == nil {
		s.mu.Unlock()
		return
	}
	s.stopTicker()
	seconds := s.seconds
	s.mu.Unlock()

	s.changed(seconds, false)
}

// Dispose stops the ticker and waits for its goroutine to exit. Every later
// call to Reconcile or Start returns [ErrDisposed]. Safe to call more than
// once, but not from an [OnTimesUp] or [OnChange] hook.
func (s *Synchronizer) Dispose() {
	s.mu.Lock()
	s.disposed = true
	s.stopTicker()
	s.mu.Unlock()
	s.wg.Wait()
}

// startTicker cancels any running tick loop and starts a new one. Must be
// called with s.mu held.
func (s *Synchronizer) startTicker() {
	s.stopTicker()
	stop := make(chan struct{})
	s.ticker = stop
	s.wg.Add(1)
	go s.tickLoop(stop)
}

// stopTicker cancels the running tick loop, if any. Must be called with s.mu
// held.
func (s *Synchronizer) stopTicker() {
	if s.ticker != nil {
		close(s.ticker)
		s.ticker = nil
	}
}

func (s *Synchronizer) tickLoop(stop chan struct{}) {
	defer s.wg.Done()

	t := time.NewTicker(s.interval)
	defer t.Stop()

	for {
		select {
		case <-stop:
			return
		case <-t.C:
			s.mu.Lock()
			// A cancelled loop may still win the race for the lock.
			if s.ticker != stop {
				s.mu.Unlock()
				return
			}
			s.tickLocked()
		}
	}
}

func (s *Synchronizer) changed(seconds int, running bool) {
	if s.onChange != nil {
		s.onChange(seconds, running)
	}
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
