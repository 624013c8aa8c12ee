package session

import (
	"errors"
	"sync"
	"time"

	"backend-runlink/internal/filter"
	"backend-runlink/internal/motion"

	"github.com/google/uuid"
)

// ErrInvalidTransition is returned for lifecycle calls that are not legal
// from the current state. It signals caller misuse, never a recoverable
// condition.
var ErrInvalidTransition = errors.New("invalid session transition")

// Observer receives lifecycle and progress notifications. All callbacks run
// synchronously on the caller's goroutine while the session lock is held,
// so implementations must not call back into the session.
type Observer interface {
	OnTransition(sessionID string, from, to State)
	OnSplit(sessionID string, split motion.Split)
	OnFix(sessionID string, snap Snapshot)
}

// Config for a new session.
type Config struct {
	RunnerID   string
	SplitUnitM float64 // motion.UnitKilometerM when zero
	Observer   Observer
}

// Session is the tracking lifecycle state machine. It owns one filter and
// one accumulator and gates every fix on the current state. A single
// logical owner drives it; the internal mutex serializes an in-flight
// AddFix against Stop, it does not make concurrent lifecycle calls sane.
type Session struct {
	mu sync.Mutex

	id        string
	runnerID  string
	state     State
	startedAt time.Time

	filter *filter.Filter
	acc    *motion.Accumulator
	obs    Observer

	// fixes received while paused, counted for diagnostics only.
	pausedFixes int
	// the first accepted fix after resume reseeds instead of accumulating,
	// so the paused gap is never counted.
	reseedNext bool

	now func() time.Time
}

// New creates an Idle session. Start must be called before fixes apply.
func New(cfg Config) *Session {
	return &Session{
		id:       uuid.NewString(),
		runnerID: cfg.RunnerID,
		state:    StateIdle,
		filter:   filter.New(),
		acc:      motion.NewAccumulator(cfg.SplitUnitM),
		obs:      cfg.Observer,
		now:      time.Now,
	}
}

func (s *Session) ID() string       { return s.id }
func (s *Session) RunnerID() string { return s.runnerID }

// Start transitions Idle -> Active and zeroes all accumulated state.
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateIdle {
		return ErrInvalidTransition
	}
	s.filter.Reset()
	s.acc.Reset()
	s.pausedFixes = 0
	s.reseedNext = false
	s.startedAt = s.now()
	s.transition(StateActive)
	return nil
}

// Pause freezes accumulation. Pausing a paused session is a no-op.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StateActive:
		s.transition(StatePaused)
		return nil
	case StatePaused:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// Resume continues accumulation from the next accepted fix; no time is
// back-filled for the paused interval. Resuming an active session is a
// no-op.
func (s *Session) Resume() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePaused:
		s.reseedNext = true
		s.transition(StateActive)
		return nil
	case StateActive:
		return nil
	default:
		return ErrInvalidTransition
	}
}

// AddFix feeds one raw fix through the filter into the accumulator. Outside
// Active it never mutates totals: paused fixes are only counted, any other
// state drops the fix silently.
func (s *Session) AddFix(raw filter.RawFix) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch s.state {
	case StatePaused:
		s.pausedFixes++
		return
	case StateActive:
	default:
		return
	}

	filtered, ok := s.filter.Update(raw)
	if !ok {
		return
	}

	sample := motion.Sample{
		Latitude:    filtered.Latitude,
		Longitude:   filtered.Longitude,
		AltitudeM:   raw.AltitudeM,
		TimestampMs: raw.TimestampMs,
	}

	if s.reseedNext {
		s.acc.Reseed(sample)
		s.reseedNext = false
		return
	}

	splitsBefore := len(s.acc.Splits())
	s.acc.Add(sample)

	if s.obs != nil {
		for _, sp := range s.acc.Splits()[splitsBefore:] {
			s.obs.OnSplit(s.id, sp)
		}
		s.obs.OnFix(s.id, s.snapshotLocked())
	}
}

// Stop finalizes the session into an immutable Record and makes the state
// machine terminal. Legal from Active and from Paused (a paused run keeps
// whatever it accumulated); Stop on an Idle or already-Stopped session is
// rejected. createdOffline marks records finished without connectivity.
func (s *Session) Stop(createdOffline bool) (Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state != StateActive && s.state != StatePaused {
		return Record{}, ErrInvalidTransition
	}
	s.transition(StateStopped)

	return Record{
		ID:          s.id,
		RunnerID:    s.runnerID,
		StartedAt:   s.startedAt,
		DistanceM:   s.acc.DistanceM(),
		DurationSec: s.acc.DurationSec(),
		Elevation: Elevation{
			GainM: s.acc.GainM(),
			LossM: s.acc.LossM(),
		},
		Splits:         s.acc.Splits(),
		CreatedOffline: createdOffline,
		SchemaVersion:  SchemaVersion,
	}, nil
}

// Snapshot returns the current live stats.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	return Snapshot{
		ID:          s.id,
		RunnerID:    s.runnerID,
		State:       s.state,
		StartedAt:   s.startedAt,
		DistanceM:   s.acc.DistanceM(),
		DurationSec: s.acc.DurationSec(),
		Elevation: Elevation{
			GainM: s.acc.GainM(),
			LossM: s.acc.LossM(),
		},
		Splits:         s.acc.Splits(),
		PausedFixCount: s.pausedFixes,
	}
}

func (s *Session) transition(to State) {
	from := s.state
	s.state = to
	if s.obs != nil {
		s.obs.OnTransition(s.id, from, to)
	}
}
