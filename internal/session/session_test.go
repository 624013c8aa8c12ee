package session

import (
	"errors"
	"math"
	"sync"
	"testing"

	"backend-runlink/internal/filter"
	"backend-runlink/internal/motion"
)

func metersLat(m float64) float64 { return m / 111194.9 }

// feedRun delivers fixes for a straight northward run of dist meters over
// dur seconds, one fix per stepSec, starting at startM meters north and
// startMs epoch milliseconds. Returns the position/time after the run.
func feedRun(s *Session, startM float64, startMs int64, dist, dur, stepSec float64) (float64, int64) {
	steps := int(dur / stepSec)
	for i := 0; i <= steps; i++ {
		m := startM + dist*float64(i)/float64(steps)
		ms := startMs + int64(float64(i)*stepSec*1000)
		s.AddFix(filter.RawFix{
			Latitude:    metersLat(m),
			Longitude:   0,
			AccuracyM:   5,
			TimestampMs: ms,
		})
	}
	return startM + dist, startMs + int64(dur*1000)
}

type recordingObserver struct {
	mu          sync.Mutex
	transitions []State
	splits      []motion.Split
	fixes       int
}

func (o *recordingObserver) OnTransition(_ string, _, to State) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transitions = append(o.transitions, to)
}

func (o *recordingObserver) OnSplit(_ string, sp motion.Split) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.splits = append(o.splits, sp)
}

func (o *recordingObserver) OnFix(_ string, _ Snapshot) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.fixes++
}

func TestLifecycleHappyPath(t *testing.T) {
	obs := &recordingObserver{}
	s := New(Config{RunnerID: "runner-1", Observer: obs})

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	feedRun(s, 0, 1000, 500, 150, 5)

	rec, err := s.Stop(false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if rec.ID != s.ID() || rec.RunnerID != "runner-1" {
		t.Fatalf("record identity wrong: %+v", rec)
	}
	if rec.DurationSec != 150 {
		t.Fatalf("duration %v want 150", rec.DurationSec)
	}
	if rec.DistanceM < 350 || rec.DistanceM > 510 {
		t.Fatalf("distance %v outside filter tolerance of 500", rec.DistanceM)
	}
	if rec.SchemaVersion != SchemaVersion {
		t.Fatalf("missing schema version")
	}
	if len(obs.transitions) != 2 || obs.transitions[0] != StateActive || obs.transitions[1] != StateStopped {
		t.Fatalf("transitions %v", obs.transitions)
	}
	if obs.fixes == 0 {
		t.Fatalf("expected fix notifications")
	}
}

func TestFixesIgnoredOutsideActive(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})

	// Idle: dropped silently.
	s.AddFix(filter.RawFix{Latitude: 1, Longitude: 1, AccuracyM: 5, TimestampMs: 1000})
	if snap := s.Snapshot(); snap.DistanceM != 0 || snap.DurationSec != 0 {
		t.Fatalf("idle fix accumulated: %+v", snap)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := s.Stop(false); err != nil {
		t.Fatalf("stop: %v", err)
	}

	// Stopped: dropped silently, no panic.
	s.AddFix(filter.RawFix{Latitude: 1, Longitude: 1, AccuracyM: 5, TimestampMs: 2000})
}

func TestPauseFreezesTotals(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	pos, ts := feedRun(s, 0, 0, 400, 120, 5)
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	frozen := s.Snapshot()
	feedRun(s, pos, ts+1000, 300, 60, 5)

	snap := s.Snapshot()
	if snap.DistanceM != frozen.DistanceM || snap.DurationSec != frozen.DurationSec {
		t.Fatalf("paused fixes changed totals: %+v vs %+v", snap, frozen)
	}
	if snap.PausedFixCount == 0 {
		t.Fatalf("paused fixes not counted for diagnostics")
	}
}

func TestPauseResumeExcludesGap(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	// 1000 m over 300 s, pause 5 s, 1000 m over 300 s.
	pos, ts := feedRun(s, 0, 0, 1000, 300, 5)
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	feedRun(s, pos, ts+5000, 1000, 300, 5)

	rec, err := s.Stop(false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if math.Abs(rec.DurationSec-600) > 1e-9 {
		t.Fatalf("duration %v want 600 (pause interval excluded)", rec.DurationSec)
	}
	if rec.DistanceM < 1750 || rec.DistanceM > 2010 {
		t.Fatalf("distance %v want ~2000", rec.DistanceM)
	}
}

func TestIdempotentPauseResume(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}
	if err := s.Pause(); err != nil {
		t.Fatalf("second pause should be a no-op: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("resume: %v", err)
	}
	if err := s.Resume(); err != nil {
		t.Fatalf("second resume should be a no-op: %v", err)
	}
}

func TestInvalidTransitions(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})

	if _, err := s.Stop(false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("stop from idle: %v", err)
	}
	if err := s.Pause(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("pause from idle: %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume from idle: %v", err)
	}

	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double start: %v", err)
	}
	if _, err := s.Stop(false); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if _, err := s.Stop(false); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double stop: %v", err)
	}
	if err := s.Resume(); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("resume after stop: %v", err)
	}
}

func TestStopFromPausedFinalizes(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	feedRun(s, 0, 0, 200, 60, 5)
	if err := s.Pause(); err != nil {
		t.Fatalf("pause: %v", err)
	}

	rec, err := s.Stop(true)
	if err != nil {
		t.Fatalf("stop from paused: %v", err)
	}
	if rec.DurationSec != 60 {
		t.Fatalf("duration %v want 60", rec.DurationSec)
	}
	if !rec.CreatedOffline {
		t.Fatalf("offline flag lost")
	}
}

func TestSplitsReportedOnce(t *testing.T) {
	obs := &recordingObserver{}
	s := New(Config{RunnerID: "runner-1", Observer: obs, SplitUnitM: motion.UnitKilometerM})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	feedRun(s, 0, 0, 2500, 750, 5)

	rec, err := s.Stop(false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(obs.splits) != len(rec.Splits) {
		t.Fatalf("observer saw %d splits, record has %d", len(obs.splits), len(rec.Splits))
	}
	for i, sp := range rec.Splits {
		if sp.Index != i+1 {
			t.Fatalf("split indices not sequential: %+v", rec.Splits)
		}
	}
}

func TestMalformedFixesNeverCorruptTotals(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	pos, ts := feedRun(s, 0, 0, 300, 90, 5)
	want := s.Snapshot()

	s.AddFix(filter.RawFix{})
	s.AddFix(filter.RawFix{Latitude: math.NaN(), Longitude: math.NaN(), AccuracyM: math.NaN(), TimestampMs: ts + 1000})
	s.AddFix(filter.RawFix{Latitude: 200, Longitude: 400, AccuracyM: 5, TimestampMs: ts + 2000})
	s.AddFix(filter.RawFix{Latitude: metersLat(pos), Longitude: 0, AccuracyM: 5, TimestampMs: ts - 50000})

	got := s.Snapshot()
	if got.DistanceM != want.DistanceM || got.DurationSec != want.DurationSec {
		t.Fatalf("malformed fixes changed totals: %+v vs %+v", got, want)
	}
}

func TestRecordIsDeepCopy(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}
	feedRun(s, 0, 0, 1200, 360, 5)
	rec, err := s.Stop(false)
	if err != nil {
		t.Fatalf("stop: %v", err)
	}
	if len(rec.Splits) == 0 {
		t.Fatalf("expected at least one split")
	}
	rec.Splits[0].ElapsedSeconds = -1
	if s.Snapshot().Splits[0].ElapsedSeconds == -1 {
		t.Fatalf("record shares split storage with session")
	}
}

func TestConcurrentFixesAndStop(t *testing.T) {
	s := New(Config{RunnerID: "runner-1"})
	if err := s.Start(); err != nil {
		t.Fatalf("start: %v", err)
	}

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 500; i++ {
			s.AddFix(filter.RawFix{
				Latitude:    metersLat(float64(i)),
				Longitude:   0,
				AccuracyM:   5,
				TimestampMs: int64(i+1) * 1000,
			})
		}
	}()

	var rec Record
	var stopErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		rec, stopErr = s.Stop(false)
	}()
	wg.Wait()

	if stopErr != nil {
		t.Fatalf("stop: %v", stopErr)
	}
	// Fixes that lost the race are dropped, never partially applied.
	if rec.DistanceM < 0 || rec.DurationSec < 0 {
		t.Fatalf("corrupted record: %+v", rec)
	}
	if s.Snapshot().State != StateStopped {
		t.Fatalf("expected stopped state")
	}
}
