package motion

import (
	"math"

	"backend-runlink/internal/shared/geo"
)

// Split unit distances.
const (
	UnitKilometerM = 1000.0
	UnitMileM      = 1609.344
)

// Sample is one accepted, filtered position handed to the accumulator.
// Altitude is optional; a missing altitude contributes zero elevation delta.
type Sample struct {
	Latitude    float64
	Longitude   float64
	AltitudeM   *float64
	TimestampMs int64
}

// Split is a completed unit-distance interval.
type Split struct {
	Index          int     `json:"index"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
	PaceMinPerUnit float64 `json:"paceMinutesPerUnit"`
}

// Accumulator folds consecutive accepted samples into running totals.
// It is pure computation: no I/O, no locking, caller serializes access.
type Accumulator struct {
	unitM float64

	distanceM   float64
	durationSec float64
	gainM       float64
	lossM       float64
	splits      []Split

	prev    Sample
	hasPrev bool

	// elapsed at the point the last split closed, interpolated onto the
	// exact unit boundary.
	splitStartSec float64
}

// NewAccumulator creates an accumulator closing splits every unitM meters.
// A non-positive unit falls back to kilometers.
func NewAccumulator(unitM float64) *Accumulator {
	if unitM <= 0 {
		unitM = UnitKilometerM
	}
	return &Accumulator{unitM: unitM}
}

// Add folds one sample into the totals. The first sample only seeds the
// previous-point reference. A zero-distance, zero-time delta is a no-op so
// a replayed sample never double counts.
func (a *Accumulator) Add(s Sample) {
	if !a.hasPrev {
		a.prev = s
		a.hasPrev = true
		return
	}

	dt := float64(s.TimestampMs-a.prev.TimestampMs) / 1000.0
	if dt < 0 {
		return
	}

	dist := geo.HaversineM(a.prev.Latitude, a.prev.Longitude, s.Latitude, s.Longitude)
	if dist == 0 && dt == 0 {
		return
	}

	if a.prev.AltitudeM != nil && s.AltitudeM != nil {
		delta := *s.AltitudeM - *a.prev.AltitudeM
		if delta > 0 {
			a.gainM += delta
		} else {
			a.lossM += math.Abs(delta)
		}
	}

	before := a.distanceM
	a.distanceM += dist
	a.durationSec += dt

	a.closeSplits(before, dist, dt)
	a.prev = s
}

// Reseed replaces the previous-point reference without accumulating, used
// when tracking resumes after a pause so the paused gap is not counted.
func (a *Accumulator) Reseed(s Sample) {
	a.prev = s
	a.hasPrev = true
}

// closeSplits finalizes every unit boundary the segment crossed, attributing
// time up to each boundary by linear interpolation within the segment.
func (a *Accumulator) closeSplits(startDistance, segDist, segSec float64) {
	for {
		boundary := float64(len(a.splits)+1) * a.unitM
		if a.distanceM < boundary {
			return
		}
		// Elapsed time at the instant the boundary was crossed.
		atBoundary := a.durationSec
		if segDist > 0 {
			atBoundary -= segSec * (a.distanceM - boundary) / segDist
		}
		elapsed := atBoundary - a.splitStartSec
		a.splits = append(a.splits, Split{
			Index:          len(a.splits) + 1,
			ElapsedSeconds: elapsed,
			PaceMinPerUnit: elapsed / 60.0,
		})
		a.splitStartSec = atBoundary
	}
}

func (a *Accumulator) DistanceM() float64   { return a.distanceM }
func (a *Accumulator) DurationSec() float64 { return a.durationSec }
func (a *Accumulator) GainM() float64       { return a.gainM }
func (a *Accumulator) LossM() float64       { return a.lossM }

// Splits returns a copy of the completed splits.
func (a *Accumulator) Splits() []Split {
	out := make([]Split, len(a.splits))
	copy(out, a.splits)
	return out
}

// Reset zeroes all totals for a fresh session.
func (a *Accumulator) Reset() {
	unit := a.unitM
	*a = Accumulator{unitM: unit}
}
