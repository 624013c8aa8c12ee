package filter

import (
	"math"

	"backend-runlink/internal/shared/geo"
)

const (
	// maxRunningSpeedMps is faster than any human runner sustains; samples
	// implying more are treated as GPS jumps.
	maxRunningSpeedMps = 20.0
	// maxAccelerationMps2 bounds how quickly a runner can change speed.
	maxAccelerationMps2 = 2.0

	implausiblePenalty = 2.0
	maxGain            = 0.3
	minVariance        = 1.0
	stationaryRadiusM  = 1.0

	// processNoiseMps grows the predicted variance with elapsed time so the
	// filter never becomes overconfident while the runner keeps moving.
	processNoiseMps = 3.0

	baselineAccuracyM = 10.0
)

// RawFix is a single location sample as delivered by the location source.
// Any field may be garbage; Update rejects bad samples instead of failing.
type RawFix struct {
	Latitude    float64  `json:"latitude"`
	Longitude   float64  `json:"longitude"`
	AltitudeM   *float64 `json:"altitude,omitempty"`
	AccuracyM   float64  `json:"horizontal_accuracy_m"`
	TimestampMs int64    `json:"timestamp_ms"`
}

// FilteredFix is the filter's current position belief after an update.
type FilteredFix struct {
	Latitude           float64
	Longitude          float64
	EstimatedAccuracyM float64
}

// Filter smooths a noisy fix stream into physically plausible coordinates.
// It is a scalar-variance Kalman estimator constrained by a running-speed
// envelope: samples that imply impossible speed or acceleration are
// down-weighted rather than discarded, and no single sample can move the
// estimate further than a runner could travel in the elapsed time.
//
// Not safe for concurrent use; a session owns exactly one filter.
type Filter struct {
	lat, lng    float64
	variance    float64
	lastMs      int64
	lastSpeed   float64
	initialized bool
}

func New() *Filter {
	return &Filter{}
}

// Update folds one raw fix into the estimate and returns the new belief,
// plus whether the sample was accepted. Malformed or out-of-order samples
// leave the state untouched and return the previous belief with ok=false;
// callers must not accumulate on a rejected sample.
func (f *Filter) Update(raw RawFix) (FilteredFix, bool) {
	if !validFix(raw) {
		return f.current(), false
	}

	if !f.initialized {
		f.lat = raw.Latitude
		f.lng = raw.Longitude
		f.variance = math.Max(raw.AccuracyM*raw.AccuracyM, minVariance)
		f.lastMs = raw.TimestampMs
		f.lastSpeed = 0
		f.initialized = true
		return f.current(), true
	}

	dt := float64(raw.TimestampMs-f.lastMs) / 1000.0
	if dt <= 0 {
		// Duplicate or out-of-order timestamp.
		return f.current(), false
	}

	displacement := geo.HaversineM(f.lat, f.lng, raw.Latitude, raw.Longitude)
	speed := displacement / dt
	accel := math.Abs(speed-f.lastSpeed) / dt
	plausible := speed <= maxRunningSpeedMps && accel <= maxAccelerationMps2

	noise := math.Max(raw.AccuracyM, 1.0)
	if !plausible {
		noise *= implausiblePenalty
	}

	// Predict, then correct.
	f.variance += dt * processNoiseMps * processNoiseMps

	gain := f.variance / (f.variance + noise*noise)
	accuracyFactor := math.Max(1.0, raw.AccuracyM/baselineAccuracyM)
	speedFactor := math.Max(1.0, speed/maxRunningSpeedMps)
	gain = math.Min(gain, math.Min(maxGain, 1.0/(accuracyFactor*speedFactor)))

	correction := gain * displacement
	if displacement < stationaryRadiusM {
		// Standing still: damp the correction so accuracy noise cannot
		// accumulate into drift.
		correction *= 0.5
	}

	// Never move further than the speed/acceleration envelope allows over dt.
	envelopeSpeed := math.Min(maxRunningSpeedMps, f.lastSpeed+maxAccelerationMps2*dt)
	if maxTravel := envelopeSpeed * dt; correction > maxTravel {
		correction = maxTravel
	}

	if displacement > 0 {
		frac := correction / displacement
		f.lat += (raw.Latitude - f.lat) * frac
		f.lng += (raw.Longitude - f.lng) * frac
	}

	f.variance = math.Max((1-gain)*f.variance, minVariance)
	f.lastSpeed = correction / dt
	f.lastMs = raw.TimestampMs

	return f.current(), true
}

// Reset clears all belief state so the filter can serve a new session.
func (f *Filter) Reset() {
	*f = Filter{}
}

func (f *Filter) current() FilteredFix {
	return FilteredFix{
		Latitude:           f.lat,
		Longitude:          f.lng,
		EstimatedAccuracyM: math.Sqrt(f.variance),
	}
}

func validFix(raw RawFix) bool {
	if !geo.ValidCoordinate(raw.Latitude, raw.Longitude) {
		return false
	}
	if math.IsNaN(raw.AccuracyM) || math.IsInf(raw.AccuracyM, 0) || raw.AccuracyM < 0 {
		return false
	}
	return raw.TimestampMs > 0
}
