package main

import (
	"math"
	"time"
)

// Facing is the horizontal direction the player is walking towards.
// The zero value is FacingRight, which is also the initial facing.
type Facing int

const (
	FacingRight Facing = iota
	FacingLeft
)

func (f Facing) String() string {
	if f == FacingLeft {
		return "left"
	}
	return "right"
}

// Toggle returns the opposite facing.
func (f Facing) Toggle() Facing {
	if f == FacingLeft {
		return FacingRight
	}
	return FacingLeft
}

// Key returns the walk-forward key for this facing.
func (f Facing) Key() Key {
	if f == FacingLeft {
		return KeyLeft
	}
	return KeyRight
}

// RotationState integrates gyro Y readings into an accumulated heading.
type RotationState struct {
	// Accumulated is the integrated heading change in radians since the last flip.
	Accumulated float64
	Facing      Facing

	// Baseline is the gyro reading captured from the first processed sample (sensor bias).
	Baseline    float64
	BaselineSet bool

	// LastAt is the arrival instant of the newest processed sample. It never moves backwards.
	LastAt time.Time
}

// Degrees reports the accumulated heading in degrees (display only).
func (r RotationState) Degrees() float64 {
	return r.Accumulated * 180 / math.Pi
}

// Recenter drops the baseline so the next sample re-captures it.
func (r RotationState) Recenter() RotationState {
	r.Accumulated = 0
	r.BaselineSet = false
	r.Baseline = 0
	r.LastAt = time.Time{}
	return r
}

// StepRotation integrates one sample and reports whether the facing flipped.
//
// The first sample after start (or recenter) only records the baseline. Angular
// velocity inside the noise band contributes nothing; samples that arrive out of
// order contribute dt=0. maxDt > 0 caps the integration step after transport gaps.
func StepRotation(r RotationState, s SensorSample, noiseLimit, maxDt float64) (RotationState, bool) {
	if !r.BaselineSet {
		r.Baseline = s.GyroY
		r.BaselineSet = true
		r.LastAt = s.At
		return r, false
	}

	dt := 0.0
	if !r.LastAt.IsZero() {
		dt = s.At.Sub(r.LastAt).Seconds()
	}
	if dt < 0 {
		dt = 0
	} else {
		r.LastAt = s.At
	}
	if maxDt > 0 && dt > maxDt {
		dt = maxDt
	}

	effective := s.GyroY - r.Baseline
	if math.Abs(effective) <= noiseLimit {
		return r, false
	}

	r.Accumulated += effective * dt
	if math.Abs(r.Accumulated) > math.Pi {
		r.Facing = r.Facing.Toggle()
		r.Accumulated = 0
		return r, true
	}
	return r, false
}
