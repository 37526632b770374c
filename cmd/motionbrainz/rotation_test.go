package main

import (
	"math"
	"testing"
)

func gyroSample(ms int, gyro float64) SensorSample {
	return SensorSample{GyroY: gyro, At: at(ms)}
}

func TestStepRotation_FirstSampleCapturesBaseline(t *testing.T) {
	var r RotationState
	r, flipped := StepRotation(r, gyroSample(0, 0.2), 0.5, 0)
	if flipped {
		t.Fatalf("expected no flip on baseline sample")
	}
	if !r.BaselineSet || r.Baseline != 0.2 {
		t.Fatalf("expected baseline 0.2, got set=%v baseline=%v", r.BaselineSet, r.Baseline)
	}
	if r.Accumulated != 0 {
		t.Fatalf("expected no accumulation on baseline sample, got %v", r.Accumulated)
	}
}

func TestStepRotation_ConstantRateFlipsAndResets(t *testing.T) {
	// 1 rad/s for 0.5 s per frame against a zero baseline: 3.5 rad > π on the 7th frame.
	var r RotationState
	r, _ = StepRotation(r, gyroSample(0, 0), 0.5, 0)

	flipFrame := 0
	for i := 1; i <= 7; i++ {
		var flipped bool
		r, flipped = StepRotation(r, gyroSample(i*500, 1.0), 0.5, 0)
		if flipped {
			flipFrame = i
			break
		}
	}
	if flipFrame != 7 {
		t.Fatalf("expected flip on frame 7, got %d", flipFrame)
	}
	if r.Facing != FacingLeft {
		t.Fatalf("expected facing left after flip, got %v", r.Facing)
	}
	if r.Accumulated != 0 {
		t.Fatalf("expected accumulated rotation reset to 0, got %v", r.Accumulated)
	}

	// Keep turning: flips again after another 7 frames, back to right.
	flips := 0
	for i := 8; i <= 14; i++ {
		var flipped bool
		r, flipped = StepRotation(r, gyroSample(i*500, 1.0), 0.5, 0)
		if flipped {
			flips++
		}
		if math.Abs(r.Accumulated) > math.Pi {
			t.Fatalf("accumulated rotation exceeded π: %v", r.Accumulated)
		}
	}
	if flips != 1 || r.Facing != FacingRight {
		t.Fatalf("expected exactly one more flip back to right, got flips=%d facing=%v", flips, r.Facing)
	}
}

func TestStepRotation_NegativeRateFlipsToo(t *testing.T) {
	var r RotationState
	r, _ = StepRotation(r, gyroSample(0, 0), 0.1, 0)
	flipped := false
	for i := 1; i <= 7 && !flipped; i++ {
		r, flipped = StepRotation(r, gyroSample(i*500, -1.0), 0.1, 0)
	}
	if !flipped {
		t.Fatalf("expected flip for negative rotation")
	}
}

func TestStepRotation_NoiseGateContributesNothing(t *testing.T) {
	for _, g := range []float64{0.5, -0.5, 0.49, 0} {
		var r RotationState
		r, _ = StepRotation(r, gyroSample(0, 0), 0.5, 0)
		for i := 1; i <= 100; i++ {
			r, _ = StepRotation(r, gyroSample(i*1000, g), 0.5, 0)
		}
		if r.Accumulated != 0 {
			t.Fatalf("gyro %v: expected zero accumulation inside noise band, got %v", g, r.Accumulated)
		}
	}
}

func TestStepRotation_BaselineIsSubtracted(t *testing.T) {
	var r RotationState
	r, _ = StepRotation(r, gyroSample(0, 1.0), 0.1, 0)
	r, _ = StepRotation(r, gyroSample(1000, 1.0), 0.1, 0)
	if r.Accumulated != 0 {
		t.Fatalf("expected bias to cancel, got %v", r.Accumulated)
	}
	r, _ = StepRotation(r, gyroSample(2000, 1.5), 0.1, 0)
	if math.Abs(r.Accumulated-0.5) > 1e-9 {
		t.Fatalf("expected 0.5 rad, got %v", r.Accumulated)
	}
}

func TestStepRotation_OutOfOrderSampleHasZeroDt(t *testing.T) {
	var r RotationState
	r, _ = StepRotation(r, gyroSample(1000, 0), 0.1, 0)
	r, _ = StepRotation(r, gyroSample(2000, 1.0), 0.1, 0)
	before := r.Accumulated

	r, _ = StepRotation(r, gyroSample(1500, 1.0), 0.1, 0)
	if r.Accumulated != before {
		t.Fatalf("expected late sample to contribute nothing, got %v -> %v", before, r.Accumulated)
	}
	if !r.LastAt.Equal(at(2000)) {
		t.Fatalf("expected LastAt to stay at newest sample, got %v", r.LastAt)
	}

	r, _ = StepRotation(r, gyroSample(2500, 1.0), 0.1, 0)
	if math.Abs(r.Accumulated-(before+0.5)) > 1e-9 {
		t.Fatalf("expected dt measured from newest sample, got %v", r.Accumulated)
	}
}

func TestStepRotation_MaxDtCapsGap(t *testing.T) {
	var r RotationState
	r, _ = StepRotation(r, gyroSample(0, 0), 0.1, 0.1)
	r, flipped := StepRotation(r, gyroSample(10_000, 1.0), 0.1, 0.1)
	if flipped {
		t.Fatalf("expected gap to be capped, got a flip")
	}
	if math.Abs(r.Accumulated-0.1) > 1e-9 {
		t.Fatalf("expected 0.1 rad after capped step, got %v", r.Accumulated)
	}
}

func TestRotationState_Recenter(t *testing.T) {
	r := RotationState{Accumulated: 1.2, Facing: FacingLeft, Baseline: 0.3, BaselineSet: true, LastAt: at(5)}
	r = r.Recenter()
	if r.Accumulated != 0 || r.BaselineSet || !r.LastAt.IsZero() {
		t.Fatalf("expected recenter to clear heading and baseline, got %+v", r)
	}
	if r.Facing != FacingLeft {
		t.Fatalf("expected recenter to keep facing, got %v", r.Facing)
	}
}

func TestFacing_KeyAndToggle(t *testing.T) {
	if FacingRight.Key() != KeyRight || FacingLeft.Key() != KeyLeft {
		t.Fatalf("unexpected facing keys")
	}
	if FacingRight.Toggle() != FacingLeft || FacingLeft.Toggle() != FacingRight {
		t.Fatalf("unexpected toggle")
	}
}
