package main

import (
	"math"
	"testing"
	"time"
)

func TestDetectGesture_NegativeJerkIsNotAPunch(t *testing.T) {
	cal := CalibrationProfile{PunchThreshold: 10, JumpThreshold: 8, WalkSwingAmplitude: 3, WalkGyroNoiseLimit: 0.5}
	s := SensorSample{X: 2, Y: 9.5, Z: 1}
	if j := s.Jerk(); j >= 0 {
		t.Fatalf("expected negative jerk, got %v", j)
	}
	if g := DetectGesture(StanceCombat, s, cal); g != GestureNone {
		t.Fatalf("expected no gesture, got %v", g)
	}
}

func TestDetectGesture_PunchAboveThreshold(t *testing.T) {
	cal := CalibrationProfile{PunchThreshold: 10, JumpThreshold: 8, WalkSwingAmplitude: 3, WalkGyroNoiseLimit: 0.5}
	s := SensorSample{Y: standardGravity + 15}
	if math.Abs(s.Jerk()-15) > 1e-9 {
		t.Fatalf("expected jerk 15, got %v", s.Jerk())
	}
	if g := DetectGesture(StanceCombat, s, cal); g != GesturePunch {
		t.Fatalf("expected punch, got %v", g)
	}
}

func TestDetectGesture_StrictThreshold(t *testing.T) {
	s := SensorSample{Y: 21.3, X: 1.1}
	jerk := s.Jerk()

	exact := CalibrationProfile{PunchThreshold: jerk, JumpThreshold: jerk}
	if g := DetectGesture(StanceCombat, s, exact); g != GestureNone {
		t.Fatalf("expected no gesture at exactly the threshold, got %v", g)
	}

	below := CalibrationProfile{PunchThreshold: jerk - 1e-9, JumpThreshold: jerk - 1e-9}
	if g := DetectGesture(StanceCombat, s, below); g != GesturePunch {
		t.Fatalf("expected punch just above the threshold, got %v", g)
	}
}

func TestDetectGesture_StanceSelectsGesture(t *testing.T) {
	cal := CalibrationProfile{PunchThreshold: 5, JumpThreshold: 5, WalkSwingAmplitude: 3, WalkGyroNoiseLimit: 0.5}
	s := SensorSample{X: 20}

	if g := DetectGesture(StanceWalking, s, cal); g != GestureJump {
		t.Fatalf("expected jump in walking stance, got %v", g)
	}
	if g := DetectGesture(StanceCombat, s, cal); g != GesturePunch {
		t.Fatalf("expected punch in combat stance, got %v", g)
	}
	if g := DetectGesture(StanceIdle, s, cal); g != GestureNone {
		t.Fatalf("expected nothing in idle stance, got %v", g)
	}
}

func TestCooldown_Ready(t *testing.T) {
	cd := Cooldown{Duration: 300 * time.Millisecond}
	if !cd.Ready(at(0)) {
		t.Fatalf("expected a cooldown that never fired to be ready")
	}

	cd.Fire(at(0))
	if cd.Ready(at(299)) {
		t.Fatalf("expected cooldown to suppress at 299ms")
	}
	if !cd.Ready(at(300)) {
		t.Fatalf("expected cooldown ready at exactly 300ms")
	}
	if !cd.Ready(at(1000)) {
		t.Fatalf("expected cooldown ready after 1s")
	}
}

func TestNewCooldowns_UsesConfiguredDurations(t *testing.T) {
	cds := newCooldowns(testMotionConfig())
	if cds.Punch.Duration != 300*time.Millisecond ||
		cds.Turn.Duration != 800*time.Millisecond ||
		cds.JumpStart.Duration != 400*time.Millisecond ||
		cds.JumpEnd.Duration != 400*time.Millisecond {
		t.Fatalf("unexpected cooldown durations: %+v", cds)
	}
}
