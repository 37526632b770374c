package main

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestClassifyRaw(t *testing.T) {
	tests := []struct {
		name string
		s    SensorSample
		want Stance
	}{
		{"upright", SensorSample{Y: 9.5}, StanceCombat},
		{"upright inverted", SensorSample{Y: -9.5}, StanceCombat},
		{"sideways", SensorSample{X: 9.5}, StanceWalking},
		{"sideways inverted", SensorSample{X: -9.0}, StanceWalking},
		{"flat", SensorSample{Z: 9.8}, StanceIdle},
		{"tilted", SensorSample{X: 6, Y: 6, Z: 3}, StanceIdle},
		{"both axes resolve to combat", SensorSample{X: 9, Y: 9}, StanceCombat},
		{"exactly at threshold", SensorSample{Y: 8.5}, StanceIdle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyRaw(tt.s, defaultGravityThreshold); got != tt.want {
				t.Fatalf("expected %v, got %v", tt.want, got)
			}
		})
	}
}

func TestStanceBuffer_PushDropsOldest(t *testing.T) {
	var b StanceBuffer
	for _, s := range []Stance{StanceIdle, StanceWalking, StanceCombat, StanceCombat, StanceWalking, StanceCombat} {
		b.Push(s, 5)
	}
	want := []Stance{StanceWalking, StanceCombat, StanceCombat, StanceWalking, StanceCombat}
	if diff := cmp.Diff(want, b.Votes()); diff != "" {
		t.Fatalf("votes mismatch (-want +got):\n%s", diff)
	}
}

func TestStanceBuffer_EmptyHasNoConsensus(t *testing.T) {
	var b StanceBuffer
	if _, ok := b.Consensus(1); ok {
		t.Fatalf("expected no consensus on empty buffer")
	}
}

func TestStanceBuffer_WindowShrinkAndClamp(t *testing.T) {
	var b StanceBuffer
	for i := 0; i < 40; i++ {
		b.Push(StanceCombat, 100)
	}
	if b.Len() != maxStanceWindow {
		t.Fatalf("expected window clamped to %d, got %d", maxStanceWindow, b.Len())
	}

	b.Push(StanceWalking, 3)
	if b.Len() != 3 {
		t.Fatalf("expected buffer to shrink to 3, got %d", b.Len())
	}
}

func TestStepStance_CombatOnFourthFrame(t *testing.T) {
	cfg := testMotionConfig()
	stance := StanceIdle
	var buf StanceBuffer

	for i := 1; i <= 4; i++ {
		stance, buf = StepStance(stance, buf, combatSample(i*33), cfg)
		if i < 4 && stance != StanceIdle {
			t.Fatalf("frame %d: expected idle before consensus, got %v", i, stance)
		}
	}
	if stance != StanceCombat {
		t.Fatalf("expected combat on 4th frame, got %v", stance)
	}
}

func TestStepStance_MajorityOverridesPreviousStance(t *testing.T) {
	cfg := testMotionConfig()
	stance := StanceCombat
	var buf StanceBuffer
	for i := 0; i < 5; i++ {
		buf.Push(StanceCombat, cfg.StanceWindow)
	}

	// Four walking votes out of five.
	seq := []SensorSample{walkingSample(0), walkingSample(1), combatSample(2), walkingSample(3), walkingSample(4)}
	for _, s := range seq {
		stance, buf = StepStance(stance, buf, s, cfg)
	}
	if stance != StanceWalking {
		t.Fatalf("expected walking, got %v", stance)
	}
}

func TestStepStance_NoFlapWithoutConsensus(t *testing.T) {
	cfg := testMotionConfig()
	stance := StanceIdle
	var buf StanceBuffer

	for i := 0; i < 30; i++ {
		s := combatSample(i)
		if i%2 == 1 {
			s = walkingSample(i)
		}
		stance, buf = StepStance(stance, buf, s, cfg)
		if stance != StanceIdle {
			t.Fatalf("sample %d: expected stance to stay idle, got %v", i, stance)
		}
	}
}
