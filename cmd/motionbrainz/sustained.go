package main

import (
	"math"
	"time"
)

// WalkState tracks the level-triggered walk key.
type WalkState struct {
	Held    bool
	HeldKey Key
}

// StepWalk drives the walk key from the swing amplitude of one sample.
//
// While swinging in the walking stance the facing key is held. A facing change
// releases the old key before pressing the new one, so at most one walk key is
// ever held. Walk is never cooldown-gated.
func StepWalk(w WalkState, stance Stance, facing Facing, s SensorSample, amplitude float64) (WalkState, []Command) {
	var cmds []Command

	var want Key
	if stance == StanceWalking && math.Abs(s.Z) > amplitude {
		want = facing.Key()
	}

	if w.Held && w.HeldKey != want {
		cmds = append(cmds, CmdRelease{Key: w.HeldKey})
		w = WalkState{}
	}
	if want != "" && !w.Held {
		cmds = append(cmds, CmdPress{Key: want})
		w = WalkState{Held: true, HeldKey: want}
	}
	return w, cmds
}

// JumpPhase is the phase of the three-phase jump state machine.
type JumpPhase int

const (
	JumpGrounded JumpPhase = iota
	JumpAscending
	JumpAirborne
)

func (p JumpPhase) String() string {
	switch p {
	case JumpAscending:
		return "ascending"
	case JumpAirborne:
		return "airborne"
	default:
		return "grounded"
	}
}

// JumpState tracks the sustained jump key.
type JumpState struct {
	Phase     JumpPhase
	Held      bool
	HeldKey   Key
	PressedAt time.Time
}

// Weightless reports whether s looks like free fall (magnitude well below 1 g plus margin).
func Weightless(s SensorSample, cfg MotionConfig) bool {
	return s.Magnitude() < standardGravity+cfg.AirborneMargin
}

// landed reports whether s carries a landing impact.
func landed(s SensorSample, cfg MotionConfig) bool {
	return s.Jerk() > cfg.Calibration.JumpThreshold*cfg.LandingFactor ||
		s.Magnitude() > cfg.HardLandingMagnitude
}

// StepJump advances the jump state machine by one sample.
//
// Grounded -> Ascending on a jump candidate (press), Ascending -> Airborne on the
// next sample, Airborne -> Grounded on a landing impact (release). Take-off is
// gated by start and landing by end; each is updated in place when it fires.
// A take-off also waits for end, so the tail of a landing spike cannot start a
// new jump. Landing is evaluated regardless of the current stance.
func StepJump(j JumpState, candidate bool, s SensorSample, start, end *Cooldown, cfg MotionConfig) (JumpState, []Command) {
	if j.Held && airborneExpired(j, s.At, cfg) {
		return JumpState{}, []Command{CmdRelease{Key: j.HeldKey}}
	}

	switch j.Phase {
	case JumpGrounded:
		if candidate && start.Ready(s.At) && end.Ready(s.At) {
			start.Fire(s.At)
			return JumpState{Phase: JumpAscending, Held: true, HeldKey: KeyJump, PressedAt: s.At},
				[]Command{CmdPress{Key: KeyJump}}
		}

	case JumpAscending:
		j.Phase = JumpAirborne

	case JumpAirborne:
		if landed(s, cfg) && end.Ready(s.At) {
			end.Fire(s.At)
			var cmds []Command
			if j.Held {
				cmds = append(cmds, CmdRelease{Key: j.HeldKey})
			}
			return JumpState{}, cmds
		}
	}
	return j, nil
}

// ExpireJump force-releases a jump that has been held longer than MaxAirborne.
// Used on ticks so a lost landing sample cannot leave the key stuck.
func ExpireJump(j JumpState, now time.Time, cfg MotionConfig) (JumpState, []Command) {
	if j.Held && airborneExpired(j, now, cfg) {
		return JumpState{}, []Command{CmdRelease{Key: j.HeldKey}}
	}
	return j, nil
}

func airborneExpired(j JumpState, now time.Time, cfg MotionConfig) bool {
	if cfg.MaxAirborne <= 0 || j.PressedAt.IsZero() {
		return false
	}
	return now.Sub(j.PressedAt) >= cfg.MaxAirborne
}
