package main

import (
	"math"
	"time"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (samples, control requests, ticks, sink failures)
//   - Commands: side effects requested by the reducer (key press/release/tap)
//   - Broadcasts: externally visible state changes for the state stream
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The daemon loop is responsible for executing Commands and feeding failures back as Events.

// ==============================
// Broadcasts
// ==============================

// StateBroadcast is a reducer-emitted, externally visible state change.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastStanceChanged is emitted when the stable stance changes.
type BroadcastStanceChanged struct {
	Stance Stance
	At     time.Time
}

func (BroadcastStanceChanged) broadcastMarker() {}

// BroadcastFacingChanged is emitted when the accumulated heading flips the facing.
type BroadcastFacingChanged struct {
	Facing Facing
	At     time.Time
}

func (BroadcastFacingChanged) broadcastMarker() {}

// BroadcastHeadingChanged is emitted when the accumulated heading moves by at least
// one whole degree (rounded). Degrees is the rounded value.
type BroadcastHeadingChanged struct {
	Degrees float64
	At      time.Time
}

func (BroadcastHeadingChanged) broadcastMarker() {}

// BroadcastKeyAction is emitted for every key command the reducer issues.
type BroadcastKeyAction struct {
	Op  string
	Key Key
	At  time.Time
}

func (BroadcastKeyAction) broadcastMarker() {}

// BroadcastPausedChanged is emitted when key output is paused or resumed.
type BroadcastPausedChanged struct {
	Paused bool
	At     time.Time
}

func (BroadcastPausedChanged) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state plus Commands to execute and
// Broadcasts to publish.
type ReduceResult struct {
	State      *ControllerState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not read the wall clock; all time comes from events
//
// The daemon loop must:
// - execute Commands
// - translate failures into Events
// - feed those Events back into Reduce()
func Reduce(s *ControllerState, e Event, cfg MotionConfig) ReduceResult {
	if s == nil {
		s = NewControllerState("", cfg)
	}

	var cmds []Command
	var bcs []StateBroadcast

	switch ev := e.(type) {
	case SampleReceived:
		cmds, bcs = reduceSample(s, ev.Sample, cfg)

	case Tick:
		if s.Jump.Held {
			s.Jump, cmds = ExpireJump(s.Jump, ev.Now, cfg)
			bcs = appendKeyBroadcasts(bcs, cmds, ev.Now)
		}

	case PauseControl:
		if !s.Paused {
			s.Paused = true
			cmds = s.releaseHeld()
			bcs = appendKeyBroadcasts(bcs, cmds, time.Time{})
			bcs = append(bcs, BroadcastPausedChanged{Paused: true})
		}

	case ResumeControl:
		if s.Paused {
			s.Paused = false
			bcs = append(bcs, BroadcastPausedChanged{Paused: false})
		}

	case ReleaseAll:
		cmds = s.releaseHeld()
		bcs = appendKeyBroadcasts(bcs, cmds, time.Time{})

	case Recenter:
		hadHeading := math.Round(s.Rotation.Degrees()) != 0
		s.Rotation = s.Rotation.Recenter()
		if hadHeading {
			bcs = append(bcs, BroadcastHeadingChanged{Degrees: 0})
		}

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishStateSnapshot{
			Snapshot: s.Snapshot(cfg),
			Reply:    ev.Reply,
		})

	case KeyCommandFailed:
		// Held state follows intent; a failed release is not retried.
		s.Stats.SinkFailures++

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcs,
	}
}

// reduceSample is the per-sample dispatcher. Stage order:
// stance -> rotation -> gesture candidates -> walk -> cooldown-gated edge actions -> jump.
func reduceSample(s *ControllerState, smp SensorSample, cfg MotionConfig) ([]Command, []StateBroadcast) {
	var cmds []Command
	var bcs []StateBroadcast
	now := smp.At

	s.Stats.Samples++
	s.Stats.LastSample = smp

	prevStance := s.Stance
	s.Stance, s.StanceVotes = StepStance(s.Stance, s.StanceVotes, smp, cfg)
	if s.Stance != prevStance {
		bcs = append(bcs, BroadcastStanceChanged{Stance: s.Stance, At: now})
	}

	// Rotation runs in every stance so facing stays current.
	var flipped bool
	prevDeg := math.Round(s.Rotation.Degrees())
	s.Rotation, flipped = StepRotation(s.Rotation, smp, cfg.Calibration.WalkGyroNoiseLimit, cfg.MaxDt.Seconds())
	if flipped {
		s.Stats.Flips++
		bcs = append(bcs, BroadcastFacingChanged{Facing: s.Rotation.Facing, At: now})
	}
	if deg := math.Round(s.Rotation.Degrees()); deg != prevDeg {
		bcs = append(bcs, BroadcastHeadingChanged{Degrees: deg, At: now})
	}

	gesture := DetectGesture(s.Stance, smp, cfg.Calibration)

	if s.Paused {
		return nil, bcs
	}

	// The walk key moves first so a released walk key is up before any turn
	// tap, and a swap onto the new facing key stands in for that tap.
	var walkCmds, jumpCmds []Command
	s.Walk, walkCmds = StepWalk(s.Walk, s.Stance, s.Rotation.Facing, smp, cfg.Calibration.WalkSwingAmplitude)
	cmds = append(cmds, walkCmds...)

	// Edge-triggered actions.
	if flipped {
		if s.Cooldowns.Turn.Ready(now) {
			s.Cooldowns.Turn.Fire(now)
			if turn := cfg.turnKey(s.Rotation.Facing); !pressesKey(walkCmds, turn) {
				cmds = append(cmds, CmdTap{Key: turn})
			}
		} else {
			s.Stats.Suppressed++
		}
	}
	if gesture == GesturePunch {
		if s.Cooldowns.Punch.Ready(now) {
			s.Cooldowns.Punch.Fire(now)
			s.Stats.Punches++
			cmds = append(cmds, CmdTap{Key: KeyAttack})
		} else {
			s.Stats.Suppressed++
		}
	}

	// Jump.
	wasGrounded := s.Jump.Phase == JumpGrounded
	s.Jump, jumpCmds = StepJump(s.Jump, gesture == GestureJump, smp, &s.Cooldowns.JumpStart, &s.Cooldowns.JumpEnd, cfg)
	cmds = append(cmds, jumpCmds...)
	if wasGrounded && gesture == GestureJump {
		if s.Jump.Phase == JumpAscending {
			s.Stats.Jumps++
		} else {
			s.Stats.Suppressed++
		}
	}

	bcs = appendKeyBroadcasts(bcs, cmds, now)
	return cmds, bcs
}

func pressesKey(cmds []Command, k Key) bool {
	for _, c := range cmds {
		if p, ok := c.(CmdPress); ok && p.Key == k {
			return true
		}
	}
	return false
}

func appendKeyBroadcasts(bcs []StateBroadcast, cmds []Command, at time.Time) []StateBroadcast {
	for _, c := range cmds {
		if op, key, ok := keyOp(c); ok {
			bcs = append(bcs, BroadcastKeyAction{Op: op, Key: key, At: at})
		}
	}
	return bcs
}
