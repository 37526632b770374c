package main

import "time"

// ControllerState is the top-level, daemon-owned state container.
//
// All motion classification state lives here so the reducer stays pure and a
// coherent snapshot can be published to other clients (IPC/WS). Only the daemon
// goroutine may touch it.
type ControllerState struct {
	// SessionID identifies this daemon run in snapshots and published key events.
	SessionID string

	// Stance is the current stable stance; StanceVotes the raw per-sample votes behind it.
	Stance      Stance
	StanceVotes StanceBuffer

	Rotation RotationState

	// Sustained actions
	Walk WalkState
	Jump JumpState

	// Edge-triggered action debouncing
	Cooldowns Cooldowns

	// Paused keeps classification running but suppresses all key output.
	Paused bool

	Stats ControllerStats
}

// ControllerStats are counters for status output. They never influence decisions.
type ControllerStats struct {
	Samples      uint64
	Flips        uint64
	Punches      uint64
	Jumps        uint64
	Suppressed   uint64 // edge actions blocked by a cooldown
	SinkFailures uint64

	LastSample SensorSample
}

// NewControllerState returns neutral start-of-loop state: idle stance, baseline unset,
// facing right, cooldowns expired and nothing held.
func NewControllerState(sessionID string, cfg MotionConfig) *ControllerState {
	return &ControllerState{
		SessionID: sessionID,
		Stance:    StanceIdle,
		Cooldowns: newCooldowns(cfg),
	}
}

// HeldKeys returns the keys currently held by the sustained actions.
func (s *ControllerState) HeldKeys() []Key {
	var keys []Key
	if s.Walk.Held {
		keys = append(keys, s.Walk.HeldKey)
	}
	if s.Jump.Held {
		keys = append(keys, s.Jump.HeldKey)
	}
	return keys
}

// releaseHeld clears every sustained action and returns the release commands for
// the keys that were held. Held state is cleared on intent, regardless of whether
// the sink later manages to deliver the release.
func (s *ControllerState) releaseHeld() []Command {
	var cmds []Command
	for _, k := range s.HeldKeys() {
		cmds = append(cmds, CmdRelease{Key: k})
	}
	s.Walk = WalkState{}
	s.Jump = JumpState{}
	return cmds
}

// StateSnapshot is a coherent, read-only view of ControllerState for other goroutines.
type StateSnapshot struct {
	SessionID string `json:"session_id"`

	Stance     string  `json:"stance"`
	Facing     string  `json:"facing"`
	HeadingDeg float64 `json:"heading_deg"`
	Calibrated bool    `json:"baseline_set"`

	WalkKey    string `json:"walk_key,omitempty"`
	JumpPhase  string `json:"jump_phase"`
	JumpHeld   bool   `json:"jump_held"`
	Weightless bool   `json:"weightless"`
	Paused     bool   `json:"paused"`

	Samples      uint64    `json:"samples"`
	Flips        uint64    `json:"flips"`
	Punches      uint64    `json:"punches"`
	Jumps        uint64    `json:"jumps"`
	Suppressed   uint64    `json:"suppressed"`
	SinkFailures uint64    `json:"sink_failures"`
	LastSampleAt time.Time `json:"last_sample_at"`
}

// Snapshot copies the externally visible parts of the state.
func (s *ControllerState) Snapshot(cfg MotionConfig) StateSnapshot {
	snap := StateSnapshot{
		SessionID:    s.SessionID,
		Stance:       s.Stance.String(),
		Facing:       s.Rotation.Facing.String(),
		HeadingDeg:   s.Rotation.Degrees(),
		Calibrated:   s.Rotation.BaselineSet,
		JumpPhase:    s.Jump.Phase.String(),
		JumpHeld:     s.Jump.Held,
		Paused:       s.Paused,
		Samples:      s.Stats.Samples,
		Flips:        s.Stats.Flips,
		Punches:      s.Stats.Punches,
		Jumps:        s.Stats.Jumps,
		Suppressed:   s.Stats.Suppressed,
		SinkFailures: s.Stats.SinkFailures,
		LastSampleAt: s.Stats.LastSample.At,
	}
	if s.Walk.Held {
		snap.WalkKey = string(s.Walk.HeldKey)
	}
	if s.Stats.Samples > 0 {
		snap.Weightless = Weightless(s.Stats.LastSample, cfg)
	}
	return snap
}
