package main

import (
	"encoding/json"
	"fmt"
	"time"
)

// ============================================================================
// Events - inputs to the reducer
// ============================================================================
// Events come from the sensor transport (samples), the control plane (IPC),
// the daemon loop itself (ticks, command failures) and the state stream
// (snapshot requests). They are funnelled through one channel and reduced in
// arrival order.
// ============================================================================

// Event is the input to the reducer.
type Event interface {
	eventMarker()
}

// SampleReceived carries one decoded sensor sample.
type SampleReceived struct {
	Sample SensorSample
}

func (SampleReceived) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence so time-based safety
// releases happen even when the sensor stream stalls.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// PauseControl suppresses key output and releases anything held.
// Classification keeps running so resuming picks up the current stance immediately.
type PauseControl struct{}

func (PauseControl) eventMarker() {}

// ResumeControl re-enables key output.
type ResumeControl struct{}

func (ResumeControl) eventMarker() {}

// ReleaseAll releases every held key without pausing.
type ReleaseAll struct{}

func (ReleaseAll) eventMarker() {}

// Recenter re-captures the gyro baseline from the next sample and zeroes the heading.
type Recenter struct{}

func (Recenter) eventMarker() {}

// RequestStateSnapshot asks the daemon loop for a StateSnapshot.
// The reply is delivered through the effects layer.
type RequestStateSnapshot struct {
	Reply chan<- StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// KeyCommandFailed is emitted when the key sink rejects a command.
type KeyCommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (KeyCommandFailed) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps events for the IPC wire format. Only control events and
// injected samples are representable; internal events are not.
// ============================================================================

// EventEnvelope wraps an event with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// sampleWire is the JSON form of an injected sample.
type sampleWire struct {
	X     float64    `json:"x"`
	Y     float64    `json:"y"`
	Z     float64    `json:"z"`
	GyroY float64    `json:"gyro_y"`
	At    *time.Time `json:"at,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event.
// Injected samples without a timestamp are stamped with now.
func UnmarshalEvent(data []byte, now time.Time) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "sample":
		var w sampleWire
		if err := json.Unmarshal(env.Data, &w); err != nil {
			return nil, fmt.Errorf("unmarshal sample: %w", err)
		}
		s := SensorSample{X: w.X, Y: w.Y, Z: w.Z, GyroY: w.GyroY, At: now}
		if w.At != nil {
			s.At = *w.At
		}
		if !s.finite() {
			return nil, fmt.Errorf("unmarshal sample: non-finite value")
		}
		return SampleReceived{Sample: s}, nil

	case "pause":
		return PauseControl{}, nil
	case "resume":
		return ResumeControl{}, nil
	case "release_all":
		return ReleaseAll{}, nil
	case "recenter":
		return Recenter{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case SampleReceived:
		env.Type = "sample"
		w := sampleWire{X: e.Sample.X, Y: e.Sample.Y, Z: e.Sample.Z, GyroY: e.Sample.GyroY}
		if !e.Sample.At.IsZero() {
			at := e.Sample.At
			w.At = &at
		}
		data, err := json.Marshal(w)
		if err != nil {
			return nil, fmt.Errorf("marshal sample: %w", err)
		}
		env.Data = data

	case PauseControl:
		env.Type = "pause"
	case ResumeControl:
		env.Type = "resume"
	case ReleaseAll:
		env.Type = "release_all"
	case Recenter:
		env.Type = "recenter"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
