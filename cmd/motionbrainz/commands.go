package main

import "fmt"

// Key is a logical game key. The key sink maps it to whatever the output device needs
// (a Linux key code, an MQTT payload, a log line).
type Key string

const (
	KeyLeft   Key = "left"
	KeyRight  Key = "right"
	KeyAttack Key = "attack"
	KeyJump   Key = "jump"

	// KeyTurn is only emitted when a dedicated turn key is configured.
	KeyTurn Key = "turn"
)

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the daemon loop.
// In this codebase, those are key operations against the configured KeySink.
type Command interface {
	commandMarker()
	String() string
}

// CmdPress starts holding a key.
type CmdPress struct {
	Key Key
}

func (CmdPress) commandMarker()   {}
func (c CmdPress) String() string { return fmt.Sprintf("CmdPress(key=%s)", c.Key) }

// CmdRelease stops holding a key.
type CmdRelease struct {
	Key Key
}

func (CmdRelease) commandMarker()   {}
func (c CmdRelease) String() string { return fmt.Sprintf("CmdRelease(key=%s)", c.Key) }

// CmdTap presses and immediately releases a key.
type CmdTap struct {
	Key Key
}

func (CmdTap) commandMarker()   {}
func (c CmdTap) String() string { return fmt.Sprintf("CmdTap(key=%s)", c.Key) }

// CmdPublishStateSnapshot delivers a reducer-produced snapshot to a requester.
type CmdPublishStateSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan<- StateSnapshot
}

func (CmdPublishStateSnapshot) commandMarker() {}
func (CmdPublishStateSnapshot) String() string { return "CmdPublishStateSnapshot()" }

// keyOp returns the operation name and key of a key command.
func keyOp(cmd Command) (op string, key Key, ok bool) {
	switch c := cmd.(type) {
	case CmdPress:
		return "press", c.Key, true
	case CmdRelease:
		return "release", c.Key, true
	case CmdTap:
		return "tap", c.Key, true
	default:
		return "", "", false
	}
}
