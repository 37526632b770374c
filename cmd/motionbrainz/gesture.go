package main

// Gesture is an impulse-style motion recognised from jerk.
type Gesture int

const (
	GestureNone Gesture = iota
	GesturePunch
	GestureJump
)

func (g Gesture) String() string {
	switch g {
	case GesturePunch:
		return "punch"
	case GestureJump:
		return "jump"
	default:
		return "none"
	}
}

// stanceGestures is the gesture each stance permits. A stance missing from the
// table (idle) permits none.
var stanceGestures = map[Stance]Gesture{
	StanceCombat:  GesturePunch,
	StanceWalking: GestureJump,
}

// threshold returns the calibrated jerk threshold for g.
func (c CalibrationProfile) threshold(g Gesture) (float64, bool) {
	switch g {
	case GesturePunch:
		return c.PunchThreshold, true
	case GestureJump:
		return c.JumpThreshold, true
	default:
		return 0, false
	}
}

// DetectGesture returns the gesture candidate for s under the given stable stance.
// A candidate requires jerk strictly above the gesture's threshold.
func DetectGesture(stance Stance, s SensorSample, cal CalibrationProfile) Gesture {
	g, ok := stanceGestures[stance]
	if !ok {
		return GestureNone
	}
	thr, ok := cal.threshold(g)
	if !ok {
		return GestureNone
	}
	if s.Jerk() > thr {
		return g
	}
	return GestureNone
}
