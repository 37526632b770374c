package main

import "math"

// Stance is the posture the device is held in, derived from which axis carries gravity.
type Stance int

const (
	StanceIdle Stance = iota
	StanceWalking
	StanceCombat
)

func (s Stance) String() string {
	switch s {
	case StanceIdle:
		return "idle"
	case StanceWalking:
		return "walking"
	case StanceCombat:
		return "combat"
	default:
		return "unknown"
	}
}

// ClassifyRaw maps a single sample to a candidate stance.
//
// Held upright (gravity on Y) is combat, held flat on its side (gravity on X) is walking,
// anything in between is idle. Y is checked first so a reading with both axes above the
// threshold resolves to combat.
func ClassifyRaw(s SensorSample, gravityThreshold float64) Stance {
	switch {
	case math.Abs(s.Y) > gravityThreshold:
		return StanceCombat
	case math.Abs(s.X) > gravityThreshold:
		return StanceWalking
	default:
		return StanceIdle
	}
}

// StanceBuffer holds the most recent raw classifications, oldest first.
//
// It is a value type backed by a fixed array so ControllerState stays copyable
// without aliasing.
type StanceBuffer struct {
	votes [maxStanceWindow]Stance
	n     int
}

// Push appends a raw classification, dropping the oldest once window entries are held.
func (b *StanceBuffer) Push(s Stance, window int) {
	window = clampWindow(window)
	for b.n >= window {
		copy(b.votes[:], b.votes[1:b.n])
		b.n--
	}
	b.votes[b.n] = s
	b.n++
}

// Len returns the number of buffered classifications.
func (b *StanceBuffer) Len() int { return b.n }

// Votes returns a copy of the buffered classifications, oldest first.
func (b *StanceBuffer) Votes() []Stance {
	out := make([]Stance, b.n)
	copy(out, b.votes[:b.n])
	return out
}

// Consensus returns the stance holding at least majority votes, if any.
// An empty buffer never has a consensus.
func (b *StanceBuffer) Consensus(majority int) (Stance, bool) {
	if b.n == 0 {
		return StanceIdle, false
	}
	var counts [3]int
	for _, v := range b.votes[:b.n] {
		if v >= 0 && int(v) < len(counts) {
			counts[v]++
		}
	}
	for st, c := range counts {
		if c >= majority {
			return Stance(st), true
		}
	}
	return StanceIdle, false
}

func clampWindow(window int) int {
	if window <= 0 {
		return defaultStanceWindow
	}
	if window > maxStanceWindow {
		return maxStanceWindow
	}
	return window
}

// StepStance pushes the raw classification of s and returns the stable stance.
// Without a majority the current stance is kept.
func StepStance(current Stance, buf StanceBuffer, s SensorSample, cfg MotionConfig) (Stance, StanceBuffer) {
	buf.Push(ClassifyRaw(s, cfg.GravityThreshold), cfg.StanceWindow)
	if st, ok := buf.Consensus(cfg.StanceMajority); ok {
		return st, buf
	}
	return current, buf
}
