package main

import "time"

// Cooldown debounces one class of edge-triggered action.
type Cooldown struct {
	LastFiredAt time.Time
	Duration    time.Duration
}

// Ready reports whether the action may fire at now. A cooldown that never fired is ready.
func (c Cooldown) Ready(now time.Time) bool {
	if c.LastFiredAt.IsZero() {
		return true
	}
	return now.Sub(c.LastFiredAt) >= c.Duration
}

// Fire records now as the last firing instant.
func (c *Cooldown) Fire(now time.Time) {
	c.LastFiredAt = now
}

// Cooldowns groups the per-class cooldowns. Jump start and jump end are
// separate classes, each debounced against its own last firing.
type Cooldowns struct {
	Punch     Cooldown
	Turn      Cooldown
	JumpStart Cooldown
	JumpEnd   Cooldown
}

func newCooldowns(cfg MotionConfig) Cooldowns {
	return Cooldowns{
		Punch:     Cooldown{Duration: cfg.PunchCooldown},
		Turn:      Cooldown{Duration: cfg.TurnCooldown},
		JumpStart: Cooldown{Duration: cfg.JumpCooldown},
		JumpEnd:   Cooldown{Duration: cfg.JumpCooldown},
	}
}
