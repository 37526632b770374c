package main

import (
	"math"
	"time"
)

// SensorSample is one decoded reading from the motion sensor.
// X, Y, Z are gravity-inclusive accelerations in m/s², GyroY is angular velocity in rad/s
// about the device's Y axis, At is the arrival instant.
type SensorSample struct {
	X     float64
	Y     float64
	Z     float64
	GyroY float64
	At    time.Time
}

// Magnitude returns the Euclidean norm of the acceleration vector.
func (s SensorSample) Magnitude() float64 {
	return math.Sqrt(s.X*s.X + s.Y*s.Y + s.Z*s.Z)
}

// Jerk returns the deviation of the acceleration magnitude from resting gravity.
// Positive values are impulses (punches, take-offs, landings); negative values
// approach -g in free fall.
func (s SensorSample) Jerk() float64 {
	return s.Magnitude() - standardGravity
}

func (s SensorSample) finite() bool {
	for _, v := range [...]float64{s.X, s.Y, s.Z, s.GyroY} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}
