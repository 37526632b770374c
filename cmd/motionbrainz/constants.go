package main

// Linux input event types and codes (from <linux/input.h>)
const (
	EV_SYN = 0x00
	EV_KEY = 0x01

	SYN_REPORT = 0
)

// Input event value constants
const (
	evValueRelease = 0
	evValuePress   = 1
)

// Physical constants
const (
	standardGravity = 9.81 // m/s²
)

// Classifier and gesture defaults
const (
	defaultGravityThreshold = 8.5 // m/s², a single axis carrying (almost) all of gravity

	// Majority-vote stance smoothing: a stance must win defaultStanceMajority of the
	// last defaultStanceWindow raw classifications to become the stable stance.
	defaultStanceWindow   = 5
	defaultStanceMajority = 4
	maxStanceWindow       = 16

	// Jump state machine
	defaultLandingFactor        = 0.7  // landing jerk must exceed JumpThreshold*factor
	defaultAirborneMargin       = 2.2  // magnitude below g+margin reads as free fall
	defaultHardLandingMagnitude = 15.0 // m/s², landing regardless of jerk
	defaultMaxAirborneMS        = 1500 // force-release a jump whose landing was missed

	// Edge-triggered action cooldowns
	defaultPunchCooldownMS = 300
	defaultTurnCooldownMS  = 800
	defaultJumpCooldownMS  = 400
)

// Calibration defaults (used until a profile is recorded)
const (
	defaultPunchThreshold     = 12.0
	defaultJumpThreshold      = 8.0
	defaultWalkSwingAmplitude = 3.0
	defaultWalkGyroNoiseLimit = 0.35
)

// Calibration recording
const (
	calibrationPeakCount   = 5
	calibrationPeakScale   = 0.8
	calibrationAxisGate    = 9.0 // m/s² on the stance axis while recording punch/jump
	calibrationNoiseScale  = 1.5
	defaultCalibrateSecs   = 10
	defaultCalibrationFile = "~/.config/motionbrainz/profile.yaml"
)

// Transport defaults
const (
	defaultUDPAddr    = ":12345"
	defaultSerialBaud = 115200
	defaultQueueSize  = 64
	maxDatagramSize   = 1024
)
