package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// CalibrationProfile holds the per-user thresholds recorded by `motionbrainz calibrate`.
// It is loaded once before the sample loop starts and is read-only afterwards.
type CalibrationProfile struct {
	PunchThreshold     float64 `yaml:"punch_threshold"`       // m/s² of jerk
	JumpThreshold      float64 `yaml:"jump_threshold"`        // m/s² of jerk
	WalkSwingAmplitude float64 `yaml:"walk_swing_amplitude"`  // m/s² on Z
	WalkGyroNoiseLimit float64 `yaml:"walk_gyro_noise_limit"` // rad/s
}

// Validate checks that every threshold is strictly positive.
func (p CalibrationProfile) Validate() error {
	switch {
	case !(p.PunchThreshold > 0):
		return errors.New("punch_threshold must be > 0")
	case !(p.JumpThreshold > 0):
		return errors.New("jump_threshold must be > 0")
	case !(p.WalkSwingAmplitude > 0):
		return errors.New("walk_swing_amplitude must be > 0")
	case !(p.WalkGyroNoiseLimit > 0):
		return errors.New("walk_gyro_noise_limit must be > 0")
	}
	return nil
}

// profileFile is the on-disk form of a recorded profile.
type profileFile struct {
	RecordedAt time.Time          `yaml:"recorded_at,omitempty"`
	Session    string             `yaml:"session,omitempty"`
	Profile    CalibrationProfile `yaml:"profile"`
}

// LoadCalibrationProfile reads a profile written by SaveCalibrationProfile.
func LoadCalibrationProfile(path string) (CalibrationProfile, error) {
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return CalibrationProfile{}, fmt.Errorf("read profile: %w", err)
	}

	var pf profileFile
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&pf); err != nil {
		return CalibrationProfile{}, fmt.Errorf("decode profile yaml: %w", err)
	}
	if err := pf.Profile.Validate(); err != nil {
		return CalibrationProfile{}, fmt.Errorf("profile %s: %w", path, err)
	}
	return pf.Profile, nil
}

// SaveCalibrationProfile writes p to path, creating parent directories as needed.
func SaveCalibrationProfile(path string, p CalibrationProfile, session string, at time.Time) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("refusing to save profile: %w", err)
	}
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create profile dir: %w", err)
	}

	b, err := yaml.Marshal(profileFile{RecordedAt: at.UTC(), Session: session, Profile: p})
	if err != nil {
		return fmt.Errorf("encode profile yaml: %w", err)
	}
	if err := os.WriteFile(path, b, 0o644); err != nil {
		return fmt.Errorf("write profile: %w", err)
	}
	return nil
}
