package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level YAML configuration for the motionbrainz daemon.
//
// Keep defaults and validation centralized so the rest of the code can assume a
// well-formed config. The config file is the primary configuration surface; flags
// exist for small overrides.
type Config struct {
	// Calibration thresholds (or a recorded profile file)
	Calibration CalibrationConfig `yaml:"calibration"`

	// Classifier and jump state machine tuning
	Tuning TuningConfig `yaml:"tuning"`

	// Edge-triggered action cooldowns
	Cooldowns CooldownConfig `yaml:"cooldowns"`

	// Logical key -> Linux key name bindings
	Keys KeysConfig `yaml:"keys"`

	// Sensor transport
	Transport TransportConfig `yaml:"transport"`

	// Key output sinks
	Output OutputConfig `yaml:"output"`

	// MQTT sink
	MQTT MQTTConfig `yaml:"mqtt"`

	// IPC control socket
	IPC IPCConfig `yaml:"ipc"`

	// HTTP server (state stream + health)
	HTTP HTTPConfig `yaml:"http"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type CalibrationConfig struct {
	// ProfileFile, if set and present, overrides the inline thresholds below.
	ProfileFile string `yaml:"profile_file,omitempty"`

	PunchThreshold     float64 `yaml:"punch_threshold"`
	JumpThreshold      float64 `yaml:"jump_threshold"`
	WalkSwingAmplitude float64 `yaml:"walk_swing_amplitude"`
	WalkGyroNoiseLimit float64 `yaml:"walk_gyro_noise_limit"`
}

type TuningConfig struct {
	GravityThreshold float64 `yaml:"gravity_threshold"`
	StanceWindow     int     `yaml:"stance_window"`
	StanceMajority   int     `yaml:"stance_majority"`

	LandingFactor        float64 `yaml:"landing_factor"`
	AirborneMargin       float64 `yaml:"airborne_margin"`
	HardLandingMagnitude float64 `yaml:"hard_landing_magnitude"`
	MaxAirborneMS        int     `yaml:"max_airborne_ms"` // 0 disables

	// MaxDtMS caps a single gyro integration step (0 disables).
	MaxDtMS int `yaml:"max_dt_ms"`
}

type CooldownConfig struct {
	PunchMS int `yaml:"punch_ms"`
	TurnMS  int `yaml:"turn_ms"`
	JumpMS  int `yaml:"jump_ms"`
}

type KeysConfig struct {
	Left   string `yaml:"left"`
	Right  string `yaml:"right"`
	Attack string `yaml:"attack"`
	Jump   string `yaml:"jump"`

	// Turn is an optional dedicated key tapped on a facing flip.
	// When empty the new facing's walk key is tapped instead.
	Turn string `yaml:"turn,omitempty"`
}

type TransportConfig struct {
	Kind       string `yaml:"kind"` // "udp" or "serial"
	UDPAddr    string `yaml:"udp_addr"`
	SerialPort string `yaml:"serial_port,omitempty"`
	SerialBaud int    `yaml:"serial_baud"`
	QueueSize  int    `yaml:"queue_size"`
}

type OutputConfig struct {
	Sinks      []string `yaml:"sinks"` // any of "uinput", "mqtt", "log"
	DeviceName string   `yaml:"device_name"`
}

type MQTTConfig struct {
	Broker      string `yaml:"broker"`
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults.
func DefaultConfig() Config {
	return Config{
		Calibration: CalibrationConfig{
			PunchThreshold:     defaultPunchThreshold,
			JumpThreshold:      defaultJumpThreshold,
			WalkSwingAmplitude: defaultWalkSwingAmplitude,
			WalkGyroNoiseLimit: defaultWalkGyroNoiseLimit,
		},
		Tuning: TuningConfig{
			GravityThreshold:     defaultGravityThreshold,
			StanceWindow:         defaultStanceWindow,
			StanceMajority:       defaultStanceMajority,
			LandingFactor:        defaultLandingFactor,
			AirborneMargin:       defaultAirborneMargin,
			HardLandingMagnitude: defaultHardLandingMagnitude,
			MaxAirborneMS:        defaultMaxAirborneMS,
			MaxDtMS:              0,
		},
		Cooldowns: CooldownConfig{
			PunchMS: defaultPunchCooldownMS,
			TurnMS:  defaultTurnCooldownMS,
			JumpMS:  defaultJumpCooldownMS,
		},
		Keys: KeysConfig{
			Left:   "KEY_LEFT",
			Right:  "KEY_RIGHT",
			Attack: "KEY_X",
			Jump:   "KEY_Z",
		},
		Transport: TransportConfig{
			Kind:       "udp",
			UDPAddr:    defaultUDPAddr,
			SerialBaud: defaultSerialBaud,
			QueueSize:  defaultQueueSize,
		},
		Output: OutputConfig{
			Sinks:      []string{"uinput"},
			DeviceName: "motionbrainz virtual keyboard",
		},
		MQTT: MQTTConfig{
			Broker:      "tcp://127.0.0.1:1883",
			ClientID:    "motionbrainz",
			TopicPrefix: "motionbrainz",
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/motionbrainz.sock",
		},
		HTTP: HTTPConfig{
			Addr: ":3002",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file on top of DefaultConfig().
//
// Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// Flags pass pointers; an override is applied only when its pointer is non-nil.
// main.go decides which flags exist.
type FlagOverrides struct {
	ProfileFile *string

	TransportKind *string
	UDPAddr       *string
	SerialPort    *string
	SerialBaud    *int

	Sinks      *string // comma separated
	DeviceName *string
	MQTTBroker *string

	IPCSocketPath *string
	HTTPAddr      *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is ignored.
// If the pointer is non-nil, the value is applied (even if it is a “zero value”).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}
	if o.ProfileFile != nil {
		cfg.Calibration.ProfileFile = *o.ProfileFile
	}

	if o.TransportKind != nil {
		cfg.Transport.Kind = *o.TransportKind
	}
	if o.UDPAddr != nil {
		cfg.Transport.UDPAddr = *o.UDPAddr
	}
	if o.SerialPort != nil {
		cfg.Transport.SerialPort = *o.SerialPort
	}
	if o.SerialBaud != nil {
		cfg.Transport.SerialBaud = *o.SerialBaud
	}

	if o.Sinks != nil {
		cfg.Output.Sinks = splitList(*o.Sinks)
	}
	if o.DeviceName != nil {
		cfg.Output.DeviceName = *o.DeviceName
	}
	if o.MQTTBroker != nil {
		cfg.MQTT.Broker = *o.MQTTBroker
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}
	if o.HTTPAddr != nil {
		cfg.HTTP.Addr = *o.HTTPAddr
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ApplyProfile replaces the inline calibration thresholds with a recorded profile.
func (c *Config) ApplyProfile(p CalibrationProfile) {
	c.Calibration.PunchThreshold = p.PunchThreshold
	c.Calibration.JumpThreshold = p.JumpThreshold
	c.Calibration.WalkSwingAmplitude = p.WalkSwingAmplitude
	c.Calibration.WalkGyroNoiseLimit = p.WalkGyroNoiseLimit
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides + profile are applied.
func (c *Config) Validate() error {
	// Calibration
	if err := c.profile().Validate(); err != nil {
		return fmt.Errorf("calibration: %w", err)
	}

	// Tuning
	if c.Tuning.GravityThreshold < 8.0 || c.Tuning.GravityThreshold > 9.0 {
		return errors.New("tuning.gravity_threshold must be between 8.0 and 9.0")
	}
	if c.Tuning.StanceWindow < 1 || c.Tuning.StanceWindow > maxStanceWindow {
		return fmt.Errorf("tuning.stance_window must be between 1 and %d", maxStanceWindow)
	}
	if c.Tuning.StanceMajority > c.Tuning.StanceWindow {
		return errors.New("tuning.stance_majority must be <= tuning.stance_window")
	}
	if c.Tuning.StanceMajority*2 <= c.Tuning.StanceWindow {
		return errors.New("tuning.stance_majority must be more than half of tuning.stance_window")
	}
	if c.Tuning.LandingFactor <= 0 {
		return errors.New("tuning.landing_factor must be > 0")
	}
	if c.Tuning.AirborneMargin <= 0 {
		return errors.New("tuning.airborne_margin must be > 0")
	}
	if c.Tuning.HardLandingMagnitude <= standardGravity {
		return fmt.Errorf("tuning.hard_landing_magnitude must be > %.2f", standardGravity)
	}
	if c.Tuning.MaxAirborneMS < 0 {
		return errors.New("tuning.max_airborne_ms must be >= 0")
	}
	if c.Tuning.MaxDtMS < 0 {
		return errors.New("tuning.max_dt_ms must be >= 0")
	}

	// Cooldowns
	if c.Cooldowns.PunchMS < 0 || c.Cooldowns.TurnMS < 0 || c.Cooldowns.JumpMS < 0 {
		return errors.New("cooldowns must be >= 0")
	}

	// Keys
	for logical, name := range c.Keys.bindings() {
		if _, ok := keyCodeByName(name); !ok {
			return fmt.Errorf("keys.%s: unknown key name %q", logical, name)
		}
	}

	// Transport
	switch c.Transport.Kind {
	case "udp":
		if c.Transport.UDPAddr == "" {
			return errors.New("transport.udp_addr must not be empty")
		}
	case "serial":
		if c.Transport.SerialPort == "" {
			return errors.New("transport.kind is serial but transport.serial_port is empty")
		}
		if c.Transport.SerialBaud <= 0 {
			return errors.New("transport.serial_baud must be > 0")
		}
	default:
		return fmt.Errorf("transport.kind must be %q or %q", "udp", "serial")
	}
	if c.Transport.QueueSize <= 0 {
		return errors.New("transport.queue_size must be > 0")
	}

	// Output
	if len(c.Output.Sinks) == 0 {
		return errors.New("output.sinks must not be empty")
	}
	for i, s := range c.Output.Sinks {
		switch s {
		case "uinput":
			if c.Output.DeviceName == "" {
				return errors.New("output.device_name must not be empty")
			}
		case "mqtt":
			if c.MQTT.Broker == "" {
				return errors.New("output.sinks includes mqtt but mqtt.broker is empty")
			}
			if c.MQTT.TopicPrefix == "" {
				return errors.New("mqtt.topic_prefix must not be empty")
			}
		case "log":
		default:
			return fmt.Errorf("output.sinks[%d]: unknown sink %q", i, s)
		}
	}

	// IPC / HTTP
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}
	if c.HTTP.Addr == "" {
		return errors.New("http.addr must not be empty")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}

	return nil
}

// bindings returns the configured Linux key name for each logical key.
func (k KeysConfig) bindings() map[Key]string {
	m := map[Key]string{
		KeyLeft:   k.Left,
		KeyRight:  k.Right,
		KeyAttack: k.Attack,
		KeyJump:   k.Jump,
	}
	if k.Turn != "" {
		m[KeyTurn] = k.Turn
	}
	return m
}

func (c *Config) profile() CalibrationProfile {
	return CalibrationProfile{
		PunchThreshold:     c.Calibration.PunchThreshold,
		JumpThreshold:      c.Calibration.JumpThreshold,
		WalkSwingAmplitude: c.Calibration.WalkSwingAmplitude,
		WalkGyroNoiseLimit: c.Calibration.WalkGyroNoiseLimit,
	}
}

// MotionConfig is the internal, validated configuration consumed by the reducer.
type MotionConfig struct {
	Calibration CalibrationProfile

	GravityThreshold float64
	StanceWindow     int
	StanceMajority   int

	LandingFactor        float64
	AirborneMargin       float64
	HardLandingMagnitude float64
	MaxAirborne          time.Duration
	MaxDt                time.Duration

	PunchCooldown time.Duration
	TurnCooldown  time.Duration
	JumpCooldown  time.Duration

	// TurnKey is tapped on a facing flip; empty means the new facing's walk key.
	TurnKey Key
}

// turnKey returns the key to tap when facing flips to f.
func (m MotionConfig) turnKey(f Facing) Key {
	if m.TurnKey != "" {
		return m.TurnKey
	}
	return f.Key()
}

// ToMotionConfig converts file config into the internal reducer config.
func (c *Config) ToMotionConfig() MotionConfig {
	mc := MotionConfig{
		Calibration: c.profile(),

		GravityThreshold: c.Tuning.GravityThreshold,
		StanceWindow:     c.Tuning.StanceWindow,
		StanceMajority:   c.Tuning.StanceMajority,

		LandingFactor:        c.Tuning.LandingFactor,
		AirborneMargin:       c.Tuning.AirborneMargin,
		HardLandingMagnitude: c.Tuning.HardLandingMagnitude,
		MaxAirborne:          time.Duration(c.Tuning.MaxAirborneMS) * time.Millisecond,
		MaxDt:                time.Duration(c.Tuning.MaxDtMS) * time.Millisecond,

		PunchCooldown: time.Duration(c.Cooldowns.PunchMS) * time.Millisecond,
		TurnCooldown:  time.Duration(c.Cooldowns.TurnMS) * time.Millisecond,
		JumpCooldown:  time.Duration(c.Cooldowns.JumpMS) * time.Millisecond,
	}
	if c.Keys.Turn != "" {
		mc.TurnKey = KeyTurn
	}
	return mc
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like calibration.profile_file.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}
