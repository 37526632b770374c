package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"
)

// ============================================================================
// motion-ctl - Command-line IPC Client
// ============================================================================
// This tool sends control events to the motionbrainz daemon via IPC.
//
// Usage:
//   motion-ctl pause
//   motion-ctl resume
//   motion-ctl release
//   motion-ctl recenter
//   motion-ctl sample 0.1 9.6 -0.2 0.05
//   motion-ctl status
//
// Options:
//   -socket PATH    Unix domain socket path (default: /tmp/motionbrainz.sock)
// ============================================================================

// Event types (duplicated from main package for standalone binary)
type Event interface{}

type Pause struct{}

type Resume struct{}

type ReleaseAll struct{}

type Recenter struct{}

type Sample struct {
	X     float64   `json:"x"`
	Y     float64   `json:"y"`
	Z     float64   `json:"z"`
	GyroY float64   `json:"gyro_y"`
	At    time.Time `json:"at"`
}

type GetState struct{}

// EventEnvelope wraps events for JSON
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// IPCResponse represents the daemon's response
type IPCResponse struct {
	Status string          `json:"status"`
	Error  string          `json:"error,omitempty"`
	State  json.RawMessage `json:"state,omitempty"`
}

// stateView is the subset of the daemon snapshot printed by "status".
type stateView struct {
	SessionID    string    `json:"session_id"`
	Stance       string    `json:"stance"`
	Facing       string    `json:"facing"`
	HeadingDeg   float64   `json:"heading_deg"`
	BaselineSet  bool      `json:"baseline_set"`
	WalkKey      string    `json:"walk_key"`
	JumpPhase    string    `json:"jump_phase"`
	JumpHeld     bool      `json:"jump_held"`
	Paused       bool      `json:"paused"`
	Samples      uint64    `json:"samples"`
	Flips        uint64    `json:"flips"`
	Punches      uint64    `json:"punches"`
	Jumps        uint64    `json:"jumps"`
	Suppressed   uint64    `json:"suppressed"`
	SinkFailures uint64    `json:"sink_failures"`
	LastSampleAt time.Time `json:"last_sample_at"`
}

func main() {
	socketPath := "/tmp/motionbrainz.sock"

	// Parse arguments
	args := os.Args[1:]
	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Check for -socket flag
	if args[0] == "-socket" || args[0] == "--socket" {
		if len(args) < 2 {
			fmt.Fprintf(os.Stderr, "error: -socket requires an argument\n")
			os.Exit(1)
		}
		socketPath = args[1]
		args = args[2:]
	}

	if len(args) == 0 {
		printUsage()
		os.Exit(1)
	}

	// Parse command
	var event Event

	switch args[0] {
	case "pause":
		event = Pause{}

	case "resume":
		event = Resume{}

	case "release", "release-all":
		event = ReleaseAll{}

	case "recenter":
		event = Recenter{}

	case "sample":
		if len(args) < 5 {
			fmt.Fprintf(os.Stderr, "error: sample requires x y z gyro_y\n")
			os.Exit(1)
		}
		s, err := parseSample(args[1:5])
		if err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		event = s

	case "status", "state":
		event = GetState{}

	case "help", "-h", "--help":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "error: unknown command: %s\n", args[0])
		printUsage()
		os.Exit(1)
	}

	resp, err := sendEvent(socketPath, event)
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	if _, ok := event.(GetState); ok {
		if err := printState(resp.State); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		return
	}

	fmt.Println("ok")
}

func parseSample(fields []string) (Sample, error) {
	var v [4]float64
	for i, f := range fields {
		n, err := strconv.ParseFloat(f, 64)
		if err != nil {
			return Sample{}, fmt.Errorf("invalid sample value %q: %w", f, err)
		}
		v[i] = n
	}
	return Sample{X: v[0], Y: v[1], Z: v[2], GyroY: v[3], At: time.Now()}, nil
}

func sendEvent(socketPath string, event Event) (IPCResponse, error) {
	// Connect to socket
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	data, err := marshalEvent(event)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("marshal event: %w", err)
	}

	// Send event (line-delimited JSON)
	if _, err := fmt.Fprintf(conn, "%s\n", data); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var response IPCResponse
	decoder := json.NewDecoder(conn)
	if err := decoder.Decode(&response); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}

	if response.Status == "error" {
		return response, fmt.Errorf("daemon error: %s", response.Error)
	}

	return response, nil
}

func marshalEvent(event Event) ([]byte, error) {
	var env EventEnvelope

	switch e := event.(type) {
	case Pause:
		env.Type = "pause"

	case Resume:
		env.Type = "resume"

	case ReleaseAll:
		env.Type = "release_all"

	case Recenter:
		env.Type = "recenter"

	case Sample:
		env.Type = "sample"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal Sample: %w", err)
		}
		env.Data = data

	case GetState:
		env.Type = "get_state"

	default:
		return nil, fmt.Errorf("unknown event type: %T", event)
	}

	return json.Marshal(env)
}

func printState(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("daemon returned no state")
	}
	var st stateView
	if err := json.Unmarshal(raw, &st); err != nil {
		return fmt.Errorf("decode state: %w", err)
	}

	walk := st.WalkKey
	if walk == "" {
		walk = "-"
	}

	fmt.Printf("session:       %s\n", st.SessionID)
	fmt.Printf("stance:        %s\n", st.Stance)
	fmt.Printf("facing:        %s (heading %.0f°, baseline %t)\n", st.Facing, st.HeadingDeg, st.BaselineSet)
	fmt.Printf("walk key:      %s\n", walk)
	fmt.Printf("jump:          %s (held %t)\n", st.JumpPhase, st.JumpHeld)
	fmt.Printf("paused:        %t\n", st.Paused)
	fmt.Printf("samples:       %d\n", st.Samples)
	fmt.Printf("flips/punches/jumps: %d/%d/%d\n", st.Flips, st.Punches, st.Jumps)
	fmt.Printf("suppressed:    %d\n", st.Suppressed)
	fmt.Printf("sink failures: %d\n", st.SinkFailures)
	if !st.LastSampleAt.IsZero() {
		fmt.Printf("last sample:   %s\n", st.LastSampleAt.Format(time.RFC3339Nano))
	}
	return nil
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `motion-ctl - Control the motionbrainz daemon via IPC

Usage:
  motion-ctl [options] <command> [args]

Options:
  -socket PATH    Unix domain socket path (default: /tmp/motionbrainz.sock)

Commands:
  pause                     Stop emitting keys and release anything held
  resume                    Resume key output
  release, release-all      Release every held key
  recenter                  Re-capture the gyro baseline from the next sample
  sample <x> <y> <z> <gy>   Inject one sensor sample (m/s², rad/s)
  status, state             Print the daemon state snapshot
  help, -h, --help          Show this help message

Examples:
  motion-ctl pause
  motion-ctl sample 9.6 0.1 4.2 0.0
  motion-ctl -socket /run/motionbrainz.sock status
`)
}
