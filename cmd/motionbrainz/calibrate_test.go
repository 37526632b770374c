package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"math"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestComputeCalibration(t *testing.T) {
	// Punch: upright phone, jerks 2..8 plus noise on other axes that fails the Y gate.
	var punch []SensorSample
	for _, j := range []float64{2, 3, 4, 5, 6, 7, 8} {
		punch = append(punch, SensorSample{Y: standardGravity + j})
	}
	punch = append(punch, SensorSample{X: 40}) // |Y| below gate, ignored

	// Jump: sideways phone, only three qualifying peaks.
	jump := []SensorSample{
		{X: standardGravity + 10},
		{X: standardGravity + 5},
		{X: -(standardGravity + 3)},
		{X: 9.5},      // negative jerk, ignored
		{Y: 30, X: 1}, // fails the X gate
	}

	walk := []SensorSample{
		{X: 9.5, Z: -3, GyroY: 0.2},
		{X: 9.5, Z: 5, GyroY: -0.4},
		{X: 9.5, Z: 1, GyroY: 0.0},
	}

	p, err := ComputeCalibration(punch, jump, walk)
	if err != nil {
		t.Fatalf("compute: %v", err)
	}

	// Top 5 punch jerks are 8,7,6,5,4 -> mean 6 * 0.8.
	if math.Abs(p.PunchThreshold-4.8) > 1e-9 {
		t.Fatalf("expected punch threshold 4.8, got %v", p.PunchThreshold)
	}
	// Jump peaks 10,5,3 -> mean 6 * 0.8.
	if math.Abs(p.JumpThreshold-4.8) > 1e-9 {
		t.Fatalf("expected jump threshold 4.8, got %v", p.JumpThreshold)
	}
	if math.Abs(p.WalkSwingAmplitude-4) > 1e-9 {
		t.Fatalf("expected walk amplitude 4, got %v", p.WalkSwingAmplitude)
	}
	if math.Abs(p.WalkGyroNoiseLimit-0.3) > 1e-9 {
		t.Fatalf("expected gyro noise 0.3, got %v", p.WalkGyroNoiseLimit)
	}
}

func TestComputeCalibration_EmptyRecordings(t *testing.T) {
	okPunch := []SensorSample{{Y: 20}}
	okJump := []SensorSample{{X: 20}}
	okWalk := []SensorSample{{Z: -3, GyroY: 0.1}, {Z: 3, GyroY: 0.1}}

	if _, err := ComputeCalibration(nil, okJump, okWalk); !errors.Is(err, errNoQualifyingSamples) {
		t.Fatalf("expected errNoQualifyingSamples for punch, got %v", err)
	}
	if _, err := ComputeCalibration(okPunch, []SensorSample{{X: 9.5}}, okWalk); !errors.Is(err, errNoQualifyingSamples) {
		t.Fatalf("expected errNoQualifyingSamples for jump, got %v", err)
	}
	if _, err := ComputeCalibration(okPunch, okJump, nil); !errors.Is(err, errNoQualifyingSamples) {
		t.Fatalf("expected errNoQualifyingSamples for walk, got %v", err)
	}

	// A still walk recording gives a zero amplitude, which is not a usable profile.
	if _, err := ComputeCalibration(okPunch, okJump, []SensorSample{{Z: 1, GyroY: 0.1}}); err == nil {
		t.Fatalf("expected error for motionless walk recording")
	}
}

func TestRunCalibration_RecordsOverUDPAndSaves(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Reserve a free UDP port.
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	addr := pc.LocalAddr().String()
	pc.Close()

	frames := map[int]string{
		0: "SENSOR:0,25,0,0",
		1: "SENSOR:25,0,0,0",
		2: "SENSOR:9.5,0,-3,0.2\nSENSOR:9.5,0,3,-0.2",
	}

	// Stream the phase's frames until the recording window closes.
	stdin := &phaseReader{onLine: func(phase int) {
		go func() {
			conn, err := net.Dial("udp", addr)
			if err != nil {
				return
			}
			defer conn.Close()
			deadline := time.Now().Add(250 * time.Millisecond)
			for time.Now().Before(deadline) {
				_, _ = conn.Write([]byte(frames[phase]))
				time.Sleep(20 * time.Millisecond)
			}
		}()
	}}

	var out bytes.Buffer
	path := filepath.Join(t.TempDir(), "profile.yaml")
	tcfg := TransportConfig{Kind: "udp", UDPAddr: addr}

	p, err := runCalibration(ctx, stdin, &out, tcfg, 300*time.Millisecond, path, slog.Default())
	if err != nil {
		t.Fatalf("calibration: %v (output %q)", err, out.String())
	}
	if !strings.Contains(out.String(), "[walk]") {
		t.Fatalf("expected walk prompt in output, got %q", out.String())
	}

	loaded, err := LoadCalibrationProfile(path)
	if err != nil {
		t.Fatalf("load saved profile: %v", err)
	}
	if loaded != p {
		t.Fatalf("expected saved profile %+v, got %+v", p, loaded)
	}
	if math.Abs(p.WalkSwingAmplitude-3) > 1e-9 {
		t.Fatalf("expected walk amplitude 3, got %v", p.WalkSwingAmplitude)
	}
}

// phaseReader answers each prompt with a newline and notifies which phase is starting.
type phaseReader struct {
	phase  int
	onLine func(phase int)
}

func (r *phaseReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	r.onLine(r.phase)
	r.phase++
	p[0] = '\n'
	return 1, nil
}
