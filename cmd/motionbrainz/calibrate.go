package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"os/signal"
	"slices"
	"syscall"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ============================================================================
// Calibration
// ============================================================================
// The calibrate subcommand records three short sessions over the configured
// sensor transport (punching, jumping, walking in place) and derives a
// CalibrationProfile from them:
//
//   punch threshold = mean(top 5 positive jerks with |Y| > 9) * 0.8
//   jump threshold  = mean(top 5 positive jerks with |X| > 9) * 0.8
//   walk amplitude  = (max Z - min Z) / 2
//   gyro noise      = mean(|GyroY|) * 1.5
// ============================================================================

var errNoQualifyingSamples = errors.New("no qualifying samples")

// ComputeCalibration derives a profile from the three recorded sessions.
func ComputeCalibration(punch, jump, walk []SensorSample) (CalibrationProfile, error) {
	punchThr, err := peakJerkThreshold(punch, func(s SensorSample) float64 { return s.Y })
	if err != nil {
		return CalibrationProfile{}, fmt.Errorf("punch recording: %w", err)
	}
	jumpThr, err := peakJerkThreshold(jump, func(s SensorSample) float64 { return s.X })
	if err != nil {
		return CalibrationProfile{}, fmt.Errorf("jump recording: %w", err)
	}
	if len(walk) == 0 {
		return CalibrationProfile{}, fmt.Errorf("walk recording: %w", errNoQualifyingSamples)
	}

	zs := make([]float64, len(walk))
	gyro := make([]float64, len(walk))
	for i, s := range walk {
		zs[i] = s.Z
		gyro[i] = math.Abs(s.GyroY)
	}

	p := CalibrationProfile{
		PunchThreshold:     punchThr,
		JumpThreshold:      jumpThr,
		WalkSwingAmplitude: (floats.Max(zs) - floats.Min(zs)) / 2,
		WalkGyroNoiseLimit: stat.Mean(gyro, nil) * calibrationNoiseScale,
	}
	if err := p.Validate(); err != nil {
		return CalibrationProfile{}, fmt.Errorf("derived profile: %w", err)
	}
	return p, nil
}

// peakJerkThreshold averages the strongest positive jerks among samples whose
// stance axis exceeds the gate, then scales the mean down.
func peakJerkThreshold(samples []SensorSample, axis func(SensorSample) float64) (float64, error) {
	var jerks []float64
	for _, s := range samples {
		if math.Abs(axis(s)) <= calibrationAxisGate {
			continue
		}
		if j := s.Jerk(); j > 0 {
			jerks = append(jerks, j)
		}
	}
	if len(jerks) == 0 {
		return 0, errNoQualifyingSamples
	}

	slices.Sort(jerks)
	slices.Reverse(jerks)
	top := jerks[:min(calibrationPeakCount, len(jerks))]
	return stat.Mean(top, nil) * calibrationPeakScale, nil
}

// recordSamples collects samples from the transport for d.
func recordSamples(ctx context.Context, cfg TransportConfig, d time.Duration, logger *slog.Logger) ([]SensorSample, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	events := make(chan Event, 256)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return runTransport(gctx, cfg, events, logger)
	})

	var out []SensorSample
collect:
	for {
		select {
		case <-gctx.Done():
			break collect
		case ev := <-events:
			if s, ok := ev.(SampleReceived); ok {
				out = append(out, s.Sample)
			}
		}
	}
	cancel()
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

type calibrationPhase struct {
	name   string
	prompt string
}

var calibrationPhases = []calibrationPhase{
	{name: "punch", prompt: "Hold the phone upright (combat stance) and throw punches."},
	{name: "jump", prompt: "Hold the phone sideways (walking stance) and jump repeatedly."},
	{name: "walk", prompt: "Hold the phone sideways and walk in place while facing one way."},
}

// runCalibration walks the user through each phase and saves the derived profile.
func runCalibration(ctx context.Context, in io.Reader, out io.Writer, cfg TransportConfig, d time.Duration, path string, logger *slog.Logger) (CalibrationProfile, error) {
	reader := bufio.NewReader(in)
	recorded := make(map[string][]SensorSample, len(calibrationPhases))

	for _, ph := range calibrationPhases {
		fmt.Fprintf(out, "\n[%s] %s\nPress Enter to start a %s recording...", ph.name, ph.prompt, d)
		if _, err := reader.ReadString('\n'); err != nil {
			return CalibrationProfile{}, fmt.Errorf("read prompt: %w", err)
		}
		samples, err := recordSamples(ctx, cfg, d, logger)
		if err != nil {
			return CalibrationProfile{}, fmt.Errorf("record %s: %w", ph.name, err)
		}
		if ctx.Err() != nil {
			return CalibrationProfile{}, ctx.Err()
		}
		fmt.Fprintf(out, "recorded %d samples\n", len(samples))
		recorded[ph.name] = samples
	}

	p, err := ComputeCalibration(recorded["punch"], recorded["jump"], recorded["walk"])
	if err != nil {
		return CalibrationProfile{}, err
	}
	if err := SaveCalibrationProfile(path, p, uuid.NewString(), time.Now()); err != nil {
		return CalibrationProfile{}, err
	}
	return p, nil
}

func printCalibrateUsage() {
	fmt.Printf("motionbrainz calibrate v%s\n", version)
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  motionbrainz calibrate [OPTIONS]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Records punch, jump and walk sessions from the phone and writes a")
	fmt.Println("  calibration profile the daemon loads on startup.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string        Path to YAML config (transport settings are read from it)")
	fmt.Println("  -out string           Profile output path (default: calibration.profile_file)")
	fmt.Printf("  -seconds int          Recording length per phase (default %d)\n", defaultCalibrateSecs)
	fmt.Println("  -transport string     Override transport.kind (udp|serial)")
	fmt.Println("  -udp-addr string      Override transport.udp_addr")
	fmt.Println("  -serial-port string   Override transport.serial_port")
	fmt.Println("  -log-level string     Log level: error, warn, info, debug (default \"warn\")")
	fmt.Println()
}

// runCalibrateSubcommand handles "motionbrainz calibrate".
func runCalibrateSubcommand(args []string) {
	fs := flag.NewFlagSet("calibrate", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to YAML config file")
	outPath := fs.String("out", "", "Profile output path")
	seconds := fs.Int("seconds", defaultCalibrateSecs, "Recording length per phase in seconds")
	transportKind := fs.String("transport", "", "Override transport.kind")
	udpAddr := fs.String("udp-addr", "", "Override transport.udp_addr")
	serialPort := fs.String("serial-port", "", "Override transport.serial_port")
	logLevelStr := fs.String("log-level", "warn", "Log level: error, warn, info, debug")
	fs.Usage = printCalibrateUsage
	_ = fs.Parse(args)

	level, err := parseLogLevel(*logLevelStr)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(level, os.Stderr)

	cfg := DefaultConfig()
	if *configPath != "" {
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}
	var ov FlagOverrides
	if *transportKind != "" {
		ov.TransportKind = transportKind
	}
	if *udpAddr != "" {
		ov.UDPAddr = udpAddr
	}
	if *serialPort != "" {
		ov.SerialPort = serialPort
	}
	ov.Apply(&cfg)

	if *seconds <= 0 {
		fmt.Fprintln(os.Stderr, "error: -seconds must be > 0")
		os.Exit(1)
	}
	path := *outPath
	if path == "" {
		path = cfg.Calibration.ProfileFile
	}
	if path == "" {
		path = defaultCalibrationFile
	}
	path = ExpandPath(path)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := runCalibration(ctx, os.Stdin, os.Stdout, cfg.Transport, time.Duration(*seconds)*time.Second, path, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Println()
	fmt.Println("calibration saved to", path)
	fmt.Printf("  punch_threshold:       %.3f\n", p.PunchThreshold)
	fmt.Printf("  jump_threshold:        %.3f\n", p.JumpThreshold)
	fmt.Printf("  walk_swing_amplitude:  %.3f\n", p.WalkSwingAmplitude)
	fmt.Printf("  walk_gyro_noise_limit: %.3f\n", p.WalkGyroNoiseLimit)
}
