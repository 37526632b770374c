package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

const version = "0.3.0"

func printVersion() {
	fmt.Printf("motionbrainz v%s\n", version)
	fmt.Println("Phone motion sensor to game key bridge")
}

func printUsage() {
	printVersion()
	fmt.Println()
	fmt.Println("USAGE:")
	fmt.Println("  motionbrainz [OPTIONS]")
	fmt.Println("  motionbrainz calibrate [OPTIONS]")
	fmt.Println("  motionbrainz status [-socket PATH]")
	fmt.Println()
	fmt.Println("DESCRIPTION:")
	fmt.Println("  Receives accelerometer and gyro frames from a phone, classifies the")
	fmt.Println("  stance (idle, walking, combat), tracks heading, detects punches and")
	fmt.Println("  jumps, and turns them into key presses on a virtual keyboard.")
	fmt.Println()
	fmt.Println("OPTIONS:")
	fmt.Println("  -config string")
	fmt.Println("        Path to YAML config file (optional; defaults are used when omitted)")
	fmt.Println()
	fmt.Println("  -profile string")
	fmt.Printf("        Calibration profile file (default %q when present)\n", defaultCalibrationFile)
	fmt.Println()
	fmt.Println("  -transport string")
	fmt.Println("        Sensor transport: udp|serial (default \"udp\")")
	fmt.Println()
	fmt.Println("  -udp-addr string")
	fmt.Printf("        UDP listen address (default %q)\n", defaultUDPAddr)
	fmt.Println()
	fmt.Println("  -serial-port string")
	fmt.Println("        Serial device for the serial transport (e.g. /dev/ttyACM0)")
	fmt.Println()
	fmt.Println("  -serial-baud int")
	fmt.Printf("        Serial baud rate (default %d)\n", defaultSerialBaud)
	fmt.Println()
	fmt.Println("  -sinks string")
	fmt.Println("        Comma separated key sinks: uinput,mqtt,log (default \"uinput\")")
	fmt.Println()
	fmt.Println("  -device-name string")
	fmt.Println("        uinput virtual keyboard name")
	fmt.Println()
	fmt.Println("  -mqtt-broker string")
	fmt.Println("        MQTT broker URL for the mqtt sink (default \"tcp://127.0.0.1:1883\")")
	fmt.Println()
	fmt.Println("  -ipc-socket string")
	fmt.Println("        Unix domain socket path for IPC (default \"/tmp/motionbrainz.sock\")")
	fmt.Println()
	fmt.Println("  -http-addr string")
	fmt.Println("        HTTP listen address for /ws/state and /healthz (default \":3002\")")
	fmt.Println()
	fmt.Println("  -log-level string")
	fmt.Println("        Log level: error, warn, info, debug (default \"info\")")
	fmt.Println()
	fmt.Println("  -version")
	fmt.Println("        Print version and exit")
	fmt.Println()
	fmt.Println("  -help")
	fmt.Println("        Print this help message")
	fmt.Println()
	fmt.Println("SUBCOMMANDS:")
	fmt.Println("  calibrate")
	fmt.Println("        Record punch, jump and walk sessions and write a calibration profile")
	fmt.Println("  status")
	fmt.Println("        Print the state snapshot of a running daemon")
	fmt.Println()
	fmt.Println("EXAMPLES:")
	fmt.Println("  # Start with defaults (UDP :12345, uinput keyboard)")
	fmt.Println("  motionbrainz")
	fmt.Println()
	fmt.Println("  # Dry run: log key actions instead of injecting them")
	fmt.Println("  motionbrainz -sinks log -log-level debug")
	fmt.Println()
	fmt.Println("  # Read frames from a USB serial IMU and mirror keys to MQTT")
	fmt.Println("  motionbrainz -transport serial -serial-port /dev/ttyACM0 -sinks uinput,mqtt")
	fmt.Println()
	fmt.Println("NOTES:")
	fmt.Println("  - The uinput sink needs write access to /dev/uinput (root or the 'input' group)")
	fmt.Println("  - Held keys are released on shutdown and on pause")
	fmt.Println()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "calibrate":
			runCalibrateSubcommand(os.Args[2:])
			return
		case "status":
			runStatusSubcommand(os.Args[2:])
			return
		}
	}

	// Check for version/help early, before flag parsing errors can mask them.
	for _, arg := range os.Args[1:] {
		if arg == "-version" || arg == "--version" {
			printVersion()
			return
		}
		if arg == "-help" || arg == "--help" || arg == "-h" {
			printUsage()
			return
		}
	}

	var (
		configPath = flag.String("config", "", "Path to YAML config file")

		profileFile   = flag.String("profile", "", "Calibration profile file")
		transportKind = flag.String("transport", "", "Sensor transport: udp|serial")
		udpAddr       = flag.String("udp-addr", "", "UDP listen address")
		serialPort    = flag.String("serial-port", "", "Serial device for the serial transport")
		serialBaud    = flag.Int("serial-baud", 0, "Serial baud rate")
		sinks         = flag.String("sinks", "", "Comma separated key sinks: uinput,mqtt,log")
		deviceName    = flag.String("device-name", "", "uinput virtual keyboard name")
		mqttBroker    = flag.String("mqtt-broker", "", "MQTT broker URL")
		ipcSocketPath = flag.String("ipc-socket", "", "Unix domain socket path for IPC")
		httpAddr      = flag.String("http-addr", "", "HTTP listen address")
		logLevelStr   = flag.String("log-level", "", "Log level: error, warn, info, debug")

		showVersion = flag.Bool("version", false, "Print version and exit")
		showHelp    = flag.Bool("help", false, "Print help message")
	)

	flag.Usage = printUsage
	flag.Parse()

	if *showHelp {
		printUsage()
		return
	}
	if *showVersion {
		printVersion()
		return
	}

	cfg := DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = LoadConfigFile(*configPath)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
	}

	// Only flags that were explicitly set override the config file.
	set := make(map[string]bool)
	flag.Visit(func(f *flag.Flag) { set[f.Name] = true })

	var ov FlagOverrides
	if set["profile"] {
		ov.ProfileFile = profileFile
	}
	if set["transport"] {
		ov.TransportKind = transportKind
	}
	if set["udp-addr"] {
		ov.UDPAddr = udpAddr
	}
	if set["serial-port"] {
		ov.SerialPort = serialPort
	}
	if set["serial-baud"] {
		ov.SerialBaud = serialBaud
	}
	if set["sinks"] {
		ov.Sinks = sinks
	}
	if set["device-name"] {
		ov.DeviceName = deviceName
	}
	if set["mqtt-broker"] {
		ov.MQTTBroker = mqttBroker
	}
	if set["ipc-socket"] {
		ov.IPCSocketPath = ipcSocketPath
	}
	if set["http-addr"] {
		ov.HTTPAddr = httpAddr
	}
	if set["log-level"] {
		ov.LogLevel = logLevelStr
	}
	ov.Apply(&cfg)

	logLevel, err := parseLogLevel(cfg.Logging.Level)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	logger := setupLogger(logLevel, os.Stdout)

	if err := applyProfileFile(&cfg, logger); err != nil {
		logger.Error("failed to load calibration profile", "error", err)
		os.Exit(1)
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	sessionID := uuid.NewString()
	logger = logger.With("session", sessionID)

	sink, err := openSinks(cfg, sessionID, logger)
	if err != nil {
		logger.Error("failed to open key sinks", "error", err)
		os.Exit(1)
	}

	if err := runAndClose(cfg, sessionID, sink, logger); err != nil {
		logger.Error("motionbrainz stopped with error", "error", err)
		os.Exit(1)
	}
}

// runAndClose runs the daemon and closes the sink before returning, so the
// uinput device is destroyed and MQTT disconnects even when main exits non-zero.
func runAndClose(cfg Config, sessionID string, sink KeySink, logger *slog.Logger) error {
	err := run(cfg, sessionID, sink, logger)
	if cerr := sink.Close(); cerr != nil {
		logger.Warn("key sink close failed", "error", cerr)
	}
	return err
}

// run wires the daemon goroutines and blocks until shutdown or the first failure.
func run(cfg Config, sessionID string, sink KeySink, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	motion := cfg.ToMotionConfig()
	state := NewControllerState(sessionID, motion)

	events := make(chan Event, cfg.Transport.QueueSize)
	broadcasts := make(chan StateBroadcast, 256)

	stateServer := NewStateServer(logger, events, HubConfig{})
	mux := newHTTPMux(stateServer)

	logger.Debug("configuration",
		"transport", cfg.Transport.Kind,
		"udp_addr", cfg.Transport.UDPAddr,
		"serial_port", cfg.Transport.SerialPort,
		"sinks", strings.Join(cfg.Output.Sinks, ","),
		"ipc_socket", cfg.IPC.SocketPath,
		"http_addr", cfg.HTTP.Addr,
		"punch_threshold", motion.Calibration.PunchThreshold,
		"jump_threshold", motion.Calibration.JumpThreshold,
		"walk_swing_amplitude", motion.Calibration.WalkSwingAmplitude,
		"walk_gyro_noise_limit", motion.Calibration.WalkGyroNoiseLimit,
		"stance_window", motion.StanceWindow,
		"stance_majority", motion.StanceMajority)
	logger.Info("starting motionbrainz", "version", version)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		runDaemon(gctx, events, sink, motion, state, broadcasts, logger)
		return nil
	})
	g.Go(func() error {
		return runTransport(gctx, cfg.Transport, events, logger)
	})
	g.Go(func() error {
		return runIPCServer(gctx, cfg.IPC.SocketPath, events, logger)
	})
	g.Go(func() error {
		return runHTTPServer(gctx, cfg.HTTP.Addr, mux, logger)
	})
	g.Go(func() error {
		stateServer.Hub().Run(gctx)
		return nil
	})
	g.Go(func() error {
		RunBroadcaster(gctx, stateServer.Hub(), broadcasts, logger)
		return nil
	})

	err := g.Wait()
	logger.Info("shutting down")
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// applyProfileFile loads the configured calibration profile over the inline thresholds.
// An explicitly configured profile must exist; the default location is optional.
func applyProfileFile(cfg *Config, logger *slog.Logger) error {
	path := cfg.Calibration.ProfileFile
	explicit := path != ""
	if !explicit {
		path = defaultCalibrationFile
	}
	path = ExpandPath(path)

	p, err := LoadCalibrationProfile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			logger.Info("no calibration profile, using configured thresholds", "path", path)
			return nil
		}
		return err
	}
	cfg.ApplyProfile(p)
	logger.Info("calibration profile loaded", "path", path)
	return nil
}

// openSinks opens every configured key sink and combines them.
func openSinks(cfg Config, sessionID string, logger *slog.Logger) (KeySink, error) {
	var opened []KeySink
	closeAll := func() {
		for _, s := range opened {
			_ = s.Close()
		}
	}

	for _, name := range cfg.Output.Sinks {
		switch name {
		case "uinput":
			keymap, err := resolveKeymap(cfg.Keys)
			if err != nil {
				closeAll()
				return nil, err
			}
			u, err := openUinputSink(cfg.Output.DeviceName, keymap, logger)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("uinput sink: %w (tip: run as root or add user to 'input' group)", err)
			}
			opened = append(opened, u)
		case "mqtt":
			m, err := connectMQTTSink(cfg.MQTT, sessionID, logger)
			if err != nil {
				closeAll()
				return nil, fmt.Errorf("mqtt sink: %w", err)
			}
			opened = append(opened, m)
		case "log":
			opened = append(opened, newLogSink(logger))
		default:
			closeAll()
			return nil, fmt.Errorf("unknown sink %q", name)
		}
	}
	if len(opened) == 0 {
		return nil, errors.New("no key sinks configured")
	}
	return newMultiSink(opened...), nil
}

// runStatusSubcommand handles "motionbrainz status".
func runStatusSubcommand(args []string) {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	socketPath := fs.String("socket", DefaultConfig().IPC.SocketPath, "Unix domain socket path for IPC")
	_ = fs.Parse(args)

	snap, err := QueryIPCState(*socketPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}

	fmt.Printf("session:     %s\n", snap.SessionID)
	fmt.Printf("stance:      %s\n", snap.Stance)
	fmt.Printf("facing:      %s (%.1f deg)\n", snap.Facing, snap.HeadingDeg)
	fmt.Printf("walk key:    %s\n", orDash(string(snap.WalkKey)))
	fmt.Printf("jump:        %s (held=%t)\n", snap.JumpPhase, snap.JumpHeld)
	fmt.Printf("paused:      %t\n", snap.Paused)
	fmt.Printf("samples:     %d (flips=%d punches=%d jumps=%d suppressed=%d sink_failures=%d)\n",
		snap.Samples, snap.Flips, snap.Punches, snap.Jumps, snap.Suppressed, snap.SinkFailures)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
