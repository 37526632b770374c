package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// ============================================================================
// Sensor transport
// ============================================================================
// The phone app streams text frames at roughly 30 Hz:
//
//   SENSOR:x,y,z,gyroY                         (compact)
//   SENSOR:ax,ay,az,gx,gy,gz,lx,ly,lz,grx,gry,grz (diagnostic, 12 values)
//
// Delivery is best effort: frames may be lost or reordered. Malformed frames are
// dropped here and never reach the reducer. When the event queue is full the
// sample is dropped rather than blocking the receiver.
// ============================================================================

const sensorPrefix = "SENSOR:"

// diagnosticFields is the field count of the extended frame, whose gyro Y is field 5.
const diagnosticFields = 12

var errNotSensorFrame = errors.New("not a SENSOR frame")

// ParseSensorLine decodes one SENSOR frame, stamping it with at.
func ParseSensorLine(line string, at time.Time) (SensorSample, error) {
	body, ok := strings.CutPrefix(strings.TrimSpace(line), sensorPrefix)
	if !ok {
		return SensorSample{}, errNotSensorFrame
	}
	parts := strings.Split(body, ",")
	if len(parts) < 4 {
		return SensorSample{}, fmt.Errorf("sensor frame has %d fields, need at least 4", len(parts))
	}

	gyroIdx := 3
	if len(parts) >= diagnosticFields {
		gyroIdx = 4
	}

	var vals [4]float64
	for i, idx := range [...]int{0, 1, 2, gyroIdx} {
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[idx]), 64)
		if err != nil {
			return SensorSample{}, fmt.Errorf("sensor field %d: %w", idx, err)
		}
		vals[i] = v
	}

	s := SensorSample{X: vals[0], Y: vals[1], Z: vals[2], GyroY: vals[3], At: at}
	if !s.finite() {
		return SensorSample{}, errors.New("sensor frame has non-finite values")
	}
	return s, nil
}

// sampleFeed delivers decoded samples to the event bus without blocking.
type sampleFeed struct {
	events  chan<- Event
	logger  *slog.Logger
	now     func() time.Time
	dropped atomic.Uint64
	invalid atomic.Uint64
}

func newSampleFeed(events chan<- Event, logger *slog.Logger) *sampleFeed {
	return &sampleFeed{events: events, logger: logger, now: time.Now}
}

// handlePayload decodes every frame in payload (one per line) and enqueues the samples.
func (f *sampleFeed) handlePayload(payload string) {
	at := f.now()
	for _, line := range strings.Split(payload, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		s, err := ParseSensorLine(line, at)
		if err != nil {
			f.invalid.Add(1)
			f.logger.Debug("dropping sensor frame", "error", err, "frame", line)
			continue
		}
		select {
		case f.events <- SampleReceived{Sample: s}:
		default:
			if f.dropped.Add(1) == 1 {
				f.logger.Warn("event queue full, dropping samples")
			}
		}
	}
}

func (f *sampleFeed) logSummary() {
	f.logger.Info("sensor transport stopped", "dropped", f.dropped.Load(), "invalid", f.invalid.Load())
}

// runUDPTransport listens for SENSOR datagrams on addr until ctx is canceled.
func runUDPTransport(ctx context.Context, addr string, events chan<- Event, logger *slog.Logger) error {
	conn, err := net.ListenPacket("udp", addr)
	if err != nil {
		return fmt.Errorf("listen udp %s: %w", addr, err)
	}
	defer conn.Close()

	logger.Info("UDP sensor transport listening", "addr", conn.LocalAddr().String())

	// Close the socket on shutdown. This unblocks ReadFrom().
	go func() {
		<-ctx.Done()
		_ = conn.Close()
	}()

	feed := newSampleFeed(events, logger)
	defer feed.logSummary()

	buf := make([]byte, maxDatagramSize)
	for {
		n, from, err := conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return nil
			}
			logger.Error("UDP read error", "error", err)
			continue
		}
		logger.Debug("UDP datagram", "from", from, "bytes", n)
		feed.handlePayload(string(buf[:n]))
	}
}

// runLineTransport reads newline-delimited SENSOR frames from r until EOF or ctx is canceled.
// The caller owns r and must close it to unblock a pending read on shutdown.
func runLineTransport(ctx context.Context, r io.Reader, events chan<- Event, logger *slog.Logger) error {
	feed := newSampleFeed(events, logger)
	defer feed.logSummary()

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return nil
		}
		feed.handlePayload(scanner.Text())
	}
	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("read sensor stream: %w", err)
	}
	return nil
}

// runTransport starts the configured sensor transport.
func runTransport(ctx context.Context, cfg TransportConfig, events chan<- Event, logger *slog.Logger) error {
	switch cfg.Kind {
	case "serial":
		return runSerialTransport(ctx, cfg.SerialPort, cfg.SerialBaud, events, logger)
	default:
		return runUDPTransport(ctx, cfg.UDPAddr, events, logger)
	}
}
