package main

import (
	"context"
	"fmt"
	"log/slog"

	"go.bug.st/serial"
)

// runSerialTransport reads SENSOR frames from a serial port (for example a
// microcontroller IMU or a USB-tethered phone) until ctx is canceled.
func runSerialTransport(ctx context.Context, portName string, baud int, events chan<- Event, logger *slog.Logger) error {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(portName, mode)
	if err != nil {
		return fmt.Errorf("open serial port %s: %w", portName, err)
	}
	defer port.Close()

	logger.Info("serial sensor transport opened", "port", portName, "baud", baud)

	// Close the port on shutdown. This unblocks Read().
	stop := context.AfterFunc(ctx, func() {
		_ = port.Close()
	})
	defer stop()

	return runLineTransport(ctx, port, events, logger)
}
