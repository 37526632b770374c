package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"os"
	"strings"
	"time"
)

// ============================================================================
// IPC Server - Unix Domain Socket Interface
// ============================================================================
// The IPC server lets external clients control the daemon:
//   - pause / resume key output
//   - release every held key
//   - recenter the gyro baseline
//   - inject samples (scripting, replay, tests)
//   - query a state snapshot
//
// Protocol: Line-delimited JSON
//   - Client sends: {"type": "event_name", "data": {...}}
//   - Server responds: {"status": "ok"} or {"status": "error", "error": "msg"}
//   - "get_state" responds with {"status": "ok", "state": {...}}
// ============================================================================

// snapshotTimeout bounds how long a get_state request waits for the daemon loop.
const snapshotTimeout = time.Second

// IPCResponse represents the response sent back to IPC clients
type IPCResponse struct {
	Status string         `json:"status"`          // "ok" or "error"
	Error  string         `json:"error,omitempty"` // error message if status == "error"
	State  *StateSnapshot `json:"state,omitempty"` // only for get_state
}

// runIPCServer starts the Unix domain socket server.
// It runs until ctx is canceled, at which point it closes the listener and exits.
func runIPCServer(ctx context.Context, socketPath string, events chan<- Event, logger *slog.Logger) error {
	// Remove existing socket file if it exists
	if err := os.RemoveAll(socketPath); err != nil {
		return fmt.Errorf("remove existing socket: %w", err)
	}

	listener, err := net.Listen("unix", socketPath)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", socketPath, err)
	}
	defer listener.Close()
	defer os.Remove(socketPath)

	if err := os.Chmod(socketPath, 0660); err != nil {
		return fmt.Errorf("chmod socket: %w", err)
	}

	logger.Info("IPC listening", "socket", socketPath)

	// Close the listener on shutdown. This unblocks Accept().
	go func() {
		<-ctx.Done()
		_ = listener.Close()
	}()

	for {
		conn, err := listener.Accept()
		if err != nil {
			if ctx.Err() != nil {
				logger.Debug("IPC listener closed (shutdown)")
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				logger.Debug("IPC listener closed")
				return nil
			}

			logger.Error("IPC accept error", "error", err)
			continue
		}

		go handleIPCConnection(ctx, conn, events, logger)
	}
}

// handleIPCConnection processes a single IPC client connection
func handleIPCConnection(ctx context.Context, conn net.Conn, events chan<- Event, logger *slog.Logger) {
	defer conn.Close()

	logger.Debug("IPC connection", "remote_addr", conn.RemoteAddr())

	scanner := bufio.NewScanner(conn)
	encoder := json.NewEncoder(conn)

	for scanner.Scan() {
		line := scanner.Text()
		logger.Debug("IPC received", "line", line)

		resp := handleIPCLine(ctx, []byte(line), events)
		if err := encoder.Encode(resp); err != nil {
			logger.Error("IPC failed to send response", "error", err)
			return
		}
	}

	logger.Debug("IPC connection closed")
}

// handleIPCLine decodes one request line and turns it into a response.
func handleIPCLine(ctx context.Context, line []byte, events chan<- Event) IPCResponse {
	var env EventEnvelope
	if err := json.Unmarshal(line, &env); err != nil {
		return ipcError(fmt.Errorf("parse event: %w", err))
	}

	if env.Type == "get_state" {
		snap, err := requestSnapshot(ctx, events, snapshotTimeout)
		if err != nil {
			return ipcError(err)
		}
		return IPCResponse{Status: "ok", State: &snap}
	}

	ev, err := UnmarshalEvent(line, time.Now())
	if err != nil {
		return ipcError(fmt.Errorf("parse event: %w", err))
	}

	select {
	case events <- ev:
		return IPCResponse{Status: "ok"}
	default:
		return ipcError(errors.New("event queue full"))
	}
}

func ipcError(err error) IPCResponse {
	return IPCResponse{Status: "error", Error: err.Error()}
}

// requestSnapshot round-trips a RequestStateSnapshot through the daemon loop.
func requestSnapshot(ctx context.Context, events chan<- Event, timeout time.Duration) (StateSnapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	reply := make(chan StateSnapshot, 1)
	select {
	case events <- RequestStateSnapshot{Reply: reply}:
	case <-ctx.Done():
		return StateSnapshot{}, fmt.Errorf("snapshot request: %w", ctx.Err())
	}

	select {
	case snap := <-reply:
		return snap, nil
	case <-ctx.Done():
		return StateSnapshot{}, fmt.Errorf("snapshot reply: %w", ctx.Err())
	}
}

// ============================================================================
// IPC Client Utility Functions
// ============================================================================

// SendIPCEvent sends an event to the daemon via IPC and returns the response
func SendIPCEvent(socketPath string, ev Event) error {
	data, err := MarshalEvent(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = sendIPCLine(socketPath, data)
	return err
}

// QueryIPCState asks a running daemon for its state snapshot.
func QueryIPCState(socketPath string) (StateSnapshot, error) {
	resp, err := sendIPCLine(socketPath, []byte(`{"type":"get_state"}`))
	if err != nil {
		return StateSnapshot{}, err
	}
	if resp.State == nil {
		return StateSnapshot{}, errors.New("ipc response has no state")
	}
	return *resp.State, nil
}

func sendIPCLine(socketPath string, line []byte) (IPCResponse, error) {
	conn, err := net.Dial("unix", socketPath)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to %s: %w", socketPath, err)
	}
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", strings.TrimSpace(string(line))); err != nil {
		return IPCResponse{}, fmt.Errorf("send event: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return resp, fmt.Errorf("ipc error: %s", resp.Error)
	}
	return resp, nil
}
