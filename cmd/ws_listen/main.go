package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/url"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/gorilla/websocket"
)

// envelope mirrors the daemon's state stream message.
type envelope struct {
	Type string          `json:"type"`
	Ts   *time.Time      `json:"ts,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

func main() {
	var (
		wsURL = flag.String("ws", "ws://127.0.0.1:3002/ws/state", "motionbrainz state websocket URL")
		raw   = flag.Bool("raw", false, "Print messages verbatim instead of summarizing them")
		quiet = flag.Bool("no-heading", false, "Hide heading_changed messages")
	)
	flag.Parse()

	u, err := url.Parse(*wsURL)
	if err != nil {
		log.Fatalf("invalid websocket URL: %v", err)
	}

	// Handle shutdown
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, syscall.SIGINT, syscall.SIGTERM)

	d := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	log.Printf("connecting to %s...", u.String())
	conn, _, err := d.Dial(u.String(), nil)
	if err != nil {
		log.Fatalf("failed to connect: %v", err)
	}
	defer conn.Close()

	log.Printf("connected! (press Ctrl+C to exit)")

	// Mutex to protect concurrent writes to websocket
	var writeMu sync.Mutex

	// The server pings every 20s; answer and extend the deadline.
	conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		writeMu.Lock()
		defer writeMu.Unlock()
		return conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(5*time.Second))
	})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			messageType, message, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Printf("websocket error: %v", err)
				}
				return
			}
			conn.SetReadDeadline(time.Now().Add(60 * time.Second))

			if messageType != websocket.TextMessage {
				fmt.Printf("[BINARY] %d bytes\n", len(message))
				continue
			}
			if *raw {
				fmt.Printf("%s\n", message)
				continue
			}
			handleTextMessage(message, *quiet)
		}
	}()

	select {
	case <-sigc:
		log.Printf("shutting down...")
		writeMu.Lock()
		err := conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		writeMu.Unlock()
		if err != nil {
			log.Printf("error closing connection: %v", err)
		}
	case <-done:
		log.Printf("connection closed")
	}
}

// handleTextMessage prints a one-line summary per state stream message.
func handleTextMessage(message []byte, hideHeading bool) {
	var env envelope
	if err := json.Unmarshal(message, &env); err != nil {
		fmt.Printf("[TEXT] %s\n", string(message))
		return
	}

	ts := "--:--:--.---"
	if env.Ts != nil {
		ts = env.Ts.Local().Format("15:04:05.000")
	}

	switch env.Type {
	case "state_init":
		pretty, _ := json.MarshalIndent(json.RawMessage(env.Data), "", "  ")
		fmt.Printf("[INIT]\n%s\n\n", string(pretty))

	case "stance_changed":
		var d struct {
			Stance string `json:"stance"`
		}
		_ = json.Unmarshal(env.Data, &d)
		fmt.Printf("%s [STANCE] %s\n", ts, d.Stance)

	case "facing_changed":
		var d struct {
			Facing string `json:"facing"`
		}
		_ = json.Unmarshal(env.Data, &d)
		fmt.Printf("%s [FACING] %s\n", ts, d.Facing)

	case "heading_changed":
		if hideHeading {
			return
		}
		var d struct {
			Degrees float64 `json:"degrees"`
		}
		_ = json.Unmarshal(env.Data, &d)
		fmt.Printf("%s [HEADING] %.0f°\n", ts, d.Degrees)

	case "key_action":
		var d struct {
			Op  string `json:"op"`
			Key string `json:"key"`
		}
		_ = json.Unmarshal(env.Data, &d)
		fmt.Printf("%s [KEY] %-7s %s\n", ts, d.Op, d.Key)

	case "paused_changed":
		var d struct {
			Paused bool `json:"paused"`
		}
		_ = json.Unmarshal(env.Data, &d)
		state := "RESUMED"
		if d.Paused {
			state = "PAUSED"
		}
		fmt.Printf("%s [OUTPUT] %s\n", ts, state)

	default:
		fmt.Printf("%s [%s] %s\n", ts, env.Type, string(env.Data))
	}
}
