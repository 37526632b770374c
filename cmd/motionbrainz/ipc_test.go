package main

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestUnmarshalEvent(t *testing.T) {
	ts := at(500)
	tests := []struct {
		in   string
		want Event
	}{
		{`{"type":"pause"}`, PauseControl{}},
		{`{"type":"resume"}`, ResumeControl{}},
		{`{"type":"release_all"}`, ReleaseAll{}},
		{`{"type":"recenter"}`, Recenter{}},
		{`{"type":"sample","data":{"x":1,"y":9.5,"z":-2,"gyro_y":0.3}}`,
			SampleReceived{Sample: SensorSample{X: 1, Y: 9.5, Z: -2, GyroY: 0.3, At: at(0)}}},
		{`{"type":"sample","data":{"x":1,"y":0,"z":0,"gyro_y":0,"at":"` + ts.Format(time.RFC3339Nano) + `"}}`,
			SampleReceived{Sample: SensorSample{X: 1, At: ts}}},
	}
	for _, tt := range tests {
		got, err := UnmarshalEvent([]byte(tt.in), at(0))
		if err != nil {
			t.Fatalf("unmarshal %s: %v", tt.in, err)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Fatalf("%s: event mismatch (-want +got):\n%s", tt.in, diff)
		}
	}
}

func TestUnmarshalEvent_Rejects(t *testing.T) {
	for _, in := range []string{
		`not json`,
		`{"type":"explode"}`,
		`{"type":"sample","data":"nope"}`,
	} {
		if _, err := UnmarshalEvent([]byte(in), at(0)); err == nil {
			t.Fatalf("expected %s to be rejected", in)
		}
	}
}

func TestMarshalEvent_RoundTrip(t *testing.T) {
	for _, ev := range []Event{
		PauseControl{},
		ReleaseAll{},
		SampleReceived{Sample: SensorSample{X: 1, Y: 2, Z: 3, GyroY: 4, At: at(7)}},
	} {
		b, err := MarshalEvent(ev)
		if err != nil {
			t.Fatalf("marshal %T: %v", ev, err)
		}
		got, err := UnmarshalEvent(b, at(0))
		if err != nil {
			t.Fatalf("unmarshal %s: %v", string(b), err)
		}
		if diff := cmp.Diff(ev, got); diff != "" {
			t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
		}
	}

	if _, err := MarshalEvent(Tick{}); err == nil {
		t.Fatalf("expected internal events to be rejected")
	}
}

func TestHandleIPCLine_EnqueuesControlEvent(t *testing.T) {
	events := make(chan Event, 1)
	resp := handleIPCLine(context.Background(), []byte(`{"type":"pause"}`), events)
	if resp.Status != "ok" {
		t.Fatalf("expected ok, got %+v", resp)
	}
	if ev := <-events; ev != (PauseControl{}) {
		t.Fatalf("expected PauseControl, got %T", ev)
	}
}

func TestHandleIPCLine_Errors(t *testing.T) {
	events := make(chan Event, 1)

	if resp := handleIPCLine(context.Background(), []byte(`{"type":"bogus"}`), events); resp.Status != "error" {
		t.Fatalf("expected error for unknown type, got %+v", resp)
	}

	events <- ReleaseAll{} // fill the queue
	resp := handleIPCLine(context.Background(), []byte(`{"type":"resume"}`), events)
	if resp.Status != "error" || resp.Error != "event queue full" {
		t.Fatalf("expected queue full error, got %+v", resp)
	}
}

func TestIPC_EndToEnd(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Unix socket paths are length limited; keep it short.
	dir, err := os.MkdirTemp("", "mb")
	if err != nil {
		t.Fatalf("tempdir: %v", err)
	}
	defer os.RemoveAll(dir)
	socket := filepath.Join(dir, "ipc.sock")

	cfg := testMotionConfig()
	sink := &recordingSink{}
	events := make(chan Event, 16)
	done := startDaemon(ctx, events, sink, cfg, nil)

	ipcErr := make(chan error, 1)
	go func() { ipcErr <- runIPCServer(ctx, socket, events, slog.Default()) }()
	waitUntil(t, time.Second, func() bool {
		_, err := os.Stat(socket)
		return err == nil
	}, "ipc socket not created")

	base := time.Now()
	for i := 0; i < 4; i++ {
		ev := SampleReceived{Sample: SensorSample{X: 9.5, Z: 4, At: base.Add(time.Duration(i) * 33 * time.Millisecond)}}
		if err := SendIPCEvent(socket, ev); err != nil {
			t.Fatalf("send sample: %v", err)
		}
	}
	waitUntil(t, time.Second, func() bool { return sink.has("press:right") }, "walk key never pressed")

	if err := SendIPCEvent(socket, PauseControl{}); err != nil {
		t.Fatalf("send pause: %v", err)
	}

	var snap StateSnapshot
	waitUntil(t, time.Second, func() bool {
		snap, err = QueryIPCState(socket)
		return err == nil && snap.Paused
	}, "daemon never reported paused")

	if snap.SessionID != "test" || snap.Stance != "walking" || snap.WalkKey != "" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
	if !sink.has("release:right") {
		t.Fatalf("expected pause to release the walk key, ops=%v", sink.Ops())
	}

	cancel()
	waitDone(t, done)
	select {
	case err := <-ipcErr:
		if err != nil {
			t.Fatalf("ipc server: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatalf("timeout waiting for ipc server")
	}
}
