package main

import (
	"fmt"
	"sync"
	"time"
)

var testT0 = time.Unix(1000, 0).UTC()

func testMotionConfig() MotionConfig {
	cfg := DefaultConfig()
	return cfg.ToMotionConfig()
}

// at returns testT0 shifted by ms milliseconds.
func at(ms int) time.Time {
	return testT0.Add(time.Duration(ms) * time.Millisecond)
}

func combatSample(ms int) SensorSample  { return SensorSample{Y: 9.5, At: at(ms)} }
func walkingSample(ms int) SensorSample { return SensorSample{X: 9.5, At: at(ms)} }

// recordingSink records every key operation as "op:key".
type recordingSink struct {
	mu     sync.Mutex
	ops    []string
	closed bool

	// failOn makes the matching "op:key" return an error.
	failOn map[string]error
	// panicOn makes the matching "op:key" panic.
	panicOn string
}

func (r *recordingSink) record(op string, k Key) error {
	entry := fmt.Sprintf("%s:%s", op, k)
	if r.panicOn == entry {
		panic("recordingSink: " + entry)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = append(r.ops, entry)
	if err, ok := r.failOn[entry]; ok {
		return err
	}
	return nil
}

func (r *recordingSink) Press(k Key) error   { return r.record("press", k) }
func (r *recordingSink) Release(k Key) error { return r.record("release", k) }
func (r *recordingSink) Tap(k Key) error     { return r.record("tap", k) }

func (r *recordingSink) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func (r *recordingSink) Ops() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.ops))
	copy(out, r.ops)
	return out
}

func (r *recordingSink) has(entry string) bool {
	for _, op := range r.Ops() {
		if op == entry {
			return true
		}
	}
	return false
}
