package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"time"
)

// inputEvent represents a Linux input event structure
// struct input_event { struct timeval time; __u16 type; __u16 code; __s32 value; };
type inputEvent struct {
	Sec   int64
	Usec  int64
	Type  uint16
	Code  uint16
	Value int32
}

// keyCodes maps Linux key names (from <linux/input-event-codes.h>) to codes.
// Only keys that make sense for game bindings are listed.
var keyCodes = map[string]uint16{
	"KEY_ESC":       1,
	"KEY_1":         2,
	"KEY_2":         3,
	"KEY_3":         4,
	"KEY_4":         5,
	"KEY_Q":         16,
	"KEY_W":         17,
	"KEY_E":         18,
	"KEY_R":         19,
	"KEY_ENTER":     28,
	"KEY_LEFTCTRL":  29,
	"KEY_A":         30,
	"KEY_S":         31,
	"KEY_D":         32,
	"KEY_F":         33,
	"KEY_LEFTSHIFT": 42,
	"KEY_Z":         44,
	"KEY_X":         45,
	"KEY_C":         46,
	"KEY_V":         47,
	"KEY_LEFTALT":   56,
	"KEY_SPACE":     57,
	"KEY_UP":        103,
	"KEY_LEFT":      105,
	"KEY_RIGHT":     106,
	"KEY_DOWN":      108,
}

// keyCodeByName resolves a Linux key name, case-insensitively.
func keyCodeByName(name string) (uint16, bool) {
	code, ok := keyCodes[strings.ToUpper(strings.TrimSpace(name))]
	return code, ok
}

// resolveKeymap converts configured key names into a logical key -> code table.
func resolveKeymap(k KeysConfig) (map[Key]uint16, error) {
	out := make(map[Key]uint16)
	for logical, name := range k.bindings() {
		code, ok := keyCodeByName(name)
		if !ok {
			return nil, fmt.Errorf("keys.%s: unknown key name %q", logical, name)
		}
		out[logical] = code
	}
	return out, nil
}

// encodeKeyEvent serializes a key event followed by a SYN_REPORT, ready to be
// written to a uinput file descriptor in one call.
func encodeKeyEvent(code uint16, value int32, now time.Time) ([]byte, error) {
	var buf bytes.Buffer
	sec := now.Unix()
	usec := int64(now.Nanosecond() / 1000)
	events := []inputEvent{
		{Sec: sec, Usec: usec, Type: EV_KEY, Code: code, Value: value},
		{Sec: sec, Usec: usec, Type: EV_SYN, Code: SYN_REPORT, Value: 0},
	}
	for _, ev := range events {
		if err := binary.Write(&buf, binary.LittleEndian, ev); err != nil {
			return nil, fmt.Errorf("encode input event: %w", err)
		}
	}
	return buf.Bytes(), nil
}
