//go:build !linux

package main

import (
	"errors"
	"log/slog"
)

func openUinputSink(name string, keymap map[Key]uint16, logger *slog.Logger) (KeySink, error) {
	return nil, errors.New("uinput sink is only available on linux (use -sinks log or mqtt)")
}
