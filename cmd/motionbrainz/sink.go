package main

import (
	"errors"
	"fmt"
	"log/slog"
)

// KeySink is the input-injection boundary. Implementations translate logical keys
// into whatever the output device needs. Methods are called from the daemon
// goroutine only.
type KeySink interface {
	Press(k Key) error
	Release(k Key) error
	Tap(k Key) error
	Close() error
}

var errSinkClosed = errors.New("key sink closed")

// logSink writes key operations to the log. Useful for dry runs and as a
// secondary sink next to a device.
type logSink struct {
	logger *slog.Logger
}

func newLogSink(logger *slog.Logger) *logSink {
	return &logSink{logger: logger}
}

func (s *logSink) Press(k Key) error {
	s.logger.Info("key press", "key", k)
	return nil
}

func (s *logSink) Release(k Key) error {
	s.logger.Info("key release", "key", k)
	return nil
}

func (s *logSink) Tap(k Key) error {
	s.logger.Info("key tap", "key", k)
	return nil
}

func (s *logSink) Close() error { return nil }

// multiSink fans each operation out to every sink. A failing sink does not stop
// delivery to the others; all failures are joined into one error.
type multiSink struct {
	sinks []KeySink
}

func newMultiSink(sinks ...KeySink) KeySink {
	if len(sinks) == 1 {
		return sinks[0]
	}
	return &multiSink{sinks: sinks}
}

func (m *multiSink) each(op string, fn func(KeySink) error) error {
	var errs []error
	for i, s := range m.sinks {
		if err := fn(s); err != nil {
			errs = append(errs, fmt.Errorf("sink %d %s: %w", i, op, err))
		}
	}
	return errors.Join(errs...)
}

func (m *multiSink) Press(k Key) error {
	return m.each("press", func(s KeySink) error { return s.Press(k) })
}

func (m *multiSink) Release(k Key) error {
	return m.each("release", func(s KeySink) error { return s.Release(k) })
}

func (m *multiSink) Tap(k Key) error {
	return m.each("tap", func(s KeySink) error { return s.Tap(k) })
}

func (m *multiSink) Close() error {
	return m.each("close", func(s KeySink) error { return s.Close() })
}
