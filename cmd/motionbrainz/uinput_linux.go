//go:build linux

package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// uinput ioctls (from <linux/uinput.h>)
const (
	uiDevCreate  = 0x5501     // _IO('U', 1)
	uiDevDestroy = 0x5502     // _IO('U', 2)
	uiSetEvBit   = 0x40045564 // _IOW('U', 100, int)
	uiSetKeyBit  = 0x40045565 // _IOW('U', 101, int)

	uinputMaxNameSize = 80
	absCnt            = 0x40

	busVirtual = 0x06
)

// uinputUserDev mirrors the legacy struct uinput_user_dev written before UI_DEV_CREATE.
type uinputUserDev struct {
	Name [uinputMaxNameSize]byte
	ID   struct {
		Bustype uint16
		Vendor  uint16
		Product uint16
		Version uint16
	}
	FFEffectsMax uint32
	Absmax       [absCnt]int32
	Absmin       [absCnt]int32
	Absfuzz      [absCnt]int32
	Absflat      [absCnt]int32
}

// uinputSink is a virtual keyboard created through /dev/uinput.
type uinputSink struct {
	fd     int
	keymap map[Key]uint16
	logger *slog.Logger
	closed bool
}

// openUinputSink creates a virtual keyboard exposing exactly the bound keys.
func openUinputSink(name string, keymap map[Key]uint16, logger *slog.Logger) (*uinputSink, error) {
	fd, err := unix.Open("/dev/uinput", unix.O_WRONLY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open /dev/uinput: %w", err)
	}

	fail := func(step string, err error) (*uinputSink, error) {
		_ = unix.Close(fd)
		return nil, fmt.Errorf("uinput %s: %w", step, err)
	}

	if err := unix.IoctlSetInt(fd, uiSetEvBit, EV_KEY); err != nil {
		return fail("set EV_KEY", err)
	}
	for _, code := range keymap {
		if err := unix.IoctlSetInt(fd, uiSetKeyBit, int(code)); err != nil {
			return fail(fmt.Sprintf("set key bit %d", code), err)
		}
	}

	var dev uinputUserDev
	copy(dev.Name[:uinputMaxNameSize-1], name)
	dev.ID.Bustype = busVirtual
	dev.ID.Vendor = 0x1209
	dev.ID.Product = 0x4d42
	dev.ID.Version = 1

	var buf bytes.Buffer
	if err := binary.Write(&buf, binary.LittleEndian, &dev); err != nil {
		return fail("encode device", err)
	}
	if _, err := unix.Write(fd, buf.Bytes()); err != nil {
		return fail("write device", err)
	}
	if err := unix.IoctlSetInt(fd, uiDevCreate, 0); err != nil {
		return fail("create device", err)
	}

	logger.Info("uinput device created", "name", name, "keys", len(keymap))
	return &uinputSink{fd: fd, keymap: keymap, logger: logger}, nil
}

func (u *uinputSink) emit(k Key, value int32) error {
	if u.closed {
		return errSinkClosed
	}
	code, ok := u.keymap[k]
	if !ok {
		return fmt.Errorf("no key binding for %q", k)
	}
	b, err := encodeKeyEvent(code, value, time.Now())
	if err != nil {
		return err
	}
	if _, err := unix.Write(u.fd, b); err != nil {
		return fmt.Errorf("write key event: %w", err)
	}
	return nil
}

func (u *uinputSink) Press(k Key) error   { return u.emit(k, evValuePress) }
func (u *uinputSink) Release(k Key) error { return u.emit(k, evValueRelease) }

func (u *uinputSink) Tap(k Key) error {
	if err := u.emit(k, evValuePress); err != nil {
		return err
	}
	return u.emit(k, evValueRelease)
}

// Close destroys the virtual device. Keys still held are released by the kernel.
func (u *uinputSink) Close() error {
	if u.closed {
		return nil
	}
	u.closed = true
	if err := unix.IoctlSetInt(u.fd, uiDevDestroy, 0); err != nil {
		u.logger.Warn("uinput destroy failed", "error", err)
	}
	return unix.Close(u.fd)
}
