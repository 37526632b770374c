package main

import (
	"log/slog"
	"time"
)

// runEffect executes a single reducer-emitted Command (side effect) against the key sink
// and reports failures via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - The daemon loop is responsible for sequencing: Reduce -> Commands -> runEffect -> Events -> Reduce.
func runEffect(
	sink KeySink,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		onEvent = func(Event) {}
	}

	now := time.Now()

	if snap, ok := cmd.(CmdPublishStateSnapshot); ok {
		// Deliver reducer-produced snapshot to the requester.
		if snap.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}
		// Never block the daemon loop on a requester.
		select {
		case snap.Reply <- snap.Snapshot:
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}
		return
	}

	if sink == nil {
		onEvent(KeyCommandFailed{Command: cmd, Err: errNoSink{}, At: now})
		return
	}

	var err error
	switch c := cmd.(type) {
	case CmdPress:
		err = sink.Press(c.Key)
	case CmdRelease:
		err = sink.Release(c.Key)
	case CmdTap:
		err = sink.Tap(c.Key)
	default:
		logger.Warn("unknown command type", "command", cmd.String())
		err = errUnknownCommand{cmd: cmd}
	}

	if err != nil {
		logger.Error("key sink command failed", "command", cmd.String(), "error", err)
		onEvent(KeyCommandFailed{Command: cmd, Err: err, At: now})
		return
	}
	logger.Debug("key sink command", "command", cmd.String())
}

// errNoSink indicates the daemon was asked to execute a command without a key sink.
type errNoSink struct{}

func (errNoSink) Error() string { return "no key sink" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
