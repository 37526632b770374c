package main

import (
	"context"
	"log/slog"
	"time"
)

// ============================================================================
// Central Daemon Loop - Reducer-driven "Daemon Brain"
// ============================================================================
//
// Design rules enforced here:
//   - The reducer performs no I/O and computes: next state + commands + broadcasts.
//   - The daemon loop is the only place that executes side effects (key sink calls).
//   - Sink failures are turned into Events and fed back into the reducer.
//   - One event is processed to completion before the next one is taken.
//
// ============================================================================

// tickInterval drives time-based safety releases while the sensor stream is quiet.
const tickInterval = 100 * time.Millisecond

// runDaemon is the main daemon loop that:
//   - Receives Events from the transport, IPC and the state stream
//   - Emits Tick events on a fixed cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Executes commands against the key sink and feeds failures back into the reducer
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
//   - On every exit path, including a panic inside the loop, held keys are released
//     through the sink before returning (the panic is re-raised afterwards)
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	sink KeySink,
	cfg MotionConfig,
	state *ControllerState,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	if state == nil {
		state = NewControllerState("", cfg)
	}

	defer func() {
		r := recover()
		releaseOnExit(sink, state, cfg, logger)
		if r != nil {
			logger.Error("daemon loop panicked; held keys released", "panic", r)
			panic(r)
		}
	}()

	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	// Explicit queues:
	// - eventQueue holds events awaiting reduction
	// - cmdQueue holds commands awaiting execution
	var eventQueue []Event
	var cmdQueue []Command

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	publish := func(bcs []StateBroadcast) {
		for _, b := range bcs {
			logBroadcast(logger, b)
			if broadcasts == nil {
				continue
			}
			select {
			case broadcasts <- b:
			default:
				logger.Debug("broadcast queue full, dropping", "broadcast", b)
			}
		}
	}

	// Reduce all queued events, enqueuing any resulting commands.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev, cfg)
			if rr.State != nil {
				state = rr.State
			}
			cmdQueue = append(cmdQueue, rr.Commands...)
			publish(rr.Broadcasts)
		}
	}

	// Execute all queued commands, reducing failures as they arrive.
	flushCommands := func() {
		for len(cmdQueue) > 0 {
			cmd := cmdQueue[0]
			cmdQueue = cmdQueue[1:]

			runEffect(sink, cmd, logger, enqueueEvent)
			flushEvents()
		}
	}

	for {
		select {
		case <-ctx.Done():
			logger.Info("daemon stopping (context canceled)")
			return

		case ev, ok := <-events:
			if !ok {
				logger.Info("daemon stopping (events channel closed)")
				return
			}
			enqueueEvent(ev)
			flushEvents()
			flushCommands()

		case now := <-ticker.C:
			enqueueEvent(Tick{Now: now})
			flushEvents()
			flushCommands()
		}
	}
}

// releaseOnExit releases every held key directly through the sink.
func releaseOnExit(sink KeySink, state *ControllerState, cfg MotionConfig, logger *slog.Logger) {
	if state == nil {
		return
	}
	rr := Reduce(state, ReleaseAll{}, cfg)
	for _, cmd := range rr.Commands {
		runEffect(sink, cmd, logger, nil)
	}
	if n := len(rr.Commands); n > 0 {
		logger.Info("released held keys on shutdown", "count", n)
	}
}

func logBroadcast(logger *slog.Logger, b StateBroadcast) {
	switch ev := b.(type) {
	case BroadcastStanceChanged:
		logger.Info("stance changed", "stance", ev.Stance)
	case BroadcastFacingChanged:
		logger.Info("facing flipped", "facing", ev.Facing)
	case BroadcastPausedChanged:
		logger.Info("key output", "paused", ev.Paused)
	case BroadcastKeyAction:
		logger.Debug("key action", "op", ev.Op, "key", ev.Key)
	}
}
