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
//   - Hardware commands run on a single effects worker goroutine, so a slow
//     DDC transaction never stalls event intake or tick cadence.
//   - Effect results are turned into Events and fed back into the reducer.
//   - Broadcasts fan out to the WS hub through a bounded queue.
//
// ============================================================================

// runDaemon is the main daemon loop that:
//   - Receives Events from multiple sources (IPC, watchers, effects worker)
//   - Emits Tick events on a fixed cadence
//   - Reduces events into (state, commands, broadcasts)
//   - Hands commands to the effects worker and broadcasts to the hub
//
// Shutdown semantics:
//   - Exits when ctx is canceled
//   - Exits cleanly when the events channel is closed
func runDaemon(
	ctx context.Context,
	events <-chan Event,
	exec *effectsExecutor,
	state *DaemonState,
	updateHz int,
	broadcasts chan<- StateBroadcast,
	logger *slog.Logger,
) {
	// Guard: reducer-driven daemon expects a state container.
	if state == nil {
		logger.Error("daemon state is nil")
		return
	}
	if updateHz <= 0 {
		updateHz = defaultUpdateHz
	}

	// Configure tick cadence.
	updateInterval := time.Second / time.Duration(updateHz)
	ticker := time.NewTicker(updateInterval)
	defer ticker.Stop()

	// Hardware access is serialized on one worker goroutine. The command
	// queue is bounded; intents are already coalesced by the reducer, so a
	// full queue means the hardware is wedged and dropping is the right call.
	cmdCh := make(chan Command, effectsQueueSize)
	obs := make(chan Event, effectsQueueSize)
	go runEffectsWorker(ctx, cmdCh, exec, obs, logger)

	// eventQueue holds events awaiting reduction.
	var eventQueue []Event

	enqueueEvent := func(ev Event) {
		eventQueue = append(eventQueue, ev)
	}

	dispatchCommand := func(cmd Command) {
		select {
		case cmdCh <- cmd:
		default:
			logger.Warn("effects queue full, dropping command", "command", cmd.String())
		}
	}

	publish := func(bcasts []StateBroadcast) {
		if broadcasts == nil {
			return
		}
		for _, b := range bcasts {
			select {
			case broadcasts <- b:
			default:
				logger.Warn("broadcast queue full, dropping broadcast")
			}
		}
	}

	// Reduce all queued events, dispatching resulting commands/broadcasts.
	flushEvents := func() {
		for len(eventQueue) > 0 {
			ev := eventQueue[0]
			eventQueue = eventQueue[1:]

			rr := Reduce(state, ev)
			if rr.State != nil {
				state = rr.State
			}
			for _, cmd := range rr.Commands {
				dispatchCommand(cmd)
			}
			publish(rr.Broadcasts)
		}
	}

	// Main loop
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
			// Actions arrive as bare payload types (clean for the JSON
			// envelope); the daemon assigns their timestamps here.
			switch ev.(type) {
			case VolumeStep, SetVolumeAbsolute, ToggleMute, RefreshState:
				enqueueEvent(TimedEvent{Event: ev, At: time.Now()})
			default:
				enqueueEvent(ev)
			}
			flushEvents()

		case o := <-obs:
			enqueueEvent(o)
			flushEvents()

		case now := <-ticker.C:
			enqueueEvent(Tick{Now: now})
			flushEvents()
		}
	}
}

// sendEvent delivers an event to the daemon loop, giving up on shutdown.
// The loop never blocks, so a stuck send only happens once it has exited.
func sendEvent(ctx context.Context, events chan<- Event, ev Event) {
	select {
	case events <- ev:
	case <-ctx.Done():
	}
}

// runEffectsWorker drains the command queue, executing one hardware
// operation at a time. Result events go back to the daemon loop; the send
// only blocks if the loop has stopped draining, so it is guarded by ctx.
func runEffectsWorker(
	ctx context.Context,
	cmds <-chan Command,
	exec *effectsExecutor,
	out chan<- Event,
	logger *slog.Logger,
) {
	for {
		select {
		case <-ctx.Done():
			return

		case cmd, ok := <-cmds:
			if !ok {
				return
			}
			runEffect(exec, cmd, logger, func(ev Event) {
				select {
				case out <- ev:
				case <-ctx.Done():
				}
			})
		}
	}
}
