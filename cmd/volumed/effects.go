package main

import (
	"context"
	"log/slog"
	"time"
)

// effectsExecutor bundles everything the effects worker is allowed to
// touch: the volume manager (all hardware tiers) and the feedback cue
// runner. Nothing else in the daemon performs hardware I/O.
type effectsExecutor struct {
	mgr      *volumeManager
	feedback *feedbackRunner
}

// feedbackRunner executes the configured feedback command, used to make
// the first step out of silence noticeable. The argv is re-read on every
// cue so a config reload takes effect without restart.
type feedbackRunner struct {
	run  commandRunner
	argv func() []string
	log  *slog.Logger
}

func newFeedbackRunner(argv func() []string, logger *slog.Logger) *feedbackRunner {
	return &feedbackRunner{
		run:  execRunner,
		argv: argv,
		log:  logger,
	}
}

// play runs the feedback command once. A missing command is not an
// error; the cue is best-effort by nature.
func (f *feedbackRunner) play() {
	argv := f.argv()
	if len(argv) == 0 {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), scriptExecTimeout)
	defer cancel()

	if out, err := f.run(ctx, argv[0], argv[1:]...); err != nil {
		f.log.Debug("feedback command failed", "command", argv[0], "error", err, "output", out)
	}
}

// runEffect executes a single reducer-emitted Command (side effect) against
// the hardware backends and emits an observation Event via onEvent.
//
// Design rules:
// - This function is allowed to perform I/O and to block.
// - It must never call Reduce() directly; it only emits Events to be reduced by the daemon loop.
// - It runs on the single effects worker goroutine, so hardware access stays serialized.
func runEffect(
	exec *effectsExecutor,
	cmd Command,
	logger *slog.Logger,
	onEvent func(Event),
) {
	if onEvent == nil {
		// No place to report observations/errors; nothing sensible to do.
		return
	}

	if exec == nil || exec.mgr == nil {
		onEvent(CommandFailed{
			Command: cmd,
			Err:     errNoManager{},
			At:      time.Now(),
		})
		return
	}

	now := time.Now()

	switch c := cmd.(type) {
	case CmdApplyStep:
		res := exec.mgr.StepBy(c.Steps, c.Divisor, c.Target)
		if !res.OK {
			logger.Warn("volume step failed on every tier", "steps", c.Steps, "target", res.Target)
		}
		onEvent(VolumeApplied{Result: res, Op: "step", At: now})

	case CmdSetVolume:
		res := exec.mgr.SetAbsolute(c.Value, c.Target)
		if !res.OK {
			logger.Warn("volume set failed on every tier", "value", c.Value, "target", res.Target)
		}
		onEvent(VolumeApplied{Result: res, Op: "set", At: now})

	case CmdToggleMute:
		res := exec.mgr.ToggleMute(c.Target)
		if !res.OK {
			logger.Warn("mute toggle failed", "target", res.Target)
		}
		onEvent(VolumeApplied{Result: res, Op: "mute", At: now})

	case CmdRefresh:
		res := exec.mgr.Refresh()
		onEvent(VolumeApplied{Result: res, Op: "refresh", At: now})

	case CmdPruneDisplays:
		exec.mgr.PruneDisplays()

	case CmdPruneAllDisplays:
		exec.mgr.PruneAllDisplays()

	case CmdFeedbackCue:
		if exec.feedback != nil {
			exec.feedback.play()
		}

	case CmdPublishSnapshot:
		// Deliver reducer-produced snapshot to the requester.
		// This keeps the reducer pure by moving the channel send into the effects layer.
		if c.Reply == nil {
			logger.Warn("state snapshot requested with nil reply channel")
			return
		}

		// Never block the effects worker indefinitely.
		select {
		case c.Reply <- c.Snapshot:
			// delivered
		default:
			logger.Warn("state snapshot reply channel not ready; dropping snapshot")
		}

	default:
		// Unknown command: record failure so reducer can react (if desired).
		logger.Warn("unknown command type", "command", cmd.String())
		onEvent(CommandFailed{
			Command: cmd,
			Err:     errUnknownCommand{cmd: cmd},
			At:      now,
		})
	}
}

// errNoManager indicates the daemon was asked to execute a command without
// a volume manager.
type errNoManager struct{}

func (errNoManager) Error() string { return "no volume manager" }

type errUnknownCommand struct {
	cmd Command
}

func (e errUnknownCommand) Error() string { return "unknown command: " + e.cmd.String() }
