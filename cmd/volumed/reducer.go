package main

import (
	"fmt"
	"time"
)

// This file implements the reducer-style architecture building blocks:
//
//   - Events: inputs to the reducer (user actions, time ticks, hardware observations, system notifications)
//   - Commands: side effects requested by the reducer (hardware writes via the effects worker)
//   - Reduce(): computes next state + commands + broadcasts, without performing I/O
//
// The reducer must be pure. All daemon state is embedded in DaemonState, and
// every hardware access happens on the effects worker, which feeds results
// back in as observation events.

// ==============================
// Events
// ==============================

// Event is the input to the reducer.
// It can be a user Action, a Tick, a system notification, or an observation
// from the effects worker.
type Event interface {
	eventMarker()
}

// TimedEvent wraps an incoming Action with the time it entered the daemon,
// so payload types stay clean for the JSON envelope.
type TimedEvent struct {
	Event Event
	At    time.Time
}

func (TimedEvent) eventMarker() {}

// Tick is emitted by the daemon loop at a fixed cadence. Intents are
// flushed into Commands on ticks, which bounds how often bursty input can
// reach the hardware.
type Tick struct {
	Now time.Time
}

func (Tick) eventMarker() {}

// VolumeApplied is emitted after the effects worker ran a hardware
// operation. Result carries the resolved target and the verified state.
type VolumeApplied struct {
	Result applyResult
	Op     string // "step", "set", "mute", "refresh"
	At     time.Time
}

func (VolumeApplied) eventMarker() {}

// CommandFailed is emitted when executing a Command fails outright.
type CommandFailed struct {
	Command Command
	Err     error
	At      time.Time
}

func (CommandFailed) eventMarker() {}

// DisplaysChanged is emitted by the hotplug watcher when the set of
// connected displays may have changed.
type DisplaysChanged struct {
	At time.Time
}

func (DisplaysChanged) eventMarker() {}

// SystemSuspending is emitted just before the machine sleeps.
type SystemSuspending struct {
	At time.Time
}

func (SystemSuspending) eventMarker() {}

// SystemResumed is emitted after the machine wakes up.
type SystemResumed struct {
	At time.Time
}

func (SystemResumed) eventMarker() {}

// MixerChanged is emitted when the sound card reports an element change
// (volume moved by another program, device switched, etc).
type MixerChanged struct {
	At time.Time
}

func (MixerChanged) eventMarker() {}

// ConfigChanged is emitted after a config reload was applied.
type ConfigChanged struct {
	At time.Time
}

func (ConfigChanged) eventMarker() {}

// RequestStateSnapshot asks the reducer for a coherent copy of observed
// state. The snapshot is delivered on Reply by the effects layer, keeping
// the reducer free of channel sends.
type RequestStateSnapshot struct {
	Reply chan StateSnapshot
}

func (RequestStateSnapshot) eventMarker() {}

// ==============================
// Commands (side effects)
// ==============================

// Command represents an external side effect to be executed by the effects
// worker. In this codebase, those are hardware volume operations.
type Command interface {
	commandMarker()
	String() string
}

// CmdApplyStep requests a relative volume change on the resolved target.
type CmdApplyStep struct {
	Steps   int
	Divisor int
	Target  string
}

func (CmdApplyStep) commandMarker() {}
func (c CmdApplyStep) String() string {
	return fmt.Sprintf("CmdApplyStep(steps=%d, divisor=%d, target=%q)", c.Steps, c.Divisor, c.Target)
}

// CmdSetVolume requests setting volume to an absolute normalized value.
type CmdSetVolume struct {
	Value  float64
	Target string
}

func (CmdSetVolume) commandMarker() {}
func (c CmdSetVolume) String() string {
	return fmt.Sprintf("CmdSetVolume(value=%.3f, target=%q)", c.Value, c.Target)
}

// CmdToggleMute toggles mute on the resolved target.
type CmdToggleMute struct {
	Target string
}

func (CmdToggleMute) commandMarker() {}
func (c CmdToggleMute) String() string {
	return fmt.Sprintf("CmdToggleMute(target=%q)", c.Target)
}

// CmdRefresh requests a read-only re-probe of the current target.
type CmdRefresh struct{}

func (CmdRefresh) commandMarker() {}
func (CmdRefresh) String() string { return "CmdRefresh()" }

// CmdPruneDisplays drops cached transports for displays that are gone.
type CmdPruneDisplays struct{}

func (CmdPruneDisplays) commandMarker() {}
func (CmdPruneDisplays) String() string { return "CmdPruneDisplays()" }

// CmdPruneAllDisplays drops every cached display transport.
type CmdPruneAllDisplays struct{}

func (CmdPruneAllDisplays) commandMarker() {}
func (CmdPruneAllDisplays) String() string { return "CmdPruneAllDisplays()" }

// CmdFeedbackCue runs the configured feedback command, used to make the
// first step out of silence audible/noticeable.
type CmdFeedbackCue struct{}

func (CmdFeedbackCue) commandMarker() {}
func (CmdFeedbackCue) String() string { return "CmdFeedbackCue()" }

// CmdPublishSnapshot delivers a reducer-produced snapshot to the requester.
type CmdPublishSnapshot struct {
	Snapshot StateSnapshot
	Reply    chan StateSnapshot
}

func (CmdPublishSnapshot) commandMarker() {}
func (CmdPublishSnapshot) String() string { return "CmdPublishSnapshot()" }

// ==============================
// Broadcasts (outbound state fan-out)
// ==============================

// StateBroadcast is a reducer-emitted notification for external watchers
// (the WS hub). Broadcasts never feed back into the reducer.
type StateBroadcast interface {
	broadcastMarker()
}

// BroadcastVolumeState carries a full observed-state snapshot. Bursty
// volume updates are coalesced by the broadcaster (latest wins).
type BroadcastVolumeState struct {
	Snapshot StateSnapshot
	At       time.Time
}

func (BroadcastVolumeState) broadcastMarker() {}

// BroadcastTargetChanged fires when control moved to a different output
// (display hotplug, config reload). Emitted immediately, never coalesced.
type BroadcastTargetChanged struct {
	Target     string
	TargetName string
	At         time.Time
}

func (BroadcastTargetChanged) broadcastMarker() {}

// ==============================
// Reducer input/output
// ==============================

// ReduceResult is the output of Reduce(): next state plus Commands to
// execute and Broadcasts to fan out.
//
// Commands are coalesced by the reducer where appropriate: steps sum,
// absolute sets are latest-wins, mute toggles cancel in pairs. A tick
// flushes at most one command per intent flavor.
type ReduceResult struct {
	State      *DaemonState
	Commands   []Command
	Broadcasts []StateBroadcast
}

// Reduce is the pure reducer:
//
// Rules:
// - Must not perform I/O
// - Must not block
// - Must not mutate anything outside the returned state
//
// The daemon loop must:
// - execute Commands (via the effects worker)
// - translate results into Events
// - feed those Events back into Reduce()
func Reduce(s *DaemonState, e Event) ReduceResult {
	if s == nil {
		s = &DaemonState{}
	}

	var cmds []Command
	var bcasts []StateBroadcast

	switch ev := e.(type) {
	case Tick:
		// Tick flushes intents into Commands (coalesced latest-wins).
		if s.Intent.MuteTogglePending {
			s.Intent.MuteTogglePending = false
			cmds = append(cmds, CmdToggleMute{Target: s.Intent.TargetHint})
		}
		if s.Intent.DesiredVolume != nil {
			v := *s.Intent.DesiredVolume
			s.Intent.DesiredVolume = nil
			cmds = append(cmds, CmdSetVolume{Value: v, Target: s.Intent.TargetHint})
		}
		if s.Intent.PendingSteps != 0 {
			n := s.Intent.PendingSteps
			div := s.Intent.StepDivisor
			s.Intent.PendingSteps = 0
			s.Intent.StepDivisor = 0
			cmds = append(cmds, CmdApplyStep{Steps: n, Divisor: div, Target: s.Intent.TargetHint})
		}
		if s.Intent.RefreshPending {
			// A write already re-reads state on its way out, so an
			// explicit refresh is only worth queueing on an idle tick.
			s.Intent.RefreshPending = false
			if len(cmds) == 0 {
				cmds = append(cmds, CmdRefresh{})
			}
		}

	case TimedEvent:
		switch a := ev.Event.(type) {
		case VolumeStep:
			if a.Steps != 0 {
				s.AddSteps(a.Steps, a.Divisor)
				s.Intent.TargetHint = a.Target
			}

		case SetVolumeAbsolute:
			s.SetDesiredVolume(clamp01(a.Value))
			s.Intent.TargetHint = a.Target

		case ToggleMute:
			s.RequestToggleMute()
			s.Intent.TargetHint = a.Target

		case RefreshState:
			s.RequestRefresh()

		default:
			// no-op
		}

	case VolumeApplied:
		if !ev.Result.OK {
			// Every tier failed; keep the last known-good state.
			break
		}
		prevTarget := s.Volume.Target
		s.SetObservedResult(ev.Result, ev.At)

		bcasts = append(bcasts, BroadcastVolumeState{Snapshot: s.Snapshot(), At: ev.At})
		if prevTarget != "" && prevTarget != ev.Result.Target {
			bcasts = append(bcasts, BroadcastTargetChanged{
				Target:     ev.Result.Target,
				TargetName: ev.Result.DeviceName,
				At:         ev.At,
			})
		}
		if ev.Result.FeedbackCue {
			cmds = append(cmds, CmdFeedbackCue{})
		}

	case CommandFailed:
		// Keep state as-is. The effects layer already logged the failure.
		_ = ev

	case RequestStateSnapshot:
		cmds = append(cmds, CmdPublishSnapshot{Snapshot: s.Snapshot(), Reply: ev.Reply})

	case DisplaysChanged:
		// Connector set changed: drop dead transports, then re-resolve the
		// target on the next idle tick.
		cmds = append(cmds, CmdPruneDisplays{})
		s.RequestRefresh()

	case SystemSuspending:
		// Writes queued before sleep are stale by wakeup; drop them along
		// with every cached transport (bus numbering may shift).
		s.Intent = DaemonIntent{}
		cmds = append(cmds, CmdPruneAllDisplays{})

	case SystemResumed:
		s.RequestRefresh()

	case MixerChanged:
		s.RequestRefresh()

	case ConfigChanged:
		// The target mode may have moved; re-probe so watchers see the
		// newly-controlled output.
		s.RequestRefresh()

	default:
		// Unknown event type: no-op.
	}

	return ReduceResult{
		State:      s,
		Commands:   cmds,
		Broadcasts: bcasts,
	}
}
