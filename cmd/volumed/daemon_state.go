package main

import "time"

// DaemonState is the top-level, daemon-owned state container.
//
// Goals:
//   - Keep all reducer-owned state in one place (pure reducer, no external mutation).
//   - Provide a single place to store observed state (what the last hardware
//     operation reported) and intent (what we want to apply).
//   - Make it easy to publish a coherent snapshot to other clients (IPC/WS/etc).
type DaemonState struct {
	// Volume is the cached view of the last hardware operation. It is
	// "observed" state: updated only when the effects layer reports a
	// successful read or write.
	Volume ObservedVolumeState

	// Intent contains desired changes that should be applied by the
	// daemon's centralized effects stage (the only code that touches
	// the hardware backends).
	Intent DaemonIntent
}

// ObservedVolumeState is the daemon's cached view of the controlled output.
//
// Target names the resolved destination of the last operation: "builtin"
// for the internal output chain, or a display key for an external display.
type ObservedVolumeState struct {
	Volume      float64
	VolumeKnown bool
	VolumeAt    time.Time // when Volume was last refreshed

	Muted     bool
	MuteKnown bool
	MuteAt    time.Time // when Muted was last refreshed

	Target     string // "builtin" or display key
	TargetName string // human-readable device or display name
	Backend    string // tier that served the last operation: ddc, hal or script
	Category   deviceCategory
}

// DaemonIntent captures pending user/system intents.
// These are flushed into Commands on the next tick, coalesced so bursty
// input produces at most one hardware write per flavor per tick.
type DaemonIntent struct {
	// PendingSteps accumulates relative steps since the last flush.
	// Opposite directions cancel; the sum is applied in one write.
	PendingSteps int

	// StepDivisor is the shrink factor of the most recent step request
	// (0 means full-size steps).
	StepDivisor int

	// DesiredVolume, if non-nil, represents an intent to set volume to a
	// specific normalized value. An absolute set supersedes accumulated
	// steps that arrived before it.
	DesiredVolume *float64

	// MuteTogglePending flips on each toggle request, so an even number
	// of rapid toggles cancels out before anything reaches the hardware.
	MuteTogglePending bool

	// RefreshPending indicates a read-only re-probe was requested.
	RefreshPending bool

	// TargetHint is the target override of the most recent request
	// ("", "builtin" or "display").
	TargetHint string
}

// StateSnapshot is the externally-consumable copy of observed state,
// published over IPC status replies and the WS state feed.
type StateSnapshot struct {
	Volume      float64   `json:"volume"`
	VolumeKnown bool      `json:"volume_known"`
	VolumeAt    time.Time `json:"volume_at"`

	Muted     bool      `json:"muted"`
	MuteKnown bool      `json:"mute_known"`
	MuteAt    time.Time `json:"mute_at"`

	Target     string `json:"target"`
	TargetName string `json:"target_name,omitempty"`
	Backend    string `json:"backend,omitempty"`
	Category   string `json:"category,omitempty"`
	IconKey    string `json:"icon,omitempty"`
}

// SetObservedResult folds a successful backend operation into the cached
// observed state.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetObservedResult(res applyResult, now time.Time) {
	s.Volume.Volume = res.Volume
	s.Volume.VolumeKnown = true
	s.Volume.VolumeAt = now

	s.Volume.Muted = res.Muted
	s.Volume.MuteKnown = true
	s.Volume.MuteAt = now

	s.Volume.Target = res.Target
	s.Volume.TargetName = res.DeviceName
	s.Volume.Backend = res.Backend
	s.Volume.Category = res.Category
}

// Snapshot builds a publishable copy of the observed state.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) Snapshot() StateSnapshot {
	return StateSnapshot{
		Volume:      s.Volume.Volume,
		VolumeKnown: s.Volume.VolumeKnown,
		VolumeAt:    s.Volume.VolumeAt,
		Muted:       s.Volume.Muted,
		MuteKnown:   s.Volume.MuteKnown,
		MuteAt:      s.Volume.MuteAt,
		Target:      s.Volume.Target,
		TargetName:  s.Volume.TargetName,
		Backend:     s.Volume.Backend,
		Category:    string(s.Volume.Category),
		IconKey:     iconKey(s.Volume.Category, s.Volume.Volume, s.Volume.Muted),
	}
}

// SetDesiredVolume records an explicit desired volume intent, superseding
// any steps accumulated before it.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) SetDesiredVolume(v float64) {
	s.Intent.DesiredVolume = &v
	s.Intent.PendingSteps = 0
	s.Intent.StepDivisor = 0
}

// AddSteps accumulates a relative step intent.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) AddSteps(steps, divisor int) {
	s.Intent.PendingSteps += steps
	if divisor > 0 {
		s.Intent.StepDivisor = divisor
	}
}

// RequestToggleMute records a mute toggle intent. Toggle is its own
// inverse, so pending toggles cancel in pairs.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) RequestToggleMute() {
	s.Intent.MuteTogglePending = !s.Intent.MuteTogglePending
}

// RequestRefresh records a read-only refresh intent.
// This is intended to be called only by the daemon goroutine (single-owner).
func (s *DaemonState) RequestRefresh() {
	s.Intent.RefreshPending = true
}
