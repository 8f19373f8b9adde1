package main

import (
	"log/slog"
	"math"
)

// Backend contracts the orchestrator is built from. The daemon wires
// the real implementations; tests inject fakes.

type audioBackend interface {
	readVolume() (float64, bool)
	writeVolume(float64) bool
	hasHardwareMute() bool
	muted() (muted, ok bool)
	setMuted(bool) bool
	deviceName() string
	transportKind() string
}

type scriptBackend interface {
	available() bool
	setPercent(int)
	readPercent() (int, bool)
}

type displayBackend interface {
	supportsDisplay(displayInfo) bool
	readVolume(displayInfo) (float64, bool)
	writeVolume(displayInfo, float64) bool
	toggleMute(displayInfo) (norm float64, muted, ok bool)
	isMuted(displayInfo) bool
	prune([]displayInfo)
	pruneAll()
}

type displayLister interface {
	connected() ([]displayInfo, error)
}

// targetMode selects what a volume key should move.
type targetMode string

const (
	targetBuiltin       targetMode = "builtin"
	targetActiveDisplay targetMode = "active-display"
)

// volumeTarget is a resolved write destination. A nil display means
// the built-in output chain.
type volumeTarget struct {
	display *displayInfo
}

func (t volumeTarget) key() string {
	if t.display != nil {
		return t.display.Key
	}
	return "builtin"
}

// applyResult is what one public operation produced, handed back for
// publication. Backend names which tier landed the write: ddc, hal or
// script.
type applyResult struct {
	OK          bool
	Target      string
	Volume      float64
	Muted       bool
	Backend     string
	DeviceName  string
	Category    deviceCategory
	FeedbackCue bool
}

// builtinMuteState is the software-emulated mute for the built-in
// chain, used when the card has no hardware mute switch.
type builtinMuteState struct {
	muted   bool
	restore float64
}

// volumeManager resolves targets and walks the backend tiers with
// read-back verification: DDC/CI for external displays, then the HAL,
// then the scripting fallback which is taken on faith. One instance
// serves the whole daemon; every method runs on the effects worker.
type volumeManager struct {
	displays displayBackend
	lister   displayLister
	audio    audioBackend
	script   scriptBackend
	mode     func() targetMode
	pinned   func() string
	softMute builtinMuteState
	log      *slog.Logger
}

func newVolumeManager(
	displays displayBackend,
	lister displayLister,
	audio audioBackend,
	script scriptBackend,
	mode func() targetMode,
	pinned func() string,
	logger *slog.Logger,
) *volumeManager {
	return &volumeManager{
		displays: displays,
		lister:   lister,
		audio:    audio,
		script:   script,
		mode:     mode,
		pinned:   pinned,
		log:      logger,
	}
}

// resolveTarget picks the destination for this call. The mode is read
// fresh every time so a config reload takes effect immediately. In
// active-display mode the first connected external display wins (the
// pinned connector first, when configured); no external display falls
// back to builtin.
func (m *volumeManager) resolveTarget(hint string) volumeTarget {
	mode := m.mode()
	switch hint {
	case "builtin":
		return volumeTarget{}
	case "display":
		mode = targetActiveDisplay
	}
	if mode != targetActiveDisplay {
		return volumeTarget{}
	}
	displays, err := m.lister.connected()
	if err != nil {
		m.log.Debug("display scan failed", "error", err)
		return volumeTarget{}
	}
	pin := m.pinned()
	var candidate *displayInfo
	for i := range displays {
		if !displays[i].External {
			continue
		}
		if pin != "" && displays[i].Connector == pin {
			candidate = &displays[i]
			break
		}
		if candidate == nil {
			candidate = &displays[i]
		}
	}
	if candidate == nil {
		return volumeTarget{}
	}
	return volumeTarget{display: candidate}
}

// Increase raises the target volume by one step scaled down by the
// divisor.
func (m *volumeManager) Increase(stepDivisor int, hint string) applyResult {
	return m.StepBy(1, stepDivisor, hint)
}

// Decrease lowers the target volume by one step scaled down by the
// divisor.
func (m *volumeManager) Decrease(stepDivisor int, hint string) applyResult {
	return m.StepBy(-1, stepDivisor, hint)
}

// StepBy moves the target volume by steps*stepFraction/divisor from
// its current value. Coalesced key repeats arrive here as one call
// with the accumulated step count.
func (m *volumeManager) StepBy(steps, stepDivisor int, hint string) applyResult {
	if stepDivisor < 1 {
		stepDivisor = 1
	}
	t := m.resolveTarget(hint)
	cur, muted := m.currentState(t)
	delta := float64(steps) * volumeStepFraction / float64(stepDivisor)
	return m.write(t, clamp01(cur+delta), cur, muted)
}

// SetAbsolute writes an absolute normalized volume to the target.
func (m *volumeManager) SetAbsolute(v float64, hint string) applyResult {
	t := m.resolveTarget(hint)
	cur, muted := m.currentState(t)
	return m.write(t, clamp01(v), cur, muted)
}

// currentState reads the target's volume and mute as the write
// baseline. Reads fall down the same tiers as writes; a target that
// answers nowhere reports silent.
func (m *volumeManager) currentState(t volumeTarget) (float64, bool) {
	if t.display != nil {
		if v, ok := m.displays.readVolume(*t.display); ok {
			return v, m.displays.isMuted(*t.display) || v == 0
		}
	}
	if v, ok := m.audio.readVolume(); ok {
		muted := m.softMute.muted
		if hw, ok := m.audio.muted(); ok {
			muted = hw
		}
		return v, muted || v == 0
	}
	if pct, ok := m.script.readPercent(); ok {
		return clamp01(float64(pct) / 100), pct == 0
	}
	return 0, false
}

// write walks the tiers: Writing then Verifying per tier, falling to
// the next tier on verification failure; the scripting tier publishes
// unverified. prevVol/prevMuted gate the silent-to-audible feedback
// cue.
func (m *volumeManager) write(t volumeTarget, v, prevVol float64, prevMuted bool) applyResult {
	res := applyResult{Target: t.key(), Volume: v}
	m.identify(&res, t)

	written := ""
	if t.display != nil && m.displays.writeVolume(*t.display, v) {
		written = "ddc"
	}
	if written == "" && m.audio.writeVolume(v) {
		written = "hal"
		if v > 0 {
			m.clearSoftMute()
		}
	}
	if written == "" && m.script.available() {
		m.script.setPercent(int(math.Round(v * 100)))
		written = "script"
		if v > 0 {
			m.clearSoftMute()
		}
	}
	if written == "" {
		m.log.Warn("volume write exhausted every backend", "target", res.Target, "value", v)
		res.OK = false
		return res
	}
	res.OK = true
	res.Backend = written
	res.Muted = m.mutedAfterWrite(t, v)
	wasSilent := prevMuted || prevVol < silenceThreshold
	if wasSilent && v >= silenceThreshold && !res.Muted {
		res.FeedbackCue = true
	}
	return res
}

// mutedAfterWrite derives the published mute flag after a volume
// write: zero volume publishes as muted unless the hardware says
// otherwise.
func (m *volumeManager) mutedAfterWrite(t volumeTarget, v float64) bool {
	if t.display != nil {
		return m.displays.isMuted(*t.display) || v == 0
	}
	if hw, ok := m.audio.muted(); ok {
		return hw || v == 0
	}
	return m.softMute.muted || v == 0
}

// ToggleMute flips mute on the target, hardware mute when the device
// has it, the software-emulated store-and-restore otherwise. Muting
// at volume zero is a no-op that leaves mute off.
func (m *volumeManager) ToggleMute(hint string) applyResult {
	t := m.resolveTarget(hint)
	res := applyResult{Target: t.key()}
	m.identify(&res, t)

	if t.display != nil {
		if norm, muted, ok := m.displays.toggleMute(*t.display); ok {
			res.OK = true
			res.Backend = "ddc"
			res.Volume = norm
			res.Muted = muted
			if !muted && norm >= silenceThreshold {
				res.FeedbackCue = true
			}
			return res
		}
	}

	if m.audio.hasHardwareMute() {
		if cur, ok := m.audio.muted(); ok && m.audio.setMuted(!cur) {
			res.OK = true
			res.Backend = "hal"
			res.Muted = !cur
			if v, ok := m.audio.readVolume(); ok {
				res.Volume = v
			}
			if cur && res.Volume >= silenceThreshold {
				res.FeedbackCue = true
			}
			return res
		}
	}

	// software-emulated mute over the write cascade
	if m.softMute.muted {
		restore := m.softMute.restore
		if restore <= 0 {
			restore = minAudibleVolume
		}
		out := m.write(t, restore, 0, true)
		if out.OK {
			m.softMute = builtinMuteState{}
			out.Muted = false
		}
		return out
	}
	cur, _ := m.currentState(t)
	if cur <= 0 {
		res.OK = true
		res.Volume = 0
		res.Muted = false
		return res
	}
	out := m.write(t, 0, cur, false)
	if out.OK {
		m.softMute = builtinMuteState{muted: true, restore: cur}
		out.Muted = true
		out.FeedbackCue = false
	}
	return out
}

// Refresh re-reads the target state without writing, for change
// notifications and startup.
func (m *volumeManager) Refresh() applyResult {
	t := m.resolveTarget("")
	res := applyResult{Target: t.key()}
	m.identify(&res, t)
	v, muted := m.currentState(t)
	res.OK = true
	res.Volume = v
	res.Muted = muted
	return res
}

// SupportsVolumeControl reports whether any tier can move volume.
// The scripting tier makes this effectively unconditional.
func (m *volumeManager) SupportsVolumeControl() bool {
	return true
}

// IconFor picks the icon key for a volume/mute pair on the current
// device.
func (m *volumeManager) IconFor(v float64, muted bool) string {
	category := classifyDevice(m.audio.deviceName(), m.audio.transportKind())
	return iconKey(category, v, muted)
}

// PruneDisplays drops transports for displays that are gone; used on
// hotplug. PruneAllDisplays drops everything; used on resume.
func (m *volumeManager) PruneDisplays() {
	displays, err := m.lister.connected()
	if err != nil {
		m.log.Debug("display scan failed during prune", "error", err)
		return
	}
	m.displays.prune(displays)
}

func (m *volumeManager) PruneAllDisplays() {
	m.displays.pruneAll()
}

func (m *volumeManager) clearSoftMute() {
	m.softMute = builtinMuteState{}
}

// identify fills the device identity fields. External targets carry
// the display's own name; the builtin chain asks the HAL.
func (m *volumeManager) identify(res *applyResult, t volumeTarget) {
	if t.display != nil {
		res.DeviceName = t.display.Name
		res.Category = categoryNone
		return
	}
	res.DeviceName = m.audio.deviceName()
	res.Category = classifyDevice(res.DeviceName, m.audio.transportKind())
}
