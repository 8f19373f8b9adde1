package main

import (
	"fmt"
	"log/slog"
	"math"
	"strings"
)

// halElement describes one mixer element usable for playback control.
type halElement struct {
	ID       uint32 // kernel numid
	Name     string
	Channels int
	Min, Max int64
	Switch   bool // boolean mute switch rather than a volume
}

// baseName strips the ALSA suffixes, leaving "Master", "PCM", ...
func (e halElement) baseName() string {
	name := strings.TrimSuffix(e.Name, " Playback Volume")
	return strings.TrimSuffix(name, " Playback Switch")
}

// cardIdentity is the identifying subset of the sound card info.
type cardIdentity struct {
	Name       string
	Driver     string
	Components string
}

// ctlDevice is the narrow kernel surface the backend depends on. The
// real implementation wraps the ALSA control node ioctls; tests
// substitute a fake.
type ctlDevice interface {
	identity() (cardIdentity, error)
	playbackElements() ([]halElement, error)
	readValues(numid uint32, count int) ([]int64, error)
	writeValues(numid uint32, values []int64) error
	subscribe() (<-chan struct{}, error)
	close()
}

// alsaBackend controls the default output card through its control
// device. Preference order on writes: the device-wide master element
// verified against a tight read-back tolerance, then per-element
// channel writes verified loosely, because some USB devices accept the
// master write and apply nothing.
type alsaBackend struct {
	dev     ctlDevice
	card    cardIdentity
	main    *halElement
	volumes []halElement
	muteSw  *halElement
	log     *slog.Logger
}

func newAlsaBackend(dev ctlDevice, logger *slog.Logger) (*alsaBackend, error) {
	card, err := dev.identity()
	if err != nil {
		return nil, fmt.Errorf("query card identity: %w", err)
	}
	elems, err := dev.playbackElements()
	if err != nil {
		return nil, fmt.Errorf("enumerate playback elements: %w", err)
	}
	b := &alsaBackend{dev: dev, card: card, log: logger}
	for i := range elems {
		e := elems[i]
		if e.Switch {
			if e.baseName() == "Master" || b.muteSw == nil {
				sw := e
				b.muteSw = &sw
			}
			continue
		}
		if e.Max <= e.Min {
			continue
		}
		if e.baseName() == "Master" && b.main == nil {
			m := e
			b.main = &m
		}
		b.volumes = append(b.volumes, e)
	}
	b.sortVolumes()
	if len(b.volumes) == 0 {
		return nil, fmt.Errorf("card %q exposes no playback volume elements", card.Name)
	}
	logger.Info("audio hal ready",
		"card", card.Name,
		"driver", card.Driver,
		"elements", len(b.volumes),
		"master", b.main != nil,
		"hwmute", b.muteSw != nil)
	return b, nil
}

// sortVolumes orders elements by the fallback table so per-channel
// writes hit the conventional outputs first.
func (b *alsaBackend) sortVolumes() {
	rank := func(e halElement) int {
		for i, n := range fallbackElements {
			if e.baseName() == n {
				return i
			}
		}
		return len(fallbackElements)
	}
	sorted := make([]halElement, 0, len(b.volumes))
	for r := 0; r <= len(fallbackElements); r++ {
		for _, e := range b.volumes {
			if rank(e) == r {
				sorted = append(sorted, e)
			}
		}
	}
	b.volumes = sorted
}

func (b *alsaBackend) normalize(e halElement, v int64) float64 {
	return clamp01(float64(v-e.Min) / float64(e.Max-e.Min))
}

func (b *alsaBackend) denormalize(e halElement, norm float64) int64 {
	return e.Min + int64(math.Round(clamp01(norm)*float64(e.Max-e.Min)))
}

// readElement averages the element's channels into one normalized
// value.
func (b *alsaBackend) readElement(e halElement) (float64, bool) {
	vals, err := b.dev.readValues(e.ID, e.Channels)
	if err != nil || len(vals) == 0 {
		return 0, false
	}
	n := len(vals)
	if n > maxFallbackChannels {
		n = maxFallbackChannels
	}
	var sum float64
	for _, v := range vals[:n] {
		sum += b.normalize(e, v)
	}
	return sum / float64(n), true
}

func (b *alsaBackend) writeElement(e halElement, norm float64) bool {
	raw := b.denormalize(e, norm)
	vals := make([]int64, e.Channels)
	for i := range vals {
		vals[i] = raw
	}
	if err := b.dev.writeValues(e.ID, vals); err != nil {
		b.log.Debug("element write failed", "element", e.Name, "error", err)
		return false
	}
	return true
}

// readVolume returns the device's normalized volume: the master
// element when present, otherwise the average across every playback
// element.
func (b *alsaBackend) readVolume() (float64, bool) {
	if b.main != nil {
		if v, ok := b.readElement(*b.main); ok {
			return v, true
		}
	}
	var sum float64
	var n int
	for _, e := range b.volumes {
		if v, ok := b.readElement(e); ok {
			sum += v
			n++
		}
	}
	if n == 0 {
		return 0, false
	}
	return sum / float64(n), true
}

// writeVolume applies a normalized volume and confirms it stuck.
// Master write verified within the tight tolerance wins; otherwise
// every element is written and one confirmed channel write within the
// loose tolerance counts as success.
func (b *alsaBackend) writeVolume(norm float64) bool {
	norm = clamp01(norm)
	if b.main != nil && b.writeElement(*b.main, norm) {
		if got, ok := b.readElement(*b.main); ok && math.Abs(got-norm) <= mainVolumeEpsilon {
			return true
		}
		b.log.Debug("master write failed verification", "want", norm)
	}
	verified := false
	for _, e := range b.volumes {
		if !b.writeElement(e, norm) {
			continue
		}
		if got, ok := b.readElement(e); ok && math.Abs(got-norm) <= channelEpsilon {
			verified = true
		}
	}
	return verified
}

func (b *alsaBackend) hasHardwareMute() bool { return b.muteSw != nil }

// muted reads the hardware mute switch; ok is false without one.
func (b *alsaBackend) muted() (muted, ok bool) {
	if b.muteSw == nil {
		return false, false
	}
	vals, err := b.dev.readValues(b.muteSw.ID, b.muteSw.Channels)
	if err != nil || len(vals) == 0 {
		return false, false
	}
	// switch semantics: 1 = playback enabled
	return vals[0] == 0, true
}

func (b *alsaBackend) setMuted(m bool) bool {
	if b.muteSw == nil {
		return false
	}
	var v int64 = 1
	if m {
		v = 0
	}
	vals := make([]int64, b.muteSw.Channels)
	for i := range vals {
		vals[i] = v
	}
	if err := b.dev.writeValues(b.muteSw.ID, vals); err != nil {
		b.log.Debug("mute switch write failed", "error", err)
		return false
	}
	got, ok := b.muted()
	return ok && got == m
}

func (b *alsaBackend) deviceName() string { return b.card.Name }

// transportKind guesses how the card is attached, for icon
// classification.
func (b *alsaBackend) transportKind() string {
	driver := strings.ToLower(b.card.Driver)
	comp := strings.ToLower(b.card.Components)
	switch {
	case strings.Contains(driver, "bluez") || strings.Contains(driver, "bluealsa") ||
		strings.Contains(comp, "bluetooth"):
		return "bluetooth"
	case strings.Contains(driver, "usb") || strings.Contains(comp, "usb"):
		return "usb"
	default:
		return "builtin"
	}
}

// changes exposes the kernel's control-change notifications.
func (b *alsaBackend) changes() (<-chan struct{}, error) {
	return b.dev.subscribe()
}

func (b *alsaBackend) close() { b.dev.close() }

// noAudioBackend stands in when no usable sound card exists. Every call
// reports failure, so the manager falls through to the scripting tier.
type noAudioBackend struct{}

func (noAudioBackend) readVolume() (float64, bool) { return 0, false }
func (noAudioBackend) writeVolume(float64) bool    { return false }
func (noAudioBackend) hasHardwareMute() bool       { return false }
func (noAudioBackend) muted() (bool, bool)         { return false, false }
func (noAudioBackend) setMuted(bool) bool          { return false }
func (noAudioBackend) deviceName() string          { return "" }
func (noAudioBackend) transportKind() string       { return "" }
