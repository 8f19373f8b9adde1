package main

import (
	"log/slog"
	"math"
	"sync"
)

// ddcTransport is the contract both I2C access paths implement.
// readVolume reports ok only for a checksum-validated reply; current
// and max are raw device units. writeVolume reports whether the frame
// went out, not whether the panel applied it (the link has no ack).
type ddcTransport interface {
	kind() string
	supported() bool
	readVolume() (current, max uint16, ok bool)
	writeVolume(current, max uint16) bool
	close()
}

// transportFactory opens one kind of transport on an i2c device node.
type transportFactory struct {
	kind string
	open func(path string, retry retryPolicy, log *slog.Logger) (ddcTransport, error)
}

func defaultTransportFactories() []transportFactory {
	return []transportFactory{
		{kind: "i2c-dev", open: func(p string, r retryPolicy, l *slog.Logger) (ddcTransport, error) {
			return openDevI2C(p, r, l)
		}},
		{kind: "i2c-rdwr", open: func(p string, r retryPolicy, l *slog.Logger) (ddcTransport, error) {
			return openRdwrI2C(p, r, l)
		}},
	}
}

// cachedTransport is one resolved display. transport is nil when
// discovery exhausted every path; the entry still sticks so a dead
// display is not re-probed on every keypress.
type cachedTransport struct {
	info      displayInfo
	transport ddcTransport
	maxValue  uint16  // last validated max, never overwritten by a failure
	lastNorm  float64 // last normalized volume seen on the wire
	hasNorm   bool
}

// displayMute is the software-emulated mute state for one display.
type displayMute struct {
	muted   bool
	restore float64
}

// displayControl owns DDC/CI access to external displays: transport
// discovery and caching, raw-to-normalized conversion, and software
// mute-restore. The cache is shared between the write path and the
// hotplug prune path, hence the mutex.
type displayControl struct {
	mu        sync.Mutex
	cache     map[string]*cachedTransport
	mutes     map[string]displayMute
	resolver  *displayResolver
	store     *probeStore
	factories []transportFactory
	retry     retryPolicy
	log       *slog.Logger
}

func newDisplayControl(resolver *displayResolver, store *probeStore, logger *slog.Logger) *displayControl {
	return &displayControl{
		cache:     make(map[string]*cachedTransport),
		mutes:     make(map[string]displayMute),
		resolver:  resolver,
		store:     store,
		factories: defaultTransportFactories(),
		retry:     ddcRetry,
		log:       logger,
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// entryFor returns the cached transport entry for a display, running
// discovery on first use. The returned entry may hold a nil transport
// when the display answered on no path.
func (d *displayControl) entryFor(info displayInfo) *cachedTransport {
	d.mu.Lock()
	if e, ok := d.cache[info.Key]; ok {
		d.mu.Unlock()
		return e
	}
	d.mu.Unlock()

	e := d.discover(info)

	d.mu.Lock()
	defer d.mu.Unlock()
	if prev, ok := d.cache[info.Key]; ok {
		// another path resolved it first; keep the existing identity
		if e.transport != nil && prev.transport != e.transport {
			e.transport.close()
		}
		return prev
	}
	d.cache[info.Key] = e
	return e
}

// discover walks candidate buses and transport kinds until one
// validated read succeeds. The persisted probe record reorders kinds so
// the last working one goes first.
func (d *displayControl) discover(info displayInfo) *cachedTransport {
	entry := &cachedTransport{info: info}

	paths := []string{}
	if info.I2CPath != "" {
		paths = append(paths, info.I2CPath)
	} else {
		paths = d.resolver.candidateBuses()
	}

	factories := d.factories
	if rec, ok := d.store.lookup(info.Key); ok {
		factories = reorderFactories(factories, rec.Transport)
	}

	for _, path := range paths {
		for _, f := range factories {
			t, err := f.open(path, d.retry, d.log)
			if err != nil {
				d.log.Debug("transport open failed",
					"display", info.Key, "kind", f.kind, "path", path, "error", err)
				continue
			}
			current, maxVal, ok := t.readVolume()
			if !ok || maxVal == 0 {
				t.close()
				continue
			}
			entry.transport = t
			entry.maxValue = maxVal
			entry.lastNorm = clamp01(float64(current) / float64(maxVal))
			entry.hasNorm = true
			d.log.Info("display volume transport resolved",
				"display", info.Key, "kind", t.kind(), "path", path, "max", maxVal)
			d.store.remember(probeRecord{
				Key:       info.Key,
				Connector: info.Connector,
				Transport: t.kind(),
				Max:       maxVal,
			})
			return entry
		}
	}
	d.log.Info("display not controllable over ddc", "display", info.Key)
	return entry
}

func reorderFactories(fs []transportFactory, preferred string) []transportFactory {
	for i, f := range fs {
		if f.kind == preferred && i != 0 {
			out := make([]transportFactory, 0, len(fs))
			out = append(out, f)
			out = append(out, fs[:i]...)
			out = append(out, fs[i+1:]...)
			return out
		}
	}
	return fs
}

// supportsDisplay reports whether the display answers DDC volume reads.
// Internal panels are never DDC targets.
func (d *displayControl) supportsDisplay(info displayInfo) bool {
	if !info.External {
		return false
	}
	e := d.entryFor(info)
	return e.transport != nil && e.transport.supported()
}

// readVolume returns the display's normalized volume. A failed read
// reports ok=false and leaves every cached value untouched.
func (d *displayControl) readVolume(info displayInfo) (float64, bool) {
	if !info.External {
		return 0, false
	}
	e := d.entryFor(info)
	if e.transport == nil {
		return 0, false
	}
	current, maxVal, ok := e.transport.readVolume()
	if !ok {
		return 0, false
	}
	if maxVal > 0 {
		e.maxValue = maxVal
		d.store.remember(probeRecord{
			Key:       info.Key,
			Connector: info.Connector,
			Transport: e.transport.kind(),
			Max:       maxVal,
		})
	}
	norm := clamp01(float64(current) / float64(e.maxValue))
	e.lastNorm = norm
	e.hasNorm = true
	return norm, true
}

// writeVolume sets the display's normalized volume. The max is
// refreshed with a read first when possible; a failed refresh falls
// back to the cached max rather than aborting.
func (d *displayControl) writeVolume(info displayInfo, norm float64) bool {
	if !info.External {
		return false
	}
	e := d.entryFor(info)
	if e.transport == nil {
		return false
	}
	if _, maxVal, ok := e.transport.readVolume(); ok && maxVal > 0 {
		e.maxValue = maxVal
	}
	if e.maxValue == 0 {
		return false
	}
	norm = clamp01(norm)
	raw := uint16(math.Round(float64(e.maxValue) * norm))
	if !e.transport.writeVolume(raw, e.maxValue) {
		return false
	}
	e.lastNorm = norm
	e.hasNorm = true
	if norm > 0 {
		d.setMuteState(info.Key, displayMute{})
	}
	return true
}

// toggleMute flips the software-emulated mute for a display and
// returns the resulting volume and mute flag. Muting at volume zero is
// a no-op that leaves mute off.
func (d *displayControl) toggleMute(info displayInfo) (norm float64, muted, ok bool) {
	if !info.External {
		return 0, false, false
	}
	e := d.entryFor(info)
	if e.transport == nil {
		return 0, false, false
	}
	state := d.muteState(info.Key)
	if state.muted {
		restore := state.restore
		if restore <= 0 {
			restore = minAudibleVolume
		}
		if !d.writeVolume(info, restore) {
			return 0, true, false
		}
		d.setMuteState(info.Key, displayMute{})
		return restore, false, true
	}

	cur, readOK := d.readVolume(info)
	if !readOK && e.hasNorm {
		cur, readOK = e.lastNorm, true
	}
	if !readOK {
		return 0, false, false
	}
	if cur <= 0 {
		return 0, false, true
	}
	if !d.writeVolume(info, 0) {
		return cur, false, false
	}
	d.setMuteState(info.Key, displayMute{muted: true, restore: cur})
	return 0, true, true
}

func (d *displayControl) muteState(key string) displayMute {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.mutes[key]
}

func (d *displayControl) setMuteState(key string, m displayMute) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m == (displayMute{}) {
		delete(d.mutes, key)
		return
	}
	d.mutes[key] = m
}

func (d *displayControl) isMuted(info displayInfo) bool {
	return d.muteState(info.Key).muted
}

// prune drops cache entries for displays no longer connected and
// closes their transports. Mute state goes with them; a reattached
// display starts fresh.
func (d *displayControl) prune(connected []displayInfo) {
	alive := make(map[string]bool, len(connected))
	for _, info := range connected {
		alive[info.Key] = true
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, e := range d.cache {
		if alive[key] {
			continue
		}
		if e.transport != nil {
			e.transport.close()
		}
		delete(d.cache, key)
		delete(d.mutes, key)
		d.log.Debug("pruned display transport", "display", key)
	}
}

// pruneAll empties the cache, used on resume from sleep when every
// i2c handle is suspect.
func (d *displayControl) pruneAll() {
	d.mu.Lock()
	defer d.mu.Unlock()
	for key, e := range d.cache {
		if e.transport != nil {
			e.transport.close()
		}
		delete(d.cache, key)
	}
}
