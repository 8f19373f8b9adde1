package main

import (
	"errors"
	"log/slog"
	"path/filepath"
	"testing"
)

// fakeTransport is an in-memory ddcTransport with a settable register.
type fakeTransport struct {
	kindName string
	cur, max uint16
	readOK   bool
	writeOK  bool

	writes []uint16
	reads  int
	closed bool
}

func (f *fakeTransport) kind() string    { return f.kindName }
func (f *fakeTransport) supported() bool { return f.readOK }

func (f *fakeTransport) readVolume() (uint16, uint16, bool) {
	f.reads++
	return f.cur, f.max, f.readOK
}

func (f *fakeTransport) writeVolume(cur, max uint16) bool {
	f.writes = append(f.writes, cur)
	if f.writeOK {
		f.cur = cur
	}
	return f.writeOK
}

func (f *fakeTransport) close() { f.closed = true }

func factoryFor(kind string, tr ddcTransport, openErr error, opens *int) transportFactory {
	return transportFactory{kind: kind, open: func(string, retryPolicy, *slog.Logger) (ddcTransport, error) {
		if opens != nil {
			*opens++
		}
		if openErr != nil {
			return nil, openErr
		}
		return tr, nil
	}}
}

func newTestDisplayControl(store *probeStore, factories ...transportFactory) *displayControl {
	return &displayControl{
		cache:     make(map[string]*cachedTransport),
		mutes:     make(map[string]displayMute),
		store:     store,
		factories: factories,
		retry:     retryPolicy{MaxAttempts: 1},
		log:       testLogger(),
	}
}

// ddcDisplay pins the i2c path so discovery never needs a bus scan.
func ddcDisplay() displayInfo {
	d := extDP1
	d.I2CPath = "/dev/i2c-7"
	return d
}

// TestDisplayControlDiscovery tests that the first validated read caches
// the transport for every later call.
func TestDisplayControlDiscovery(t *testing.T) {
	tr := &fakeTransport{kindName: "i2c-dev", cur: 42, max: 100, readOK: true, writeOK: true}
	opens := 0
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", tr, nil, &opens))
	info := ddcDisplay()

	v, ok := d.readVolume(info)
	if !ok {
		t.Fatal("readVolume failed")
	}
	if v != 0.42 {
		t.Errorf("volume = %v, want 0.42", v)
	}
	if !d.supportsDisplay(info) {
		t.Error("supportsDisplay = false")
	}

	d.readVolume(info)
	if opens != 1 {
		t.Errorf("factory opened %d times, want 1", opens)
	}
}

// TestDisplayControlDiscoveryFallsThroughKinds tests that a transport
// whose probe read fails is closed and the next kind is tried.
func TestDisplayControlDiscoveryFallsThroughKinds(t *testing.T) {
	dead := &fakeTransport{kindName: "i2c-dev"}
	live := &fakeTransport{kindName: "i2c-rdwr", cur: 30, max: 60, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil,
		factoryFor("broken", nil, errors.New("open failed"), nil),
		factoryFor("i2c-dev", dead, nil, nil),
		factoryFor("i2c-rdwr", live, nil, nil),
	)

	v, ok := d.readVolume(ddcDisplay())
	if !ok || v != 0.5 {
		t.Fatalf("readVolume = %v, %v; want 0.5 over the last kind", v, ok)
	}
	if !dead.closed {
		t.Error("failed probe transport left open")
	}
}

// TestDisplayControlDeadDisplaySticks tests that an unreachable display
// is probed once, not on every keypress.
func TestDisplayControlDeadDisplaySticks(t *testing.T) {
	opens := 0
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", nil, errors.New("no ddc"), &opens))
	info := ddcDisplay()

	if _, ok := d.readVolume(info); ok {
		t.Fatal("readVolume succeeded unexpectedly")
	}
	if d.supportsDisplay(info) {
		t.Error("supportsDisplay = true for a dead display")
	}
	d.readVolume(info)
	d.writeVolume(info, 0.5)
	if opens != 1 {
		t.Errorf("factory opened %d times, want 1", opens)
	}
}

// TestDisplayControlInternalPanel tests that internal panels are never
// DDC targets.
func TestDisplayControlInternalPanel(t *testing.T) {
	opens := 0
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", nil, errors.New("unreachable"), &opens))

	if d.supportsDisplay(builtinPanel) {
		t.Error("supportsDisplay = true for the internal panel")
	}
	if _, ok := d.readVolume(builtinPanel); ok {
		t.Error("readVolume succeeded on the internal panel")
	}
	if d.writeVolume(builtinPanel, 0.5) {
		t.Error("writeVolume succeeded on the internal panel")
	}
	if _, _, ok := d.toggleMute(builtinPanel); ok {
		t.Error("toggleMute succeeded on the internal panel")
	}
	if opens != 0 {
		t.Errorf("internal panel triggered %d probes", opens)
	}
}

// TestDisplayControlWriteVolume tests raw conversion on the write path,
// including the max refresh read.
func TestDisplayControlWriteVolume(t *testing.T) {
	tr := &fakeTransport{kindName: "i2c-dev", cur: 10, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", tr, nil, nil))
	info := ddcDisplay()

	if !d.writeVolume(info, 0.5) {
		t.Fatal("writeVolume failed")
	}
	if tr.writes[len(tr.writes)-1] != 50 {
		t.Errorf("raw write = %d, want 50", tr.writes[len(tr.writes)-1])
	}

	// The display renegotiated its range; the refresh read picks it up.
	tr.max = 200
	d.writeVolume(info, 0.5)
	if tr.writes[len(tr.writes)-1] != 100 {
		t.Errorf("raw write = %d, want 100 on the new range", tr.writes[len(tr.writes)-1])
	}

	// A failed refresh read falls back to the cached max.
	tr.readOK = false
	d.writeVolume(info, 0.25)
	if tr.writes[len(tr.writes)-1] != 50 {
		t.Errorf("raw write = %d, want 50 from the cached max", tr.writes[len(tr.writes)-1])
	}
}

// TestDisplayControlMuteRestore tests the display's emulated mute cycle:
// zero on mute, the remembered level on unmute.
func TestDisplayControlMuteRestore(t *testing.T) {
	tr := &fakeTransport{kindName: "i2c-dev", cur: 60, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", tr, nil, nil))
	info := ddcDisplay()

	norm, muted, ok := d.toggleMute(info)
	if !ok || !muted || norm != 0 {
		t.Fatalf("mute = (%v, %v, %v)", norm, muted, ok)
	}
	if !d.isMuted(info) {
		t.Error("isMuted = false after mute")
	}
	if tr.cur != 0 {
		t.Errorf("display register = %d, want 0", tr.cur)
	}

	norm, muted, ok = d.toggleMute(info)
	if !ok || muted {
		t.Fatalf("unmute = (%v, %v, %v)", norm, muted, ok)
	}
	if norm != 0.6 {
		t.Errorf("restored volume = %v, want 0.6", norm)
	}
	if d.isMuted(info) {
		t.Error("isMuted = true after unmute")
	}
	if tr.cur != 60 {
		t.Errorf("display register = %d, want 60", tr.cur)
	}
}

// TestDisplayControlMuteAtZero tests that muting a silent display is a
// no-op.
func TestDisplayControlMuteAtZero(t *testing.T) {
	tr := &fakeTransport{kindName: "i2c-dev", cur: 0, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", tr, nil, nil))
	info := ddcDisplay()

	norm, muted, ok := d.toggleMute(info)
	if !ok || muted || norm != 0 {
		t.Errorf("toggle at zero = (%v, %v, %v)", norm, muted, ok)
	}
	if len(tr.writes) != 0 {
		t.Errorf("writes = %v, want none", tr.writes)
	}
	if d.isMuted(info) {
		t.Error("mute latched at zero volume")
	}
}

// TestDisplayControlMuteRestoreFloor tests the restore floor when the
// stored level is unusable.
func TestDisplayControlMuteRestoreFloor(t *testing.T) {
	tr := &fakeTransport{kindName: "i2c-dev", cur: 0, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", tr, nil, nil))
	info := ddcDisplay()
	d.setMuteState(info.Key, displayMute{muted: true})

	norm, muted, ok := d.toggleMute(info)
	if !ok || muted {
		t.Fatalf("unmute = (%v, %v, %v)", norm, muted, ok)
	}
	if norm != minAudibleVolume {
		t.Errorf("restored volume = %v, want floor %v", norm, minAudibleVolume)
	}
}

// TestDisplayControlVolumeWriteClearsMute tests that any audible write
// drops the emulated mute.
func TestDisplayControlVolumeWriteClearsMute(t *testing.T) {
	tr := &fakeTransport{kindName: "i2c-dev", cur: 60, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil, factoryFor("i2c-dev", tr, nil, nil))
	info := ddcDisplay()

	d.toggleMute(info)
	if !d.isMuted(info) {
		t.Fatal("mute did not latch")
	}

	if !d.writeVolume(info, 0.3) {
		t.Fatal("writeVolume failed")
	}
	if d.isMuted(info) {
		t.Error("mute survived an audible volume write")
	}
}

// TestDisplayControlPrune tests dropping transports for unplugged
// displays and the resume-time full prune.
func TestDisplayControlPrune(t *testing.T) {
	tr1 := &fakeTransport{kindName: "i2c-dev", cur: 10, max: 100, readOK: true, writeOK: true}
	tr2 := &fakeTransport{kindName: "i2c-dev", cur: 20, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(nil, transportFactory{kind: "i2c-dev",
		open: func(path string, _ retryPolicy, _ *slog.Logger) (ddcTransport, error) {
			if path == "/dev/i2c-7" {
				return tr1, nil
			}
			return tr2, nil
		}})

	info1 := ddcDisplay()
	info2 := extDP2
	info2.I2CPath = "/dev/i2c-8"
	d.readVolume(info1)
	d.readVolume(info2)
	d.toggleMute(info2)

	d.prune([]displayInfo{info1})
	if tr1.closed {
		t.Error("surviving display transport closed")
	}
	if !tr2.closed {
		t.Error("unplugged display transport left open")
	}
	if d.isMuted(info2) {
		t.Error("mute state survived the prune")
	}

	d.pruneAll()
	if !tr1.closed {
		t.Error("pruneAll left a transport open")
	}
}

// TestReorderFactories tests putting the remembered transport kind
// first.
func TestReorderFactories(t *testing.T) {
	fs := []transportFactory{{kind: "i2c-dev"}, {kind: "i2c-rdwr"}}

	out := reorderFactories(fs, "i2c-rdwr")
	if out[0].kind != "i2c-rdwr" || out[1].kind != "i2c-dev" {
		t.Errorf("order = [%s %s]", out[0].kind, out[1].kind)
	}

	out = reorderFactories(fs, "i2c-dev")
	if out[0].kind != "i2c-dev" {
		t.Errorf("already-first reorder moved %s up", out[0].kind)
	}

	out = reorderFactories(fs, "usb-mccs")
	if out[0].kind != "i2c-dev" || out[1].kind != "i2c-rdwr" {
		t.Error("unknown preferred kind changed the order")
	}
}

// TestDisplayControlPreferredTransport tests that a remembered probe
// record reorders discovery so the last working kind goes first.
func TestDisplayControlPreferredTransport(t *testing.T) {
	store, err := openProbeStore(filepath.Join(t.TempDir(), "displays.db"), testLogger())
	if err != nil {
		t.Fatalf("openProbeStore failed: %v", err)
	}
	defer store.close()

	info := ddcDisplay()
	store.remember(probeRecord{Key: info.Key, Connector: info.Connector, Transport: "i2c-rdwr", Max: 100})

	var order []string
	mk := func(kind string, tr ddcTransport) transportFactory {
		return transportFactory{kind: kind, open: func(string, retryPolicy, *slog.Logger) (ddcTransport, error) {
			order = append(order, kind)
			return tr, nil
		}}
	}
	live := &fakeTransport{kindName: "i2c-rdwr", cur: 50, max: 100, readOK: true, writeOK: true}
	d := newTestDisplayControl(store,
		mk("i2c-dev", &fakeTransport{kindName: "i2c-dev"}),
		mk("i2c-rdwr", live),
	)

	if _, ok := d.readVolume(info); !ok {
		t.Fatal("readVolume failed")
	}
	if len(order) == 0 || order[0] != "i2c-rdwr" {
		t.Errorf("probe order = %v, want i2c-rdwr first", order)
	}
}
