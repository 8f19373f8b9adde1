package main

import (
	"context"
	"testing"
	"time"
)

// daemonHarness runs the full loop (reducer, effects worker, broadcast
// fan-out) over fake backends.
type daemonHarness struct {
	audio      *fakeAudio
	events     chan Event
	broadcasts chan StateBroadcast
	feedback   *recordingRunner
	done       chan struct{}
}

func startTestDaemon(t *testing.T, updateHz int, audio *fakeAudio) *daemonHarness {
	t.Helper()

	mgr := newTestManager(&fakeDisplayCtl{}, &fakeLister{}, audio, &fakeScript{}, targetBuiltin, "")
	rec := &recordingRunner{}
	exec := &effectsExecutor{
		mgr: mgr,
		feedback: &feedbackRunner{
			run:  rec.run,
			argv: func() []string { return []string{"beep"} },
			log:  testLogger(),
		},
	}

	h := &daemonHarness{
		audio:      audio,
		events:     make(chan Event, eventQueueSize),
		broadcasts: make(chan StateBroadcast, eventQueueSize),
		feedback:   rec,
		done:       make(chan struct{}),
	}

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() {
		runDaemon(ctx, h.events, exec, &DaemonState{}, updateHz, h.broadcasts, testLogger())
		close(h.done)
	}()
	return h
}

func recvBroadcast(t *testing.T, ch <-chan StateBroadcast, timeout time.Duration) StateBroadcast {
	t.Helper()
	select {
	case b := <-ch:
		return b
	case <-time.After(timeout):
		t.Fatal("timed out waiting for a broadcast")
	}
	return nil
}

func recvVolumeState(t *testing.T, ch <-chan StateBroadcast, timeout time.Duration) BroadcastVolumeState {
	t.Helper()
	b := recvBroadcast(t, ch, timeout)
	vs, ok := b.(BroadcastVolumeState)
	if !ok {
		t.Fatalf("broadcast = %T, want BroadcastVolumeState", b)
	}
	return vs
}

// TestDaemonStepEndToEnd tests the whole path: action in, tick flush,
// hardware write, observation, state broadcast out.
func TestDaemonStepEndToEnd(t *testing.T) {
	audio := &fakeAudio{vol: 0.5, volOK: true, writeOK: true, name: "HDA Intel PCH", transport: "builtin"}
	h := startTestDaemon(t, 200, audio)

	h.events <- VolumeStep{Steps: 1}

	vs := recvVolumeState(t, h.broadcasts, 2*time.Second)
	want := 0.5 + volumeStepFraction
	if vs.Snapshot.Volume != want {
		t.Errorf("broadcast volume = %v, want %v", vs.Snapshot.Volume, want)
	}
	if !vs.Snapshot.VolumeKnown {
		t.Error("broadcast volume not marked known")
	}
	if vs.Snapshot.Backend != "hal" {
		t.Errorf("broadcast backend = %q, want hal", vs.Snapshot.Backend)
	}
	if vs.Snapshot.Target != "builtin" {
		t.Errorf("broadcast target = %q, want builtin", vs.Snapshot.Target)
	}
	if len(h.audio.writes) != 1 || h.audio.writes[0] != want {
		t.Errorf("hal writes = %v, want [%v]", h.audio.writes, want)
	}
}

// TestDaemonCoalescesBurst tests that a key-repeat burst reaches the
// hardware as one accumulated write.
func TestDaemonCoalescesBurst(t *testing.T) {
	audio := &fakeAudio{vol: 0.5, volOK: true, writeOK: true}
	h := startTestDaemon(t, 10, audio)

	h.events <- VolumeStep{Steps: 1}
	h.events <- VolumeStep{Steps: 1}
	h.events <- VolumeStep{Steps: 1}

	vs := recvVolumeState(t, h.broadcasts, 2*time.Second)
	want := 0.5 + 3*volumeStepFraction
	if vs.Snapshot.Volume != want {
		t.Errorf("broadcast volume = %v, want %v", vs.Snapshot.Volume, want)
	}
	if len(h.audio.writes) != 1 {
		t.Errorf("hal writes = %v, want one coalesced write", h.audio.writes)
	}
}

// TestDaemonMuteCycleFeedback tests mute/unmute through the loop and
// the feedback cue on the audible transition.
func TestDaemonMuteCycleFeedback(t *testing.T) {
	audio := &fakeAudio{vol: 0.5, volOK: true, writeOK: true, hwMute: true, muteOK: true, setOK: true}
	h := startTestDaemon(t, 200, audio)

	h.events <- ToggleMute{}
	vs := recvVolumeState(t, h.broadcasts, 2*time.Second)
	if !vs.Snapshot.Muted {
		t.Fatalf("snapshot after mute = %+v", vs.Snapshot)
	}
	if vs.Snapshot.IconKey != "audio-volume-muted" {
		t.Errorf("muted icon = %q", vs.Snapshot.IconKey)
	}

	h.events <- ToggleMute{}
	vs = recvVolumeState(t, h.broadcasts, 2*time.Second)
	if vs.Snapshot.Muted {
		t.Fatalf("snapshot after unmute = %+v", vs.Snapshot)
	}

	waitForCalls(t, h.feedback, 1)
	if calls := h.feedback.snapshot(); calls[0].name != "beep" {
		t.Errorf("feedback command = %q, want beep", calls[0].name)
	}
}

// TestDaemonSnapshotRequest tests the get-state round trip through the
// reducer and the effects worker.
func TestDaemonSnapshotRequest(t *testing.T) {
	audio := &fakeAudio{vol: 0.5, volOK: true, writeOK: true}
	h := startTestDaemon(t, 200, audio)

	h.events <- SetVolumeAbsolute{Value: 0.8}
	recvVolumeState(t, h.broadcasts, 2*time.Second)

	reply := make(chan StateSnapshot, 1)
	h.events <- RequestStateSnapshot{Reply: reply}

	select {
	case snap := <-reply:
		if snap.Volume != 0.8 || !snap.VolumeKnown {
			t.Errorf("snapshot = %+v", snap)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for the snapshot reply")
	}
}

// TestDaemonRefresh tests a read-only probe driven through the loop.
func TestDaemonRefresh(t *testing.T) {
	audio := &fakeAudio{vol: 0.42, volOK: true, name: "HDA Intel PCH", transport: "builtin"}
	h := startTestDaemon(t, 200, audio)

	h.events <- RefreshState{}

	vs := recvVolumeState(t, h.broadcasts, 2*time.Second)
	if vs.Snapshot.Volume != 0.42 {
		t.Errorf("refreshed volume = %v, want 0.42", vs.Snapshot.Volume)
	}
	if vs.Snapshot.TargetName != "HDA Intel PCH" {
		t.Errorf("target name = %q", vs.Snapshot.TargetName)
	}
	if len(h.audio.writes) != 0 {
		t.Errorf("refresh wrote volume: %v", h.audio.writes)
	}
}

// TestDaemonStopsWithEventsChannel tests clean shutdown when the event
// source closes.
func TestDaemonStopsWithEventsChannel(t *testing.T) {
	audio := &fakeAudio{vol: 0.5, volOK: true, writeOK: true}
	h := startTestDaemon(t, 200, audio)

	close(h.events)
	select {
	case <-h.done:
	case <-time.After(2 * time.Second):
		t.Fatal("daemon did not stop when events closed")
	}
}
