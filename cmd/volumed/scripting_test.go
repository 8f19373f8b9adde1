package main

import (
	"context"
	"sync"
	"testing"
	"time"
)

// scriptCall is one recorded external command invocation.
type scriptCall struct {
	name string
	args []string
}

// recordingRunner captures spawned commands instead of executing them.
// Flushes run on timer goroutines, so access goes through the mutex.
type recordingRunner struct {
	mu    sync.Mutex
	calls []scriptCall
	out   string
	err   error
}

func (r *recordingRunner) run(ctx context.Context, name string, args ...string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, scriptCall{name: name, args: args})
	return r.out, r.err
}

func (r *recordingRunner) snapshot() []scriptCall {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]scriptCall(nil), r.calls...)
}

func newTestScriptBackend(rec *recordingRunner) *scriptingBackend {
	return &scriptingBackend{
		tool:     &knownMixerTools[0], // pactl
		run:      rec.run,
		debounce: 20 * time.Millisecond,
		log:      testLogger(),
	}
}

// waitForCalls polls until the runner has recorded at least n calls.
func waitForCalls(t *testing.T, rec *recordingRunner, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if len(rec.snapshot()) >= n {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %d recorded calls, have %d", n, len(rec.snapshot()))
}

// TestScripting_DebounceCoalescesBurst tests that a burst of writes
// spawns one unmute+set pair carrying only the final value.
func TestScripting_DebounceCoalescesBurst(t *testing.T) {
	rec := &recordingRunner{}
	s := newTestScriptBackend(rec)

	for _, pct := range []int{10, 20, 30, 40, 50} {
		s.setPercent(pct)
	}

	waitForCalls(t, rec, 2)

	// Give stale timers a chance to misfire before counting.
	time.Sleep(60 * time.Millisecond)

	calls := rec.snapshot()
	if len(calls) != 2 {
		t.Fatalf("expected exactly 2 spawned commands (unmute+set), got %d: %v", len(calls), calls)
	}

	// Unmute always goes first.
	if calls[0].args[0] != "set-sink-mute" {
		t.Errorf("first call = %v, want unmute", calls[0].args)
	}
	set := calls[1]
	if set.args[0] != "set-sink-volume" {
		t.Fatalf("second call = %v, want volume set", set.args)
	}
	if got := set.args[len(set.args)-1]; got != "50%" {
		t.Errorf("set value = %q, want 50%% (latest wins)", got)
	}
}

// TestScripting_SeparatedWritesBothRun tests that writes outside the
// debounce window each reach the tool.
func TestScripting_SeparatedWritesBothRun(t *testing.T) {
	rec := &recordingRunner{}
	s := newTestScriptBackend(rec)

	s.setPercent(30)
	waitForCalls(t, rec, 2)

	s.setPercent(60)
	waitForCalls(t, rec, 4)

	calls := rec.snapshot()
	first := calls[1]
	second := calls[3]
	if got := first.args[len(first.args)-1]; got != "30%" {
		t.Errorf("first set = %q, want 30%%", got)
	}
	if got := second.args[len(second.args)-1]; got != "60%" {
		t.Errorf("second set = %q, want 60%%", got)
	}
}

// TestScripting_ClampsPercent tests out-of-range requests clamp to 0-100.
func TestScripting_ClampsPercent(t *testing.T) {
	rec := &recordingRunner{}
	s := newTestScriptBackend(rec)

	s.setPercent(150)
	waitForCalls(t, rec, 2)

	calls := rec.snapshot()
	set := calls[1]
	if got := set.args[len(set.args)-1]; got != "100%" {
		t.Errorf("set value = %q, want 100%%", got)
	}
}

// TestScripting_NoToolIsInert tests that a machine without any mixer
// CLI neither panics nor spawns anything.
func TestScripting_NoToolIsInert(t *testing.T) {
	rec := &recordingRunner{}
	s := &scriptingBackend{
		run:      rec.run,
		debounce: time.Millisecond,
		log:      testLogger(),
	}

	if s.available() {
		t.Error("backend without a tool should not report available")
	}

	s.setPercent(50)
	time.Sleep(20 * time.Millisecond)

	if n := len(rec.snapshot()); n != 0 {
		t.Errorf("expected 0 spawned commands, got %d", n)
	}
	if _, ok := s.readPercent(); ok {
		t.Error("readPercent should fail without a tool")
	}
}

// TestScripting_ReadPercentWpctl tests reading through the wpctl parser.
func TestScripting_ReadPercentWpctl(t *testing.T) {
	rec := &recordingRunner{out: "Volume: 0.60 [MUTED]"}
	s := &scriptingBackend{
		tool:     &knownMixerTools[1], // wpctl
		run:      rec.run,
		debounce: time.Millisecond,
		log:      testLogger(),
	}

	pct, ok := s.readPercent()
	if !ok {
		t.Fatal("readPercent failed")
	}
	if pct != 60 {
		t.Errorf("readPercent = %d, want 60", pct)
	}

	calls := rec.snapshot()
	if len(calls) != 1 || calls[0].args[0] != "get-volume" {
		t.Errorf("unexpected calls: %v", calls)
	}
}

func TestParsePercent(t *testing.T) {
	pct, ok := parsePercent("Volume: front-left: 39321 /  60% / -13.31 dB")
	if !ok || pct != 60 {
		t.Errorf("parsePercent(pactl output) = %d, %v", pct, ok)
	}

	if _, ok := parsePercent("no volume here"); ok {
		t.Error("expected failure on output without a percentage")
	}
}

func TestParseWpctl(t *testing.T) {
	pct, ok := parseWpctl("Volume: 0.60")
	if !ok || pct != 60 {
		t.Errorf("parseWpctl(0.60) = %d, %v", pct, ok)
	}

	pct, ok = parseWpctl("Volume: 1.00 [MUTED]")
	if !ok || pct != 100 {
		t.Errorf("parseWpctl(1.00 muted) = %d, %v", pct, ok)
	}

	if _, ok := parseWpctl("not a volume"); ok {
		t.Error("expected failure on output without a number")
	}
}
