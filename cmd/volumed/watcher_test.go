package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestReloadConfigSwapsOnValidChange tests that a valid file replaces the
// active config.
func TestReloadConfigSwapsOnValidChange(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("volume:\n  target: builtin\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	holder := newConfigHolder(DefaultConfig())
	if !reloadConfig(path, FlagOverrides{}, holder, testLogger()) {
		t.Fatal("reload of a valid file reported no swap")
	}
	if got := holder.targetMode(); got != targetBuiltin {
		t.Errorf("target = %q, want %q", got, targetBuiltin)
	}
	if got := holder.current().WS.ListenAddr; got != "127.0.0.1:8806" {
		t.Errorf("untouched ws listen addr = %q", got)
	}
}

// TestReloadConfigRejectsBadFile tests that parse and validation failures
// leave the active config alone.
func TestReloadConfigRejectsBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	holder := newConfigHolder(DefaultConfig())

	if err := os.WriteFile(path, []byte("volume: [broken\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if reloadConfig(path, FlagOverrides{}, holder, testLogger()) {
		t.Error("unparseable file reported a swap")
	}

	if err := os.WriteFile(path, []byte("volume:\n  target: loudest\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if reloadConfig(path, FlagOverrides{}, holder, testLogger()) {
		t.Error("invalid target reported a swap")
	}

	if got := holder.targetMode(); got != targetActiveDisplay {
		t.Errorf("target = %q, want the default to survive", got)
	}
}

// TestReloadConfigKeepsFlagOverrides tests that flag overrides reapply on
// top of every reload.
func TestReloadConfigKeepsFlagOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("volume:\n  target: active-display\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	target := "builtin"
	holder := newConfigHolder(DefaultConfig())

	if !reloadConfig(path, FlagOverrides{Target: &target}, holder, testLogger()) {
		t.Fatal("reload reported no swap")
	}
	if got := holder.targetMode(); got != targetBuiltin {
		t.Errorf("target = %q, want the flag override to win", got)
	}
}

// TestConfigWatcherReloadsOnWrite tests the watch-debounce-swap-notify path
// against a real directory.
func TestConfigWatcherReloadsOnWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("volume:\n  target: active-display\n"), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	holder := newConfigHolder(DefaultConfig())
	events := make(chan Event, 16)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	done := make(chan error, 1)
	go func() {
		done <- runConfigWatcher(ctx, path, FlagOverrides{}, holder, events, testLogger())
	}()

	// The watcher exposes no readiness signal, so keep rewriting until the
	// change is observed.
	deadline := time.Now().Add(5 * time.Second)
	for {
		if time.Now().After(deadline) {
			t.Fatal("no ConfigChanged event after rewriting the file")
		}
		if err := os.WriteFile(path, []byte("volume:\n  target: builtin\n"), 0o644); err != nil {
			t.Fatalf("rewrite config: %v", err)
		}

		select {
		case ev := <-events:
			if _, ok := ev.(ConfigChanged); !ok {
				t.Fatalf("event = %T, want ConfigChanged", ev)
			}
			if got := holder.targetMode(); got != targetBuiltin {
				t.Errorf("holder target = %q after reload", got)
			}

			cancel()
			select {
			case err := <-done:
				if err != nil {
					t.Errorf("watcher returned %v", err)
				}
			case <-time.After(2 * time.Second):
				t.Error("watcher did not stop")
			}
			return

		case <-time.After(300 * time.Millisecond):
		}
	}
}
