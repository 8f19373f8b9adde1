package main

import (
	"path/filepath"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *probeStore {
	t.Helper()
	s, err := openProbeStore(filepath.Join(t.TempDir(), "displays.db"), testLogger())
	if err != nil {
		t.Fatalf("openProbeStore failed: %v", err)
	}
	t.Cleanup(s.close)
	return s
}

// TestProbeStoreRememberLookup tests the basic persist-and-recall cycle.
func TestProbeStoreRememberLookup(t *testing.T) {
	s := openTestStore(t)

	if _, ok := s.lookup("DEL-A1B2-00C0FFEE"); ok {
		t.Fatal("lookup hit on an empty store")
	}

	s.remember(probeRecord{
		Key:       "DEL-A1B2-00C0FFEE",
		Connector: "card0-DP-1",
		Transport: "i2c-rdwr",
		Max:       100,
	})

	rec, ok := s.lookup("DEL-A1B2-00C0FFEE")
	if !ok {
		t.Fatal("lookup missed a remembered display")
	}
	if rec.Connector != "card0-DP-1" || rec.Transport != "i2c-rdwr" || rec.Max != 100 {
		t.Errorf("record = %+v", rec)
	}
	if rec.LastSeen.IsZero() {
		t.Error("last_seen not recorded")
	}
}

// TestProbeStoreUpsert tests that a re-probe overwrites the old record
// instead of stacking rows.
func TestProbeStoreUpsert(t *testing.T) {
	s := openTestStore(t)

	s.remember(probeRecord{Key: "k", Connector: "card0-DP-1", Transport: "i2c-dev", Max: 100})
	s.remember(probeRecord{Key: "k", Connector: "card0-DP-2", Transport: "i2c-rdwr", Max: 254})

	rec, ok := s.lookup("k")
	if !ok {
		t.Fatal("lookup missed")
	}
	if rec.Transport != "i2c-rdwr" || rec.Max != 254 || rec.Connector != "card0-DP-2" {
		t.Errorf("record = %+v, want the second probe", rec)
	}
}

// TestProbeStorePruneStale tests retention: old displays age out, fresh
// ones stay.
func TestProbeStorePruneStale(t *testing.T) {
	s := openTestStore(t)

	s.remember(probeRecord{Key: "fresh", Connector: "card0-DP-1", Transport: "i2c-dev", Max: 100})
	s.remember(probeRecord{Key: "stale", Connector: "card0-DP-2", Transport: "i2c-dev", Max: 100})

	// Age the second record past any realistic retention window.
	old := time.Now().UTC().Add(-365 * 24 * time.Hour)
	if _, err := s.db.Exec(`UPDATE displays SET last_seen = ? WHERE key = 'stale'`, old); err != nil {
		t.Fatalf("age record: %v", err)
	}

	s.pruneStale(90 * 24 * time.Hour)

	if _, ok := s.lookup("fresh"); !ok {
		t.Error("fresh record pruned")
	}
	if _, ok := s.lookup("stale"); ok {
		t.Error("stale record survived")
	}
}

// TestProbeStoreNilSafe tests that a disabled store degrades to plain
// discovery instead of crashing.
func TestProbeStoreNilSafe(t *testing.T) {
	var s *probeStore

	s.remember(probeRecord{Key: "k"})
	if _, ok := s.lookup("k"); ok {
		t.Error("nil store returned a record")
	}
	s.pruneStale(time.Hour)
	s.close()
}
