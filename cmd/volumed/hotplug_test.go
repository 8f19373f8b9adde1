package main

import (
	"strings"
	"testing"
)

func ueventDatagram(segments ...string) []byte {
	return []byte(strings.Join(segments, "\x00"))
}

// TestParseUevent tests splitting a kernel uevent into action and
// environment.
func TestParseUevent(t *testing.T) {
	b := ueventDatagram(
		"change@/devices/pci0000:00/0000:00:02.0/drm/card0",
		"ACTION=change",
		"DEVPATH=/devices/pci0000:00/0000:00:02.0/drm/card0",
		"SUBSYSTEM=drm",
		"HOTPLUG=1",
		"CONNECTOR=90",
	)

	action, env := parseUevent(b)
	if action != "change" {
		t.Errorf("action = %q, want change", action)
	}
	if env["SUBSYSTEM"] != "drm" || env["HOTPLUG"] != "1" {
		t.Errorf("env = %v", env)
	}
	if env["DEVPATH"] != "/devices/pci0000:00/0000:00:02.0/drm/card0" {
		t.Errorf("devpath = %q", env["DEVPATH"])
	}
	if env["CONNECTOR"] != "90" {
		t.Errorf("connector = %q", env["CONNECTOR"])
	}
}

// TestParseUevent_SkipsUdevMessages tests that udevd's re-broadcast
// format is ignored.
func TestParseUevent_SkipsUdevMessages(t *testing.T) {
	b := append([]byte("libudev"), 0xfe, 0xed, 0xca, 0xfe)

	action, env := parseUevent(b)
	if action != "" || env != nil {
		t.Errorf("parsed a libudev message: %q %v", action, env)
	}
}

// TestParseUevent_Malformed tests tolerance of junk datagrams.
func TestParseUevent_Malformed(t *testing.T) {
	action, env := parseUevent([]byte("no separators here"))
	if action != "" {
		t.Errorf("action = %q, want empty", action)
	}
	if len(env) != 0 {
		t.Errorf("env = %v, want empty", env)
	}

	// Valueless and empty segments are skipped, not fatal.
	b := ueventDatagram("add@/devices/x", "", "NOVALUE", "=bare", "KEY=v")
	action, env = parseUevent(b)
	if action != "add" {
		t.Errorf("action = %q, want add", action)
	}
	if env["KEY"] != "v" {
		t.Errorf("env = %v", env)
	}
	if _, ok := env["NOVALUE"]; ok {
		t.Error("valueless segment leaked into env")
	}
}
