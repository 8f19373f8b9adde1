package main

import "testing"

// TestClassifyDevice_AppleFamilies tests the AirPods model split.
func TestClassifyDevice_AppleFamilies(t *testing.T) {
	if c := classifyDevice("Nikos's AirPods Pro", "bluetooth"); c != categoryAirPodsPro {
		t.Errorf("AirPods Pro classified as %q", c)
	}
	if c := classifyDevice("AirPods Max", "bluetooth"); c != categoryAirPodsMax {
		t.Errorf("AirPods Max classified as %q", c)
	}
	if c := classifyDevice("My AirPods", "bluetooth"); c != categoryAirPods {
		t.Errorf("plain AirPods classified as %q", c)
	}
	if c := classifyDevice("Beats Studio3", "bluetooth"); c != categoryBeats {
		t.Errorf("Beats classified as %q", c)
	}
}

// TestClassifyDevice_NameKeywords tests keyword matching for generic
// headphone and earbud names, case-insensitively.
func TestClassifyDevice_NameKeywords(t *testing.T) {
	if c := classifyDevice("WH-1000XM4", "bluetooth"); c != categoryHeadphones {
		t.Errorf("WH-1000 classified as %q", c)
	}
	if c := classifyDevice("Bose QuietComfort 45", "bluetooth"); c != categoryHeadphones {
		t.Errorf("QuietComfort classified as %q", c)
	}
	if c := classifyDevice("USB Headset", "usb"); c != categoryHeadphones {
		t.Errorf("headset classified as %q", c)
	}
	if c := classifyDevice("Galaxy Buds2", "bluetooth"); c != categoryEarbuds {
		t.Errorf("Buds classified as %q", c)
	}
	if c := classifyDevice("WF-1000XM5", "bluetooth"); c != categoryEarbuds {
		t.Errorf("WF-1000 classified as %q", c)
	}
}

// TestClassifyDevice_TransportFallback tests that unknown Bluetooth
// names default to earbuds while wired unknowns stay unclassified.
func TestClassifyDevice_TransportFallback(t *testing.T) {
	if c := classifyDevice("LE_Mystery Device", "bluetooth"); c != categoryEarbuds {
		t.Errorf("unknown bluetooth device classified as %q, want earbuds", c)
	}
	if c := classifyDevice("HDA Intel PCH", "pci"); c != categoryNone {
		t.Errorf("builtin card classified as %q, want none", c)
	}
	if c := classifyDevice("", "bluetooth"); c != categoryNone {
		t.Errorf("empty name classified as %q, want none", c)
	}
}

// TestIconKey_MuteWinsOverEverything tests that mute overrides both
// category and level icons.
func TestIconKey_MuteWinsOverEverything(t *testing.T) {
	if k := iconKey(categoryAirPodsPro, 0.8, true); k != "audio-volume-muted" {
		t.Errorf("muted airpods icon = %q", k)
	}
	if k := iconKey(categoryNone, 0.8, true); k != "audio-volume-muted" {
		t.Errorf("muted speaker icon = %q", k)
	}
}

// TestIconKey_WornDevices tests the headset/headphones device icons.
func TestIconKey_WornDevices(t *testing.T) {
	if k := iconKey(categoryEarbuds, 0.5, false); k != "audio-headset" {
		t.Errorf("earbuds icon = %q", k)
	}
	if k := iconKey(categoryAirPods, 0.5, false); k != "audio-headset" {
		t.Errorf("airpods icon = %q", k)
	}
	if k := iconKey(categoryHeadphones, 0.5, false); k != "audio-headphones" {
		t.Errorf("headphones icon = %q", k)
	}
	if k := iconKey(categoryAirPodsMax, 0.5, false); k != "audio-headphones" {
		t.Errorf("airpods max icon = %q", k)
	}
}

// TestIconKey_LevelBands tests the three-band speaker icons.
func TestIconKey_LevelBands(t *testing.T) {
	if k := iconKey(categoryNone, 0, false); k != "audio-volume-muted" {
		t.Errorf("zero volume icon = %q", k)
	}
	if k := iconKey(categoryNone, 0.2, false); k != "audio-volume-low" {
		t.Errorf("low volume icon = %q", k)
	}
	if k := iconKey(categoryNone, 0.5, false); k != "audio-volume-medium" {
		t.Errorf("medium volume icon = %q", k)
	}
	if k := iconKey(categoryNone, 0.9, false); k != "audio-volume-high" {
		t.Errorf("high volume icon = %q", k)
	}
}
