package main

import "strings"

// deviceCategory labels the active output device for icon selection.
type deviceCategory string

const (
	categoryNone       deviceCategory = "none"
	categoryAirPods    deviceCategory = "airpods"
	categoryAirPodsPro deviceCategory = "airpods-pro"
	categoryAirPodsMax deviceCategory = "airpods-max"
	categoryBeats      deviceCategory = "beats"
	categoryEarbuds    deviceCategory = "earbuds"
	categoryHeadphones deviceCategory = "headphones"
)

var headphoneNames = []string{"headphone", "headset", "quietcomfort", "wh-1000"}
var earbudNames = []string{"earbud", "buds", "wf-1000"}

// classifyDevice labels an output device from its reported name, with
// the transport as a tiebreaker: an unrecognized Bluetooth device is
// almost always some kind of earbuds. Pure function, safe on every
// refresh.
func classifyDevice(name, transport string) deviceCategory {
	if name == "" {
		return categoryNone
	}
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "airpods pro"):
		return categoryAirPodsPro
	case strings.Contains(n, "airpods max"):
		return categoryAirPodsMax
	case strings.Contains(n, "airpods"):
		return categoryAirPods
	case strings.Contains(n, "beats"):
		return categoryBeats
	}
	for _, s := range earbudNames {
		if strings.Contains(n, s) {
			return categoryEarbuds
		}
	}
	for _, s := range headphoneNames {
		if strings.Contains(n, s) {
			return categoryHeadphones
		}
	}
	if transport == "bluetooth" {
		return categoryEarbuds
	}
	return categoryNone
}

// iconKey picks a freedesktop icon name for the current state. Worn
// devices get their device icon; plain outputs get the level-banded
// speaker icons notification daemons expect.
func iconKey(category deviceCategory, volume float64, muted bool) string {
	if muted {
		return "audio-volume-muted"
	}
	switch category {
	case categoryAirPods, categoryAirPodsPro, categoryEarbuds:
		return "audio-headset"
	case categoryAirPodsMax, categoryBeats, categoryHeadphones:
		return "audio-headphones"
	}
	switch {
	case volume <= 0:
		return "audio-volume-muted"
	case volume < 1.0/3:
		return "audio-volume-low"
	case volume < 2.0/3:
		return "audio-volume-medium"
	default:
		return "audio-volume-high"
	}
}
