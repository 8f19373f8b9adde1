package main

import (
	"encoding/json"
	"fmt"
	"net"
	"time"
)

const defaultSocketPath = "/tmp/volumed.sock"

const requestTimeout = 2 * time.Second

// Wire types for the volumed control socket: one JSON object per line
// in, one per line out. Kept local so volumectl stays a thin client.

type eventEnvelope struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

type daemonResponse struct {
	Status string       `json:"status"`
	Error  string       `json:"error,omitempty"`
	State  *volumeState `json:"state,omitempty"`
}

// volumeState mirrors the daemon's observed state snapshot.
type volumeState struct {
	Volume      float64   `json:"volume"`
	VolumeKnown bool      `json:"volume_known"`
	VolumeAt    time.Time `json:"volume_at"`

	Muted     bool      `json:"muted"`
	MuteKnown bool      `json:"mute_known"`
	MuteAt    time.Time `json:"mute_at"`

	Target     string `json:"target"`
	TargetName string `json:"target_name,omitempty"`
	Backend    string `json:"backend,omitempty"`
	Category   string `json:"category,omitempty"`
	Icon       string `json:"icon,omitempty"`
}

type stepData struct {
	Steps   int    `json:"steps"`
	Divisor int    `json:"divisor,omitempty"`
	Target  string `json:"target,omitempty"`
}

type setData struct {
	Value  float64 `json:"value"`
	Target string  `json:"target,omitempty"`
	Origin string  `json:"origin,omitempty"`
}

type muteData struct {
	Target string `json:"target,omitempty"`
}

// roundTrip sends one request line and decodes the single response line.
func roundTrip(env eventEnvelope) (daemonResponse, error) {
	conn, err := net.DialTimeout("unix", socketPath, requestTimeout)
	if err != nil {
		return daemonResponse{}, fmt.Errorf("connect to volumed at %s: %w (is the daemon running?)", socketPath, err)
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(requestTimeout))

	if err := json.NewEncoder(conn).Encode(env); err != nil {
		return daemonResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp daemonResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return daemonResponse{}, fmt.Errorf("decode response: %w", err)
	}
	if resp.Status != "ok" {
		return daemonResponse{}, fmt.Errorf("daemon: %s", resp.Error)
	}
	return resp, nil
}

func sendRequest(typ string, data any) error {
	_, err := roundTrip(eventEnvelope{Type: typ, Data: data})
	return err
}

func fetchState() (volumeState, error) {
	resp, err := roundTrip(eventEnvelope{Type: "get_state"})
	if err != nil {
		return volumeState{}, err
	}
	if resp.State == nil {
		return volumeState{}, fmt.Errorf("daemon response missing state")
	}
	return *resp.State, nil
}
