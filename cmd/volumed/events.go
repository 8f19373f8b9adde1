package main

import (
	"encoding/json"
	"fmt"
)

// ============================================================================
// Action Types
// ============================================================================
// Actions represent intent from various sources (IPC, media keys, scripts).
// The central daemon loop consumes these actions and applies policy.
// ============================================================================

// Action is a marker interface for all externally-deliverable requests.
//
// NOTE: Actions also implement the reducer's Event marker so they can be
// reduced directly (the daemon wraps them in TimedEvent for timestamps).
type Action interface {
	eventMarker()
}

// VolumeStep requests a relative volume change of the given number of
// steps. One step is a fixed fraction of the full range; Divisor shrinks
// the step for fine-grained adjustment (0 means full-size steps).
type VolumeStep struct {
	Steps   int    `json:"steps"`             // positive=up, negative=down
	Divisor int    `json:"divisor,omitempty"` // step shrink factor, e.g. 4 for fine steps
	Target  string `json:"target,omitempty"`  // "", "builtin" or "display"
}

func (VolumeStep) eventMarker() {}

// SetVolumeAbsolute requests volume to be set to a specific normalized value.
type SetVolumeAbsolute struct {
	Value  float64 `json:"value"` // 0.0 .. 1.0
	Target string  `json:"target,omitempty"`
	Origin string  `json:"origin,omitempty"` // e.g. "ipc", "cli", "ui"
}

func (SetVolumeAbsolute) eventMarker() {}

// ToggleMute requests mute state to be toggled on the resolved target.
type ToggleMute struct {
	Target string `json:"target,omitempty"`
}

func (ToggleMute) eventMarker() {}

// RefreshState requests a read-only re-probe of the current target.
type RefreshState struct{}

func (RefreshState) eventMarker() {}

// ============================================================================
// JSON Encoding/Decoding Support
// ============================================================================
// EventEnvelope wraps actions for JSON serialization/deserialization.
// Since Go doesn't have union types, we use a type discriminator.
// ============================================================================

// EventEnvelope wraps an action with a type discriminator for JSON marshaling
type EventEnvelope struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnmarshalEvent deserializes a JSON event envelope into a concrete Event
func UnmarshalEvent(data []byte) (Event, error) {
	var env EventEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}

	switch env.Type {
	case "volume_step":
		var a VolumeStep
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal VolumeStep: %w", err)
		}
		return a, nil

	case "set_volume_absolute":
		var a SetVolumeAbsolute
		if err := json.Unmarshal(env.Data, &a); err != nil {
			return nil, fmt.Errorf("unmarshal SetVolumeAbsolute: %w", err)
		}
		return a, nil

	case "toggle_mute":
		var a ToggleMute
		if len(env.Data) > 0 {
			if err := json.Unmarshal(env.Data, &a); err != nil {
				return nil, fmt.Errorf("unmarshal ToggleMute: %w", err)
			}
		}
		return a, nil

	case "refresh_state":
		return RefreshState{}, nil

	default:
		return nil, fmt.Errorf("unknown event type: %q", env.Type)
	}
}

// MarshalEvent serializes an Event into a JSON envelope with type discriminator
func MarshalEvent(e Event) ([]byte, error) {
	var env EventEnvelope

	switch e := e.(type) {
	case VolumeStep:
		env.Type = "volume_step"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal VolumeStep: %w", err)
		}
		env.Data = data

	case SetVolumeAbsolute:
		env.Type = "set_volume_absolute"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal SetVolumeAbsolute: %w", err)
		}
		env.Data = data

	case ToggleMute:
		env.Type = "toggle_mute"
		data, err := json.Marshal(e)
		if err != nil {
			return nil, fmt.Errorf("marshal ToggleMute: %w", err)
		}
		env.Data = data

	case RefreshState:
		env.Type = "refresh_state"

	default:
		return nil, fmt.Errorf("unsupported event type: %T", e)
	}

	return json.Marshal(env)
}
