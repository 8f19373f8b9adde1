package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/yaml.v3"
)

// defaultConfigPath is where the daemon looks when -config is not given.
// A missing default file is fine; built-in defaults apply.
const defaultConfigPath = "/etc/volumed/config.yaml"

// Config is the top-level YAML configuration for the volumed daemon.
//
// This is intentionally user-facing and stable-ish. Keep defaults and validation
// centralized so the rest of the code can assume a well-formed config.
//
// Design goals:
// - Make config file the primary configuration surface.
// - Keep flags for small overrides and for environments where a file is awkward.
type Config struct {
	// Volume target policy
	Volume VolumeConfig `yaml:"volume"`

	// Sound card selection
	Audio AudioConfig `yaml:"audio"`

	// Feedback cue played when volume steps out of silence
	Feedback FeedbackConfig `yaml:"feedback"`

	// Display transport probe cache
	Store StoreConfig `yaml:"store"`

	// IPC configuration (used by volumectl and key bindings)
	IPC IPCConfig `yaml:"ipc"`

	// State WebSocket feed
	WS WSConfig `yaml:"ws"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

type VolumeConfig struct {
	// Target selects what a volume request moves: "builtin" always
	// controls the internal output chain; "active-display" controls the
	// first connected external display and falls back to builtin.
	Target string `yaml:"target"`

	// PinnedConnector forces a specific DRM connector (e.g. "DP-1") to
	// win active-display resolution while it is connected.
	PinnedConnector string `yaml:"pinned_connector,omitempty"`

	// UpdateHz is the daemon loop frequency; bursty input coalesces into
	// at most one hardware write per flush.
	UpdateHz int `yaml:"update_hz"`
}

type AudioConfig struct {
	CardIndex int `yaml:"card_index"`
}

type FeedbackConfig struct {
	// Command is the argv run once when a volume step crosses out of
	// silence, e.g. ["canberra-gtk-play", "-i", "audio-volume-change"].
	// Empty disables the cue.
	Command []string `yaml:"command,omitempty"`
}

type StoreConfig struct {
	// Path of the sqlite probe cache. Empty disables persistence; every
	// display is then re-probed from scratch after a restart.
	Path string `yaml:"path,omitempty"`
}

type IPCConfig struct {
	SocketPath string `yaml:"socket_path"`
}

type WSConfig struct {
	Enabled    bool   `yaml:"enabled"`
	ListenAddr string `yaml:"listen_addr"`
}

type LoggingConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a fully-populated Config with defaults.
// Keep this aligned with constants.go defaults and current CLI defaults.
func DefaultConfig() Config {
	return Config{
		Volume: VolumeConfig{
			Target:   string(targetActiveDisplay),
			UpdateHz: defaultUpdateHz,
		},
		Audio: AudioConfig{
			CardIndex: defaultCardIndex,
		},
		Store: StoreConfig{
			Path: "/var/lib/volumed/displays.db",
		},
		IPC: IPCConfig{
			SocketPath: "/tmp/volumed.sock",
		},
		WS: WSConfig{
			Enabled:    true,
			ListenAddr: "127.0.0.1:8806",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// LoadConfigFile reads and parses a YAML config file.
//
// Notes:
//   - The file must be valid YAML.
//   - Unknown fields are rejected (helps catch typos) via KnownFields(true).
func LoadConfigFile(path string) (Config, error) {
	if path == "" {
		return Config{}, errors.New("config path is empty")
	}
	b, err := os.ReadFile(ExpandPath(path))
	if err != nil {
		return Config{}, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()

	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)

	if err := dec.Decode(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config yaml: %w", err)
	}

	// Ensure there's no trailing garbage (only whitespace/comments are allowed after the document).
	if err := dec.Decode(&struct{}{}); err == nil {
		return Config{}, fmt.Errorf("decode config yaml: unexpected trailing document")
	}

	return cfg, nil
}

// FlagOverrides applies overrides from flags on top of a loaded config.
//
// This is designed so you can keep a config file as the primary configuration
// source, but still do ad-hoc overrides for debugging/systemd overrides.
//
// Flags should pass pointers; each override is only applied if the pointer
// is non-nil (main sets pointers only for flags the user actually passed).
type FlagOverrides struct {
	Target          *string
	PinnedConnector *string
	UpdateHz        *int

	CardIndex *int

	FeedbackCommand *[]string

	StorePath *string

	IPCSocketPath *string

	WSEnabled    *bool
	WSListenAddr *string

	LogLevel *string
}

// Apply merges the overrides into cfg. If an override pointer is nil, it is
// ignored. If the pointer is non-nil, the value is applied (even if it is a
// zero value).
func (o FlagOverrides) Apply(cfg *Config) {
	if cfg == nil {
		return
	}

	if o.Target != nil {
		cfg.Volume.Target = *o.Target
	}
	if o.PinnedConnector != nil {
		cfg.Volume.PinnedConnector = *o.PinnedConnector
	}
	if o.UpdateHz != nil {
		cfg.Volume.UpdateHz = *o.UpdateHz
	}

	if o.CardIndex != nil {
		cfg.Audio.CardIndex = *o.CardIndex
	}

	if o.FeedbackCommand != nil {
		cfg.Feedback.Command = *o.FeedbackCommand
	}

	if o.StorePath != nil {
		cfg.Store.Path = *o.StorePath
	}

	if o.IPCSocketPath != nil {
		cfg.IPC.SocketPath = *o.IPCSocketPath
	}

	if o.WSEnabled != nil {
		cfg.WS.Enabled = *o.WSEnabled
	}
	if o.WSListenAddr != nil {
		cfg.WS.ListenAddr = *o.WSListenAddr
	}

	if o.LogLevel != nil {
		cfg.Logging.Level = *o.LogLevel
	}
}

// Validate checks config invariants and returns a user-friendly error.
// This is intended to be called after defaults + file + overrides are applied.
func (c *Config) Validate() error {
	// Volume
	switch c.Volume.Target {
	case string(targetBuiltin), string(targetActiveDisplay):
	default:
		return fmt.Errorf("volume.target must be %q or %q", targetBuiltin, targetActiveDisplay)
	}
	if c.Volume.UpdateHz <= 0 || c.Volume.UpdateHz > 1000 {
		return errors.New("volume.update_hz must be between 1 and 1000")
	}

	// Audio
	if c.Audio.CardIndex < 0 {
		return errors.New("audio.card_index must be >= 0")
	}

	// IPC
	if c.IPC.SocketPath == "" {
		return errors.New("ipc.socket_path must not be empty")
	}

	// WS
	if c.WS.Enabled && c.WS.ListenAddr == "" {
		return errors.New("ws.listen_addr must not be empty when ws.enabled is true")
	}

	// Logging
	if c.Logging.Level == "" {
		return errors.New("logging.level must not be empty")
	}
	if _, err := parseLogLevel(c.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}

	return nil
}

// ExpandPath expands a leading "~" in a path using $HOME.
// This is handy for config values like store.path.
func ExpandPath(p string) string {
	if p == "" {
		return p
	}
	if p[0] != '~' {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	if p == "~" {
		return home
	}
	if len(p) >= 2 && (p[1] == '/' || p[1] == '\\') {
		return filepath.Join(home, p[2:])
	}
	return p
}

// ============================================================================
// Live config access
// ============================================================================

// configHolder is the thread-safe view of the active config. The daemon
// loop, the effects worker and the watchers all read through it; only the
// reload path writes.
type configHolder struct {
	mu  sync.RWMutex
	cfg Config
}

func newConfigHolder(cfg Config) *configHolder {
	return &configHolder{cfg: cfg}
}

func (h *configHolder) current() Config {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.cfg
}

func (h *configHolder) swap(cfg Config) {
	h.mu.Lock()
	h.cfg = cfg
	h.mu.Unlock()
}

// targetMode reads the live target policy.
func (h *configHolder) targetMode() targetMode {
	return targetMode(h.current().Volume.Target)
}

// pinnedConnector reads the live pinned-connector override.
func (h *configHolder) pinnedConnector() string {
	return h.current().Volume.PinnedConnector
}

// feedbackCommand reads the live feedback cue argv.
func (h *configHolder) feedbackCommand() []string {
	return h.current().Feedback.Command
}
