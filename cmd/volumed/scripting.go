package main

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"
)

// commandRunner executes one external command and returns its combined
// output. Swapped for a recorder in tests.
type commandRunner func(ctx context.Context, name string, args ...string) (string, error)

func execRunner(ctx context.Context, name string, args ...string) (string, error) {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	return string(out), err
}

var percentRe = regexp.MustCompile(`(\d+)%`)
var floatRe = regexp.MustCompile(`[0-9]+\.?[0-9]*`)

// mixerCLI describes one external mixer tool the fallback can drive.
type mixerCLI struct {
	name       string
	setArgs    func(pct int) []string
	unmuteArgs []string
	getArgs    []string
	parse      func(out string) (int, bool)
}

func parsePercent(out string) (int, bool) {
	m := percentRe.FindStringSubmatch(out)
	if m == nil {
		return 0, false
	}
	pct, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return pct, true
}

func parseWpctl(out string) (int, bool) {
	// wpctl prints "Volume: 0.60" (with an optional [MUTED] suffix)
	m := floatRe.FindString(out)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return int(f*100 + 0.5), true
}

// knownMixerTools in probe order; the first one on PATH wins.
var knownMixerTools = []mixerCLI{
	{
		name: "pactl",
		setArgs: func(pct int) []string {
			return []string{"set-sink-volume", "@DEFAULT_SINK@", fmt.Sprintf("%d%%", pct)}
		},
		unmuteArgs: []string{"set-sink-mute", "@DEFAULT_SINK@", "0"},
		getArgs:    []string{"get-sink-volume", "@DEFAULT_SINK@"},
		parse:      parsePercent,
	},
	{
		name: "wpctl",
		setArgs: func(pct int) []string {
			return []string{"set-volume", "@DEFAULT_AUDIO_SINK@", fmt.Sprintf("%d%%", pct)}
		},
		unmuteArgs: []string{"set-mute", "@DEFAULT_AUDIO_SINK@", "0"},
		getArgs:    []string{"get-volume", "@DEFAULT_AUDIO_SINK@"},
		parse:      parseWpctl,
	},
	{
		name: "amixer",
		setArgs: func(pct int) []string {
			return []string{"-q", "set", "Master", fmt.Sprintf("%d%%", pct)}
		},
		unmuteArgs: []string{"-q", "set", "Master", "unmute"},
		getArgs:    []string{"get", "Master"},
		parse:      parsePercent,
	},
}

const scriptExecTimeout = 2 * time.Second

// pendingWrite is the single debounce slot. Only the newest generation
// ever reaches the external tool.
type pendingWrite struct {
	percent int
	gen     uint64
}

// scriptingBackend drives volume through an external mixer CLI. It is
// the tier of last resort for devices that accept HAL writes without
// applying them, so writes are taken on faith (no verification) and
// rapid repeats are debounced into one spawned process.
type scriptingBackend struct {
	mu       sync.Mutex
	tool     *mixerCLI
	run      commandRunner
	debounce time.Duration
	timer    *time.Timer
	gen      uint64
	pending  *pendingWrite
	log      *slog.Logger
}

func newScriptingBackend(logger *slog.Logger) *scriptingBackend {
	s := &scriptingBackend{
		run:      execRunner,
		debounce: scriptDebounce,
		log:      logger,
	}
	for i := range knownMixerTools {
		if _, err := exec.LookPath(knownMixerTools[i].name); err == nil {
			s.tool = &knownMixerTools[i]
			logger.Info("scripting fallback ready", "tool", s.tool.name)
			break
		}
	}
	if s.tool == nil {
		logger.Warn("no mixer cli found, scripting fallback disabled")
	}
	return s
}

func (s *scriptingBackend) available() bool {
	return s.tool != nil
}

// setPercent schedules a volume write. A newer request replaces any
// pending one and restarts the debounce window; the write that
// eventually runs carries the latest value.
func (s *scriptingBackend) setPercent(pct int) {
	if pct < 0 {
		pct = 0
	}
	if pct > 100 {
		pct = 100
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.tool == nil {
		return
	}
	s.gen++
	gen := s.gen
	s.pending = &pendingWrite{percent: pct, gen: gen}
	if s.timer != nil {
		s.timer.Stop()
	}
	s.timer = time.AfterFunc(s.debounce, func() { s.flush(gen) })
}

// flush runs the pending write if this timer still owns the slot.
func (s *scriptingBackend) flush(gen uint64) {
	s.mu.Lock()
	p := s.pending
	if p == nil || p.gen != gen {
		s.mu.Unlock()
		return
	}
	s.pending = nil
	s.mu.Unlock()
	s.execSet(p.percent)
}

// execSet clears mute and applies the percentage. Mute goes first
// unconditionally; some devices wedge themselves muted and then ignore
// volume writes.
func (s *scriptingBackend) execSet(pct int) {
	ctx, cancel := context.WithTimeout(context.Background(), scriptExecTimeout)
	defer cancel()
	if out, err := s.run(ctx, s.tool.name, s.tool.unmuteArgs...); err != nil {
		s.log.Debug("mixer unmute failed", "tool", s.tool.name, "output", strings.TrimSpace(out), "error", err)
	}
	if out, err := s.run(ctx, s.tool.name, s.tool.setArgs(pct)...); err != nil {
		s.log.Warn("mixer volume set failed", "tool", s.tool.name, "output", strings.TrimSpace(out), "error", err)
	}
}

// readPercent queries the current volume. Blocking (it spawns the
// tool), so only the effects worker calls it.
func (s *scriptingBackend) readPercent() (int, bool) {
	s.mu.Lock()
	tool := s.tool
	s.mu.Unlock()
	if tool == nil {
		return 0, false
	}
	ctx, cancel := context.WithTimeout(context.Background(), scriptExecTimeout)
	defer cancel()
	out, err := s.run(ctx, tool.name, tool.getArgs...)
	if err != nil {
		s.log.Debug("mixer volume read failed", "tool", tool.name, "error", err)
		return 0, false
	}
	return tool.parse(out)
}
