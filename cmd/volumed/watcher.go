package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
)

// Config hot-reload.
//
// The config file's directory is watched rather than the file itself;
// editors and config management tools typically replace the file via
// rename, which would silently drop a watch on the file's inode.

// configReloadDebounce collapses the burst of fs events a single save
// produces into one reload.
const configReloadDebounce = 100 * time.Millisecond

// runConfigWatcher watches the config file and swaps the active config on
// valid changes. Flag overrides keep their precedence across reloads. A
// reload that fails to parse or validate is rejected; the previous config
// stays active.
func runConfigWatcher(
	ctx context.Context,
	path string,
	overrides FlagOverrides,
	holder *configHolder,
	events chan<- Event,
	logger *slog.Logger,
) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	path = ExpandPath(path)
	if err := watcher.Add(filepath.Dir(path)); err != nil {
		return err
	}

	logger.Debug("config watcher running", "path", path)

	// Debounce timer to avoid multiple reloads for rapid changes
	var debounceTimer *time.Timer
	defer func() {
		if debounceTimer != nil {
			debounceTimer.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}

			// Check if this event is for our config file
			if filepath.Base(event.Name) != filepath.Base(path) {
				continue
			}

			// Only reload on write/create events
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}

			// Debounce
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.AfterFunc(configReloadDebounce, func() {
				if reloadConfig(path, overrides, holder, logger) {
					sendEvent(ctx, events, ConfigChanged{At: time.Now()})
				}
			})

		case werr, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.Warn("config watcher error", "error", werr)
		}
	}
}

// reloadConfig loads, overrides and validates the file, swapping it in
// only when the result is sound. Reports whether a swap happened.
func reloadConfig(path string, overrides FlagOverrides, holder *configHolder, logger *slog.Logger) bool {
	cfg, err := LoadConfigFile(path)
	if err != nil {
		logger.Warn("config reload failed", "path", path, "error", err)
		return false
	}

	overrides.Apply(&cfg)

	if err := cfg.Validate(); err != nil {
		logger.Warn("config reload rejected", "path", path, "error", err)
		return false
	}

	holder.swap(cfg)
	logger.Info("config reloaded", "path", path, "target", cfg.Volume.Target)
	return true
}
