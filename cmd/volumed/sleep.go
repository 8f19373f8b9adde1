package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

// Suspend/resume detection via systemd-logind.
//
// logind emits PrepareForSleep(true) right before the machine sleeps and
// PrepareForSleep(false) after it wakes. Display transports must be torn
// down before sleep (I2C bus numbering can shift across a suspend cycle)
// and state re-probed after resume.

const (
	logindInterface = "org.freedesktop.login1.Manager"
	logindPath      = "/org/freedesktop/login1"
	sleepSignalName = logindInterface + ".PrepareForSleep"
)

// runSleepWatcher subscribes to logind's PrepareForSleep signal and
// forwards suspend/resume transitions to the daemon loop. It returns when
// ctx is canceled or the bus connection dies.
func runSleepWatcher(ctx context.Context, events chan<- Event, logger *slog.Logger) error {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return fmt.Errorf("connect system bus: %w", err)
	}
	defer conn.Close()

	err = conn.AddMatchSignal(
		dbus.WithMatchObjectPath(logindPath),
		dbus.WithMatchInterface(logindInterface),
		dbus.WithMatchMember("PrepareForSleep"),
	)
	if err != nil {
		return fmt.Errorf("subscribe to PrepareForSleep: %w", err)
	}

	sigCh := make(chan *dbus.Signal, 8)
	conn.Signal(sigCh)

	logger.Debug("sleep watcher listening", "signal", sleepSignalName)

	for {
		select {
		case <-ctx.Done():
			return nil

		case sig, ok := <-sigCh:
			if !ok {
				return nil
			}
			if sig.Name != sleepSignalName || len(sig.Body) != 1 {
				continue
			}
			sleeping, ok := sig.Body[0].(bool)
			if !ok {
				continue
			}

			now := time.Now()
			if sleeping {
				logger.Info("system preparing for sleep")
				sendEvent(ctx, events, SystemSuspending{At: now})
			} else {
				logger.Info("system resumed from sleep")
				sendEvent(ctx, events, SystemResumed{At: now})
			}
		}
	}
}
