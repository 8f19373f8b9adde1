package main

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sys/unix"
)

// Display hotplug detection via kernel uevents.
//
// The DRM subsystem broadcasts a "change" uevent with HOTPLUG=1 whenever a
// connector's link status changes (cable plugged/unplugged, DPMS wake).
// We subscribe to the kernel's uevent multicast group on a netlink socket
// and translate matching messages into DisplaysChanged events.

// ueventKernelGroup is the netlink multicast group carrying raw kernel
// uevents (group 2 carries udevd's processed ones).
const ueventKernelGroup = 1

type hotplugWatcher struct {
	fd  int
	log *slog.Logger
}

func newHotplugWatcher(logger *slog.Logger) (*hotplugWatcher, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_KOBJECT_UEVENT)
	if err != nil {
		return nil, fmt.Errorf("open uevent socket: %w", err)
	}

	sa := &unix.SockaddrNetlink{
		Family: unix.AF_NETLINK,
		Groups: ueventKernelGroup,
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind uevent socket: %w", err)
	}

	return &hotplugWatcher{fd: fd, log: logger}, nil
}

// watch reads uevent datagrams until the socket is closed or ctx is
// canceled, forwarding DRM hotplug changes to the daemon loop.
// Intended to run as a goroutine; pair it with a close() on shutdown.
func (w *hotplugWatcher) watch(ctx context.Context, events chan<- Event) {
	buf := make([]byte, 4096)
	for {
		n, err := unix.Read(w.fd, buf)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			// close() during shutdown surfaces here as a read error.
			if ctx.Err() == nil {
				w.log.Warn("uevent read failed", "error", err)
			}
			return
		}
		if n <= 0 {
			continue
		}

		action, env := parseUevent(buf[:n])
		if action != "change" || env["SUBSYSTEM"] != "drm" || env["HOTPLUG"] != "1" {
			continue
		}

		w.log.Debug("display hotplug uevent", "devpath", env["DEVPATH"])
		sendEvent(ctx, events, DisplaysChanged{At: time.Now()})
	}
}

func (w *hotplugWatcher) close() {
	if w.fd >= 0 {
		unix.Close(w.fd)
		w.fd = -1
	}
}

// parseUevent splits a kernel uevent datagram into its action and its
// KEY=VALUE environment. The first NUL-terminated segment is
// "action@devpath"; the rest are environment pairs.
func parseUevent(b []byte) (string, map[string]string) {
	// udevd re-broadcasts processed uevents with a binary header; only
	// kernel-native messages are of interest here.
	if bytes.HasPrefix(b, []byte("libudev")) {
		return "", nil
	}

	var action string
	env := make(map[string]string)

	for i, seg := range bytes.Split(b, []byte{0}) {
		if len(seg) == 0 {
			continue
		}
		s := string(seg)

		if i == 0 {
			if at := strings.IndexByte(s, '@'); at >= 0 {
				action = s[:at]
				env["DEVPATH"] = s[at+1:]
			}
			continue
		}

		if eq := strings.IndexByte(s, '='); eq > 0 {
			env[s[:eq]] = s[eq+1:]
		}
	}

	return action, env
}
