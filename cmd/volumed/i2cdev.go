package main

import (
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sys/unix"
)

// devI2CTransport speaks DDC/CI through plain read/write file I/O on an
// i2c-dev node. The slave address is bound once with I2C_SLAVE; after
// that each request is a write of the frame, a settle delay, and a read
// of the reply.
type devI2CTransport struct {
	path  string
	fd    int
	valid bool // at least one reply validated on this link
	retry retryPolicy
	log   *slog.Logger
}

func openDevI2C(path string, retry retryPolicy, logger *slog.Logger) (*devI2CTransport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	if err := unix.IoctlSetInt(fd, i2cSlave, ddcSlaveAddr); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("bind slave 0x%02x on %s: %w", ddcSlaveAddr, path, err)
	}
	return &devI2CTransport{path: path, fd: fd, retry: retry, log: logger}, nil
}

func (t *devI2CTransport) kind() string { return "i2c-dev" }

func (t *devI2CTransport) supported() bool { return t.valid }

func (t *devI2CTransport) close() {
	if t.fd >= 0 {
		unix.Close(t.fd)
		t.fd = -1
	}
}

// readVolume fetches the audio volume VCP feature. ok is false when no
// attempt produced a validated reply; current and max are only
// meaningful when ok.
func (t *devI2CTransport) readVolume() (current, max uint16, ok bool) {
	var reply vcpReply
	got := t.retry.run(func(attempt int) bool {
		r, err := t.exchange(buildGetVCP(vcpAudioVolume), vcpAudioVolume)
		if err != nil {
			t.log.Debug("ddc read attempt failed",
				"path", t.path, "attempt", attempt, "error", err)
			return false
		}
		reply = r
		return true
	})
	if !got {
		return 0, 0, false
	}
	t.valid = true
	return reply.Current, reply.Max, true
}

// writeVolume sets the audio volume VCP feature. The frame goes out
// twice back to back; many panels drop the first transaction without
// any indication.
func (t *devI2CTransport) writeVolume(current, max uint16) bool {
	frame := buildSetVCP(vcpAudioVolume, current)
	return t.retry.run(func(attempt int) bool {
		if err := t.writeFrame(frame); err != nil {
			t.log.Debug("ddc write attempt failed",
				"path", t.path, "attempt", attempt, "error", err)
			return false
		}
		t.writeFrame(frame)
		time.Sleep(ddcWriteDelay)
		return true
	})
}

func (t *devI2CTransport) writeFrame(frame []byte) error {
	n, err := unix.Write(t.fd, frame)
	if err != nil {
		return err
	}
	if n != len(frame) {
		return fmt.Errorf("short write: %d of %d bytes", n, len(frame))
	}
	return nil
}

// exchange sends one request frame and reads back the reply after the
// settle delay.
func (t *devI2CTransport) exchange(frame []byte, code byte) (vcpReply, error) {
	if err := t.writeFrame(frame); err != nil {
		return vcpReply{}, err
	}
	time.Sleep(ddcReplyDelay)
	buf := make([]byte, ddcReplyLen)
	n, err := unix.Read(t.fd, buf)
	if err != nil {
		return vcpReply{}, err
	}
	return parseVCPReply(buf[:n], code)
}
