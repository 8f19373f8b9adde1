package main

import (
	"fmt"
	"log/slog"
	"runtime"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"
)

// rdwrTransport speaks DDC/CI through I2C_RDWR combined transactions.
// Some adapters (and some display firmwares) only answer when the
// request is framed as a proper i2c-level message with the address in
// the transaction itself; plain file I/O on those buses reads back
// garbage or nothing. Availability is probed once from the adapter
// functionality bitmask.
type rdwrTransport struct {
	path  string
	fd    int
	valid bool
	retry retryPolicy
	log   *slog.Logger
}

// i2cMsg mirrors struct i2c_msg from <linux/i2c.h>. The pad keeps buf
// at offset 8 to match the kernel layout on 64-bit.
type i2cMsg struct {
	addr  uint16
	flags uint16
	len   uint16
	_     uint16
	buf   unsafe.Pointer
}

// i2cRdwrData mirrors struct i2c_rdwr_ioctl_data.
type i2cRdwrData struct {
	msgs  unsafe.Pointer
	nmsgs uint32
}

func openRdwrI2C(path string, retry retryPolicy, logger *slog.Logger) (*rdwrTransport, error) {
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	var funcs uint64
	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(fd), i2cFuncs,
		uintptr(unsafe.Pointer(&funcs))); errno != 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("query adapter functionality on %s: %w", path, errno)
	}
	if funcs&i2cFuncI2C == 0 {
		unix.Close(fd)
		return nil, fmt.Errorf("adapter %s lacks i2c-level transactions", path)
	}
	return &rdwrTransport{path: path, fd: fd, retry: retry, log: logger}, nil
}

func (t *rdwrTransport) kind() string { return "i2c-rdwr" }

func (t *rdwrTransport) supported() bool { return t.valid }

func (t *rdwrTransport) close() {
	if t.fd >= 0 {
		unix.Close(t.fd)
		t.fd = -1
	}
}

func (t *rdwrTransport) readVolume() (current, max uint16, ok bool) {
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

func (t *rdwrTransport) writeVolume(current, max uint16) bool {
	frame := buildSetVCP(vcpAudioVolume, current)
	return t.retry.run(func(attempt int) bool {
		if err := t.transact(frame, 0); err != nil {
			t.log.Debug("ddc write attempt failed",
				"path", t.path, "attempt", attempt, "error", err)
			return false
		}
		t.transact(frame, 0)
		time.Sleep(ddcWriteDelay)
		return true
	})
}

func (t *rdwrTransport) exchange(frame []byte, code byte) (vcpReply, error) {
	if err := t.transact(frame, 0); err != nil {
		return vcpReply{}, err
	}
	time.Sleep(ddcReplyDelay)
	buf := make([]byte, ddcReplyLen)
	if err := t.transact(buf, i2cMsgRead); err != nil {
		return vcpReply{}, err
	}
	return parseVCPReply(buf, code)
}

// transact runs a single-message I2C_RDWR transaction against the DDC
// slave, writing or reading b depending on flags.
func (t *rdwrTransport) transact(b []byte, flags uint16) error {
	msg := i2cMsg{
		addr:  ddcSlaveAddr,
		flags: flags,
		len:   uint16(len(b)),
		buf:   unsafe.Pointer(&b[0]),
	}
	data := i2cRdwrData{msgs: unsafe.Pointer(&msg), nmsgs: 1}
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(t.fd), i2cRdwr,
		uintptr(unsafe.Pointer(&data)))
	runtime.KeepAlive(b)
	runtime.KeepAlive(&msg)
	if errno != 0 {
		return fmt.Errorf("i2c transaction on %s: %w", t.path, errno)
	}
	return nil
}
