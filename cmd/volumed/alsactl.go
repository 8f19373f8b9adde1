package main

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"log/slog"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"
)

// ALSA control ioctl requests (from <sound/asound.h>, _IOC encoded on
// the 64-bit layouts below)
const (
	sndCtlIoctlCardInfo  = 0x81785501 // _IOR ('U', 0x01, snd_ctl_card_info)
	sndCtlIoctlElemList  = 0xC0505510 // _IOWR('U', 0x10, snd_ctl_elem_list)
	sndCtlIoctlElemInfo  = 0xC1105511 // _IOWR('U', 0x11, snd_ctl_elem_info)
	sndCtlIoctlElemRead  = 0xC4C85512 // _IOWR('U', 0x12, snd_ctl_elem_value)
	sndCtlIoctlElemWrite = 0xC4C85513 // _IOWR('U', 0x13, snd_ctl_elem_value)
	sndCtlIoctlSubscribe = 0xC0045516 // _IOWR('U', 0x16, int)

	sndCtlElemIfaceMixer = 2
	sndCtlElemTypeBool   = 1
	sndCtlElemTypeInt    = 2
)

// kernel struct mirrors; field widths match <sound/asound.h>

type sndCtlCardInfo struct {
	card       int32
	_          int32
	id         [16]byte
	driver     [16]byte
	name       [32]byte
	longname   [80]byte
	reserved   [16]byte
	mixername  [80]byte
	components [128]byte
}

type sndCtlElemID struct {
	numid     uint32
	iface     uint32
	device    uint32
	subdevice uint32
	name      [44]byte
	index     uint32
}

type sndCtlElemList struct {
	offset   uint32
	space    uint32
	used     uint32
	count    uint32
	pids     unsafe.Pointer
	reserved [50]byte
}

type sndCtlElemInfo struct {
	id       sndCtlElemID
	typ      uint32
	access   uint32
	count    uint32
	owner    int32
	value    [128]byte // union; integer min/max/step occupy the first 24 bytes
	reserved [64]byte
}

type sndCtlElemValue struct {
	id       sndCtlElemID
	indirect uint32
	_        uint32     // union below aligns to 8
	value    [1024]byte // long value[128]
	reserved [128]byte
}

// alsaCtl is the ctlDevice implementation over /dev/snd/controlCN.
type alsaCtl struct {
	path   string
	fd     int
	log    *slog.Logger
	events chan struct{}
	done   chan struct{}
}

func openAlsaCtl(cardIndex int, logger *slog.Logger) (*alsaCtl, error) {
	path := fmt.Sprintf("/dev/snd/controlC%d", cardIndex)
	fd, err := unix.Open(path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	return &alsaCtl{path: path, fd: fd, log: logger}, nil
}

func (c *alsaCtl) ioctl(req uintptr, arg unsafe.Pointer) error {
	for {
		_, _, errno := unix.Syscall(unix.SYS_IOCTL, uintptr(c.fd), req, uintptr(arg))
		if errno == unix.EINTR {
			continue
		}
		if errno != 0 {
			return errno
		}
		return nil
	}
}

func cString(b []byte) string {
	if i := bytes.IndexByte(b, 0); i >= 0 {
		b = b[:i]
	}
	return string(b)
}

func (c *alsaCtl) identity() (cardIdentity, error) {
	var info sndCtlCardInfo
	if err := c.ioctl(sndCtlIoctlCardInfo, unsafe.Pointer(&info)); err != nil {
		return cardIdentity{}, fmt.Errorf("card info ioctl on %s: %w", c.path, err)
	}
	return cardIdentity{
		Name:       cString(info.name[:]),
		Driver:     cString(info.driver[:]),
		Components: cString(info.components[:]),
	}, nil
}

// playbackElements enumerates mixer-interface elements and keeps the
// playback volumes and switches. Enumeration is the usual two-step:
// one list call for the count, a second with space for the ids.
func (c *alsaCtl) playbackElements() ([]halElement, error) {
	var list sndCtlElemList
	if err := c.ioctl(sndCtlIoctlElemList, unsafe.Pointer(&list)); err != nil {
		return nil, fmt.Errorf("element count ioctl: %w", err)
	}
	if list.count == 0 {
		return nil, nil
	}
	ids := make([]sndCtlElemID, list.count)
	list.space = list.count
	list.offset = 0
	list.pids = unsafe.Pointer(&ids[0])
	if err := c.ioctl(sndCtlIoctlElemList, unsafe.Pointer(&list)); err != nil {
		return nil, fmt.Errorf("element list ioctl: %w", err)
	}
	var out []halElement
	for i := uint32(0); i < list.used && int(i) < len(ids); i++ {
		if ids[i].iface != sndCtlElemIfaceMixer {
			continue
		}
		name := cString(ids[i].name[:])
		isVol := strings.HasSuffix(name, "Playback Volume")
		isSw := strings.HasSuffix(name, "Playback Switch")
		if !isVol && !isSw {
			continue
		}
		var info sndCtlElemInfo
		info.id = ids[i]
		if err := c.ioctl(sndCtlIoctlElemInfo, unsafe.Pointer(&info)); err != nil {
			c.log.Debug("element info ioctl failed", "element", name, "error", err)
			continue
		}
		if isVol && info.typ != sndCtlElemTypeInt {
			continue
		}
		if isSw && info.typ != sndCtlElemTypeBool {
			continue
		}
		e := halElement{
			ID:       info.id.numid,
			Name:     name,
			Channels: int(info.count),
			Switch:   isSw,
		}
		if isVol {
			e.Min = int64(binary.LittleEndian.Uint64(info.value[0:8]))
			e.Max = int64(binary.LittleEndian.Uint64(info.value[8:16]))
		}
		out = append(out, e)
	}
	return out, nil
}

func (c *alsaCtl) readValues(numid uint32, count int) ([]int64, error) {
	var val sndCtlElemValue
	val.id.numid = numid
	if err := c.ioctl(sndCtlIoctlElemRead, unsafe.Pointer(&val)); err != nil {
		return nil, fmt.Errorf("element read ioctl: %w", err)
	}
	if count < 1 {
		count = 1
	}
	if count > 128 {
		count = 128
	}
	vals := make([]int64, count)
	for i := 0; i < count; i++ {
		vals[i] = int64(binary.LittleEndian.Uint64(val.value[i*8 : i*8+8]))
	}
	return vals, nil
}

func (c *alsaCtl) writeValues(numid uint32, values []int64) error {
	var val sndCtlElemValue
	val.id.numid = numid
	for i, v := range values {
		if i >= 128 {
			break
		}
		binary.LittleEndian.PutUint64(val.value[i*8:i*8+8], uint64(v))
	}
	if err := c.ioctl(sndCtlIoctlElemWrite, unsafe.Pointer(&val)); err != nil {
		return fmt.Errorf("element write ioctl: %w", err)
	}
	return nil
}

// subscribe turns on kernel control-change events and pumps them into
// a channel. The reader drains whatever the kernel queues; one signal
// per read is enough since consumers refresh full state anyway.
func (c *alsaCtl) subscribe() (<-chan struct{}, error) {
	sub := int32(1)
	if err := c.ioctl(sndCtlIoctlSubscribe, unsafe.Pointer(&sub)); err != nil {
		return nil, fmt.Errorf("subscribe ioctl on %s: %w", c.path, err)
	}
	c.events = make(chan struct{}, 1)
	c.done = make(chan struct{})
	go c.readEvents()
	return c.events, nil
}

func (c *alsaCtl) readEvents() {
	defer close(c.events)
	buf := make([]byte, 512)
	for {
		n, err := unix.Read(c.fd, buf)
		if err == unix.EINTR {
			continue
		}
		if err != nil || n == 0 {
			select {
			case <-c.done:
			default:
				c.log.Debug("control event stream closed", "path", c.path, "error", err)
			}
			return
		}
		select {
		case c.events <- struct{}{}:
		default:
			// a signal is already pending; nothing is lost
		}
	}
}

func (c *alsaCtl) close() {
	if c.done != nil {
		close(c.done)
	}
	if c.fd >= 0 {
		unix.Close(c.fd)
		c.fd = -1
	}
}
