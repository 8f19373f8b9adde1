package main

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// DDC/CI frame codec for MCCS VCP get/set. Frames travel over I2C to
// the display's 0x6E/0x6F address pair with 0x51 as the host source
// byte. Every frame ends in an XOR checksum seeded with the destination
// address, so a flipped bit anywhere invalidates the frame.

const (
	ddcLenGet = 0x82 // 0x80 | 2 payload bytes
	ddcLenSet = 0x84 // 0x80 | 4 payload bytes
)

var (
	errReplyShort    = errors.New("ddc: short reply")
	errReplyChecksum = errors.New("ddc: reply checksum mismatch")
	errReplyOpcode   = errors.New("ddc: not a get-vcp reply")
	errReplyNak      = errors.New("ddc: display reported unsupported vcp code")
	errReplyFeature  = errors.New("ddc: reply echoes a different vcp code")
)

// ddcChecksum XORs seed with every byte of b.
func ddcChecksum(seed byte, b []byte) byte {
	c := seed
	for _, x := range b {
		c ^= x
	}
	return c
}

// buildGetVCP returns the 5-byte read request for one VCP feature.
func buildGetVCP(code byte) []byte {
	f := []byte{ddcSubAddr, ddcLenGet, vcpGetOpcode, code, 0}
	f[ddcGetFrameLen-1] = ddcChecksum(ddcWriteAddr, f[:ddcGetFrameLen-1])
	return f
}

// buildSetVCP returns the 7-byte write request setting one VCP feature.
// No reply is defined for set; the link gives no acknowledgement.
func buildSetVCP(code byte, value uint16) []byte {
	f := []byte{ddcSubAddr, ddcLenSet, vcpSetOpcode, code, byte(value >> 8), byte(value & 0xFF), 0}
	f[ddcSetFrameLen-1] = ddcChecksum(ddcWriteAddr, f[:ddcSetFrameLen-1])
	return f
}

// vcpReply is a validated get-VCP response.
type vcpReply struct {
	Feature byte
	Max     uint16
	Current uint16
}

// parseVCPReply validates an 11-byte get-VCP reply for the requested
// feature code. Any validation failure means the attempt produced no
// data; callers retry rather than trusting partial bytes. The reply
// checksum is seeded with the virtual host address rather than the
// write address.
func parseVCPReply(buf []byte, code byte) (vcpReply, error) {
	if len(buf) < ddcReplyLen {
		return vcpReply{}, fmt.Errorf("%w: %d bytes", errReplyShort, len(buf))
	}
	buf = buf[:ddcReplyLen]
	if ddcChecksum(ddcReplySeed, buf[:ddcReplyLen-1]) != buf[ddcReplyLen-1] {
		return vcpReply{}, errReplyChecksum
	}
	if buf[2] != vcpGetReplyOp {
		return vcpReply{}, fmt.Errorf("%w: opcode 0x%02x", errReplyOpcode, buf[2])
	}
	if buf[3] != 0x00 {
		return vcpReply{}, errReplyNak
	}
	if buf[4] != code {
		return vcpReply{}, fmt.Errorf("%w: got 0x%02x want 0x%02x", errReplyFeature, buf[4], code)
	}
	return vcpReply{
		Feature: buf[4],
		Max:     binary.BigEndian.Uint16(buf[6:8]),
		Current: binary.BigEndian.Uint16(buf[8:10]),
	}, nil
}
