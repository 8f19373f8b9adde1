package main

import (
	"bytes"
	"errors"
	"testing"
)

// replyFrame builds a valid 11-byte get-VCP reply and lets the caller
// corrupt it afterwards. The checksum is computed last, so mutate via
// the mangle callback to keep or break it deliberately.
func replyFrame(code byte, max, current uint16, mangle func([]byte)) []byte {
	buf := []byte{
		ddcWriteAddr, 0x88, vcpGetReplyOp, 0x00, code, 0x00,
		byte(max >> 8), byte(max & 0xFF),
		byte(current >> 8), byte(current & 0xFF),
		0,
	}
	buf[ddcReplyLen-1] = ddcChecksum(ddcReplySeed, buf[:ddcReplyLen-1])
	if mangle != nil {
		mangle(buf)
	}
	return buf
}

func TestDDCChecksum(t *testing.T) {
	// Known value for the standard volume read request: the seed is the
	// display write address, then 51 82 01 62.
	got := ddcChecksum(ddcWriteAddr, []byte{ddcSubAddr, ddcLenGet, vcpGetOpcode, vcpAudioVolume})
	if got != 0xDE {
		t.Errorf("checksum for get-volume request = 0x%02X, want 0xDE", got)
	}

	if c := ddcChecksum(0x00, nil); c != 0 {
		t.Errorf("checksum of empty payload = 0x%02X, want 0x00", c)
	}
}

func TestBuildGetVCP(t *testing.T) {
	f := buildGetVCP(vcpAudioVolume)

	want := []byte{0x51, 0x82, 0x01, 0x62, 0xDE}
	if !bytes.Equal(f, want) {
		t.Fatalf("get frame = % 02X, want % 02X", f, want)
	}
	if len(f) != ddcGetFrameLen {
		t.Fatalf("get frame length = %d, want %d", len(f), ddcGetFrameLen)
	}
}

func TestBuildSetVCP(t *testing.T) {
	f := buildSetVCP(vcpAudioVolume, 0x1234)

	want := []byte{0x51, 0x84, 0x03, 0x62, 0x12, 0x34, 0xFC}
	if !bytes.Equal(f, want) {
		t.Fatalf("set frame = % 02X, want % 02X", f, want)
	}

	// The value travels big-endian.
	if f[4] != 0x12 || f[5] != 0x34 {
		t.Errorf("set frame value bytes = %02X %02X, want 12 34", f[4], f[5])
	}
}

func TestParseVCPReply_Valid(t *testing.T) {
	buf := replyFrame(vcpAudioVolume, 100, 42, nil)

	rep, err := parseVCPReply(buf, vcpAudioVolume)
	if err != nil {
		t.Fatalf("parseVCPReply failed: %v", err)
	}
	if rep.Feature != vcpAudioVolume {
		t.Errorf("feature = 0x%02X, want 0x%02X", rep.Feature, vcpAudioVolume)
	}
	if rep.Max != 100 {
		t.Errorf("max = %d, want 100", rep.Max)
	}
	if rep.Current != 42 {
		t.Errorf("current = %d, want 42", rep.Current)
	}
}

func TestParseVCPReply_WideRange(t *testing.T) {
	// Some displays report 16-bit ranges; both halves must decode.
	buf := replyFrame(vcpAudioVolume, 0xFFFF, 0xABCD, nil)

	rep, err := parseVCPReply(buf, vcpAudioVolume)
	if err != nil {
		t.Fatalf("parseVCPReply failed: %v", err)
	}
	if rep.Max != 0xFFFF || rep.Current != 0xABCD {
		t.Errorf("decoded max=%d current=%d, want 65535/43981", rep.Max, rep.Current)
	}
}

func TestParseVCPReply_ShortBuffer(t *testing.T) {
	_, err := parseVCPReply([]byte{0x6E, 0x88, 0x02}, vcpAudioVolume)
	if !errors.Is(err, errReplyShort) {
		t.Fatalf("expected errReplyShort, got %v", err)
	}
}

func TestParseVCPReply_ChecksumMismatch(t *testing.T) {
	buf := replyFrame(vcpAudioVolume, 100, 42, func(b []byte) {
		b[8] ^= 0x01 // flip a bit after the checksum was computed
	})

	_, err := parseVCPReply(buf, vcpAudioVolume)
	if !errors.Is(err, errReplyChecksum) {
		t.Fatalf("expected errReplyChecksum, got %v", err)
	}
}

func TestParseVCPReply_WrongOpcode(t *testing.T) {
	buf := []byte{ddcWriteAddr, 0x88, 0x01, 0x00, vcpAudioVolume, 0x00, 0x00, 0x64, 0x00, 0x2A, 0}
	buf[ddcReplyLen-1] = ddcChecksum(ddcReplySeed, buf[:ddcReplyLen-1])

	_, err := parseVCPReply(buf, vcpAudioVolume)
	if !errors.Is(err, errReplyOpcode) {
		t.Fatalf("expected errReplyOpcode, got %v", err)
	}
}

func TestParseVCPReply_UnsupportedFeature(t *testing.T) {
	buf := []byte{ddcWriteAddr, 0x88, vcpGetReplyOp, 0x01, vcpAudioVolume, 0x00, 0x00, 0x00, 0x00, 0x00, 0}
	buf[ddcReplyLen-1] = ddcChecksum(ddcReplySeed, buf[:ddcReplyLen-1])

	_, err := parseVCPReply(buf, vcpAudioVolume)
	if !errors.Is(err, errReplyNak) {
		t.Fatalf("expected errReplyNak, got %v", err)
	}
}

func TestParseVCPReply_FeatureEchoMismatch(t *testing.T) {
	// Reply for brightness when volume was asked for; must be rejected,
	// not decoded as a volume.
	buf := replyFrame(0x10, 100, 42, nil)

	_, err := parseVCPReply(buf, vcpAudioVolume)
	if !errors.Is(err, errReplyFeature) {
		t.Fatalf("expected errReplyFeature, got %v", err)
	}
}

func TestParseVCPReply_TrailingBytesIgnored(t *testing.T) {
	// Bus reads can return more than the frame; anything past the
	// declared reply length must not affect validation.
	buf := replyFrame(vcpAudioVolume, 100, 42, nil)
	buf = append(buf, 0xDE, 0xAD)

	rep, err := parseVCPReply(buf, vcpAudioVolume)
	if err != nil {
		t.Fatalf("parseVCPReply failed: %v", err)
	}
	if rep.Current != 42 {
		t.Errorf("current = %d, want 42", rep.Current)
	}
}
