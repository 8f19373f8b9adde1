package main

import "time"

// DDC/CI addressing (VESA DDC/CI and MCCS standards)
const (
	ddcWriteAddr = 0x6E // display write address on the DDC bus
	ddcReadAddr  = 0x6F // display read address
	ddcSlaveAddr = 0x37 // 7-bit I2C slave address (0x6E >> 1)
	ddcSubAddr   = 0x51 // host source / sub-address byte
	ddcReplySeed = 0x50 // virtual host address, seeds reply checksums

	vcpGetOpcode  = 0x01
	vcpGetReplyOp = 0x02
	vcpSetOpcode  = 0x03

	// VCP feature codes
	vcpAudioVolume = 0x62
	vcpAudioMute   = 0x8D
)

// Linux i2c-dev ioctl requests (from <linux/i2c-dev.h>)
const (
	i2cSlave = 0x0703
	i2cFuncs = 0x0705
	i2cRdwr  = 0x0707

	// I2C_FUNC_I2C: adapter supports plain i2c-level transactions
	i2cFuncI2C = 0x00000001

	i2cMsgRead = 0x0001 // i2c_msg flag (from <linux/i2c.h>)
)

// DDC/CI link timing
const (
	ddcReplyDelay = 40 * time.Millisecond // settle time between request write and reply read
	ddcRetryDelay = 25 * time.Millisecond // pause between failed attempts
	ddcWriteDelay = 50 * time.Millisecond // pause after a set before the link is reusable

	ddcMaxAttempts  = 4
	ddcReplyLen     = 11
	ddcGetFrameLen  = 5
	ddcSetFrameLen  = 7
	probeMaxBusScan = 16 // highest /dev/i2c-N probed during a bus scan
)

// Volume policy defaults
const (
	defaultUpdateHz    = 30         // daemon loop frequency (Hz)
	volumeStepFraction = 1.0 / 16.0 // one key press moves this fraction of full scale
	minAudibleVolume   = 1.0 / 16.0 // restore floor when unmuting with nothing stored
	silenceThreshold   = 1.0 / 32.0 // below half a step counts as silent

	mainVolumeEpsilon = 0.02 // read-back tolerance for the main-volume element
	channelEpsilon    = 0.05 // looser tolerance for per-channel writes

	scriptDebounce = 50 * time.Millisecond

	defaultCardIndex   = 0
	storeRetentionDays = 90
)

// Daemon queue sizes
const (
	eventQueueSize   = 64
	effectsQueueSize = 64
)

// Playback mixer elements probed in fallback order when the card has no
// usable main volume element.
var fallbackElements = []string{"Master", "PCM", "Speaker", "Headphone"}

const maxFallbackChannels = 4
