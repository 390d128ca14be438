package mcs

import "github.com/user/wearlink-blue/event"

// Media Control Point opcodes (MCS 1.0, section 3.11).
const (
	OpPlay          byte = 0x01
	OpPause         byte = 0x02
	OpFastRewind    byte = 0x03
	OpFastForward   byte = 0x04
	OpStop          byte = 0x05
	OpPreviousTrack byte = 0x30
	OpNextTrack     byte = 0x31
	OpGotoTrack     byte = 0x34
)

// SupportedOpcodesMask is the static Media Control Point Opcodes
// Supported bitmask for {Play, Pause, Fast Rewind, Fast Forward, Stop,
// Previous Track, Next Track, Goto Track}.
const SupportedOpcodesMask uint32 = 0x0000981F

// vendorRemap aliases the raw opcodes this chip's firmware actually
// sends to their canonical MCS equivalents. The firmware reuses 0x30
// for fast rewind instead of Previous Track; the remap is applied
// before the supported-set check so the rest of the pipeline only ever
// sees canonical opcodes.
var vendorRemap = map[byte]byte{
	0x30: OpFastRewind,
}

// RemapOpcode applies the vendor alias table to a raw opcode. Pure
// lookup, unit-testable without a transport.
func RemapOpcode(raw byte) byte {
	if mapped, ok := vendorRemap[raw]; ok {
		return mapped
	}
	return raw
}

// commandForOpcode maps a canonical opcode to the player command
// dispatched to the media collaborator. ok is false outside the
// supported set.
func commandForOpcode(op byte) (event.MediaCommand, bool) {
	switch op {
	case OpPlay:
		return event.MediaPlay, true
	case OpPause:
		return event.MediaPause, true
	case OpStop:
		return event.MediaStop, true
	case OpNextTrack:
		return event.MediaNext, true
	case OpPreviousTrack:
		return event.MediaPrevious, true
	case OpFastRewind:
		return event.MediaRewind, true
	case OpFastForward:
		return event.MediaFastForward, true
	case OpGotoTrack:
		return event.MediaGoto, true
	default:
		return "", false
	}
}
