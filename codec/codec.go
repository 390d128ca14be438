// Package codec holds the pure transforms between domain values and the
// byte layouts MCS/TBS put on the wire. Nothing in here keeps state.
package codec

import (
	"encoding/binary"
	"fmt"
)

// CallIndex is the fixed call index of the single-call model.
const CallIndex byte = 0x01

// EncodeString encodes a string characteristic value: UTF-8 bytes, no
// null terminator. No length cap is enforced at this layer; the
// peripheral truncates to its own display.
func EncodeString(s string) []byte {
	return []byte(s)
}

// EncodeTime encodes a millisecond duration or position as the 4-byte
// little-endian centisecond value MCS requires. Raw milliseconds must
// never go on the wire.
func EncodeTime(ms uint64) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(ms/10))
	return buf
}

// DecodeTime recovers milliseconds from a 4-byte centisecond value.
// Quantization loses everything below 10ms.
func DecodeTime(data []byte) (uint64, error) {
	if len(data) != 4 {
		return 0, fmt.Errorf("codec: time value must be 4 bytes, got %d", len(data))
	}
	return uint64(binary.LittleEndian.Uint32(data)) * 10, nil
}

// EncodeMediaState encodes the single media state byte.
func EncodeMediaState(s MediaState) []byte {
	return []byte{byte(s)}
}

// EncodeCallState encodes the 3-byte TBS call state record
// [callIndex, stateOrdinal, flags]. Flags are always zero; no
// hold/privacy flags are modeled.
func EncodeCallState(s CallState) []byte {
	return []byte{CallIndex, byte(s), 0x00}
}

// DecodeCallState parses a 3-byte call state record.
func DecodeCallState(data []byte) (index byte, state CallState, err error) {
	if len(data) != 3 {
		return 0, 0, fmt.Errorf("codec: call state record must be 3 bytes, got %d", len(data))
	}
	return data[0], CallState(data[1]), nil
}

// EncodeTerminationReason encodes the 2-byte TBS termination record
// [callIndex, reasonOrdinal].
func EncodeTerminationReason(r TerminationReason) []byte {
	return []byte{CallIndex, byte(r)}
}

// EncodeTrackChanged encodes the low byte of the wrapping track-changed
// counter.
func EncodeTrackChanged(counter uint32) []byte {
	return []byte{byte(counter)}
}

// EncodeSupportedOpcodes encodes the 4-byte little-endian opcode
// bitmask.
func EncodeSupportedOpcodes(mask uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, mask)
	return buf
}

// EncodeAppearance encodes the GAP appearance as uint16 little-endian.
func EncodeAppearance(v uint16) []byte {
	buf := make([]byte, 2)
	binary.LittleEndian.PutUint16(buf, v)
	return buf
}

// DecodeOpcode extracts a control-point opcode: the single leading
// byte, unsigned. Remaining bytes are reserved for parameterized
// opcodes this system does not implement and are ignored.
func DecodeOpcode(data []byte) (byte, error) {
	if len(data) == 0 {
		return 0, fmt.Errorf("codec: empty control point write")
	}
	return data[0] & 0xFF, nil
}
