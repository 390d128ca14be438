// Package l2cap implements the L2CAP framing of the simulated BLE
// link: a 2-byte little-endian payload length, a 2-byte channel id,
// then the payload.
package l2cap

import (
	"encoding/binary"
	"fmt"
)

// L2CAP channel IDs used on an LE link.
const (
	ChannelATT      uint16 = 0x0004 // Attribute Protocol
	ChannelLESignal uint16 = 0x0005 // LE L2CAP signaling
	ChannelSMP      uint16 = 0x0006 // Security Manager Protocol
)

const (
	MinMTU    = 23  // BLE default ATT MTU
	MaxMTU    = 517 // maximum ATT MTU
	HeaderLen = 4   // length (2 bytes) + channel id (2 bytes)
)

// Packet is one L2CAP frame.
type Packet struct {
	ChannelID uint16
	Payload   []byte
}

// Encode serializes the packet.
func (p *Packet) Encode() []byte {
	buf := make([]byte, HeaderLen+len(p.Payload))
	binary.LittleEndian.PutUint16(buf[0:2], uint16(len(p.Payload)))
	binary.LittleEndian.PutUint16(buf[2:4], p.ChannelID)
	copy(buf[4:], p.Payload)
	return buf
}

// Decode parses one frame.
func Decode(data []byte) (*Packet, error) {
	if len(data) < HeaderLen {
		return nil, fmt.Errorf("l2cap: packet too short (%d bytes)", len(data))
	}
	length := binary.LittleEndian.Uint16(data[0:2])
	if len(data) < HeaderLen+int(length) {
		return nil, fmt.Errorf("l2cap: incomplete packet (claimed %d, have %d)", length, len(data)-HeaderLen)
	}
	payload := make([]byte, length)
	copy(payload, data[4:4+length])
	return &Packet{
		ChannelID: binary.LittleEndian.Uint16(data[2:4]),
		Payload:   payload,
	}, nil
}

// NewATTPacket frames an ATT PDU.
func NewATTPacket(payload []byte) *Packet {
	return &Packet{ChannelID: ChannelATT, Payload: payload}
}

// NewSMPPacket frames an SMP PDU.
func NewSMPPacket(payload []byte) *Packet {
	return &Packet{ChannelID: ChannelSMP, Payload: payload}
}
