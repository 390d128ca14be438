// Package smp implements the simulated Security Manager Protocol used
// for bonding: a pairing request/response followed by a random
// exchange, with the long-term key derived from both randoms via
// HKDF-SHA256. This is Just Works pairing shaped for the simulation,
// not a cryptographically faithful LE Secure Connections
// implementation.
package smp

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

// SMP command codes (Bluetooth Core Spec Vol 3, Part H, Section 3.3).
const (
	CodePairingRequest  = 0x01
	CodePairingResponse = 0x02
	CodePairingRandom   = 0x04
	CodePairingFailed   = 0x05
)

// Pairing failure reasons.
const (
	ReasonPairingNotSupported = 0x05
	ReasonUnspecified         = 0x08
)

const (
	RandomLen = 16
	LTKLen    = 16
)

// Message is one SMP PDU: a code byte followed by its payload.
type Message struct {
	Code    byte
	Payload []byte
}

// Encode serializes the message.
func (m *Message) Encode() []byte {
	return append([]byte{m.Code}, m.Payload...)
}

// Decode parses one SMP PDU.
func Decode(data []byte) (*Message, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("smp: empty PDU")
	}
	payload := make([]byte, len(data)-1)
	copy(payload, data[1:])
	return &Message{Code: data[0], Payload: payload}, nil
}

// NewRandom draws the 16-byte pairing random.
func NewRandom() ([]byte, error) {
	buf := make([]byte, RandomLen)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("smp: drawing pairing random: %w", err)
	}
	return buf, nil
}

// DeriveLTK derives the long-term key from both pairing randoms. The
// initiator's random always goes first so both sides derive the same
// key; the two device identities salt the derivation.
func DeriveLTK(initiatorRandom, responderRandom []byte, initiatorID, responderID string) ([]byte, error) {
	if len(initiatorRandom) != RandomLen || len(responderRandom) != RandomLen {
		return nil, fmt.Errorf("smp: pairing randoms must be %d bytes", RandomLen)
	}
	secret := append(append([]byte{}, initiatorRandom...), responderRandom...)
	salt := []byte(initiatorID + "|" + responderID)
	r := hkdf.New(sha256.New, secret, salt, []byte("wearlink-ltk"))
	ltk := make([]byte, LTKLen)
	if _, err := io.ReadFull(r, ltk); err != nil {
		return nil, fmt.Errorf("smp: deriving LTK: %w", err)
	}
	return ltk, nil
}
