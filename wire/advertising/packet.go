// Package advertising implements the AD-structure TLV codec of the
// simulated advertising channel. A peripheral publishes its encoded
// payload as an .adv file in the shared socket directory; scanners poll
// that directory and decode.
package advertising

import (
	"encoding/binary"
	"fmt"
)

// AD types used by this system.
const (
	ADTypeFlags                     = 0x01
	ADTypeComplete16BitServiceUUIDs = 0x03
	ADTypeCompleteLocalName         = 0x09
)

// Advertising flags.
const (
	FlagLEGeneralDiscoverableMode = 0x02
	FlagBREDRNotSupported         = 0x04
)

// MaxAdvertisingDataLen is the legacy advertising payload limit.
const MaxAdvertisingDataLen = 31

// ADStructure is one TLV element: [length][type][data], where length
// covers the type byte plus the data.
type ADStructure struct {
	Type byte
	Data []byte
}

// NewFlagsAD builds the flags element.
func NewFlagsAD(flags byte) ADStructure {
	return ADStructure{Type: ADTypeFlags, Data: []byte{flags}}
}

// NewCompleteLocalNameAD builds the local name element.
func NewCompleteLocalNameAD(name string) ADStructure {
	return ADStructure{Type: ADTypeCompleteLocalName, Data: []byte(name)}
}

// NewComplete16BitServiceUUIDsAD builds the service UUID list element.
func NewComplete16BitServiceUUIDsAD(uuids ...uint16) ADStructure {
	data := make([]byte, 2*len(uuids))
	for i, u := range uuids {
		binary.LittleEndian.PutUint16(data[2*i:], u)
	}
	return ADStructure{Type: ADTypeComplete16BitServiceUUIDs, Data: data}
}

// Encode serializes a sequence of AD structures into one advertising
// payload.
func Encode(structures ...ADStructure) ([]byte, error) {
	var out []byte
	for _, s := range structures {
		out = append(out, byte(1+len(s.Data)), s.Type)
		out = append(out, s.Data...)
	}
	if len(out) > MaxAdvertisingDataLen {
		return nil, fmt.Errorf("advertising: payload %d bytes exceeds %d", len(out), MaxAdvertisingDataLen)
	}
	return out, nil
}

// Decode parses an advertising payload into its AD structures.
func Decode(data []byte) ([]ADStructure, error) {
	var out []ADStructure
	for off := 0; off < len(data); {
		length := int(data[off])
		if length == 0 {
			break // padding
		}
		if off+1+length > len(data) {
			return nil, fmt.Errorf("advertising: truncated AD structure at offset %d", off)
		}
		s := ADStructure{Type: data[off+1]}
		s.Data = append(s.Data, data[off+2:off+1+length]...)
		out = append(out, s)
		off += 1 + length
	}
	return out, nil
}

// LocalName extracts the complete local name, if present.
func LocalName(structures []ADStructure) (string, bool) {
	for _, s := range structures {
		if s.Type == ADTypeCompleteLocalName {
			return string(s.Data), true
		}
	}
	return "", false
}

// ServiceUUIDs extracts the complete 16-bit service UUID list.
func ServiceUUIDs(structures []ADStructure) []uint16 {
	for _, s := range structures {
		if s.Type != ADTypeComplete16BitServiceUUIDs {
			continue
		}
		uuids := make([]uint16, 0, len(s.Data)/2)
		for off := 0; off+2 <= len(s.Data); off += 2 {
			uuids = append(uuids, binary.LittleEndian.Uint16(s.Data[off:]))
		}
		return uuids
	}
	return nil
}
