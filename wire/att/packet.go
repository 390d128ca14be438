package att

import (
	"encoding/binary"
	"fmt"
)

// Packet is one ATT PDU.
type Packet interface {
	Opcode() uint8
	Encode() []byte
}

// ErrorResponse reports a failed request.
type ErrorResponse struct {
	RequestOpcode uint8
	Handle        uint16
	Code          uint8
}

func (p *ErrorResponse) Opcode() uint8 { return OpErrorResponse }
func (p *ErrorResponse) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = OpErrorResponse
	buf[1] = p.RequestOpcode
	binary.LittleEndian.PutUint16(buf[2:4], p.Handle)
	buf[4] = p.Code
	return buf
}

// ExchangeMTURequest opens MTU negotiation (client to server).
type ExchangeMTURequest struct {
	ClientRxMTU uint16
}

func (p *ExchangeMTURequest) Opcode() uint8 { return OpExchangeMTURequest }
func (p *ExchangeMTURequest) Encode() []byte {
	buf := make([]byte, 3)
	buf[0] = OpExchangeMTURequest
	binary.LittleEndian.PutUint16(buf[1:3], p.ClientRxMTU)
	return buf
}

// ExchangeMTUResponse answers MTU negotiation.
type ExchangeMTUResponse struct {
	ServerRxMTU uint16
}

func (p *ExchangeMTUResponse) Opcode() uint8 { return OpExchangeMTUResponse }
func (p *ExchangeMTUResponse) Encode() []byte {
	buf := make([]byte, 3)
	buf[0] = OpExchangeMTUResponse
	binary.LittleEndian.PutUint16(buf[1:3], p.ServerRxMTU)
	return buf
}

// FindInformationRequest asks for the descriptor UUIDs in a handle
// range.
type FindInformationRequest struct {
	StartHandle uint16
	EndHandle   uint16
}

func (p *FindInformationRequest) Opcode() uint8 { return OpFindInformationRequest }
func (p *FindInformationRequest) Encode() []byte {
	buf := make([]byte, 5)
	buf[0] = OpFindInformationRequest
	binary.LittleEndian.PutUint16(buf[1:3], p.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], p.EndHandle)
	return buf
}

// InformationEntry is one handle/UUID pair in a Find Information
// Response.
type InformationEntry struct {
	Handle uint16
	UUID   uint16 // this stack serves 16-bit UUIDs only
}

// FindInformationResponse lists descriptor handles and their UUIDs.
type FindInformationResponse struct {
	Entries []InformationEntry
}

func (p *FindInformationResponse) Opcode() uint8 { return OpFindInformationResponse }
func (p *FindInformationResponse) Encode() []byte {
	buf := make([]byte, 2+4*len(p.Entries))
	buf[0] = OpFindInformationResponse
	buf[1] = 0x01 // format: 16-bit UUIDs
	for i, e := range p.Entries {
		binary.LittleEndian.PutUint16(buf[2+4*i:], e.Handle)
		binary.LittleEndian.PutUint16(buf[4+4*i:], e.UUID)
	}
	return buf
}

// ReadByTypeRequest asks for attributes of a type in a handle range.
// Used for characteristic discovery (type 0x2803).
type ReadByTypeRequest struct {
	StartHandle uint16
	EndHandle   uint16
	Type        uint16
}

func (p *ReadByTypeRequest) Opcode() uint8 { return OpReadByTypeRequest }
func (p *ReadByTypeRequest) Encode() []byte {
	buf := make([]byte, 7)
	buf[0] = OpReadByTypeRequest
	binary.LittleEndian.PutUint16(buf[1:3], p.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], p.EndHandle)
	binary.LittleEndian.PutUint16(buf[5:7], p.Type)
	return buf
}

// AttributeData is one handle/value pair in a Read By Type Response.
type AttributeData struct {
	Handle uint16
	Value  []byte
}

// ReadByTypeResponse lists matching attributes. All entries must share
// one value length.
type ReadByTypeResponse struct {
	Entries []AttributeData
}

func (p *ReadByTypeResponse) Opcode() uint8 { return OpReadByTypeResponse }
func (p *ReadByTypeResponse) Encode() []byte {
	if len(p.Entries) == 0 {
		return []byte{OpReadByTypeResponse, 0}
	}
	pairLen := 2 + len(p.Entries[0].Value)
	buf := make([]byte, 2, 2+pairLen*len(p.Entries))
	buf[0] = OpReadByTypeResponse
	buf[1] = byte(pairLen)
	for _, e := range p.Entries {
		var h [2]byte
		binary.LittleEndian.PutUint16(h[:], e.Handle)
		buf = append(buf, h[:]...)
		buf = append(buf, e.Value...)
	}
	return buf
}

// ReadRequest reads one attribute value.
type ReadRequest struct {
	Handle uint16
}

func (p *ReadRequest) Opcode() uint8 { return OpReadRequest }
func (p *ReadRequest) Encode() []byte {
	buf := make([]byte, 3)
	buf[0] = OpReadRequest
	binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
	return buf
}

// ReadResponse carries the read value.
type ReadResponse struct {
	Value []byte
}

func (p *ReadResponse) Opcode() uint8 { return OpReadResponse }
func (p *ReadResponse) Encode() []byte {
	return append([]byte{OpReadResponse}, p.Value...)
}

// ReadByGroupTypeRequest asks for service groups in a handle range.
// Used for primary service discovery (type 0x2800).
type ReadByGroupTypeRequest struct {
	StartHandle uint16
	EndHandle   uint16
	Type        uint16
}

func (p *ReadByGroupTypeRequest) Opcode() uint8 { return OpReadByGroupTypeRequest }
func (p *ReadByGroupTypeRequest) Encode() []byte {
	buf := make([]byte, 7)
	buf[0] = OpReadByGroupTypeRequest
	binary.LittleEndian.PutUint16(buf[1:3], p.StartHandle)
	binary.LittleEndian.PutUint16(buf[3:5], p.EndHandle)
	binary.LittleEndian.PutUint16(buf[5:7], p.Type)
	return buf
}

// GroupEntry is one service group in a Read By Group Type Response.
type GroupEntry struct {
	Handle    uint16
	EndHandle uint16
	Value     []byte // service UUID bytes
}

// ReadByGroupTypeResponse lists service groups.
type ReadByGroupTypeResponse struct {
	Entries []GroupEntry
}

func (p *ReadByGroupTypeResponse) Opcode() uint8 { return OpReadByGroupTypeResponse }
func (p *ReadByGroupTypeResponse) Encode() []byte {
	if len(p.Entries) == 0 {
		return []byte{OpReadByGroupTypeResponse, 0}
	}
	entryLen := 4 + len(p.Entries[0].Value)
	buf := make([]byte, 2, 2+entryLen*len(p.Entries))
	buf[0] = OpReadByGroupTypeResponse
	buf[1] = byte(entryLen)
	for _, e := range p.Entries {
		var h [4]byte
		binary.LittleEndian.PutUint16(h[0:2], e.Handle)
		binary.LittleEndian.PutUint16(h[2:4], e.EndHandle)
		buf = append(buf, h[:]...)
		buf = append(buf, e.Value...)
	}
	return buf
}

// WriteRequest writes one attribute value, acknowledged.
type WriteRequest struct {
	Handle uint16
	Value  []byte
}

func (p *WriteRequest) Opcode() uint8 { return OpWriteRequest }
func (p *WriteRequest) Encode() []byte {
	buf := make([]byte, 3, 3+len(p.Value))
	buf[0] = OpWriteRequest
	binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
	return append(buf, p.Value...)
}

// WriteResponse acknowledges a WriteRequest.
type WriteResponse struct{}

func (p *WriteResponse) Opcode() uint8  { return OpWriteResponse }
func (p *WriteResponse) Encode() []byte { return []byte{OpWriteResponse} }

// WriteCommand writes one attribute value, unacknowledged.
type WriteCommand struct {
	Handle uint16
	Value  []byte
}

func (p *WriteCommand) Opcode() uint8 { return OpWriteCommand }
func (p *WriteCommand) Encode() []byte {
	buf := make([]byte, 3, 3+len(p.Value))
	buf[0] = OpWriteCommand
	binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
	return append(buf, p.Value...)
}

// PrepareWriteRequest queues one fragment of a long write.
type PrepareWriteRequest struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

func (p *PrepareWriteRequest) Opcode() uint8 { return OpPrepareWriteRequest }
func (p *PrepareWriteRequest) Encode() []byte {
	buf := make([]byte, 5, 5+len(p.Value))
	buf[0] = OpPrepareWriteRequest
	binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
	binary.LittleEndian.PutUint16(buf[3:5], p.Offset)
	return append(buf, p.Value...)
}

// PrepareWriteResponse echoes the queued fragment back for
// verification.
type PrepareWriteResponse struct {
	Handle uint16
	Offset uint16
	Value  []byte
}

func (p *PrepareWriteResponse) Opcode() uint8 { return OpPrepareWriteResponse }
func (p *PrepareWriteResponse) Encode() []byte {
	buf := make([]byte, 5, 5+len(p.Value))
	buf[0] = OpPrepareWriteResponse
	binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
	binary.LittleEndian.PutUint16(buf[3:5], p.Offset)
	return append(buf, p.Value...)
}

// ExecuteWriteRequest commits or cancels all queued fragments.
type ExecuteWriteRequest struct {
	Flags uint8
}

func (p *ExecuteWriteRequest) Opcode() uint8  { return OpExecuteWriteRequest }
func (p *ExecuteWriteRequest) Encode() []byte { return []byte{OpExecuteWriteRequest, p.Flags} }

// ExecuteWriteResponse acknowledges an ExecuteWriteRequest.
type ExecuteWriteResponse struct{}

func (p *ExecuteWriteResponse) Opcode() uint8  { return OpExecuteWriteResponse }
func (p *ExecuteWriteResponse) Encode() []byte { return []byte{OpExecuteWriteResponse} }

// HandleValueNotification is a server-initiated value push.
type HandleValueNotification struct {
	Handle uint16
	Value  []byte
}

func (p *HandleValueNotification) Opcode() uint8 { return OpHandleValueNotification }
func (p *HandleValueNotification) Encode() []byte {
	buf := make([]byte, 3, 3+len(p.Value))
	buf[0] = OpHandleValueNotification
	binary.LittleEndian.PutUint16(buf[1:3], p.Handle)
	return append(buf, p.Value...)
}

// DecodePacket parses one ATT PDU into its typed form.
func DecodePacket(data []byte) (Packet, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("att: empty PDU")
	}
	op := data[0]
	switch op {
	case OpErrorResponse:
		if len(data) < 5 {
			return nil, truncated(op, len(data))
		}
		return &ErrorResponse{
			RequestOpcode: data[1],
			Handle:        binary.LittleEndian.Uint16(data[2:4]),
			Code:          data[4],
		}, nil

	case OpExchangeMTURequest:
		if len(data) < 3 {
			return nil, truncated(op, len(data))
		}
		return &ExchangeMTURequest{ClientRxMTU: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpExchangeMTUResponse:
		if len(data) < 3 {
			return nil, truncated(op, len(data))
		}
		return &ExchangeMTUResponse{ServerRxMTU: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpFindInformationRequest:
		if len(data) < 5 {
			return nil, truncated(op, len(data))
		}
		return &FindInformationRequest{
			StartHandle: binary.LittleEndian.Uint16(data[1:3]),
			EndHandle:   binary.LittleEndian.Uint16(data[3:5]),
		}, nil

	case OpFindInformationResponse:
		if len(data) < 2 || data[1] != 0x01 {
			return nil, fmt.Errorf("att: unsupported find information format")
		}
		resp := &FindInformationResponse{}
		for off := 2; off+4 <= len(data); off += 4 {
			resp.Entries = append(resp.Entries, InformationEntry{
				Handle: binary.LittleEndian.Uint16(data[off : off+2]),
				UUID:   binary.LittleEndian.Uint16(data[off+2 : off+4]),
			})
		}
		return resp, nil

	case OpReadByTypeRequest:
		if len(data) < 7 {
			return nil, truncated(op, len(data))
		}
		return &ReadByTypeRequest{
			StartHandle: binary.LittleEndian.Uint16(data[1:3]),
			EndHandle:   binary.LittleEndian.Uint16(data[3:5]),
			Type:        binary.LittleEndian.Uint16(data[5:7]),
		}, nil

	case OpReadByTypeResponse:
		if len(data) < 2 {
			return nil, truncated(op, len(data))
		}
		pairLen := int(data[1])
		if pairLen < 3 {
			return nil, fmt.Errorf("att: read by type pair length %d too small", pairLen)
		}
		resp := &ReadByTypeResponse{}
		for off := 2; off+pairLen <= len(data); off += pairLen {
			value := make([]byte, pairLen-2)
			copy(value, data[off+2:off+pairLen])
			resp.Entries = append(resp.Entries, AttributeData{
				Handle: binary.LittleEndian.Uint16(data[off : off+2]),
				Value:  value,
			})
		}
		return resp, nil

	case OpReadRequest:
		if len(data) < 3 {
			return nil, truncated(op, len(data))
		}
		return &ReadRequest{Handle: binary.LittleEndian.Uint16(data[1:3])}, nil

	case OpReadResponse:
		value := make([]byte, len(data)-1)
		copy(value, data[1:])
		return &ReadResponse{Value: value}, nil

	case OpReadByGroupTypeRequest:
		if len(data) < 7 {
			return nil, truncated(op, len(data))
		}
		return &ReadByGroupTypeRequest{
			StartHandle: binary.LittleEndian.Uint16(data[1:3]),
			EndHandle:   binary.LittleEndian.Uint16(data[3:5]),
			Type:        binary.LittleEndian.Uint16(data[5:7]),
		}, nil

	case OpReadByGroupTypeResponse:
		if len(data) < 2 {
			return nil, truncated(op, len(data))
		}
		entryLen := int(data[1])
		if entryLen < 5 {
			return nil, fmt.Errorf("att: read by group type entry length %d too small", entryLen)
		}
		resp := &ReadByGroupTypeResponse{}
		for off := 2; off+entryLen <= len(data); off += entryLen {
			value := make([]byte, entryLen-4)
			copy(value, data[off+4:off+entryLen])
			resp.Entries = append(resp.Entries, GroupEntry{
				Handle:    binary.LittleEndian.Uint16(data[off : off+2]),
				EndHandle: binary.LittleEndian.Uint16(data[off+2 : off+4]),
				Value:     value,
			})
		}
		return resp, nil

	case OpWriteRequest:
		if len(data) < 3 {
			return nil, truncated(op, len(data))
		}
		value := make([]byte, len(data)-3)
		copy(value, data[3:])
		return &WriteRequest{Handle: binary.LittleEndian.Uint16(data[1:3]), Value: value}, nil

	case OpWriteResponse:
		return &WriteResponse{}, nil

	case OpWriteCommand:
		if len(data) < 3 {
			return nil, truncated(op, len(data))
		}
		value := make([]byte, len(data)-3)
		copy(value, data[3:])
		return &WriteCommand{Handle: binary.LittleEndian.Uint16(data[1:3]), Value: value}, nil

	case OpPrepareWriteRequest:
		if len(data) < 5 {
			return nil, truncated(op, len(data))
		}
		value := make([]byte, len(data)-5)
		copy(value, data[5:])
		return &PrepareWriteRequest{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Offset: binary.LittleEndian.Uint16(data[3:5]),
			Value:  value,
		}, nil

	case OpPrepareWriteResponse:
		if len(data) < 5 {
			return nil, truncated(op, len(data))
		}
		value := make([]byte, len(data)-5)
		copy(value, data[5:])
		return &PrepareWriteResponse{
			Handle: binary.LittleEndian.Uint16(data[1:3]),
			Offset: binary.LittleEndian.Uint16(data[3:5]),
			Value:  value,
		}, nil

	case OpExecuteWriteRequest:
		if len(data) < 2 {
			return nil, truncated(op, len(data))
		}
		return &ExecuteWriteRequest{Flags: data[1]}, nil

	case OpExecuteWriteResponse:
		return &ExecuteWriteResponse{}, nil

	case OpHandleValueNotification:
		if len(data) < 3 {
			return nil, truncated(op, len(data))
		}
		value := make([]byte, len(data)-3)
		copy(value, data[3:])
		return &HandleValueNotification{Handle: binary.LittleEndian.Uint16(data[1:3]), Value: value}, nil

	default:
		return nil, fmt.Errorf("att: unsupported opcode 0x%02X", op)
	}
}

func truncated(op uint8, got int) error {
	return fmt.Errorf("att: truncated %s (%d bytes)", OpcodeNames[op], got)
}
