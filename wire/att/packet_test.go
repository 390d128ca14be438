package att

import (
	"bytes"
	"testing"
)

func TestExchangeMTURoundTrip(t *testing.T) {
	req := &ExchangeMTURequest{ClientRxMTU: 185}
	decoded, err := DecodePacket(req.Encode())
	if err != nil {
		t.Fatal(err)
	}
	got, ok := decoded.(*ExchangeMTURequest)
	if !ok || got.ClientRxMTU != 185 {
		t.Fatalf("decoded %#v", decoded)
	}
}

func TestErrorResponseRoundTrip(t *testing.T) {
	in := &ErrorResponse{RequestOpcode: OpReadByGroupTypeRequest, Handle: 0x0010, Code: ErrAttributeNotFound}
	raw := in.Encode()
	if len(raw) != 5 {
		t.Fatalf("encoded %d bytes", len(raw))
	}
	decoded, err := DecodePacket(raw)
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.(*ErrorResponse)
	if got.RequestOpcode != OpReadByGroupTypeRequest || got.Handle != 0x0010 || got.Code != ErrAttributeNotFound {
		t.Errorf("decoded %+v", got)
	}
}

func TestReadByGroupTypeResponseRoundTrip(t *testing.T) {
	in := &ReadByGroupTypeResponse{Entries: []GroupEntry{
		{Handle: 0x0001, EndHandle: 0x0005, Value: []byte{0x00, 0x18}},
		{Handle: 0x0006, EndHandle: 0x0015, Value: []byte{0x49, 0x18}},
	}}
	decoded, err := DecodePacket(in.Encode())
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.(*ReadByGroupTypeResponse)
	if len(got.Entries) != 2 {
		t.Fatalf("%d entries", len(got.Entries))
	}
	if got.Entries[1].Handle != 0x0006 || got.Entries[1].EndHandle != 0x0015 {
		t.Errorf("entry = %+v", got.Entries[1])
	}
	if !bytes.Equal(got.Entries[1].Value, []byte{0x49, 0x18}) {
		t.Errorf("value = % X", got.Entries[1].Value)
	}
}

func TestReadByTypeResponseRoundTrip(t *testing.T) {
	// A characteristic declaration: props, value handle, 16-bit UUID.
	decl := []byte{0x12, 0x03, 0x00, 0x97, 0x2B}
	in := &ReadByTypeResponse{Entries: []AttributeData{{Handle: 0x0002, Value: decl}}}
	decoded, err := DecodePacket(in.Encode())
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.(*ReadByTypeResponse)
	if len(got.Entries) != 1 || got.Entries[0].Handle != 0x0002 {
		t.Fatalf("entries = %+v", got.Entries)
	}
	if !bytes.Equal(got.Entries[0].Value, decl) {
		t.Errorf("value = % X", got.Entries[0].Value)
	}
}

func TestFindInformationResponseRoundTrip(t *testing.T) {
	in := &FindInformationResponse{Entries: []InformationEntry{
		{Handle: 0x0004, UUID: 0x2902},
	}}
	decoded, err := DecodePacket(in.Encode())
	if err != nil {
		t.Fatal(err)
	}
	got := decoded.(*FindInformationResponse)
	if len(got.Entries) != 1 || got.Entries[0].UUID != 0x2902 {
		t.Errorf("entries = %+v", got.Entries)
	}
}

func TestWriteAndNotificationRoundTrip(t *testing.T) {
	w := &WriteRequest{Handle: 0x0012, Value: []byte{0x01, 0x00}}
	decoded, err := DecodePacket(w.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got := decoded.(*WriteRequest); got.Handle != 0x0012 || !bytes.Equal(got.Value, []byte{0x01, 0x00}) {
		t.Errorf("write = %+v", got)
	}

	n := &HandleValueNotification{Handle: 0x000A, Value: []byte("Song A")}
	decoded, err = DecodePacket(n.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got := decoded.(*HandleValueNotification); got.Handle != 0x000A || string(got.Value) != "Song A" {
		t.Errorf("notification = %+v", got)
	}
}

func TestDecodeRejectsTruncatedAndUnknown(t *testing.T) {
	if _, err := DecodePacket(nil); err == nil {
		t.Error("empty PDU accepted")
	}
	if _, err := DecodePacket([]byte{OpReadRequest, 0x01}); err == nil {
		t.Error("truncated read request accepted")
	}
	if _, err := DecodePacket([]byte{0xEE}); err == nil {
		t.Error("unknown opcode accepted")
	}
}

func TestRequestResponseClassification(t *testing.T) {
	if !IsRequest(OpReadRequest) || !IsRequest(OpExchangeMTURequest) {
		t.Error("request opcodes not classified as requests")
	}
	if IsRequest(OpReadResponse) || IsRequest(OpHandleValueNotification) || IsRequest(OpWriteCommand) {
		t.Error("non-request opcodes classified as requests")
	}
	if got := ResponseOpcode(OpReadRequest); got != OpReadResponse {
		t.Errorf("ResponseOpcode(read) = 0x%02X", got)
	}
}
