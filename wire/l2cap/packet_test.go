package l2cap

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := NewATTPacket([]byte{0x0A, 0x03, 0x00})
	raw := in.Encode()
	if len(raw) != HeaderLen+3 {
		t.Fatalf("encoded %d bytes", len(raw))
	}

	out, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if out.ChannelID != ChannelATT || !bytes.Equal(out.Payload, in.Payload) {
		t.Errorf("decoded %+v", out)
	}
}

func TestDecodeHeader(t *testing.T) {
	// length=2 LE, channel=0x0006, payload
	raw := []byte{0x02, 0x00, 0x06, 0x00, 0x01, 0x03}
	pkt, err := Decode(raw)
	if err != nil {
		t.Fatal(err)
	}
	if pkt.ChannelID != ChannelSMP {
		t.Errorf("channel = 0x%04X", pkt.ChannelID)
	}
	if !bytes.Equal(pkt.Payload, []byte{0x01, 0x03}) {
		t.Errorf("payload = % X", pkt.Payload)
	}
}

func TestDecodeRejectsShortAndInconsistent(t *testing.T) {
	if _, err := Decode([]byte{0x01, 0x00, 0x04}); err == nil {
		t.Error("short header accepted")
	}
	// Claims 5 payload bytes, carries 1.
	if _, err := Decode([]byte{0x05, 0x00, 0x04, 0x00, 0xAA}); err == nil {
		t.Error("inconsistent length accepted")
	}
}

func TestEmptyPayload(t *testing.T) {
	pkt, err := Decode(NewSMPPacket(nil).Encode())
	if err != nil {
		t.Fatal(err)
	}
	if pkt.ChannelID != ChannelSMP || len(pkt.Payload) != 0 {
		t.Errorf("decoded %+v", pkt)
	}
}
