package codec

import (
	"bytes"
	"testing"
)

func TestEncodeTimeCentiseconds(t *testing.T) {
	// 754220ms -> 75422cs -> 0x000126AE little-endian
	got := EncodeTime(754220)
	want := []byte{0xAE, 0x26, 0x01, 0x00}
	if !bytes.Equal(got, want) {
		t.Errorf("EncodeTime(754220) = % X, want % X", got, want)
	}

	if got := EncodeTime(0); !bytes.Equal(got, []byte{0, 0, 0, 0}) {
		t.Errorf("EncodeTime(0) = % X", got)
	}

	// Sub-centisecond remainder is dropped, not rounded.
	ms, err := DecodeTime(EncodeTime(1009))
	if err != nil {
		t.Fatal(err)
	}
	if ms != 1000 {
		t.Errorf("round trip of 1009ms = %d, want 1000", ms)
	}
}

func TestDecodeTimeRejectsBadLength(t *testing.T) {
	for _, data := range [][]byte{nil, {1}, {1, 2, 3}, {1, 2, 3, 4, 5}} {
		if _, err := DecodeTime(data); err == nil {
			t.Errorf("DecodeTime(% X) accepted", data)
		}
	}
}

func TestEncodeCallStateRecord(t *testing.T) {
	got := EncodeCallState(CallIncoming)
	if !bytes.Equal(got, []byte{0x01, 0x01, 0x00}) {
		t.Errorf("EncodeCallState(CallIncoming) = % X", got)
	}

	idx, state, err := DecodeCallState(got)
	if err != nil {
		t.Fatal(err)
	}
	if idx != CallIndex || state != CallIncoming {
		t.Errorf("DecodeCallState = (%d, %s)", idx, state)
	}
}

func TestEncodeTerminationReason(t *testing.T) {
	got := EncodeTerminationReason(ReasonNoAnswer)
	if !bytes.Equal(got, []byte{0x01, 0x05}) {
		t.Errorf("EncodeTerminationReason(ReasonNoAnswer) = % X", got)
	}
}

func TestEncodeTrackChangedWraps(t *testing.T) {
	if got := EncodeTrackChanged(0x1FF); !bytes.Equal(got, []byte{0xFF}) {
		t.Errorf("EncodeTrackChanged(0x1FF) = % X", got)
	}
	if got := EncodeTrackChanged(256); !bytes.Equal(got, []byte{0x00}) {
		t.Errorf("EncodeTrackChanged(256) = % X", got)
	}
}

func TestEncodeSupportedOpcodes(t *testing.T) {
	got := EncodeSupportedOpcodes(0x0000981F)
	if !bytes.Equal(got, []byte{0x1F, 0x98, 0x00, 0x00}) {
		t.Errorf("EncodeSupportedOpcodes = % X", got)
	}
}

func TestEncodeStringNoTerminator(t *testing.T) {
	got := EncodeString("Héllo")
	if !bytes.Equal(got, []byte("Héllo")) {
		t.Errorf("EncodeString = % X", got)
	}
	if len(EncodeString("")) != 0 {
		t.Error("empty string must encode to zero bytes")
	}
}

func TestDecodeOpcode(t *testing.T) {
	op, err := DecodeOpcode([]byte{0x31, 0xAA, 0xBB})
	if err != nil {
		t.Fatal(err)
	}
	if op != 0x31 {
		t.Errorf("DecodeOpcode = 0x%02X, want 0x31", op)
	}
	if _, err := DecodeOpcode(nil); err == nil {
		t.Error("empty write accepted")
	}
}
