package advertising

import (
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	payload, err := Encode(
		NewFlagsAD(FlagLEGeneralDiscoverableMode|FlagBREDRNotSupported),
		NewCompleteLocalNameAD("WearLink Phone"),
		NewComplete16BitServiceUUIDsAD(0x1849, 0x184C),
	)
	if err != nil {
		t.Fatal(err)
	}

	structures, err := Decode(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(structures) != 3 {
		t.Fatalf("%d structures", len(structures))
	}

	name, ok := LocalName(structures)
	if !ok || name != "WearLink Phone" {
		t.Errorf("local name = %q %v", name, ok)
	}
	uuids := ServiceUUIDs(structures)
	if len(uuids) != 2 || uuids[0] != 0x1849 || uuids[1] != 0x184C {
		t.Errorf("service uuids = %04X", uuids)
	}
}

func TestEncodeRejectsOversizedPayload(t *testing.T) {
	if _, err := Encode(NewCompleteLocalNameAD("this local name is far too long for a legacy packet")); err == nil {
		t.Fatal("oversized payload accepted")
	}
}

func TestDecodeStopsAtPadding(t *testing.T) {
	payload, err := Encode(NewFlagsAD(FlagLEGeneralDiscoverableMode))
	if err != nil {
		t.Fatal(err)
	}
	padded := append(payload, 0x00, 0x00)
	structures, err := Decode(padded)
	if err != nil {
		t.Fatal(err)
	}
	if len(structures) != 1 || structures[0].Type != ADTypeFlags {
		t.Errorf("structures = %+v", structures)
	}
}

func TestDecodeRejectsTruncatedStructure(t *testing.T) {
	if _, err := Decode([]byte{0x05, 0x09, 'a'}); err == nil {
		t.Fatal("truncated structure accepted")
	}
}

func TestMissingElements(t *testing.T) {
	structures, err := Decode([]byte{0x02, 0x01, 0x06})
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := LocalName(structures); ok {
		t.Error("found a local name in a flags-only payload")
	}
	if uuids := ServiceUUIDs(structures); uuids != nil {
		t.Errorf("uuids = %v", uuids)
	}
}
