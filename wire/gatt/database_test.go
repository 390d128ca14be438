package gatt

import (
	"bytes"
	"testing"
)

func buildTestDatabase() *Database {
	db := NewDatabase()
	db.AddService(0x1800, []CharacteristicSpec{
		{UUID: 0x2A00, Value: []byte("Phone"), Properties: PropRead},
	})
	db.AddService(0x1849, []CharacteristicSpec{
		{UUID: 0x2B97, Value: []byte("Song"), Properties: PropRead | PropNotify},
		{UUID: 0x2BA4, Properties: PropWrite | PropWriteWithoutResponse},
	})
	return db
}

func TestAddServiceAssignsContiguousHandles(t *testing.T) {
	db := buildTestDatabase()
	services := db.Services()
	if len(services) != 2 {
		t.Fatalf("%d services", len(services))
	}

	ga, mcs := services[0], services[1]
	if ga.StartHandle != 0x0001 {
		t.Errorf("first service starts at 0x%04X", ga.StartHandle)
	}
	if mcs.StartHandle != ga.EndHandle+1 {
		t.Errorf("second service starts at 0x%04X, previous ended at 0x%04X", mcs.StartHandle, ga.EndHandle)
	}
	// Service decl + 1 char (decl+value) for GA.
	if ga.EndHandle != ga.StartHandle+2 {
		t.Errorf("GA group 0x%04X..0x%04X", ga.StartHandle, ga.EndHandle)
	}
}

func TestNotifyCharacteristicGetsCCCD(t *testing.T) {
	db := buildTestDatabase()
	svc := db.Services()[1]

	title := svc.Characteristics[0]
	if title.CCCDHandle == 0 {
		t.Fatal("notify characteristic has no CCCD")
	}
	if typ, ok := db.TypeOf(title.CCCDHandle); !ok || typ != TypeCCCD {
		t.Errorf("CCCD handle type = 0x%04X", typ)
	}

	control := svc.Characteristics[1]
	if control.CCCDHandle != 0 {
		t.Error("write-only characteristic grew a CCCD")
	}
}

func TestCharacteristicDeclarationLayout(t *testing.T) {
	db := buildTestDatabase()
	svc := db.Services()[1]
	title := svc.Characteristics[0]

	decl, err := db.Read(title.DeclHandle)
	if err != nil {
		t.Fatal(err)
	}
	want := []byte{
		PropRead | PropNotify,
		byte(title.ValueHandle), byte(title.ValueHandle >> 8),
		0x97, 0x2B,
	}
	if !bytes.Equal(decl, want) {
		t.Errorf("declaration = % X, want % X", decl, want)
	}
}

func TestReadWriteValues(t *testing.T) {
	db := buildTestDatabase()
	h, ok := db.ValueHandle(0x2B97)
	if !ok {
		t.Fatal("no value handle for 0x2B97")
	}

	v, err := db.Read(h)
	if err != nil || string(v) != "Song" {
		t.Fatalf("read = %q, %v", v, err)
	}

	if err := db.Write(h, []byte("Other")); err != nil {
		t.Fatal(err)
	}
	if v, _ := db.Read(h); string(v) != "Other" {
		t.Errorf("after write: %q", v)
	}

	if _, err := db.Read(0xFFFF); err == nil {
		t.Error("read of missing handle succeeded")
	}
}

func TestHandleLookups(t *testing.T) {
	db := buildTestDatabase()
	svc := db.Services()[1]
	title := svc.Characteristics[0]

	if uuid, ok := db.CharForValueHandle(title.ValueHandle); !ok || uuid != 0x2B97 {
		t.Errorf("CharForValueHandle = 0x%04X %v", uuid, ok)
	}
	if layout, ok := db.CharForCCCDHandle(title.CCCDHandle); !ok || layout.UUID != 0x2B97 {
		t.Errorf("CharForCCCDHandle = %+v %v", layout, ok)
	}
	if _, ok := db.CharForValueHandle(title.DeclHandle); ok {
		t.Error("declaration handle resolved as value handle")
	}
}

func TestDiscoveryWalkers(t *testing.T) {
	db := buildTestDatabase()

	groups := db.GroupsInRange(0x0001, 0xFFFF)
	if len(groups) != 2 {
		t.Fatalf("%d groups", len(groups))
	}
	if !bytes.Equal(groups[1].Value, []byte{0x49, 0x18}) {
		t.Errorf("group value = % X", groups[1].Value)
	}

	svc := db.Services()[1]
	decls := db.DeclarationsInRange(svc.StartHandle, svc.EndHandle)
	if len(decls) != 2 {
		t.Errorf("%d declarations in MCS range", len(decls))
	}

	info := db.InformationInRange(svc.StartHandle, svc.EndHandle)
	var cccds int
	for _, e := range info {
		if e.UUID == TypeCCCD {
			cccds++
		}
	}
	if cccds != 1 {
		t.Errorf("%d CCCDs in range", cccds)
	}

	if got := db.GroupsInRange(0x1000, 0xFFFF); len(got) != 0 {
		t.Errorf("out-of-range groups: %+v", got)
	}
}

func TestClear(t *testing.T) {
	db := buildTestDatabase()
	db.Clear()
	if len(db.Services()) != 0 {
		t.Error("services survive Clear")
	}
	db.AddService(0x184C, []CharacteristicSpec{
		{UUID: 0x2BBD, Properties: PropRead | PropNotify},
	})
	if db.Services()[0].StartHandle != 0x0001 {
		t.Error("handles not reset after Clear")
	}
}

func TestCCCDManager(t *testing.T) {
	cm := NewCCCDManager()
	if err := cm.SetSubscription(0x000A, []byte{0x01, 0x00}); err != nil {
		t.Fatal(err)
	}
	if !cm.IsSubscribed(0x000A) {
		t.Error("subscription not recorded")
	}
	if err := cm.SetSubscription(0x000A, []byte{0x00, 0x00}); err != nil {
		t.Fatal(err)
	}
	if cm.IsSubscribed(0x000A) {
		t.Error("unsubscribe not applied")
	}
	if err := cm.SetSubscription(0x000A, []byte{0x01}); err == nil {
		t.Error("1-byte CCCD value accepted")
	}
}

func TestDiscoveryCacheAssembly(t *testing.T) {
	db := buildTestDatabase()
	dc := NewDiscoveryCache()

	dc.AddServices(db.GroupsInRange(0x0001, 0xFFFF))
	for _, svc := range dc.Services {
		dc.AddCharacteristics(db.DeclarationsInRange(svc.StartHandle, svc.EndHandle))
		dc.AddDescriptors(db.InformationInRange(svc.StartHandle, svc.EndHandle))
	}

	mcs := dc.Service(0x1849)
	if mcs == nil || len(mcs.Characteristics) != 2 {
		t.Fatalf("discovered MCS = %+v", mcs)
	}
	title := dc.Characteristic(0x2B97)
	if title == nil || title.CCCDHandle == 0 {
		t.Fatalf("discovered title char = %+v", title)
	}
	if uuid, ok := dc.CharForValueHandle(title.ValueHandle); !ok || uuid != 0x2B97 {
		t.Errorf("CharForValueHandle = 0x%04X %v", uuid, ok)
	}
	if dc.Service(0x184C) != nil {
		t.Error("phantom service discovered")
	}
}
