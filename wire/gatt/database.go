// Package gatt implements the server-side attribute table of the
// simulated stack: handle allocation, service/characteristic/CCCD
// layout, and the discovery walkers the ATT responder uses.
package gatt

import (
	"fmt"
	"sync"
)

// Declaration attribute types.
const (
	TypePrimaryService uint16 = 0x2800
	TypeCharacteristic uint16 = 0x2803
	TypeCCCD           uint16 = 0x2902
)

// Characteristic properties (bitmask, as in the declaration value).
const (
	PropRead                 = 0x02
	PropWriteWithoutResponse = 0x04
	PropWrite                = 0x08
	PropNotify               = 0x10
)

// Attribute is one entry of the attribute table.
type Attribute struct {
	Handle uint16
	Type   uint16
	Value  []byte
}

// CharacteristicSpec describes one characteristic to lay out.
type CharacteristicSpec struct {
	UUID       uint16
	Value      []byte
	Properties uint8
}

// CharacteristicLayout records where a characteristic landed in the
// table.
type CharacteristicLayout struct {
	UUID        uint16
	DeclHandle  uint16
	ValueHandle uint16
	CCCDHandle  uint16 // 0 when the characteristic has no CCCD
}

// ServiceLayout records where a service landed.
type ServiceLayout struct {
	UUID            uint16
	StartHandle     uint16
	EndHandle       uint16
	Characteristics []CharacteristicLayout
}

// Database is the attribute table. Handles are allocated in
// registration order starting at 0x0001.
type Database struct {
	mu         sync.RWMutex
	attrs      []*Attribute
	byHandle   map[uint16]*Attribute
	services   []*ServiceLayout
	nextHandle uint16
}

// NewDatabase creates an empty table.
func NewDatabase() *Database {
	return &Database{
		byHandle:   make(map[uint16]*Attribute),
		nextHandle: 0x0001,
	}
}

func (db *Database) add(attrType uint16, value []byte) uint16 {
	handle := db.nextHandle
	db.nextHandle++
	attr := &Attribute{Handle: handle, Type: attrType, Value: append([]byte{}, value...)}
	db.attrs = append(db.attrs, attr)
	db.byHandle[handle] = attr
	return handle
}

// AddService lays out one primary service with its characteristics.
// Characteristics with the notify property get a CCCD.
func (db *Database) AddService(serviceUUID uint16, chars []CharacteristicSpec) *ServiceLayout {
	db.mu.Lock()
	defer db.mu.Unlock()

	layout := &ServiceLayout{UUID: serviceUUID}
	layout.StartHandle = db.add(TypePrimaryService, uint16LE(serviceUUID))

	for _, spec := range chars {
		cl := CharacteristicLayout{UUID: spec.UUID}
		// The declaration value is [properties, valueHandle LE, uuid LE];
		// the value handle is the declaration's successor.
		valueHandle := db.nextHandle + 1
		decl := make([]byte, 5)
		decl[0] = spec.Properties
		decl[1] = byte(valueHandle)
		decl[2] = byte(valueHandle >> 8)
		copy(decl[3:5], uint16LE(spec.UUID))
		cl.DeclHandle = db.add(TypeCharacteristic, decl)
		cl.ValueHandle = db.add(spec.UUID, spec.Value)
		if spec.Properties&PropNotify != 0 {
			cl.CCCDHandle = db.add(TypeCCCD, []byte{0x00, 0x00})
		}
		layout.Characteristics = append(layout.Characteristics, cl)
	}

	layout.EndHandle = db.nextHandle - 1
	db.services = append(db.services, layout)
	return layout
}

// Clear drops every attribute and service.
func (db *Database) Clear() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.attrs = nil
	db.byHandle = make(map[uint16]*Attribute)
	db.services = nil
	db.nextHandle = 0x0001
}

// Services returns the registered service layouts.
func (db *Database) Services() []*ServiceLayout {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*ServiceLayout, len(db.services))
	copy(out, db.services)
	return out
}

// Read returns a copy of an attribute's value.
func (db *Database) Read(handle uint16) ([]byte, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	attr, ok := db.byHandle[handle]
	if !ok {
		return nil, fmt.Errorf("gatt: invalid handle 0x%04X", handle)
	}
	return append([]byte{}, attr.Value...), nil
}

// Write replaces an attribute's value.
func (db *Database) Write(handle uint16, value []byte) error {
	db.mu.Lock()
	defer db.mu.Unlock()
	attr, ok := db.byHandle[handle]
	if !ok {
		return fmt.Errorf("gatt: invalid handle 0x%04X", handle)
	}
	attr.Value = append([]byte{}, value...)
	return nil
}

// TypeOf returns an attribute's type UUID.
func (db *Database) TypeOf(handle uint16) (uint16, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	attr, ok := db.byHandle[handle]
	if !ok {
		return 0, false
	}
	return attr.Type, true
}

// ValueHandle finds the value handle of a characteristic by its UUID.
func (db *Database) ValueHandle(charUUID uint16) (uint16, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, svc := range db.services {
		for _, cl := range svc.Characteristics {
			if cl.UUID == charUUID {
				return cl.ValueHandle, true
			}
		}
	}
	return 0, false
}

// CharForValueHandle finds the characteristic UUID behind a value
// handle.
func (db *Database) CharForValueHandle(handle uint16) (uint16, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, svc := range db.services {
		for _, cl := range svc.Characteristics {
			if cl.ValueHandle == handle {
				return cl.UUID, true
			}
		}
	}
	return 0, false
}

// CharForCCCDHandle resolves a CCCD handle to the characteristic it
// configures.
func (db *Database) CharForCCCDHandle(handle uint16) (CharacteristicLayout, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	for _, svc := range db.services {
		for _, cl := range svc.Characteristics {
			if cl.CCCDHandle == handle && handle != 0 {
				return cl, true
			}
		}
	}
	return CharacteristicLayout{}, false
}

func uint16LE(v uint16) []byte {
	return []byte{byte(v), byte(v >> 8)}
}
