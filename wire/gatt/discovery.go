package gatt

import (
	"encoding/binary"

	"github.com/user/wearlink-blue/wire/att"
)

// Server-side discovery walkers. Each builds the response entries for
// one discovery request against the attribute table; the caller frames
// them into ATT packets.

// GroupsInRange returns the primary service groups overlapping a handle
// range, for Read By Group Type.
func (db *Database) GroupsInRange(start, end uint16) []att.GroupEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []att.GroupEntry
	for _, svc := range db.services {
		if svc.StartHandle > end || svc.StartHandle < start {
			continue
		}
		out = append(out, att.GroupEntry{
			Handle:    svc.StartHandle,
			EndHandle: svc.EndHandle,
			Value:     uint16LE(svc.UUID),
		})
	}
	return out
}

// DeclarationsInRange returns the characteristic declarations in a
// handle range, for Read By Type with type 0x2803.
func (db *Database) DeclarationsInRange(start, end uint16) []att.AttributeData {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []att.AttributeData
	for _, attr := range db.attrs {
		if attr.Type != TypeCharacteristic || attr.Handle < start || attr.Handle > end {
			continue
		}
		out = append(out, att.AttributeData{
			Handle: attr.Handle,
			Value:  append([]byte{}, attr.Value...),
		})
	}
	return out
}

// InformationInRange returns handle/type pairs in a range, for Find
// Information (descriptor discovery).
func (db *Database) InformationInRange(start, end uint16) []att.InformationEntry {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []att.InformationEntry
	for _, attr := range db.attrs {
		if attr.Handle < start || attr.Handle > end {
			continue
		}
		out = append(out, att.InformationEntry{Handle: attr.Handle, UUID: attr.Type})
	}
	return out
}

// DiscoveredCharacteristic is the client-side view of one discovered
// characteristic.
type DiscoveredCharacteristic struct {
	UUID        uint16
	DeclHandle  uint16
	ValueHandle uint16
	CCCDHandle  uint16
	Properties  uint8
}

// DiscoveredService is the client-side view of one discovered service.
type DiscoveredService struct {
	UUID            uint16
	StartHandle     uint16
	EndHandle       uint16
	Characteristics []DiscoveredCharacteristic
}

// DiscoveryCache accumulates a client's view of the remote table as
// the discovery exchanges complete.
type DiscoveryCache struct {
	Services []*DiscoveredService
}

// NewDiscoveryCache creates an empty cache.
func NewDiscoveryCache() *DiscoveryCache {
	return &DiscoveryCache{}
}

// AddServices ingests a Read By Group Type response.
func (dc *DiscoveryCache) AddServices(entries []att.GroupEntry) {
	for _, e := range entries {
		if len(e.Value) != 2 {
			continue // 128-bit services are not served by this stack
		}
		dc.Services = append(dc.Services, &DiscoveredService{
			UUID:        binary.LittleEndian.Uint16(e.Value),
			StartHandle: e.Handle,
			EndHandle:   e.EndHandle,
		})
	}
}

// AddCharacteristics ingests a Read By Type (0x2803) response for the
// service covering the returned handles.
func (dc *DiscoveryCache) AddCharacteristics(entries []att.AttributeData) {
	for _, e := range entries {
		if len(e.Value) != 5 {
			continue
		}
		svc := dc.serviceForHandle(e.Handle)
		if svc == nil {
			continue
		}
		svc.Characteristics = append(svc.Characteristics, DiscoveredCharacteristic{
			UUID:        binary.LittleEndian.Uint16(e.Value[3:5]),
			DeclHandle:  e.Handle,
			ValueHandle: binary.LittleEndian.Uint16(e.Value[1:3]),
			Properties:  e.Value[0],
		})
	}
}

// AddDescriptors ingests a Find Information response, attaching CCCD
// handles to the characteristics they follow.
func (dc *DiscoveryCache) AddDescriptors(entries []att.InformationEntry) {
	for _, e := range entries {
		if e.UUID != TypeCCCD {
			continue
		}
		if ch := dc.characteristicBefore(e.Handle); ch != nil {
			ch.CCCDHandle = e.Handle
		}
	}
}

// Service returns the discovered service with the given UUID.
func (dc *DiscoveryCache) Service(uuid uint16) *DiscoveredService {
	for _, svc := range dc.Services {
		if svc.UUID == uuid {
			return svc
		}
	}
	return nil
}

// Characteristic returns the discovered characteristic with the given
// UUID, searching all services.
func (dc *DiscoveryCache) Characteristic(uuid uint16) *DiscoveredCharacteristic {
	for _, svc := range dc.Services {
		for i := range svc.Characteristics {
			if svc.Characteristics[i].UUID == uuid {
				return &svc.Characteristics[i]
			}
		}
	}
	return nil
}

// CharForValueHandle resolves a notification's value handle.
func (dc *DiscoveryCache) CharForValueHandle(handle uint16) (uint16, bool) {
	for _, svc := range dc.Services {
		for _, ch := range svc.Characteristics {
			if ch.ValueHandle == handle {
				return ch.UUID, true
			}
		}
	}
	return 0, false
}

func (dc *DiscoveryCache) serviceForHandle(handle uint16) *DiscoveredService {
	for _, svc := range dc.Services {
		if handle >= svc.StartHandle && handle <= svc.EndHandle {
			return svc
		}
	}
	return nil
}

// characteristicBefore finds the characteristic whose value handle
// most closely precedes the given handle.
func (dc *DiscoveryCache) characteristicBefore(handle uint16) *DiscoveredCharacteristic {
	var best *DiscoveredCharacteristic
	for _, svc := range dc.Services {
		for i := range svc.Characteristics {
			ch := &svc.Characteristics[i]
			if ch.ValueHandle < handle && (best == nil || ch.ValueHandle > best.ValueHandle) {
				best = ch
			}
		}
	}
	return best
}
