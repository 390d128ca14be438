package gatt

import (
	"encoding/binary"
	"fmt"
	"sync"
)

// CCCD values written by clients.
const (
	CCCDDisabled      uint16 = 0x0000
	CCCDNotifyEnabled uint16 = 0x0001
)

// CCCDManager tracks notification subscriptions for one connection.
// CCCD state is per-connection in real BLE: it is never shared across
// links, and closing the link clears it.
type CCCDManager struct {
	mu            sync.RWMutex
	subscriptions map[uint16]bool // characteristic value handle -> notify enabled
}

// NewCCCDManager creates an empty subscription table.
func NewCCCDManager() *CCCDManager {
	return &CCCDManager{subscriptions: make(map[uint16]bool)}
}

// SetSubscription applies a CCCD write for the characteristic whose
// value handle is given.
func (cm *CCCDManager) SetSubscription(valueHandle uint16, cccdValue []byte) error {
	if len(cccdValue) != 2 {
		return fmt.Errorf("gatt: CCCD value must be 2 bytes, got %d", len(cccdValue))
	}
	enabled := binary.LittleEndian.Uint16(cccdValue)&CCCDNotifyEnabled != 0

	cm.mu.Lock()
	defer cm.mu.Unlock()
	if enabled {
		cm.subscriptions[valueHandle] = true
	} else {
		delete(cm.subscriptions, valueHandle)
	}
	return nil
}

// IsSubscribed reports whether notifications are enabled for a
// characteristic value handle.
func (cm *CCCDManager) IsSubscribed(valueHandle uint16) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	return cm.subscriptions[valueHandle]
}

// SubscribedHandles returns all value handles with notifications on.
func (cm *CCCDManager) SubscribedHandles() []uint16 {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]uint16, 0, len(cm.subscriptions))
	for h := range cm.subscriptions {
		out = append(out, h)
	}
	return out
}
