// Package gate implements the per-characteristic change-detection cache
// that decides which connected devices a notification goes to. BLE
// notifications are not retroactively delivered to late subscribers, so
// a value that has not changed network-wide must still be pushed to any
// device that joined since it was last sent.
package gate

import (
	"bytes"
	"sync"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/wearerr"
)

// Registry is the connected-device view the gate consults. The session
// owns the real one.
type Registry interface {
	Connected() []bearer.DeviceID
	RecentlyConnected() []bearer.DeviceID
}

// Sender delivers one notification to one device. The bool is the
// stack's advisory success signal.
type Sender interface {
	Notify(dev bearer.DeviceID, charUUID uint16, value []byte) bool
}

// Gate holds the lastSentValues cache for one protocol manager.
type Gate struct {
	mu       sync.Mutex
	lastSent map[uint16][]byte
	registry Registry
	sender   Sender
	prefix   string // log prefix
}

// New creates a gate over the given registry and sender.
func New(prefix string, registry Registry, sender Sender) *Gate {
	return &Gate{
		lastSent: make(map[uint16][]byte),
		registry: registry,
		sender:   sender,
		prefix:   prefix,
	}
}

// Publish runs the gating decision for one characteristic value:
//
//  1. value differs from the cache (or force is set): send to every
//     connected device, update the cache
//  2. else, recently-connected subset non-empty: send the unchanged
//     value only to that subset, cache untouched
//  3. else: no send
//
// force exists for the call-id-change rule: a new logical call must
// re-notify Call State even when the encoded bytes happen to match.
func (g *Gate) Publish(charUUID uint16, value []byte, force bool) int {
	g.mu.Lock()
	last, seen := g.lastSent[charUUID]
	changed := force || !seen || !bytes.Equal(last, value)
	if changed {
		g.lastSent[charUUID] = append([]byte{}, value...)
	}
	g.mu.Unlock()

	var targets []bearer.DeviceID
	if changed {
		targets = g.registry.Connected()
	} else {
		targets = g.registry.RecentlyConnected()
		if len(targets) == 0 {
			return 0
		}
		logger.Debug(g.prefix, "char 0x%04X unchanged, snapshotting %d recent device(s)", charUUID, len(targets))
	}

	sent := 0
	for _, dev := range targets {
		if g.sender.Notify(dev, charUUID, value) {
			sent++
		} else {
			// Advisory only. The next natural update resynchronizes.
			logger.Warn(g.prefix, "notify 0x%04X to %s: %v", charUUID, dev, wearerr.ErrTransientLink)
		}
	}
	return sent
}

// LastSent returns the cached value for a characteristic, if any.
func (g *Gate) LastSent(charUUID uint16) ([]byte, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	v, ok := g.lastSent[charUUID]
	if !ok {
		return nil, false
	}
	return append([]byte{}, v...), true
}
