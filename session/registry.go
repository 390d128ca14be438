package session

import (
	"sort"
	"sync"

	"github.com/user/wearlink-blue/bearer"
)

// Registry tracks currently connected peers and the subset that joined
// since the last notification burst. A device leaves the recent subset
// once its snapshot burst completes.
type Registry struct {
	mu        sync.RWMutex
	connected map[bearer.DeviceID]bool
	recent    map[bearer.DeviceID]bool
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		connected: make(map[bearer.DeviceID]bool),
		recent:    make(map[bearer.DeviceID]bool),
	}
}

// Add registers a newly connected device and marks it recently
// connected.
func (r *Registry) Add(dev bearer.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[dev] = true
	r.recent[dev] = true
}

// Remove drops a device from both sets. Removing a device mid-burst
// also cancels the remainder of its snapshot.
func (r *Registry) Remove(dev bearer.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connected, dev)
	delete(r.recent, dev)
}

// ClearRecent marks a device's snapshot burst as delivered.
func (r *Registry) ClearRecent(dev bearer.DeviceID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.recent, dev)
}

// Connected returns all connected devices, sorted for deterministic
// iteration.
func (r *Registry) Connected() []bearer.DeviceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.connected)
}

// RecentlyConnected returns the devices still owed a snapshot burst.
func (r *Registry) RecentlyConnected() []bearer.DeviceID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return sortedKeys(r.recent)
}

// IsConnected reports whether a device is connected.
func (r *Registry) IsConnected(dev bearer.DeviceID) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.connected[dev]
}

func sortedKeys(m map[bearer.DeviceID]bool) []bearer.DeviceID {
	out := make([]bearer.DeviceID, 0, len(m))
	for dev := range m {
		out = append(out, dev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
