// Package chip simulates the wearable: it advertises, waits for the
// phone to dial in, then runs the client side of the link (MTU
// exchange, service discovery, subscriptions) and mirrors every
// notified characteristic value.
package chip

import (
	"fmt"
	"sync"

	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire"
	"github.com/user/wearlink-blue/wire/gatt"
)

// Chip is one simulated wearable.
type Chip struct {
	hardwareUUID string
	name         string
	prefix       string
	w            *wire.Wire

	mu     sync.Mutex
	peer   string
	mirror map[uint16][]byte
	subs   map[uint16]bool
	waiter chan struct{}
}

// New creates a chip. Start must be called before the phone can find
// or dial it.
func New(hardwareUUID, name string) *Chip {
	c := &Chip{
		hardwareUUID: hardwareUUID,
		name:         name,
		prefix:       util.ShortHash(hardwareUUID) + " Chip",
		mirror:       make(map[uint16][]byte),
		subs:         make(map[uint16]bool),
	}
	c.w = wire.NewWire(hardwareUUID)
	c.w.SetCallbacks(wire.Callbacks{
		OnConnect:      c.onConnect,
		OnDisconnect:   c.onDisconnect,
		OnNotification: c.onNotification,
		OnBonded: func(peer string) {
			logger.Info(c.prefix, "bonded with phone %s", util.ShortHash(peer))
		},
	})
	return c
}

// HardwareUUID returns the chip's identity, which is what the phone
// dials.
func (c *Chip) HardwareUUID() string { return c.hardwareUUID }

// Start opens the chip's socket and begins advertising.
func (c *Chip) Start() error {
	if err := c.w.Listen(); err != nil {
		return err
	}
	return c.w.Advertise(c.name, codec.ServiceMediaControl, codec.ServiceTelephoneBearer)
}

// Stop tears the chip down.
func (c *Chip) Stop() {
	c.w.Close()
}

// Peer returns the connected phone's UUID, empty when disconnected.
func (c *Chip) Peer() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

// Value returns the last mirrored value of a characteristic.
func (c *Chip) Value(charUUID uint16) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.mirror[charUUID]
	if !ok {
		return nil, false
	}
	return append([]byte{}, v...), true
}

// Subscribed reports whether the chip holds a subscription on the
// characteristic.
func (c *Chip) Subscribed(charUUID uint16) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.subs[charUUID]
}

// WaitChan returns a channel closed on the next mirror change. Test
// helper for synchronizing on notification arrival.
func (c *Chip) WaitChan() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.waiter == nil {
		c.waiter = make(chan struct{})
	}
	return c.waiter
}

func (c *Chip) onConnect(peer string, role wire.ConnectionRole) {
	c.mu.Lock()
	c.peer = peer
	c.mu.Unlock()
	logger.Info(c.prefix, "phone %s connected, starting setup", util.ShortHash(peer))
	go c.setup(peer)
}

func (c *Chip) onDisconnect(peer string) {
	c.mu.Lock()
	if c.peer == peer {
		c.peer = ""
	}
	c.subs = make(map[uint16]bool)
	c.mu.Unlock()
	logger.Info(c.prefix, "phone %s disconnected", util.ShortHash(peer))
}

// setup runs the client choreography against the freshly connected
// phone: MTU, discovery, value priming, subscriptions.
func (c *Chip) setup(peer string) {
	mtu, err := c.w.ExchangeMTU(peer, 185)
	if err != nil {
		logger.Warn(c.prefix, "MTU exchange with %s failed: %v", util.ShortHash(peer), err)
		return
	}
	logger.Debug(c.prefix, "negotiated MTU %d", mtu)

	cache, err := c.w.DiscoverServices(peer)
	if err != nil {
		logger.Warn(c.prefix, "discovery against %s failed: %v", util.ShortHash(peer), err)
		return
	}
	for _, svc := range cache.Services {
		logger.Debug(c.prefix, "discovered service 0x%04X with %d characteristics", svc.UUID, len(svc.Characteristics))
	}

	c.primeValues(peer, cache)

	for _, serviceUUID := range []uint16{codec.ServiceMediaControl, codec.ServiceTelephoneBearer} {
		svc := cache.Service(serviceUUID)
		if svc == nil {
			logger.Warn(c.prefix, "phone does not serve 0x%04X", serviceUUID)
			continue
		}
		for _, ch := range svc.Characteristics {
			if ch.Properties&gatt.PropNotify == 0 {
				continue
			}
			if err := c.w.Subscribe(peer, ch.UUID, true); err != nil {
				logger.Warn(c.prefix, "subscribing 0x%04X: %v", ch.UUID, err)
				continue
			}
			c.mu.Lock()
			c.subs[ch.UUID] = true
			c.mu.Unlock()
			logger.Debug(c.prefix, "subscribed to 0x%04X", ch.UUID)
		}
	}
	logger.Info(c.prefix, "setup complete")
}

// primeValues reads the readable characteristics once so the mirror
// starts populated even before the first notification.
func (c *Chip) primeValues(peer string, cache *gatt.DiscoveryCache) {
	for _, svc := range cache.Services {
		for _, ch := range svc.Characteristics {
			if ch.Properties&gatt.PropRead == 0 {
				continue
			}
			value, err := c.w.ReadCharacteristic(peer, ch.UUID)
			if err != nil {
				logger.Debug(c.prefix, "reading 0x%04X: %v", ch.UUID, err)
				continue
			}
			c.store(ch.UUID, value)
		}
	}
}

func (c *Chip) onNotification(peer string, valueHandle uint16, value []byte) {
	cache := c.w.Discovery(peer)
	if cache == nil {
		return
	}
	charUUID, ok := cache.CharForValueHandle(valueHandle)
	if !ok {
		logger.Debug(c.prefix, "notification on unknown handle 0x%04X", valueHandle)
		return
	}
	c.store(charUUID, value)
	logger.Debug(c.prefix, "notified 0x%04X: %s", charUUID, describeValue(charUUID, value))
}

func (c *Chip) store(charUUID uint16, value []byte) {
	c.mu.Lock()
	c.mirror[charUUID] = append([]byte{}, value...)
	waiter := c.waiter
	c.waiter = nil
	c.mu.Unlock()
	if waiter != nil {
		close(waiter)
	}
}

// AcceptCall writes Accept to the call control point.
func (c *Chip) AcceptCall() error {
	return c.writeControl(codec.CharCallControlPoint, 0x01)
}

// RejectCall writes Terminate for a ringing call.
func (c *Chip) RejectCall() error {
	return c.writeControl(codec.CharCallControlPoint, 0x02)
}

// EndCall writes Terminate for the active call.
func (c *Chip) EndCall() error {
	return c.writeControl(codec.CharCallControlPoint, 0x03)
}

// SendMediaOpcode writes a raw opcode to the media control point.
func (c *Chip) SendMediaOpcode(opcode byte) error {
	return c.writeControl(codec.CharMediaControlPoint, opcode)
}

func (c *Chip) writeControl(charUUID uint16, opcode byte) error {
	peer := c.Peer()
	if peer == "" {
		return fmt.Errorf("no phone connected")
	}
	return c.w.WriteCharacteristic(peer, charUUID, []byte{opcode})
}

func describeValue(charUUID uint16, value []byte) string {
	switch charUUID {
	case codec.CharMediaState:
		if len(value) == 1 {
			return codec.MediaState(value[0]).String()
		}
	case codec.CharCallState:
		if _, st, err := codec.DecodeCallState(value); err == nil {
			return st.String()
		}
		if len(value) == 0 {
			return "no call"
		}
	case codec.CharTrackTitle, codec.CharPlayerName, codec.CharCallFriendlyName:
		return fmt.Sprintf("%q", string(value))
	case codec.CharTrackDuration, codec.CharTrackPosition:
		if ms, err := codec.DecodeTime(value); err == nil {
			return fmt.Sprintf("%dms", ms)
		}
	}
	return fmt.Sprintf("% X", value)
}
