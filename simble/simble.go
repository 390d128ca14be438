// Package simble implements the bearer interface over the simulated
// unix-socket BLE stack in wire/. Each StartServer cycle gets a fresh
// controller so a restart never inherits half-torn-down state; bonds
// persist across cycles through the on-disk bond store.
package simble

import (
	"fmt"
	"sync"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire"
	"github.com/user/wearlink-blue/wire/gatt"
)

type Bearer struct {
	hardwareUUID string
	localName    string
	prefix       string

	mu      sync.Mutex
	handler bearer.Handler
	w       *wire.Wire
	serving bool
}

// New creates a simulated bearer identified by hardwareUUID,
// advertising as localName when serving.
func New(hardwareUUID, localName string) *Bearer {
	return &Bearer{
		hardwareUUID: hardwareUUID,
		localName:    localName,
		prefix:       util.ShortHash(hardwareUUID) + " SimBLE",
	}
}

func (b *Bearer) SetHandler(h bearer.Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.handler = h
}

func (b *Bearer) getHandler() bearer.Handler {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.handler
}

// StartServer builds the attribute table, opens the socket, and begins
// advertising.
func (b *Bearer) StartServer(services []bearer.Service) error {
	b.mu.Lock()
	if b.serving {
		b.mu.Unlock()
		return fmt.Errorf("server already running")
	}

	w := wire.NewWire(b.hardwareUUID)
	db := gatt.NewDatabase()
	serviceUUIDs := make([]uint16, 0, len(services))
	type registered struct {
		serviceUUID uint16
		charUUIDs   []uint16
	}
	var layouts []registered
	for _, svc := range services {
		specs := make([]gatt.CharacteristicSpec, 0, len(svc.Characteristics))
		for _, ch := range svc.Characteristics {
			var props uint8
			if ch.Read {
				props |= gatt.PropRead
			}
			if ch.Write {
				props |= gatt.PropWrite | gatt.PropWriteWithoutResponse
			}
			if ch.Notify {
				props |= gatt.PropNotify
			}
			specs = append(specs, gatt.CharacteristicSpec{UUID: ch.UUID, Value: ch.Value, Properties: props})
		}
		layout := db.AddService(svc.UUID, specs)
		chars := make([]uint16, 0, len(layout.Characteristics))
		for _, cl := range layout.Characteristics {
			chars = append(chars, cl.UUID)
		}
		layouts = append(layouts, registered{serviceUUID: svc.UUID, charUUIDs: chars})
		serviceUUIDs = append(serviceUUIDs, svc.UUID)
	}
	w.SetDatabase(db)
	w.SetCallbacks(wire.Callbacks{
		OnConnect: func(peer string, role wire.ConnectionRole) {
			if h := b.getHandler(); h != nil {
				h.DeviceConnected(bearer.DeviceID(peer))
			}
		},
		OnDisconnect: func(peer string) {
			if h := b.getHandler(); h != nil {
				h.DeviceDisconnected(bearer.DeviceID(peer))
			}
		},
		OnWrite: func(peer string, charUUID uint16, value []byte) {
			if h := b.getHandler(); h != nil {
				h.CharacteristicWritten(bearer.DeviceID(peer), charUUID, value)
			}
		},
		OnSubscription: func(peer string, charUUID uint16, enabled bool) {
			if h := b.getHandler(); h != nil {
				h.Subscribed(bearer.DeviceID(peer), charUUID, enabled)
			}
		},
		OnBonded: func(peer string) {
			logger.Info(b.prefix, "bond established with %s", util.ShortHash(peer))
		},
	})

	if err := w.Listen(); err != nil {
		b.mu.Unlock()
		return err
	}
	if err := w.Advertise(b.localName, serviceUUIDs...); err != nil {
		w.Close()
		b.mu.Unlock()
		return err
	}
	b.w = w
	b.serving = true
	b.mu.Unlock()

	if h := b.getHandler(); h != nil {
		for _, r := range layouts {
			h.ServiceRegistered(r.serviceUUID, r.charUUIDs)
		}
	}
	return nil
}

// StopServer closes the controller. Connected peers are dropped.
func (b *Bearer) StopServer() error {
	b.mu.Lock()
	w := b.w
	b.serving = false
	b.mu.Unlock()
	if w == nil {
		return nil
	}
	w.Close()
	return nil
}

func (b *Bearer) controller() *wire.Wire {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.w
}

func (b *Bearer) Connect(peer string) error {
	w := b.controller()
	if w == nil {
		return fmt.Errorf("server not running")
	}
	return w.Connect(peer)
}

func (b *Bearer) Disconnect(peer string) error {
	w := b.controller()
	if w == nil {
		return nil
	}
	return w.Disconnect(peer)
}

func (b *Bearer) Notify(dev bearer.DeviceID, charUUID uint16, value []byte) bool {
	w := b.controller()
	if w == nil {
		return false
	}
	return w.Notify(string(dev), charUUID, value)
}

func (b *Bearer) Bonded(dev bearer.DeviceID) bool {
	w := b.controller()
	if w == nil {
		return false
	}
	return w.IsBonded(string(dev))
}

func (b *Bearer) Bond(dev bearer.DeviceID) error {
	w := b.controller()
	if w == nil {
		return fmt.Errorf("server not running")
	}
	return w.InitiatePairing(string(dev))
}
