// Package hwble implements the bearer interface against real BLE
// hardware through tinygo.org/x/bluetooth. Peers are identified by
// their BLE MAC address string. Bonding goes through BlueZ over D-Bus,
// since the portable stack does not expose pairing.
package hwble

import (
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/wearerr"
)

const prefix = "HWBLE"

type served struct {
	char *bluetooth.Characteristic
	uuid uint16
}

type Bearer struct {
	localName string
	adapter   *bluetooth.Adapter
	bonds     *bluezBonds

	mu      sync.Mutex
	handler bearer.Handler
	chars   map[uint16]*served
	devices map[string]bluetooth.Device
	adv     *bluetooth.Advertisement
	serving bool
	enabled bool
}

// New creates a hardware bearer advertising as localName.
func New(localName string) *Bearer {
	return &Bearer{
		localName: localName,
		adapter:   bluetooth.DefaultAdapter,
		bonds:     newBluezBonds(),
		chars:     make(map[uint16]*served),
		devices:   make(map[string]bluetooth.Device),
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

func (b *Bearer) enable() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.enabled {
		return nil
	}
	if err := b.adapter.Enable(); err != nil {
		// Usually a capability problem (no BlueZ access). Every GATT
		// operation behind this check becomes a no-op with this error.
		return fmt.Errorf("enabling BLE adapter: %v: %w", err, wearerr.ErrPermissionDenied)
	}
	b.adapter.SetConnectHandler(func(device bluetooth.Device, connected bool) {
		addr := device.Address.String()
		b.mu.Lock()
		if connected {
			b.devices[addr] = device
		} else {
			delete(b.devices, addr)
		}
		b.mu.Unlock()
		h := b.getHandler()
		if h == nil {
			return
		}
		if connected {
			h.DeviceConnected(bearer.DeviceID(addr))
		} else {
			h.DeviceDisconnected(bearer.DeviceID(addr))
		}
	})
	b.enabled = true
	return nil
}

// StartServer registers the services with the adapter and starts
// advertising. The portable stack has no subscription callback, so
// Subscribed is never reported here; notification delivery itself is
// the signal.
func (b *Bearer) StartServer(services []bearer.Service) error {
	if err := b.enable(); err != nil {
		return err
	}
	b.mu.Lock()
	if b.serving {
		b.mu.Unlock()
		return fmt.Errorf("server already running")
	}
	b.mu.Unlock()

	type registered struct {
		serviceUUID uint16
		charUUIDs   []uint16
	}
	var layouts []registered
	advertised := make([]bluetooth.UUID, 0, len(services))

	for _, svc := range services {
		cfgs := make([]bluetooth.CharacteristicConfig, 0, len(svc.Characteristics))
		handles := make([]*served, 0, len(svc.Characteristics))
		charUUIDs := make([]uint16, 0, len(svc.Characteristics))
		for _, ch := range svc.Characteristics {
			var flags bluetooth.CharacteristicPermissions
			if ch.Read {
				flags |= bluetooth.CharacteristicReadPermission
			}
			if ch.Write {
				flags |= bluetooth.CharacteristicWritePermission | bluetooth.CharacteristicWriteWithoutResponsePermission
			}
			if ch.Notify {
				flags |= bluetooth.CharacteristicNotifyPermission
			}
			s := &served{char: &bluetooth.Characteristic{}, uuid: ch.UUID}
			charUUID := ch.UUID
			cfgs = append(cfgs, bluetooth.CharacteristicConfig{
				Handle: s.char,
				UUID:   bluetooth.New16BitUUID(charUUID),
				Value:  ch.Value,
				Flags:  flags,
				WriteEvent: func(client bluetooth.Connection, offset int, value []byte) {
					if h := b.getHandler(); h != nil && offset == 0 {
						h.CharacteristicWritten(bearer.DeviceID(fmt.Sprintf("conn-%d", client)), charUUID, value)
					}
				},
			})
			handles = append(handles, s)
			charUUIDs = append(charUUIDs, charUUID)
		}
		if err := b.adapter.AddService(&bluetooth.Service{
			UUID:            bluetooth.New16BitUUID(svc.UUID),
			Characteristics: cfgs,
		}); err != nil {
			return fmt.Errorf("registering service 0x%04X: %w", svc.UUID, err)
		}
		b.mu.Lock()
		for _, s := range handles {
			b.chars[s.uuid] = s
		}
		b.mu.Unlock()
		layouts = append(layouts, registered{serviceUUID: svc.UUID, charUUIDs: charUUIDs})
		advertised = append(advertised, bluetooth.New16BitUUID(svc.UUID))
	}

	adv := b.adapter.DefaultAdvertisement()
	if err := adv.Configure(bluetooth.AdvertisementOptions{
		LocalName:    b.localName,
		ServiceUUIDs: advertised,
	}); err != nil {
		return fmt.Errorf("configuring advertisement: %w", err)
	}
	if err := adv.Start(); err != nil {
		return fmt.Errorf("starting advertisement: %w", err)
	}

	b.mu.Lock()
	b.adv = adv
	b.serving = true
	b.mu.Unlock()

	if h := b.getHandler(); h != nil {
		for _, r := range layouts {
			h.ServiceRegistered(r.serviceUUID, r.charUUIDs)
		}
	}
	logger.Info(prefix, "serving %d services as %q", len(services), b.localName)
	return nil
}

// StopServer stops advertising and drops connected peers. BlueZ keeps
// registered services until the application exits; restarting reuses
// them.
func (b *Bearer) StopServer() error {
	b.mu.Lock()
	adv := b.adv
	b.adv = nil
	b.serving = false
	devices := make([]bluetooth.Device, 0, len(b.devices))
	for _, d := range b.devices {
		devices = append(devices, d)
	}
	b.mu.Unlock()

	if adv != nil {
		if err := adv.Stop(); err != nil {
			logger.Warn(prefix, "stopping advertisement: %v", err)
		}
	}
	for _, d := range devices {
		if err := d.Disconnect(); err != nil {
			logger.Warn(prefix, "disconnecting %s: %v", d.Address.String(), err)
		}
	}
	return nil
}

func (b *Bearer) Connect(peer string) error {
	if err := b.enable(); err != nil {
		return err
	}
	mac, err := bluetooth.ParseMAC(peer)
	if err != nil {
		return fmt.Errorf("bad peer address %q: %w", peer, err)
	}
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	device, err := b.adapter.Connect(addr, bluetooth.ConnectionParams{})
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", peer, err)
	}
	b.mu.Lock()
	b.devices[device.Address.String()] = device
	b.mu.Unlock()
	return nil
}

func (b *Bearer) Disconnect(peer string) error {
	b.mu.Lock()
	device, ok := b.devices[peer]
	b.mu.Unlock()
	if !ok {
		return nil
	}
	return device.Disconnect()
}

// Notify writes the value to the characteristic handle, which delivers
// a notification to every subscribed central. The peer argument is
// advisory: BlueZ fans out to all subscribers.
func (b *Bearer) Notify(dev bearer.DeviceID, charUUID uint16, value []byte) bool {
	b.mu.Lock()
	s, ok := b.chars[charUUID]
	b.mu.Unlock()
	if !ok {
		logger.Warn(prefix, "notify on unregistered characteristic 0x%04X", charUUID)
		return false
	}
	if _, err := s.char.Write(value); err != nil {
		logger.Debug(prefix, "notify 0x%04X: %v", charUUID, err)
		return false
	}
	return true
}

func (b *Bearer) Bonded(dev bearer.DeviceID) bool {
	paired, err := b.bonds.paired(string(dev))
	if err != nil {
		logger.Debug(prefix, "bond check for %s: %v", dev, err)
		return false
	}
	return paired
}

func (b *Bearer) Bond(dev bearer.DeviceID) error {
	return b.bonds.pair(string(dev))
}
