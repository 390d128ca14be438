package hwble

import (
	"fmt"
	"strings"
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	bluezBus         = "org.bluez"
	bluezAdapterPath = "/org/bluez/hci0"
	deviceInterface  = "org.bluez.Device1"
)

// bluezBonds talks to BlueZ over the system bus for the pairing
// operations the portable stack does not expose.
type bluezBonds struct {
	mu   sync.Mutex
	conn *dbus.Conn
}

func newBluezBonds() *bluezBonds {
	return &bluezBonds{}
}

func (b *bluezBonds) bus() (*dbus.Conn, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.conn != nil {
		return b.conn, nil
	}
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, fmt.Errorf("connecting to system bus: %w", err)
	}
	b.conn = conn
	return conn, nil
}

// devicePath maps a MAC address to the BlueZ object path, e.g.
// AA:BB:CC:DD:EE:FF -> /org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF.
func devicePath(address string) dbus.ObjectPath {
	return dbus.ObjectPath(bluezAdapterPath + "/dev_" + strings.ReplaceAll(strings.ToUpper(address), ":", "_"))
}

func (b *bluezBonds) paired(address string) (bool, error) {
	conn, err := b.bus()
	if err != nil {
		return false, err
	}
	obj := conn.Object(bluezBus, devicePath(address))
	v, err := obj.GetProperty(deviceInterface + ".Paired")
	if err != nil {
		return false, fmt.Errorf("reading Paired for %s: %w", address, err)
	}
	paired, ok := v.Value().(bool)
	if !ok {
		return false, fmt.Errorf("unexpected Paired type %T", v.Value())
	}
	return paired, nil
}

func (b *bluezBonds) pair(address string) error {
	conn, err := b.bus()
	if err != nil {
		return err
	}
	obj := conn.Object(bluezBus, devicePath(address))
	if call := obj.Call(deviceInterface+".Pair", 0); call.Err != nil {
		if strings.Contains(call.Err.Error(), "AlreadyExists") {
			return nil
		}
		return fmt.Errorf("pairing with %s: %w", address, call.Err)
	}
	return nil
}
