// Package bearer abstracts the BLE transport under the session layer.
// Two implementations exist: simble (the simulated unix-socket stack in
// wire/) and hwble (tinygo.org/x/bluetooth against real hardware).
package bearer

// DeviceID identifies a connected peer. For the simulated bearer it is
// the peer's hardware UUID; for hardware it is the BLE address string.
type DeviceID string

// Characteristic describes one characteristic of a served service.
type Characteristic struct {
	UUID   uint16
	Value  []byte // initial value
	Notify bool
	Write  bool
	Read   bool
}

// Service describes one GATT service to register.
type Service struct {
	UUID            uint16
	Characteristics []Characteristic
}

// Handler receives bearer events. The session funnels every callback
// onto its own sequencing loop; implementations may deliver from any
// goroutine.
type Handler interface {
	DeviceConnected(dev DeviceID)
	DeviceDisconnected(dev DeviceID)
	// ServiceRegistered reports the characteristics that actually made it
	// into the registered service, for verification against the expected
	// set.
	ServiceRegistered(serviceUUID uint16, charUUIDs []uint16)
	CharacteristicWritten(dev DeviceID, charUUID uint16, value []byte)
	Subscribed(dev DeviceID, charUUID uint16, enabled bool)
}

// Bearer is the transport the GATT session manager drives. StartServer
// must be fully torn down (StopServer returned) before a new
// StartServer begins; the session enforces the cooldown between the
// two.
type Bearer interface {
	SetHandler(h Handler)

	// StartServer registers the given services and begins accepting
	// peer connections (and advertising, where the transport does that).
	StartServer(services []Service) error
	// StopServer clears all services and closes the server. Connected
	// peers are dropped.
	StopServer() error

	// Connect initiates a central-role connection to the named peer.
	Connect(peer string) error
	// Disconnect drops the central-role connection.
	Disconnect(peer string) error

	// Notify sends a handle-value notification. The return value is the
	// advisory success signal of the underlying stack: callers log it,
	// never retry on it.
	Notify(dev DeviceID, charUUID uint16, value []byte) bool

	// Bonded reports whether a bond with the peer exists.
	Bonded(dev DeviceID) bool
	// Bond initiates bonding. Must not block service discovery; errors
	// are advisory.
	Bond(dev DeviceID) error
}
