// Package wire is the simulated BLE stack: unix-socket links carrying
// L2CAP frames, an ATT request/response layer over a server-side
// attribute table, CCCD-tracked notifications, file-based advertising,
// and SMP bonding. Each Wire is one virtual controller identified by a
// hardware UUID.
package wire

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/util"
	"github.com/user/wearlink-blue/wire/att"
	"github.com/user/wearlink-blue/wire/gatt"
	"github.com/user/wearlink-blue/wire/l2cap"
	"github.com/user/wearlink-blue/wire/smp"
)

// ConnectionRole is our role on one link.
type ConnectionRole string

const (
	RoleCentral    ConnectionRole = "central"    // we initiated
	RolePeripheral ConnectionRole = "peripheral" // they initiated
)

// Link timing and MTU constants.
const (
	MinConnectionDelay = 30 * time.Millisecond
	MaxConnectionDelay = 100 * time.Millisecond

	DefaultMTU = 23
	MaxMTU     = 512
)

// Connection is one bidirectional link.
type Connection struct {
	conn       net.Conn
	remoteUUID string
	role       ConnectionRole

	sendMu sync.Mutex

	mtuMu sync.RWMutex
	mtu   int

	tracker   *att.RequestTracker
	cccd      *gatt.CCCDManager    // their subscriptions to our table
	discovery *gatt.DiscoveryCache // our view of their table
	prepared  *att.PrepareQueue    // their queued long-write fragments

	pairMu          sync.Mutex
	initiatorRandom []byte // set while we are the pairing initiator
	pairDone        chan error
}

// Callbacks surfaces link and GATT events. All fields are optional.
type Callbacks struct {
	OnConnect      func(peer string, role ConnectionRole)
	OnDisconnect   func(peer string)
	OnWrite        func(peer string, charUUID uint16, value []byte)
	OnSubscription func(peer string, charUUID uint16, enabled bool)
	OnNotification func(peer string, valueHandle uint16, value []byte)
	OnBonded       func(peer string)
}

// Wire is one simulated controller.
type Wire struct {
	hardwareUUID string
	prefix       string

	mu          sync.RWMutex
	connections map[string]*Connection

	db   *gatt.Database // server table, nil when no server is up
	dbMu sync.RWMutex

	listener      net.Listener
	stopListening chan struct{}
	listenOnce    sync.Once

	stopMu      sync.Mutex
	stopReading map[string]chan struct{}

	cbMu      sync.RWMutex
	callbacks Callbacks

	bonds *smp.BondStore

	eventLog *ConnectionEventLogger
	health   *SocketHealthMonitor

	wg sync.WaitGroup
}

// NewWire creates a controller for the given hardware UUID.
func NewWire(hardwareUUID string) *Wire {
	return &Wire{
		hardwareUUID:  hardwareUUID,
		prefix:        util.ShortHash(hardwareUUID) + " Wire",
		connections:   make(map[string]*Connection),
		stopReading:   make(map[string]chan struct{}),
		stopListening: make(chan struct{}),
		bonds:         smp.NewBondStore(util.GetBondStorePath(hardwareUUID)),
		eventLog:      NewConnectionEventLogger(hardwareUUID),
		health:        NewSocketHealthMonitor(hardwareUUID),
	}
}

// SetCallbacks installs the event callbacks. Call before Listen.
func (w *Wire) SetCallbacks(cb Callbacks) {
	w.cbMu.Lock()
	defer w.cbMu.Unlock()
	w.callbacks = cb
}

func (w *Wire) getCallbacks() Callbacks {
	w.cbMu.RLock()
	defer w.cbMu.RUnlock()
	return w.callbacks
}

// SetDatabase installs (or clears, with nil) the server attribute
// table.
func (w *Wire) SetDatabase(db *gatt.Database) {
	w.dbMu.Lock()
	defer w.dbMu.Unlock()
	w.db = db
}

func (w *Wire) database() *gatt.Database {
	w.dbMu.RLock()
	defer w.dbMu.RUnlock()
	return w.db
}

// HardwareUUID returns this controller's identity.
func (w *Wire) HardwareUUID() string { return w.hardwareUUID }

func socketPath(uuid string) string {
	return filepath.Join(util.GetSocketDir(), fmt.Sprintf("wearlink-%s.sock", uuid))
}

func advertisingPath(uuid string) string {
	return filepath.Join(util.GetSocketDir(), fmt.Sprintf("wearlink-%s.adv", uuid))
}

// Listen opens this controller's socket and starts accepting peers.
func (w *Wire) Listen() error {
	path := socketPath(w.hardwareUUID)
	os.Remove(path)
	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", path, err)
	}
	w.listener = ln
	w.health.Start()
	w.wg.Add(1)
	go w.acceptConnections()
	logger.Debug(w.prefix, "listening on %s", path)
	return nil
}

// Close tears the controller down: advertising file, listener, every
// link.
func (w *Wire) Close() {
	w.StopAdvertising()
	w.listenOnce.Do(func() { close(w.stopListening) })
	if w.listener != nil {
		w.listener.Close()
	}

	w.mu.RLock()
	peers := make([]string, 0, len(w.connections))
	for peer := range w.connections {
		peers = append(peers, peer)
	}
	w.mu.RUnlock()
	for _, peer := range peers {
		w.Disconnect(peer)
	}

	w.health.Stop()
	w.wg.Wait()
	os.Remove(socketPath(w.hardwareUUID))
}

// Advertise writes this controller's advertising payload where
// scanners poll for it.
func (w *Wire) Advertise(localName string, serviceUUIDs ...uint16) error {
	payload, err := advEncode(localName, serviceUUIDs)
	if err != nil {
		return err
	}
	path := advertisingPath(w.hardwareUUID)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, payload, 0644); err != nil {
		return fmt.Errorf("writing advertising payload: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("publishing advertising payload: %w", err)
	}
	logger.Debug(w.prefix, "advertising as %q (%d services)", localName, len(serviceUUIDs))
	return nil
}

// StopAdvertising removes the advertising payload.
func (w *Wire) StopAdvertising() {
	os.Remove(advertisingPath(w.hardwareUUID))
}

func (w *Wire) acceptConnections() {
	defer w.wg.Done()
	for {
		select {
		case <-w.stopListening:
			return
		default:
		}

		conn, err := w.listener.Accept()
		if err != nil {
			select {
			case <-w.stopListening:
				return
			default:
			}
			continue
		}
		w.wg.Add(1)
		go w.handleIncomingConnection(conn)
	}
}

// handleIncomingConnection reads the handshake (4-byte big-endian UUID
// length, then the UUID) and registers the link with us as Peripheral.
func (w *Wire) handleIncomingConnection(conn net.Conn) {
	defer w.wg.Done()

	var uuidLen uint32
	if err := binary.Read(conn, binary.BigEndian, &uuidLen); err != nil {
		conn.Close()
		return
	}
	uuidBytes := make([]byte, uuidLen)
	if _, err := io.ReadFull(conn, uuidBytes); err != nil {
		conn.Close()
		return
	}
	peerUUID := string(uuidBytes)

	w.eventLog.Log("connection_accepted", string(RolePeripheral), peerUUID, "")

	w.mu.Lock()
	if _, exists := w.connections[peerUUID]; exists {
		w.mu.Unlock()
		conn.Close()
		return
	}
	connection := newConnection(conn, peerUUID, RolePeripheral)
	w.connections[peerUUID] = connection
	w.mu.Unlock()

	w.eventLog.Log("connection_established", string(RolePeripheral), peerUUID, "")
	w.health.RecordConnection(string(RolePeripheral), peerUUID)

	if cb := w.getCallbacks().OnConnect; cb != nil {
		cb(peerUUID, RolePeripheral)
	}
	w.startReadLoop(peerUUID, connection)
}

// Connect dials a peer's socket; we become Central on the link.
func (w *Wire) Connect(peerUUID string) error {
	w.mu.RLock()
	_, exists := w.connections[peerUUID]
	w.mu.RUnlock()
	if exists {
		return fmt.Errorf("already connected to %s", peerUUID)
	}

	// Real connection establishment takes 30-100ms of radio exchange.
	time.Sleep(randomDelay(MinConnectionDelay, MaxConnectionDelay))

	conn, err := net.Dial("unix", socketPath(peerUUID))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", peerUUID, err)
	}

	uuidBytes := []byte(w.hardwareUUID)
	if err := binary.Write(conn, binary.BigEndian, uint32(len(uuidBytes))); err != nil {
		conn.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}
	if _, err := conn.Write(uuidBytes); err != nil {
		conn.Close()
		return fmt.Errorf("sending handshake: %w", err)
	}

	connection := newConnection(conn, peerUUID, RoleCentral)
	w.mu.Lock()
	if _, exists := w.connections[peerUUID]; exists {
		w.mu.Unlock()
		conn.Close()
		return fmt.Errorf("concurrent connection to %s detected", peerUUID)
	}
	w.connections[peerUUID] = connection
	w.mu.Unlock()

	w.eventLog.Log("connection_established", string(RoleCentral), peerUUID, socketPath(peerUUID))
	w.health.RecordConnection(string(RoleCentral), peerUUID)

	if cb := w.getCallbacks().OnConnect; cb != nil {
		cb(peerUUID, RoleCentral)
	}
	w.startReadLoop(peerUUID, connection)
	return nil
}

// Disconnect closes the link to a peer.
func (w *Wire) Disconnect(peerUUID string) error {
	w.mu.Lock()
	connection, exists := w.connections[peerUUID]
	if !exists {
		w.mu.Unlock()
		return fmt.Errorf("not connected to %s", peerUUID)
	}
	delete(w.connections, peerUUID)
	w.mu.Unlock()

	connection.tracker.CancelPending()

	w.stopMu.Lock()
	if stopChan, ok := w.stopReading[peerUUID]; ok {
		select {
		case <-stopChan:
		default:
			close(stopChan)
		}
		delete(w.stopReading, peerUUID)
	}
	w.stopMu.Unlock()

	connection.conn.Close()
	return nil
}

// IsConnected reports whether a link to the peer exists.
func (w *Wire) IsConnected(peerUUID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, exists := w.connections[peerUUID]
	return exists
}

// ConnectedPeers lists all connected peer UUIDs.
func (w *Wire) ConnectedPeers() []string {
	w.mu.RLock()
	defer w.mu.RUnlock()
	peers := make([]string, 0, len(w.connections))
	for uuid := range w.connections {
		peers = append(peers, uuid)
	}
	return peers
}

func (w *Wire) connection(peerUUID string) *Connection {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.connections[peerUUID]
}

func newConnection(conn net.Conn, remoteUUID string, role ConnectionRole) *Connection {
	return &Connection{
		conn:       conn,
		remoteUUID: remoteUUID,
		role:       role,
		mtu:        DefaultMTU,
		tracker:    att.NewRequestTracker(0),
		cccd:       gatt.NewCCCDManager(),
		discovery:  gatt.NewDiscoveryCache(),
		prepared:   att.NewPrepareQueue(),
	}
}

// MTU returns the negotiated MTU for a link.
func (w *Wire) MTU(peerUUID string) int {
	c := w.connection(peerUUID)
	if c == nil {
		return DefaultMTU
	}
	c.mtuMu.RLock()
	defer c.mtuMu.RUnlock()
	return c.mtu
}

// sendL2CAP frames and writes one packet on a link.
func (w *Wire) sendL2CAP(c *Connection, pkt *l2cap.Packet) error {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	_, err := c.conn.Write(pkt.Encode())
	if err == nil {
		w.health.RecordMessageSent(string(c.role), c.remoteUUID)
	}
	return err
}

func (w *Wire) sendATT(c *Connection, pkt att.Packet) error {
	logger.Trace(w.prefix, "tx %s to %s", att.OpcodeNames[pkt.Opcode()], util.ShortHash(c.remoteUUID))
	return w.sendL2CAP(c, l2cap.NewATTPacket(pkt.Encode()))
}
