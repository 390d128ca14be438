// Package session owns the GATT server/session lifecycle: connect,
// server start, bonding, service verification, the per-device initial
// notification burst, steady-state relay, and the teardown/cooldown/
// restart choreography. All shared mutable state is funneled onto one
// sequencing goroutine; GATT operations are ordered and re-entrant
// misuse of some BLE stacks fails silently rather than loudly.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/config"
	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/gate"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/mcs"
	"github.com/user/wearlink-blue/tbs"
	"github.com/user/wearlink-blue/wearerr"
)

// State is the session lifecycle state.
type State string

const (
	StateIdle             State = "idle"
	StateServerStarting   State = "server_starting"
	StateServerReady      State = "server_ready"
	StateClientConnecting State = "client_connecting"
	StateConnected        State = "connected"
	StateDisconnecting    State = "disconnecting"
	StateCooldownPending  State = "cooldown_pending"
)

const logPrefix = "session"

// Session coordinates the bearer, the two protocol managers, and the
// call state reconciler.
type Session struct {
	cfg *config.Config
	b   bearer.Bearer

	registry *Registry
	media    *mcs.Manager
	call     *tbs.Manager
	rec      *tbs.Reconciler

	events chan sessionEvent
	wg     sync.WaitGroup

	mu      sync.RWMutex
	state   State
	stopped bool

	// Loop-owned, never touched off-loop.
	target         string // peer of the central-role connection
	connectPending bool   // reconnect the target after the next server start
	timerToken     uint64 // invalidates scheduled barrier/cooldown fires
}

// bearerSender adapts the bearer to the gate's Sender.
type bearerSender struct{ b bearer.Bearer }

func (s bearerSender) Notify(dev bearer.DeviceID, charUUID uint16, value []byte) bool {
	return s.b.Notify(dev, charUUID, value)
}

// New wires a session over the given bearer. Decoded control-point
// commands are dispatched to sink.
func New(cfg *config.Config, b bearer.Bearer, sink event.CommandSink) *Session {
	if cfg == nil {
		cfg = config.Default()
	}
	registry := NewRegistry()
	sender := bearerSender{b}

	s := &Session{
		cfg:      cfg,
		b:        b,
		registry: registry,
		media:    mcs.New(gate.New("MCS/gate", registry, sender), sink),
		call:     tbs.New(gate.New("TBS/gate", registry, sender), sink),
		rec: tbs.NewReconciler(tbs.Thresholds{
			DialJitter:      time.Duration(cfg.Timing.DialJitterMs) * time.Millisecond,
			RedialGap:       time.Duration(cfg.Timing.RedialGapMs) * time.Millisecond,
			DialingWatchdog: time.Duration(cfg.Timing.DialingWatchdogMs) * time.Millisecond,
		}, tbs.NewNamePolicy(cfg.DenyList)),
		events: make(chan sessionEvent, 64),
		state:  StateIdle,
	}
	b.SetHandler(s)
	return s
}

// Start launches the sequencing loop.
func (s *Session) Start() {
	s.wg.Add(1)
	go s.loop()
}

// Stop shuts the session down: server torn down, loop drained.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	s.events <- sessionEvent{kind: evShutdown}
	s.wg.Wait()
}

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// Registry exposes the connected-device registry (read-side).
func (s *Session) Registry() *Registry { return s.registry }

// Media exposes the MCS manager (for direct inspection in tests).
func (s *Session) Media() *mcs.Manager { return s.media }

// Call exposes the TBS manager.
func (s *Session) Call() *tbs.Manager { return s.call }

// --- public API: all of these post onto the loop ---

// Connect starts the server (if needed) and initiates the central-role
// connection to peer.
func (s *Session) Connect(peer string) {
	s.post(sessionEvent{kind: evConnect, peer: peer})
}

// Disconnect tears down the central link and the server, then restarts
// the server after the mandatory cooldown.
func (s *Session) Disconnect() {
	s.post(sessionEvent{kind: evDisconnect})
}

// UpdateMedia consumes a media metadata snapshot.
func (s *Session) UpdateMedia(u event.MediaMetadataUpdate) {
	s.post(sessionEvent{kind: evMediaUpdated, media: u})
}

// SignalCall consumes a raw telephony state-change event.
func (s *Session) SignalCall(sig event.CallSignal) {
	s.post(sessionEvent{kind: evCallSignal, signal: sig})
}

// NameHint consumes an asynchronous caller-name hint.
func (s *Session) NameHint(name string) {
	s.post(sessionEvent{kind: evNameHint, hint: name})
}

func (s *Session) post(ev sessionEvent) {
	s.mu.RLock()
	stopped := s.stopped
	s.mu.RUnlock()
	if stopped {
		return
	}
	s.events <- ev
}

// --- bearer.Handler: callbacks funneled onto the loop ---

func (s *Session) DeviceConnected(dev bearer.DeviceID) {
	s.post(sessionEvent{kind: evDeviceConnected, dev: dev})
}

func (s *Session) DeviceDisconnected(dev bearer.DeviceID) {
	s.post(sessionEvent{kind: evDeviceDisconnected, dev: dev})
}

func (s *Session) ServiceRegistered(serviceUUID uint16, charUUIDs []uint16) {
	s.post(sessionEvent{kind: evServiceRegistered, svc: serviceUUID, chars: charUUIDs})
}

func (s *Session) CharacteristicWritten(dev bearer.DeviceID, charUUID uint16, value []byte) {
	s.post(sessionEvent{kind: evCharacteristicWritten, dev: dev, char: charUUID, value: value})
}

func (s *Session) Subscribed(dev bearer.DeviceID, charUUID uint16, enabled bool) {
	s.post(sessionEvent{kind: evSubscribed, dev: dev, char: charUUID})
}

// --- the loop ---

func (s *Session) loop() {
	defer s.wg.Done()
	for ev := range s.events {
		switch ev.kind {
		case evConnect:
			s.handleConnect(ev.peer)
		case evDisconnect:
			s.handleDisconnect()
		case evDeviceConnected:
			s.handleDeviceConnected(ev.dev)
		case evDeviceDisconnected:
			s.handleDeviceDisconnected(ev.dev)
		case evServiceRegistered:
			s.verifyService(ev.svc, ev.chars)
		case evCharacteristicWritten:
			s.routeWrite(ev.dev, ev.char, ev.value)
		case evSubscribed:
			logger.Debug(logPrefix, "%s subscription change on 0x%04X", ev.dev, ev.char)
		case evMediaUpdated:
			s.media.Update(ev.media)
		case evCallSignal:
			s.handleCallSignal(ev.signal)
		case evNameHint:
			if upd := s.rec.NameHint(ev.hint); upd != nil {
				s.call.Apply(*upd)
			}
		case evTimerFired:
			s.handleTimer(ev)
		case evShutdown:
			s.teardownServer()
			return
		}
	}
}

func (s *Session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
	logger.Debug(logPrefix, "state -> %s", st)
}

// handleConnect runs the connect choreography: the server must be up
// before the client connection so it can answer the peripheral's
// service discovery, which can race the connect completion. The barrier
// delay is a soft race-tolerance compromise, not a readiness signal.
func (s *Session) handleConnect(peer string) {
	s.target = peer
	if s.State() == StateIdle || s.State() == StateCooldownPending {
		if err := s.startServer(); err != nil {
			logger.Error(logPrefix, "server start failed: %v", err)
			s.setState(StateIdle)
			return
		}
	}
	s.connectPending = true
	token := s.bumpToken()
	s.schedule(timerStartBarrier, token, "",
		time.Duration(s.cfg.Timing.StartBarrierMs)*time.Millisecond)
}

func (s *Session) startServer() error {
	s.setState(StateServerStarting)
	services := []bearer.Service{
		s.genericAccessService(),
		s.media.ServiceDefinition(),
		s.call.ServiceDefinition(),
	}
	if err := s.b.StartServer(services); err != nil {
		return fmt.Errorf("starting gatt server: %w", err)
	}
	s.setState(StateServerReady)
	return nil
}

func (s *Session) genericAccessService() bearer.Service {
	return bearer.Service{
		UUID: codec.ServiceGenericAccess,
		Characteristics: []bearer.Characteristic{
			{UUID: codec.CharDeviceName, Value: codec.EncodeString(s.cfg.DeviceName), Read: true},
			{UUID: codec.CharAppearance, Value: codec.EncodeAppearance(s.cfg.Appearance), Read: true},
		},
	}
}

// verifyService checks that every expected characteristic of a just
// registered service made it into the table. A missing one degrades
// that service but never the process.
func (s *Session) verifyService(serviceUUID uint16, got []uint16) {
	var expected []uint16
	switch serviceUUID {
	case codec.ServiceMediaControl:
		expected = s.media.ExpectedCharacteristics()
	case codec.ServiceTelephoneBearer:
		expected = s.call.ExpectedCharacteristics()
	default:
		return
	}

	present := make(map[uint16]bool, len(got))
	for _, c := range got {
		present[c] = true
	}
	for _, want := range expected {
		if !present[want] {
			err := wearerr.MissingCharacteristic(serviceUUID, want)
			logger.Error(logPrefix, "%v", err)
		}
	}
}

func (s *Session) handleDeviceConnected(dev bearer.DeviceID) {
	logger.Info(logPrefix, "device %s connected", dev)
	s.registry.Add(dev)
	s.setState(StateConnected)

	// Bonding must not block discovery or the burst.
	if !s.b.Bonded(dev) {
		go func() {
			if err := s.b.Bond(dev); err != nil {
				logger.Warn(logPrefix, "bonding with %s failed: %v", dev, err)
			}
		}()
	}

	// Initial notification burst: the full current snapshot for both
	// protocols, default values if nothing was ever observed.
	s.media.Sync()
	s.call.Sync()
	s.registry.ClearRecent(dev)
}

func (s *Session) handleDeviceDisconnected(dev bearer.DeviceID) {
	logger.Info(logPrefix, "device %s disconnected", dev)
	s.registry.Remove(dev)

	if string(dev) == s.target {
		// The central link dropped: tear the server down and restart it
		// after the cooldown. The peer itself is not re-dialed.
		s.connectPending = false
		s.restartCycle()
		return
	}
	// A peer that connected to us: no automatic reconnection attempt.
}

func (s *Session) handleDisconnect() {
	if s.target != "" {
		if err := s.b.Disconnect(s.target); err != nil {
			logger.Debug(logPrefix, "disconnect %s: %v", s.target, err)
		}
	}
	s.connectPending = false
	s.restartCycle()
}

// restartCycle tears the server down completely and schedules the
// restart after the mandatory cooldown. Reopening a GATT server while
// teardown is still in flight makes some BLE stacks silently fail to
// register services; the sequencing (fully closed before restart) is
// the invariant, the duration is empirical.
func (s *Session) restartCycle() {
	s.setState(StateDisconnecting)
	s.teardownServer()
	s.setState(StateCooldownPending)
	token := s.bumpToken()
	s.schedule(timerRestartCooldown, token, "",
		time.Duration(s.cfg.Timing.RestartCooldownMs)*time.Millisecond)
}

func (s *Session) teardownServer() {
	if err := s.b.StopServer(); err != nil {
		logger.Debug(logPrefix, "server stop: %v", err)
	}
	for _, dev := range s.registry.Connected() {
		s.registry.Remove(dev)
	}
}

func (s *Session) handleCallSignal(sig event.CallSignal) {
	upd, wd := s.rec.Signal(sig.State, sig.PhoneNumber)
	if upd != nil {
		s.call.Apply(*upd)
	}
	if wd != nil {
		s.schedule(timerDialingWatchdog, 0, wd.CallID, wd.Delay)
	}
}

func (s *Session) routeWrite(dev bearer.DeviceID, charUUID uint16, value []byte) {
	var err error
	switch charUUID {
	case codec.CharMediaControlPoint:
		err = s.media.HandleControlWrite(value)
	case codec.CharCallControlPoint:
		err = s.call.HandleControlWrite(value)
	default:
		logger.Debug(logPrefix, "write from %s to non-control characteristic 0x%04X ignored", dev, charUUID)
		return
	}
	if err != nil {
		// Rejected at the application layer; no wire NACK by design.
		logger.Debug(logPrefix, "control write from %s: %v", dev, err)
	}
}

// --- deferred actions ---

func (s *Session) bumpToken() uint64 {
	s.timerToken++
	return s.timerToken
}

// schedule arms a cancellable deferred action. Barrier and cooldown
// timers carry a token compared against the current one at delivery;
// watchdog timers carry the call id they were armed for.
func (s *Session) schedule(kind timerKind, token uint64, callID string, delay time.Duration) {
	time.AfterFunc(delay, func() {
		s.post(sessionEvent{kind: evTimerFired, timer: kind, token: token, callID: callID})
	})
}

func (s *Session) handleTimer(ev sessionEvent) {
	switch ev.timer {
	case timerStartBarrier:
		if ev.token != s.timerToken || !s.connectPending {
			logger.Debug(logPrefix, "stale start barrier dropped")
			return
		}
		s.setState(StateClientConnecting)
		if err := s.b.Connect(s.target); err != nil {
			logger.Warn(logPrefix, "connect to %s failed: %v", s.target, err)
			s.setState(StateServerReady)
		}
		s.connectPending = false

	case timerRestartCooldown:
		if ev.token != s.timerToken || s.State() != StateCooldownPending {
			logger.Debug(logPrefix, "stale cooldown fire dropped")
			return
		}
		if err := s.startServer(); err != nil {
			logger.Error(logPrefix, "server restart failed: %v", err)
			s.setState(StateIdle)
		}

	case timerDialingWatchdog:
		upd, err := s.rec.WatchdogFired(ev.callID)
		if err != nil {
			// Stale fires are a designed race resolution, not a failure.
			logger.Debug(logPrefix, "watchdog: %v", err)
			return
		}
		s.call.Apply(*upd)
	}
}
