// Package mcs owns the Media Control Service: its GATT definition, the
// translation of media metadata snapshots into characteristic
// notifications, and the decoding of inbound Media Control Point
// opcodes into player commands.
package mcs

import (
	"sync"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/gate"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/wearerr"
)

// Manager is the MCS protocol manager. All mutation is funneled through
// the session loop; the internal lock only covers direct test access.
type Manager struct {
	mu sync.Mutex

	gate *gate.Gate
	sink event.CommandSink

	current      event.MediaMetadataUpdate
	hasMedia     bool
	lastTitle    string
	trackCounter uint32
}

const logPrefix = "MCS"

// New creates a media protocol manager publishing through the given
// gate.
func New(g *gate.Gate, sink event.CommandSink) *Manager {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Manager{gate: g, sink: sink}
}

// ServiceDefinition returns the MCS GATT service for registration.
func (m *Manager) ServiceDefinition() bearer.Service {
	return bearer.Service{
		UUID: codec.ServiceMediaControl,
		Characteristics: []bearer.Characteristic{
			{UUID: codec.CharPlayerName, Value: codec.EncodeString(NoMediaPlayerName), Read: true, Notify: true},
			{UUID: codec.CharTrackChanged, Value: codec.EncodeTrackChanged(0), Notify: true},
			{UUID: codec.CharTrackTitle, Value: codec.EncodeString(""), Read: true, Notify: true},
			{UUID: codec.CharTrackDuration, Value: codec.EncodeTime(0), Read: true, Notify: true},
			{UUID: codec.CharTrackPosition, Value: codec.EncodeTime(0), Read: true, Notify: true},
			{UUID: codec.CharMediaState, Value: codec.EncodeMediaState(codec.MediaInactive), Read: true, Notify: true},
			{UUID: codec.CharMediaControlPoint, Write: true},
			{UUID: codec.CharMediaOpcodes, Value: codec.EncodeSupportedOpcodes(SupportedOpcodesMask), Read: true, Notify: true},
		},
	}
}

// ExpectedCharacteristics lists the characteristics that must survive
// registration; a missing one is a ConfigurationFault.
func (m *Manager) ExpectedCharacteristics() []uint16 {
	return []uint16{
		codec.CharPlayerName, codec.CharTrackChanged, codec.CharTrackTitle,
		codec.CharTrackDuration, codec.CharTrackPosition, codec.CharMediaState,
		codec.CharMediaControlPoint, codec.CharMediaOpcodes,
	}
}

// Update consumes a media metadata snapshot and notifies every
// characteristic whose value it changes. The snapshot fully replaces
// the previous one; position is taken as-is, never interpolated here.
func (m *Manager) Update(u event.MediaMetadataUpdate) {
	m.mu.Lock()
	if u.Title != m.lastTitle {
		// The counter is the peripheral's cue to re-fetch title and
		// duration instead of diffing title strings.
		m.trackCounter++
		m.lastTitle = u.Title
		logger.Info(logPrefix, "track changed -> %q (counter %d)", u.Title, m.trackCounter)
	}
	m.current = u
	m.hasMedia = true
	counter := m.trackCounter
	m.mu.Unlock()

	m.gate.Publish(codec.CharTrackChanged, codec.EncodeTrackChanged(counter), false)
	m.publishSnapshot(u, counter)
}

// Sync re-publishes the current snapshot without changing it. With
// nothing changed the gate routes the values only to recently connected
// devices, which is exactly the initial notification burst.
func (m *Manager) Sync() {
	m.mu.Lock()
	u := m.current
	counter := m.trackCounter
	m.mu.Unlock()
	m.gate.Publish(codec.CharTrackChanged, codec.EncodeTrackChanged(counter), false)
	m.publishSnapshot(u, counter)
}

func (m *Manager) publishSnapshot(u event.MediaMetadataUpdate, counter uint32) {
	m.gate.Publish(codec.CharTrackTitle, codec.EncodeString(u.Title), false)
	m.gate.Publish(codec.CharTrackDuration, codec.EncodeTime(u.DurationMs), false)
	m.gate.Publish(codec.CharTrackPosition, codec.EncodeTime(u.PositionMs), false)
	m.gate.Publish(codec.CharPlayerName, codec.EncodeString(PlayerNameForPackage(u.SourcePackage)), false)
	m.gate.Publish(codec.CharMediaState, codec.EncodeMediaState(m.deriveState(u)), false)
	m.gate.Publish(codec.CharMediaOpcodes, codec.EncodeSupportedOpcodes(SupportedOpcodesMask), false)
}

// deriveState maps a snapshot to the Media State byte: Playing when the
// session plays, Paused when a track is loaded, Inactive otherwise.
func (m *Manager) deriveState(u event.MediaMetadataUpdate) codec.MediaState {
	switch {
	case u.IsPlaying:
		return codec.MediaPlaying
	case u.Title != "":
		return codec.MediaPaused
	default:
		return codec.MediaInactive
	}
}

// State returns the currently derived media state byte.
func (m *Manager) State() codec.MediaState {
	m.mu.Lock()
	defer m.mu.Unlock()
	if !m.hasMedia {
		return codec.MediaInactive
	}
	return m.deriveState(m.current)
}

// HandleControlWrite decodes an inbound Media Control Point write,
// applies the vendor remap, and dispatches the player command.
// Opcodes outside the supported set are logged and dropped, never
// forwarded.
func (m *Manager) HandleControlWrite(data []byte) error {
	raw, err := codec.DecodeOpcode(data)
	if err != nil {
		return err
	}
	op := RemapOpcode(raw)
	if op != raw {
		logger.Debug(logPrefix, "vendor opcode 0x%02X remapped to 0x%02X", raw, op)
	}

	cmd, ok := commandForOpcode(op)
	if !ok {
		logger.Warn(logPrefix, "dropping unsupported media opcode 0x%02X", raw)
		return wearerr.UnsupportedOpcode(codec.CharMediaControlPoint, raw)
	}

	logger.Info(logPrefix, "control point -> %s", cmd)
	m.sink.DispatchMedia(cmd)
	return nil
}
