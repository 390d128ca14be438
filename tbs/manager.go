// Package tbs owns the Telephone Bearer Service: its GATT definition,
// the call state machine (reconciler), the caller-name upgrade policy,
// and the decoding of inbound Call Control Point opcodes.
package tbs

import (
	"sync"

	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/codec"
	"github.com/user/wearlink-blue/event"
	"github.com/user/wearlink-blue/gate"
	"github.com/user/wearlink-blue/logger"
	"github.com/user/wearlink-blue/wearerr"
)

// Call Control Point opcodes (TBS 1.0, section 3.5).
const (
	OpAccept byte = 0x01
	OpReject byte = 0x02
	OpEnd    byte = 0x03
	OpHold   byte = 0x04
	OpUnhold byte = 0x05
)

const managerPrefix = "TBS"

// Manager is the TBS protocol manager. It owns the wire emission rules;
// the reconciler owns the transitions.
type Manager struct {
	mu sync.Mutex

	gate *gate.Gate
	sink event.CommandSink

	lastCallID   string // call id behind the last notified Call State record
	lastName     string // last known friendly name/number, survives into the final IDLE emission
	currentState codec.CallState
}

// New creates a call protocol manager publishing through the given
// gate.
func New(g *gate.Gate, sink event.CommandSink) *Manager {
	if sink == nil {
		sink = event.NopSink{}
	}
	return &Manager{gate: g, sink: sink, currentState: codec.CallIdle}
}

// ServiceDefinition returns the TBS GATT service for registration.
func (m *Manager) ServiceDefinition() bearer.Service {
	return bearer.Service{
		UUID: codec.ServiceTelephoneBearer,
		Characteristics: []bearer.Characteristic{
			{UUID: codec.CharCallState, Value: codec.EncodeCallState(codec.CallIdle), Read: true, Notify: true},
			{UUID: codec.CharCallControlPoint, Write: true, Notify: true},
			{UUID: codec.CharCallFriendlyName, Value: codec.EncodeString(""), Read: true, Notify: true},
			{UUID: codec.CharTerminationReason, Value: codec.EncodeTerminationReason(codec.ReasonUnknown), Notify: true},
		},
	}
}

// ExpectedCharacteristics lists the characteristics that must survive
// registration.
func (m *Manager) ExpectedCharacteristics() []uint16 {
	return []uint16{
		codec.CharCallState, codec.CharCallControlPoint,
		codec.CharCallFriendlyName, codec.CharTerminationReason,
	}
}

// Apply emits the wire consequences of one reconciler update.
//
// Non-idle: Call State record, then Call Friendly Name. A call id
// different from the one behind the cached Call State bytes forces the
// record out even when the bytes are identical, for peripherals that
// treat same-bytes as a no-op across distinct logical calls.
//
// Idle with a resolved reason: Termination Reason record first, then
// Call State, then one final Call Friendly Name carrying the last known
// name so the peripheral can render "Missed: Jane Doe" instead of
// watching the name vanish.
func (m *Manager) Apply(u CallMetadata) {
	m.mu.Lock()
	force := u.CallID != "" && u.CallID != m.lastCallID
	name := u.CallerName
	if name == "" {
		name = u.PhoneNumber
	}
	if name != "" {
		m.lastName = name
	}
	finalName := m.lastName
	m.lastCallID = u.CallID
	m.currentState = u.State
	m.mu.Unlock()

	if u.State == codec.CallIdle && u.TerminationReason != nil {
		// Consecutive calls can end for the same reason with identical
		// bytes; the record must go out once per call regardless.
		m.gate.Publish(codec.CharTerminationReason, codec.EncodeTerminationReason(*u.TerminationReason), true)
		m.gate.Publish(codec.CharCallState, codec.EncodeCallState(u.State), force)
		m.gate.Publish(codec.CharCallFriendlyName, codec.EncodeString(finalName), true)
		return
	}

	m.gate.Publish(codec.CharCallState, codec.EncodeCallState(u.State), force)
	if name != "" {
		m.gate.Publish(codec.CharCallFriendlyName, codec.EncodeString(name), false)
	}
}

// Sync re-publishes the current call state and friendly name without
// changing them, which routes them to recently connected devices only.
// Termination reasons are per-event and not part of the snapshot.
func (m *Manager) Sync() {
	m.mu.Lock()
	state := m.currentState
	name := m.lastName
	m.mu.Unlock()

	m.gate.Publish(codec.CharCallState, codec.EncodeCallState(state), false)
	m.gate.Publish(codec.CharCallFriendlyName, codec.EncodeString(name), false)
}

// State returns the last applied call state.
func (m *Manager) State() codec.CallState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentState
}

// HandleControlWrite decodes an inbound Call Control Point write and
// dispatches the telecom action. Hold/Unhold are valid opcodes but
// unimplemented no-ops returning failure; unknown opcodes are logged
// and rejected. There is no wire-level NACK either way.
func (m *Manager) HandleControlWrite(data []byte) error {
	op, err := codec.DecodeOpcode(data)
	if err != nil {
		return err
	}

	switch op {
	case OpAccept:
		logger.Info(managerPrefix, "control point -> accept")
		m.sink.DispatchCall(event.CallAccept)
	case OpReject:
		logger.Info(managerPrefix, "control point -> reject")
		m.sink.DispatchCall(event.CallReject)
	case OpEnd:
		logger.Info(managerPrefix, "control point -> end")
		m.sink.DispatchCall(event.CallEnd)
	case OpHold, OpUnhold:
		logger.Warn(managerPrefix, "hold/unhold opcode 0x%02X not implemented", op)
		return wearerr.UnsupportedOpcode(codec.CharCallControlPoint, op)
	default:
		logger.Warn(managerPrefix, "rejecting unknown call opcode 0x%02X", op)
		return wearerr.UnsupportedOpcode(codec.CharCallControlPoint, op)
	}
	return nil
}
