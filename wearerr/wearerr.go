// Package wearerr defines the error taxonomy shared by the protocol
// managers and the session layer. None of these are fatal to the host
// process: every failure degrades to "no notification sent this cycle"
// and resynchronizes on the next update or snapshot burst.
package wearerr

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigurationFault marks an expected characteristic missing after
	// service registration. The service stays registered but degraded.
	ErrConfigurationFault = errors.New("configuration fault")

	// ErrTransientLink marks a notify/send that the bearer reported as
	// failed. Logged, never retried; superseded by the next update.
	ErrTransientLink = errors.New("transient link failure")

	// ErrUnsupportedOpcode marks a control-point write whose opcode decoded
	// but maps to no known action. Rejected with no wire-level NACK.
	ErrUnsupportedOpcode = errors.New("unsupported opcode")

	// ErrPermissionDenied marks a missing platform BLE/telephony
	// capability. All GATT operations become no-ops behind the upfront
	// capability check; this never crosses the core boundary as a panic.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrStaleWatchdog marks a scheduled call-activation timer that fired
	// after the call it targeted already changed. The event is discarded.
	ErrStaleWatchdog = errors.New("stale watchdog fire")
)

// MissingCharacteristic builds a ConfigurationFault for a service that
// registered without one of its expected characteristics.
func MissingCharacteristic(serviceUUID, charUUID uint16) error {
	return fmt.Errorf("service 0x%04X registered without characteristic 0x%04X: %w",
		serviceUUID, charUUID, ErrConfigurationFault)
}

// UnsupportedOpcode builds an UnsupportedOpcode error for a control point.
func UnsupportedOpcode(charUUID uint16, opcode byte) error {
	return fmt.Errorf("control point 0x%04X opcode 0x%02X: %w", charUUID, opcode, ErrUnsupportedOpcode)
}
