package session

import (
	"github.com/user/wearlink-blue/bearer"
	"github.com/user/wearlink-blue/event"
)

// eventKind enumerates the internal events the session loop consumes.
// Every callback, timer, and public API call is funneled into one of
// these so all state mutation happens on a single goroutine.
type eventKind int

const (
	evConnect eventKind = iota
	evDisconnect
	evDeviceConnected
	evDeviceDisconnected
	evServiceRegistered
	evCharacteristicWritten
	evSubscribed
	evMediaUpdated
	evCallSignal
	evNameHint
	evTimerFired
	evShutdown
)

// timerKind distinguishes the deferred actions the session schedules.
type timerKind int

const (
	timerStartBarrier timerKind = iota
	timerRestartCooldown
	timerDialingWatchdog
)

type sessionEvent struct {
	kind eventKind

	peer  string // evConnect target
	dev   bearer.DeviceID
	svc   uint16
	chars []uint16
	char  uint16
	value []byte

	media  event.MediaMetadataUpdate
	signal event.CallSignal
	hint   string

	timer  timerKind
	token  uint64 // stamps barrier/cooldown timers; stale tokens are dropped
	callID string // stamps watchdog timers
}
