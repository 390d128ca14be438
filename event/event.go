// Package event defines the domain events exchanged with the external
// telephony/media collaborators, and the commands dispatched back to
// them. The collaborators themselves (media-session polling,
// notification-text inference, telecom actions) live outside this
// module and talk to it over the feed.
package event

import "time"

// TelephonyState is the raw three-state signal the platform telephony
// observer emits. The call state reconciler fuses it into the richer
// TBS call state.
type TelephonyState string

const (
	TelephonyIdle    TelephonyState = "IDLE"
	TelephonyRinging TelephonyState = "RINGING"
	TelephonyOffhook TelephonyState = "OFFHOOK"
)

// MediaMetadataUpdate is a full snapshot of the phone's current media
// session. Each update fully replaces the previous one.
type MediaMetadataUpdate struct {
	Title         string    `json:"title"`
	Artist        string    `json:"artist"` // tracked, unused by the wire format
	Album         string    `json:"album"`
	SourcePackage string    `json:"source_package"`
	IsPlaying     bool      `json:"is_playing"`
	DurationMs    uint64    `json:"duration_ms"`
	PositionMs    uint64    `json:"position_ms"`
	Timestamp     time.Time `json:"timestamp"`
}

// CallSignal is a raw telephony state-change event.
type CallSignal struct {
	State       TelephonyState `json:"state"`
	PhoneNumber string         `json:"phone_number,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// CallerNameHint is a best-effort caller name guessed by the
// notification-text collaborator. It arrives asynchronously relative to
// the telephony signals, often after the call already rang.
type CallerNameHint struct {
	Name      string    `json:"name"`
	Timestamp time.Time `json:"timestamp"`
}

// MediaCommand is a player action decoded from the Media Control Point.
type MediaCommand string

const (
	MediaPlay        MediaCommand = "play"
	MediaPause       MediaCommand = "pause"
	MediaStop        MediaCommand = "stop"
	MediaNext        MediaCommand = "next"
	MediaPrevious    MediaCommand = "previous"
	MediaRewind      MediaCommand = "rewind"
	MediaFastForward MediaCommand = "fast_forward"
	MediaGoto        MediaCommand = "goto"
)

// CallCommand is a telecom action decoded from the Call Control Point.
// Hold/Unhold never appear here: they fail at the control point and are
// not dispatched.
type CallCommand string

const (
	CallAccept CallCommand = "accept"
	CallReject CallCommand = "reject"
	CallEnd    CallCommand = "end"
)

// CommandSink receives decoded control-point commands for execution by
// the platform collaborators.
type CommandSink interface {
	DispatchMedia(cmd MediaCommand)
	DispatchCall(cmd CallCommand)
}

// NopSink discards every command. Used before a feed client attaches.
type NopSink struct{}

func (NopSink) DispatchMedia(MediaCommand) {}
func (NopSink) DispatchCall(CallCommand)   {}
