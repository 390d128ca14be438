package codec

// CallState is the TBS call state. The ordinals are the wire encoding;
// do not reorder.
type CallState uint8

const (
	CallIdle                CallState = 0x00
	CallIncoming            CallState = 0x01
	CallDialing             CallState = 0x02
	CallAlerting            CallState = 0x03
	CallActive              CallState = 0x04
	CallLocallyHeld         CallState = 0x05
	CallRemotelyHeld        CallState = 0x06
	CallLocallyRemotelyHeld CallState = 0x07
)

func (s CallState) String() string {
	switch s {
	case CallIdle:
		return "IDLE"
	case CallIncoming:
		return "INCOMING"
	case CallDialing:
		return "DIALING"
	case CallAlerting:
		return "ALERTING"
	case CallActive:
		return "ACTIVE"
	case CallLocallyHeld:
		return "LOCALLY_HELD"
	case CallRemotelyHeld:
		return "REMOTELY_HELD"
	case CallLocallyRemotelyHeld:
		return "LOCALLY_AND_REMOTELY_HELD"
	default:
		return "UNKNOWN"
	}
}

// TerminationReason is the TBS termination reason. Ordinals are the wire
// encoding.
type TerminationReason uint8

const (
	ReasonUnknown     TerminationReason = 0x00
	ReasonLocalParty  TerminationReason = 0x01
	ReasonRemoteParty TerminationReason = 0x02
	ReasonNetwork     TerminationReason = 0x03
	ReasonBusy        TerminationReason = 0x04
	ReasonNoAnswer    TerminationReason = 0x05
)

func (r TerminationReason) String() string {
	switch r {
	case ReasonUnknown:
		return "UNKNOWN"
	case ReasonLocalParty:
		return "LOCAL_PARTY"
	case ReasonRemoteParty:
		return "REMOTE_PARTY"
	case ReasonNetwork:
		return "NETWORK"
	case ReasonBusy:
		return "BUSY"
	case ReasonNoAnswer:
		return "NO_ANSWER"
	default:
		return "UNKNOWN"
	}
}

// MediaState is the MCS media state byte.
type MediaState uint8

const (
	MediaInactive MediaState = 0x00
	MediaPlaying  MediaState = 0x01
	MediaPaused   MediaState = 0x02
)

func (m MediaState) String() string {
	switch m {
	case MediaInactive:
		return "INACTIVE"
	case MediaPlaying:
		return "PLAYING"
	case MediaPaused:
		return "PAUSED"
	default:
		return "UNKNOWN"
	}
}
