package codec

// Bluetooth SIG assigned 16-bit UUIDs for the services and
// characteristics this system serves.
const (
	// Services
	ServiceGenericAccess   uint16 = 0x1800
	ServiceMediaControl    uint16 = 0x1849 // MCS
	ServiceTelephoneBearer uint16 = 0x184C // TBS

	// Generic Access characteristics
	CharDeviceName uint16 = 0x2A00
	CharAppearance uint16 = 0x2A01

	// MCS characteristics
	CharPlayerName        uint16 = 0x2B93
	CharTrackChanged      uint16 = 0x2B96
	CharTrackTitle        uint16 = 0x2B97
	CharTrackDuration     uint16 = 0x2B98
	CharTrackPosition     uint16 = 0x2B99
	CharMediaState        uint16 = 0x2BA3
	CharMediaControlPoint uint16 = 0x2BA4
	CharMediaOpcodes      uint16 = 0x2BA5

	// TBS characteristics
	CharCallState         uint16 = 0x2BBD
	CharCallControlPoint  uint16 = 0x2BBE
	CharTerminationReason uint16 = 0x2BC0
	CharCallFriendlyName  uint16 = 0x2BC2
)

// AppearanceGenericPhone is the SIG appearance value served by default.
const AppearanceGenericPhone uint16 = 0x0040
