package att

import "fmt"

// ATT error codes (Bluetooth Core Spec Vol 3, Part F, Section 3.4.1.1).
const (
	ErrInvalidHandle               = 0x01
	ErrReadNotPermitted            = 0x02
	ErrWriteNotPermitted           = 0x03
	ErrInvalidPDU                  = 0x04
	ErrRequestNotSupported         = 0x06
	ErrInvalidOffset               = 0x07
	ErrPrepareQueueFull            = 0x09
	ErrAttributeNotFound           = 0x0A
	ErrInvalidAttributeValueLength = 0x0D
	ErrUnlikelyError               = 0x0E
	ErrUnsupportedGroupType        = 0x10
	ErrCCCDImproperlyConfigured    = 0xFD
)

// ErrorNames maps error codes to names.
var ErrorNames = map[uint8]string{
	ErrInvalidHandle:               "Invalid Handle",
	ErrReadNotPermitted:            "Read Not Permitted",
	ErrWriteNotPermitted:           "Write Not Permitted",
	ErrInvalidPDU:                  "Invalid PDU",
	ErrRequestNotSupported:         "Request Not Supported",
	ErrInvalidOffset:               "Invalid Offset",
	ErrPrepareQueueFull:            "Prepare Queue Full",
	ErrAttributeNotFound:           "Attribute Not Found",
	ErrInvalidAttributeValueLength: "Invalid Attribute Value Length",
	ErrUnlikelyError:               "Unlikely Error",
	ErrUnsupportedGroupType:        "Unsupported Group Type",
	ErrCCCDImproperlyConfigured:    "CCCD Improperly Configured",
}

// Error is an ATT protocol error carried in an Error Response.
type Error struct {
	Code          uint8
	RequestOpcode uint8
	Handle        uint16
}

func (e *Error) Error() string {
	name, ok := ErrorNames[e.Code]
	if !ok {
		name = fmt.Sprintf("Unknown Error (0x%02X)", e.Code)
	}
	opName, ok := OpcodeNames[e.RequestOpcode]
	if !ok {
		opName = fmt.Sprintf("0x%02X", e.RequestOpcode)
	}
	return fmt.Sprintf("ATT Error: %s (handle 0x%04X, request %s)", name, e.Handle, opName)
}

// NewError creates an ATT error.
func NewError(code, requestOpcode uint8, handle uint16) *Error {
	return &Error{Code: code, RequestOpcode: requestOpcode, Handle: handle}
}

// IsATTError reports whether err is an ATT error with the given code.
func IsATTError(err error, code uint8) bool {
	attErr, ok := err.(*Error)
	return ok && attErr.Code == code
}
