package motionctl

import (
	"errors"
	"fmt"
)

// ErrorCode categorizes the failure behind an *Error so callers can branch
// on cause without string-matching Error().
type ErrorCode string

const (
	CodeHandshakeFailed  ErrorCode = "handshake failed"
	CodeVersionMismatch  ErrorCode = "version mismatch"
	CodeUnknownTag       ErrorCode = "unknown tag"
	CodeUnboundParameter ErrorCode = "unbound parameter"
	CodeNotYetBound      ErrorCode = "not yet bound"
	CodeDeviceError      ErrorCode = "device error"
	CodeBadProfile       ErrorCode = "bad profile"
	CodePortClosed       ErrorCode = "port closed"
	CodeUnknownVariant   ErrorCode = "unknown variant"
	CodeConfigInvalid    ErrorCode = "invalid configuration"
)

// Error is the single structured error type this module returns: the
// operation that failed, a classification code, and the wrapped cause (may
// be nil for a bare classification).
type Error struct {
	Op   string
	Code ErrorCode
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("motionctl: %s: %s: %v", e.Op, e.Code, e.Err)
	}
	return fmt.Sprintf("motionctl: %s: %s", e.Op, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by Code, letting callers write
// errors.Is(err, &Error{Code: CodeDeviceError}) without constructing a
// full comparison value.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// NewError constructs an *Error, wrapping err (which may be nil).
func NewError(op string, code ErrorCode, err error) *Error {
	return &Error{Op: op, Code: code, Err: err}
}

// IsCode reports whether err is (or wraps) an *Error with the given Code.
func IsCode(err error, code ErrorCode) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// DeviceFault is the cause wrapped by a CodeDeviceError *Error: the
// device's own error code and whatever detail bytes it attached.
type DeviceFault struct {
	Code    uint32
	Payload []byte
}

func (f *DeviceFault) Error() string {
	return fmt.Sprintf("device fault %d (%d byte detail)", f.Code, len(f.Payload))
}
