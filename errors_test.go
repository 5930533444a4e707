package motionctl

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorFormatsOpCodeAndCause(t *testing.T) {
	cause := errors.New("short read")
	err := NewError("Open", CodeHandshakeFailed, cause)
	assert.Equal(t, "motionctl: Open: handshake failed: short read", err.Error())
	assert.Equal(t, cause, errors.Unwrap(err))
}

func TestErrorFormatsWithoutACause(t *testing.T) {
	err := NewError("Decode", CodeUnknownTag, nil)
	assert.Equal(t, "motionctl: Decode: unknown tag", err.Error())
	assert.Nil(t, errors.Unwrap(err))
}

func TestIsCodeMatchesWrappedErrors(t *testing.T) {
	err := fmtWrap(NewError("Load", CodeConfigInvalid, nil))
	assert.True(t, IsCode(err, CodeConfigInvalid))
	assert.False(t, IsCode(err, CodeBadProfile))
	assert.False(t, IsCode(nil, CodeConfigInvalid))
}

func TestErrorsIsComparesByCode(t *testing.T) {
	err := NewError("Feed", CodeUnknownTag, errors.New("boom"))
	assert.True(t, errors.Is(err, &Error{Code: CodeUnknownTag}))
	assert.False(t, errors.Is(err, &Error{Code: CodeBadProfile}))
}

func TestDeviceFaultReportsCodeAndPayloadSize(t *testing.T) {
	f := &DeviceFault{Code: 4, Payload: []byte("limit switch on X")}
	assert.Contains(t, f.Error(), "4")
	assert.Contains(t, f.Error(), "17 byte")
}

// fmtWrap simulates an intermediate layer wrapping the error with
// fmt.Errorf("%w", ...), which is how handshake/worker/config actually
// propagate these.
func fmtWrap(err error) error {
	return &wrapped{err}
}

type wrapped struct{ err error }

func (w *wrapped) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapped) Unwrap() error { return w.err }
