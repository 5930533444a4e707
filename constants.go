package motionctl

import (
	"time"

	"github.com/dkellgren/motionctl/internal/wire"
)

// Default tunables for Open. Every one of these except DefaultPollTimeout
// can be overridden with an Option (no Option sets the worker's read
// timeout); the defaults match the bounds the handshake and worker loop are
// specified to run under.
const (
	// DefaultHandshakeTimeout bounds the Inquire/Describe round trip. The
	// port's read deadline is widened to this value for the duration of
	// the handshake, then restored to DefaultPollTimeout.
	DefaultHandshakeTimeout = 1 * time.Second

	// DefaultPollTimeout is the read deadline the worker loop runs the
	// port under once the handshake completes: short enough that a Read
	// returning on timeout looks like the "non-blocking" read the device
	// protocol assumes, long enough to avoid busy-spinning the goroutine
	// that owns the port.
	DefaultPollTimeout = 50 * time.Millisecond

	// DefaultPollInterval is how often the worker requests a Status when
	// nothing else prompts one.
	DefaultPollInterval = 50 * time.Millisecond

	// DefaultWriteBufferSize bounds how many encoded bytes the driver
	// batches before a Flush is forced.
	DefaultWriteBufferSize = 4096

	// DefaultBaudRate is used when Open's caller does not set one with
	// WithBaud.
	DefaultBaudRate = 115200
)

// ProtocolVersion is the wire protocol version this module speaks. A
// device reporting any other version in its Describe reply fails the
// handshake with CodeVersionMismatch.
const ProtocolVersion = wire.SupportedVersion
