// Package serialport opens the physical transport the rest of this module
// talks over: a real OS serial port via go.bug.st/serial, plus an
// in-memory Fake with the same io.ReadWriteCloser shape that can stand in
// for a device.
package serialport

import (
	"fmt"
	"io"
	"time"

	"go.bug.st/serial"
)

// pollReadTimeout is the short, non-blocking-ish read deadline a Port is
// configured with once the worker loop owns it: long enough to avoid
// busy-spinning, short enough that the worker's select loop stays
// responsive to Signals and ctx cancellation.
const pollReadTimeout = 50 * time.Millisecond

// Open configures path at baud with 8-N-1 framing and the worker's polling
// read timeout, returning it as an io.ReadWriteCloser.
func Open(path string, baud int) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: opening %s: %w", path, err)
	}
	if err := port.SetReadTimeout(pollReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialport: setting read timeout on %s: %w", path, err)
	}
	return port, nil
}

// OpenHandshake opens path exactly like Open, but switches to
// handshakeReadTimeout before invoking fn and restores workerReadTimeout
// afterward regardless of fn's outcome — mirroring the discipline of
// temporarily widening the read deadline for the one blocking round trip
// a handshake needs. fn is expected to close over whatever result (a
// handshake.Bound, typically) it wants to hand back to the caller.
func OpenHandshake(path string, baud int, workerReadTimeout, handshakeReadTimeout time.Duration, fn func(io.ReadWriteCloser) error) (io.ReadWriteCloser, error) {
	mode := &serial.Mode{
		BaudRate: baud,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	port, err := serial.Open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("serialport: opening %s: %w", path, err)
	}

	if err := port.SetReadTimeout(handshakeReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialport: setting handshake read timeout on %s: %w", path, err)
	}

	fnErr := fn(port)

	if err := port.SetReadTimeout(workerReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("serialport: restoring worker read timeout on %s: %w", path, err)
	}

	if fnErr != nil {
		port.Close()
		return nil, fnErr
	}
	return port, nil
}
