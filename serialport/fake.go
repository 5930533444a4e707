package serialport

import (
	"bytes"
	"io"
	"sync"
)

// Responder is invoked on the bytes a test (playing the role of the host)
// writes to a Fake, and returns the bytes the fake device should write
// back, if any. A nil Responder means the fake device never replies on
// its own — tests drive replies directly via DeviceWrite instead.
type Responder func(written []byte) []byte

// Fake is a goroutine-safe, in-memory duplex byte pipe standing in for a
// real serial port: writes from the host land in one buffer, the injected
// Responder (or a test calling DeviceWrite directly) fills the other, and
// Read drains it. Only this package's own tests drive a *Fake; the
// handshake, worker and connection tests use net.Pipe, and the driver
// tests write to a bytes.Buffer.
type Fake struct {
	mu        sync.Mutex
	cond      *sync.Cond
	toDevice  bytes.Buffer
	toHost    bytes.Buffer
	closed    bool
	responder Responder

	writeCalls int
	readCalls  int
}

// NewFake constructs an unconnected Fake with no responder.
func NewFake() *Fake {
	f := &Fake{}
	f.cond = sync.NewCond(&f.mu)
	return f
}

// SetResponder installs r as the fake device's reply logic. Passing nil
// disables automatic replies.
func (f *Fake) SetResponder(r Responder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responder = r
}

// Write implements io.Writer from the host's side: it records the bytes
// written (visible via WrittenByHost) and, if a Responder is installed,
// immediately queues its reply for Read.
func (f *Fake) Write(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	f.writeCalls++
	f.toDevice.Write(p)

	if f.responder != nil {
		if reply := f.responder(p); len(reply) > 0 {
			f.toHost.Write(reply)
			f.cond.Broadcast()
		}
	}
	return len(p), nil
}

// Read implements io.Reader from the host's side, blocking until bytes
// queued by a Responder or DeviceWrite are available, or the Fake is
// closed.
func (f *Fake) Read(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readCalls++
	for f.toHost.Len() == 0 && !f.closed {
		f.cond.Wait()
	}
	if f.toHost.Len() == 0 {
		return 0, io.EOF
	}
	return f.toHost.Read(p)
}

// Close implements io.Closer, unblocking any pending Read with io.EOF.
func (f *Fake) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	f.cond.Broadcast()
	return nil
}

// DeviceWrite injects bytes directly into the host-read side, bypassing
// the Responder — for unsolicited device traffic a test wants to push
// without it being a reply to anything the host wrote.
func (f *Fake) DeviceWrite(p []byte) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, io.ErrClosedPipe
	}
	n, _ := f.toHost.Write(p)
	f.cond.Broadcast()
	return n, nil
}

// WrittenByHost returns and clears everything the host has written so
// far, for tests that want to assert on raw wire bytes.
func (f *Fake) WrittenByHost() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	b := append([]byte(nil), f.toDevice.Bytes()...)
	f.toDevice.Reset()
	return b
}

// IsClosed reports whether Close has been called.
func (f *Fake) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

// CallCounts returns the number of Read/Write calls observed so far.
func (f *Fake) CallCounts() (reads, writes int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.readCalls, f.writeCalls
}

var _ io.ReadWriteCloser = (*Fake)(nil)
