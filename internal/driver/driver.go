// Package driver implements the protocol driver: the single owner of
// outbound correlation tokens and the host-side half of the device's ring
// buffer flow control. It has no goroutine of its own — internal/worker
// drives it from the single goroutine that owns the serial port.
package driver

import (
	"fmt"
	"io"

	"github.com/dkellgren/motionctl/internal/wire"
)

// maxToken is the highest correlation token value before the sequence
// wraps. Token 0 is reserved to mean "no request outstanding", so the
// sequence skips it on wraparound (mod 2^32-1, not mod 2^32).
const maxToken = ^uint32(0) // 2^32-1

// Driver owns the single reusable write buffer and the host's view of the
// device's ring buffer occupancy, and hands out the correlation tokens that
// let Status/BufferMessage replies be matched back to the request that
// caused them.
type Driver struct {
	w      io.Writer
	codecs *wire.Table

	seq uint32 // last token issued; 0 means none issued yet

	pendingStatusToken uint32 // 0 if no Ask is outstanding
	pendingBufferToken uint32 // 0 if no space-request is outstanding

	freeSpace int // host's last-known count of free device ring-buffer slots

	writeBuf    []byte
	writeBufCap int
}

// New constructs a Driver that writes frames to w using codecs (normally
// the Table a handshake.Bound produced), batching up to writeBufCap bytes
// per Write call before flushing.
func New(w io.Writer, codecs *wire.Table, writeBufCap int) *Driver {
	return &Driver{
		w:           w,
		codecs:      codecs,
		writeBufCap: writeBufCap,
		writeBuf:    make([]byte, 0, writeBufCap),
	}
}

// nextToken issues the next correlation token, wrapping before it would
// collide with the reserved zero value.
func (d *Driver) nextToken() uint32 {
	if d.seq >= maxToken {
		d.seq = 0
	}
	d.seq++
	return d.seq
}

// FreeSpace returns the host's last-known count of free device ring-buffer
// slots, as reported by the most recent BufferMessage the device sent.
func (d *Driver) FreeSpace() int { return d.freeSpace }

// CanSend reports whether n more Segment/Immediate/Special records can be
// enqueued without exceeding the device's last-reported free space.
func (d *Driver) CanSend(n int) bool { return n <= d.freeSpace }

// send encodes msg and appends it to the write buffer, flushing first if
// the frame wouldn't fit in the remaining capacity.
func (d *Driver) send(msg wire.Message) error {
	codec, err := d.codecs.Get(msg.Tag())
	if err != nil {
		return fmt.Errorf("driver: %w", err)
	}
	payload := codec.Encode(msg)
	frame := make([]byte, 1+len(payload))
	frame[0] = byte(msg.Tag())
	copy(frame[1:], payload)

	if len(d.writeBuf)+len(frame) > d.writeBufCap {
		if err := d.Flush(); err != nil {
			return err
		}
	}
	if len(frame) > d.writeBufCap {
		// Larger than the whole buffer (only possible for a long
		// DeviceError-shaped send, which this side never emits) — write
		// straight through.
		_, err := d.w.Write(frame)
		return err
	}
	d.writeBuf = append(d.writeBuf, frame...)
	return nil
}

// Flush writes out whatever is currently batched.
func (d *Driver) Flush() error {
	if len(d.writeBuf) == 0 {
		return nil
	}
	_, err := d.w.Write(d.writeBuf)
	d.writeBuf = d.writeBuf[:0]
	return err
}

// RequestStatus sends an Ask and records its token so the matching Status
// can be recognized (and any other Status, stale from a superseded
// request, discarded) by ObserveStatus. Any outstanding buffer token is
// cleared.
func (d *Driver) RequestStatus() (token uint32, err error) {
	token = d.nextToken()
	if err := d.send(wire.Ask{RequestCounter: token}); err != nil {
		return 0, err
	}
	d.pendingStatusToken = token
	d.pendingBufferToken = 0
	return token, nil
}

// ObserveStatus reports whether s answers the most recently sent Ask. A
// Status carrying a different RequestCounter is stale (superseded by a
// later Ask, or an unsolicited report) and is not cleared from the pending
// slot.
func (d *Driver) ObserveStatus(s wire.Status) bool {
	if d.pendingStatusToken == 0 || s.RequestCounter != d.pendingStatusToken {
		return false
	}
	d.pendingStatusToken = 0
	return true
}

// RequestBufferSpace declares intent to enqueue count more buffered
// records, sending a BufferMessage and recording its token so the
// device's reply (also a BufferMessage, reporting how many slots are
// actually free) can be matched back to it.
func (d *Driver) RequestBufferSpace(count uint32) (token uint32, err error) {
	token = d.nextToken()
	if err := d.send(wire.BufferMessage{RequestCounter: token, Count: count}); err != nil {
		return 0, err
	}
	d.pendingBufferToken = token
	return token, nil
}

// ObserveBuffer updates the host's free-space estimate from a device
// BufferMessage and reports whether it answers the most recent
// RequestBufferSpace call. Unsolicited buffer reports (token 0 pending, or
// a mismatched token) still update FreeSpace — the device is always
// authoritative about its own ring buffer — but return false.
func (d *Driver) ObserveBuffer(b wire.BufferMessage) bool {
	d.freeSpace = int(b.Count)
	if d.pendingBufferToken == 0 || b.RequestCounter != d.pendingBufferToken {
		return false
	}
	d.pendingBufferToken = 0
	return true
}

// SendSegments implements send_segments: it invalidates any outstanding
// status token, mints a new buffer token, and transmits
// BufferMessage(buffer_token, len(segs)) announcing the whole batch before
// writing the segments themselves. After this call the device will not
// emit unsolicited Buffer reports while it consumes the pre-announced
// batch — the host has taken over accounting, which is why the local
// free-space estimate is decremented optimistically here rather than
// waiting on a reply. The caller is responsible for calling CanSend first;
// SendSegments does not block or retry.
func (d *Driver) SendSegments(segs []wire.Segment) error {
	if len(segs) == 0 {
		return nil
	}
	d.pendingStatusToken = 0
	if _, err := d.RequestBufferSpace(uint32(len(segs))); err != nil {
		return err
	}
	for _, s := range segs {
		if err := d.send(s); err != nil {
			return err
		}
		d.freeSpace--
	}
	return nil
}

// SendSpecial enqueues a single non-motion buffered event.
func (d *Driver) SendSpecial(s wire.Special) error {
	if err := d.send(s); err != nil {
		return err
	}
	d.freeSpace--
	return nil
}

// SendImmediate bypasses the buffered queue entirely (no free-space
// accounting: the device executes it ahead of whatever is already
// enqueued).
func (d *Driver) SendImmediate(m wire.Immediate) error {
	return d.send(m)
}

// SendHome, SendOverride, SendStart and SendDone are immediate, unbuffered
// control records.
func (d *Driver) SendHome(h wire.Home) error         { return d.send(h) }
func (d *Driver) SendOverride(o wire.Override) error { return d.send(o) }
func (d *Driver) SendStart() error                   { return d.send(wire.Start{}) }
func (d *Driver) SendDone() error                    { return d.send(wire.Done{}) }
