// Package handshake performs the Inquire/Describe exchange that opens every
// session: it is the only place in this module that talks to the wire
// before the codec table knows the device's axis count.
package handshake

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/dkellgren/motionctl/internal/logging"
	"github.com/dkellgren/motionctl/internal/wire"
)

// ErrVersionMismatch is returned by Do when the device's Describe.Version
// does not match wire.SupportedVersion. Callers distinguish this from a
// generic handshake failure because it means the two sides cannot safely
// continue at all, not merely that this attempt failed.
var ErrVersionMismatch = errors.New("handshake: device protocol version not supported")

// Bound is the result of a completed handshake: the device's self-reported
// parameters, the size-expression environment derived from them, and a
// codec Table with every variable-sized record already registered against
// that environment.
type Bound struct {
	Describe wire.Describe
	Env      map[string]uint64
	Codecs   *wire.Table
}

// Do writes an Inquire frame to rw and waits up to timeout for the matching
// Describe reply. On success it binds the remaining codecs (Status,
// Segment, Immediate, Special) against the axis count Describe carries.
// Describe has no peripheral word count, so Peripheral is not bound and a
// Peripheral frame is rejected as an unbound tag.
func Do(ctx context.Context, rw io.ReadWriter, timeout time.Duration) (*Bound, error) {
	log := logging.Default()
	codecs := wire.InitialCodecs()

	inquireCodec, err := codecs.Get(wire.TagInquire)
	if err != nil {
		return nil, fmt.Errorf("handshake: %w", err)
	}
	log.Debug("sending inquire")
	if err := writeFrame(rw, wire.TagInquire, inquireCodec.Encode(wire.Inquire{})); err != nil {
		return nil, fmt.Errorf("handshake: writing inquire: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type result struct {
		msg wire.Message
		err error
	}
	done := make(chan result, 1)
	go func() {
		msg, err := readFrame(rw, codecs, wire.TagDescribe)
		done <- result{msg, err}
	}()

	select {
	case <-ctx.Done():
		return nil, fmt.Errorf("handshake: waiting for describe: %w", ctx.Err())
	case r := <-done:
		if r.err != nil {
			return nil, fmt.Errorf("handshake: reading describe: %w", r.err)
		}
		describe := r.msg.(wire.Describe)
		if describe.Version != wire.SupportedVersion {
			return nil, fmt.Errorf("%w: got %d, want %d", ErrVersionMismatch, describe.Version, wire.SupportedVersion)
		}
		log.Info("handshake complete", "version", describe.Version, "axis_count", describe.AxisCount, "buffer_size", describe.BufferSize)

		env := map[string]uint64{
			wire.ParamAxisCount: uint64(describe.AxisCount),
		}
		if err := wire.BindCodecs(codecs, env); err != nil {
			return nil, fmt.Errorf("handshake: binding codecs: %w", err)
		}
		return &Bound{Describe: describe, Env: env, Codecs: codecs}, nil
	}
}

func writeFrame(w io.Writer, tag wire.Tag, payload []byte) error {
	buf := make([]byte, 1+len(payload))
	buf[0] = byte(tag)
	copy(buf[1:], payload)
	_, err := w.Write(buf)
	return err
}

// readFrame reads exactly one frame and requires it to carry want's tag —
// the handshake only ever expects the one reply it just asked for.
func readFrame(r io.Reader, codecs *wire.Table, want wire.Tag) (wire.Message, error) {
	var tagByte [1]byte
	if _, err := io.ReadFull(r, tagByte[:]); err != nil {
		return nil, err
	}
	tag := wire.Tag(tagByte[0])
	if tag != want {
		return nil, fmt.Errorf("unexpected tag %s, want %s", tag, want)
	}

	codec, err := codecs.Get(tag)
	if err != nil {
		return nil, err
	}
	payload := make([]byte, codec.Size())
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return codec.Decode(payload)
}
