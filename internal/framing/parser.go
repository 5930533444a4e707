// Package framing turns an arbitrary, arbitrarily-chunked byte stream from
// the serial port into a sequence of complete wire.Message values. It knows
// nothing about message semantics, flow control, or correlation — only how
// to find frame boundaries.
package framing

import (
	"fmt"

	"github.com/dkellgren/motionctl/internal/wire"
)

// State is the parser's current position within a frame.
type State int

const (
	// AwaitTag is waiting for the next frame's leading Tag byte.
	AwaitTag State = iota
	// AwaitPayload has a Tag and is buffering that record's payload.
	AwaitPayload
	// Errored means an unknown or unbound tag, a malformed frame, or a
	// device Error frame was seen; the parser will not
	// recover on its own (construct a new Parser to resume).
	Errored
)

// Parser is a single-frame-at-a-time byte-stream decoder, fed with
// arbitrarily sized chunks as they arrive from the transport. It makes no
// assumption about how many bytes a Feed call delivers — one byte at a time
// and the whole stream at once both produce the same sequence of messages.
type Parser struct {
	codecs *wire.Table
	state  State
	tag    wire.Tag
	codec  *wire.Codec
	buf    []byte
	err    error
}

// New constructs a Parser against codecs, normally the Table produced by a
// completed handshake.Do.
func New(codecs *wire.Table) *Parser {
	return &Parser{codecs: codecs, state: AwaitTag}
}

// State reports the parser's current position.
func (p *Parser) State() State { return p.state }

// Err returns the error that moved the parser into Errored, or nil.
func (p *Parser) Err() error { return p.err }

// Feed appends chunk to the parser and returns every message that chunk
// completed. Once Errored, Feed is a no-op that keeps returning the same
// error; construct a fresh Parser (after the caller has resynchronized, if
// it can) to continue.
func (p *Parser) Feed(chunk []byte) ([]wire.Message, error) {
	if p.state == Errored {
		return nil, p.err
	}

	var out []wire.Message
	i := 0
	for i < len(chunk) {
		switch p.state {
		case AwaitTag:
			p.tag = wire.Tag(chunk[i])
			i++
			codec, err := p.codecs.Get(p.tag)
			if err != nil {
				p.fail(fmt.Errorf("framing: %w", err))
				return out, p.err
			}
			p.codec = codec
			p.buf = p.buf[:0]
			p.state = AwaitPayload
			if codec.Size() == 0 {
				// An empty-payload record is complete with its tag, even
				// when that tag is the last byte of the chunk.
				msg, err := codec.Decode(nil)
				if err != nil {
					p.fail(fmt.Errorf("framing: decoding %s: %w", p.tag, err))
					return out, p.err
				}
				out = append(out, msg)
				p.state = AwaitTag
			}

		case AwaitPayload:
			total, ok, err := p.codec.Probe(p.buf)
			if err != nil {
				p.fail(fmt.Errorf("framing: probing %s payload: %w", p.tag, err))
				return out, p.err
			}
			if ok && total == 0 {
				msg, err := p.codec.Decode(nil)
				if err != nil {
					p.fail(fmt.Errorf("framing: decoding %s: %w", p.tag, err))
					return out, p.err
				}
				out = append(out, msg)
				if p.tag == wire.TagError {
					p.fail(fmt.Errorf("framing: device reported a protocol error"))
					return out, p.err
				}
				p.state = AwaitTag
				continue
			}

			// A self-delimiting codec's total length isn't known until
			// enough of its header is buffered, so grow it one byte at a
			// time rather than risk reading past the frame boundary into
			// whatever follows it.
			take := 1
			if ok {
				take = total - len(p.buf)
			}
			if remaining := len(chunk) - i; take > remaining {
				take = remaining
			}
			p.buf = append(p.buf, chunk[i:i+take]...)
			i += take

			total, ok, err = p.codec.Probe(p.buf)
			if err != nil {
				p.fail(fmt.Errorf("framing: probing %s payload: %w", p.tag, err))
				return out, p.err
			}
			if !ok || len(p.buf) < total {
				continue
			}

			msg, err := p.codec.Decode(p.buf[:total])
			if err != nil {
				p.fail(fmt.Errorf("framing: decoding %s: %w", p.tag, err))
				return out, p.err
			}
			out = append(out, msg)
			if p.tag == wire.TagError {
				// Per the framing spec, a well-formed Error frame still
				// drives the parser into its terminal state: the device has
				// reported a protocol fault, and nothing after it on the
				// wire is trustworthy enough to keep decoding.
				p.fail(fmt.Errorf("framing: device reported a protocol error"))
				return out, p.err
			}
			p.state = AwaitTag
		}
	}
	return out, nil
}

func (p *Parser) fail(err error) {
	p.state = Errored
	p.err = err
}
