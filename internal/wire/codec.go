package wire

import "fmt"

// WireError is a sentinel-style error for malformed or short buffers,
// matching the flat string-error idiom used elsewhere in this codec.
type WireError string

func (e WireError) Error() string { return string(e) }

const (
	// ErrShortBuffer is returned by a Decode function given fewer bytes
	// than its bound size requires.
	ErrShortBuffer WireError = "wire: buffer shorter than record size"
	// ErrUnboundTag is returned by Table.Get for a Tag registered only
	// after a handshake binds its size, before that binding has happened.
	ErrUnboundTag WireError = "wire: tag not yet bound to a size"
)

// variableSize marks a Codec whose payload length isn't known ahead of the
// bytes themselves (currently only the Error record, which carries its own
// length prefix — see messages.go's deviceErrorCodec).
const variableSize = -1

// Codec is a tag's bound encoder/decoder pair plus the byte length its
// payload occupies on the wire once size-expression parameters are bound.
// Size is variableSize for the one record whose length is self-describing.
type Codec struct {
	Tag    Tag
	size   int
	encode func(Message) []byte
	decode func([]byte) (Message, error)
	probe  func([]byte) (total int, ok bool, err error)
}

// Size returns the codec's fixed payload length, or variableSize for a
// record that carries its own length prefix.
func (c *Codec) Size() int { return c.size }

// Encode renders msg to its wire payload (not including the leading Tag
// byte, which the driver prepends and framing.Parser strips).
func (c *Codec) Encode(msg Message) []byte { return c.encode(msg) }

// Decode parses a payload of exactly c.Size() bytes (or, for a
// variable-size codec, whatever Probe determined the total length to be)
// into a Message.
func (c *Codec) Decode(payload []byte) (Message, error) { return c.decode(payload) }

// Probe reports, given whatever prefix of the payload has been buffered so
// far, whether the total payload length is now known. Fixed-size codecs
// answer immediately regardless of buf; a self-delimiting codec (currently
// only DeviceError) needs enough of its header buffered before it can
// report a length, and returns ok=false until then. This is how the framing
// layer stays ignorant of any particular record's self-delimiting format.
func (c *Codec) Probe(buf []byte) (total int, ok bool, err error) {
	if c.size != variableSize {
		return c.size, true, nil
	}
	return c.probe(buf)
}

// Table is a registry of codecs keyed by wire Tag. A fresh Table starts with
// only the ground-sized records (InitialCodecs); BindCodecs adds the
// remainder once a handshake environment is available.
type Table struct {
	byTag map[Tag]*Codec
}

func newTable() *Table { return &Table{byTag: make(map[Tag]*Codec)} }

// Get returns the codec registered for tag, or ErrUnboundTag if nothing is
// registered yet (the handshake that would bind it hasn't happened).
func (t *Table) Get(tag Tag) (*Codec, error) {
	c, ok := t.byTag[tag]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnboundTag, tag)
	}
	return c, nil
}

func (t *Table) register(tag Tag, size int, encode func(Message) []byte, decode func([]byte) (Message, error)) {
	t.byTag[tag] = &Codec{Tag: tag, size: size, encode: encode, decode: decode}
}

// registerVariable is register's counterpart for a self-delimiting record
// (DeviceError), supplying the probe function that determines its total
// length from a buffered header prefix.
func (t *Table) registerVariable(tag Tag, encode func(Message) []byte, decode func([]byte) (Message, error), probe func([]byte) (int, bool, error)) {
	t.byTag[tag] = &Codec{Tag: tag, size: variableSize, encode: encode, decode: decode, probe: probe}
}
