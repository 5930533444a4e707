// Package wire defines the binary record layer: the fixed tag byte that opens
// every frame, the scalar field vocabulary used to describe a record's shape,
// and the concrete message types exchanged with the device. Sizes that
// depend on a parameter not yet known (NUM_AXIS, PERIPHERAL_STATUS_WORDS) are
// expressed with sea.Expr and only become concrete once bound against a
// handshake environment; see registry.go.
package wire

import (
	"fmt"

	"github.com/dkellgren/motionctl/internal/sea"
)

// Tag is the single byte that opens every frame and selects its codec.
type Tag uint8

const (
	TagInquire Tag = iota + 1
	TagDescribe
	TagAsk
	TagStatus
	TagBuffer
	TagDone
	TagSegment
	TagImmediate
	TagHome
	TagStart
	TagOverride
	TagError
	TagPeripheral
	TagSpecial
)

func (t Tag) String() string {
	switch t {
	case TagInquire:
		return "Inquire"
	case TagDescribe:
		return "Describe"
	case TagAsk:
		return "Ask"
	case TagStatus:
		return "Status"
	case TagBuffer:
		return "Buffer"
	case TagDone:
		return "Done"
	case TagSegment:
		return "Segment"
	case TagImmediate:
		return "Immediate"
	case TagHome:
		return "Home"
	case TagStart:
		return "Start"
	case TagOverride:
		return "Override"
	case TagError:
		return "Error"
	case TagPeripheral:
		return "Peripheral"
	case TagSpecial:
		return "Special"
	default:
		return fmt.Sprintf("Tag(%d)", uint8(t))
	}
}

// Message is implemented by every record type so a single codec table can
// carry heterogeneous payloads keyed on their wire Tag.
type Message interface {
	Tag() Tag
}

// ScalarType is one of the primitive field encodings a Schema can describe.
type ScalarType int

const (
	U8 ScalarType = iota
	U32
	I32
	U64
	I64
	F64
)

func (s ScalarType) byteSize() int {
	switch s {
	case U8:
		return 1
	case U32, I32:
		return 4
	case U64, I64, F64:
		return 8
	default:
		panic("wire: unknown scalar type")
	}
}

// Field describes one named member of a Schema. Repeat is nil for a scalar
// field and a sea.Expr for an array whose length is a size expression (bound
// to a concrete count once the handshake environment is known).
type Field struct {
	Name   string
	Type   ScalarType
	Repeat *sea.Expr
}

func (f Field) size(env map[string]uint64) (uint64, error) {
	n := uint64(1)
	if f.Repeat != nil {
		v, err := f.Repeat.Eval(env)
		if err != nil {
			return 0, err
		}
		n = v
	}
	return n * uint64(f.Type.byteSize()), nil
}

// Schema is the declarative, non-reflective description of a fixed-shape
// record used to compute its bound size. It never touches the Go struct
// fields directly; Encode/Decode for each message type are hand-written in
// messages.go and are expected to agree with the Schema's byte count.
type Schema struct {
	Fields []Field
}

// Size evaluates the schema's total byte length under env. It returns
// *sea.ErrUnboundParameter (wrapped) if any field's Repeat references a
// parameter not yet in env — the caller should treat this as "not yet
// bindable" rather than a hard failure.
func (s Schema) Size(env map[string]uint64) (uint64, error) {
	var total uint64
	for _, f := range s.Fields {
		sz, err := f.size(env)
		if err != nil {
			return 0, fmt.Errorf("wire: sizing field %q: %w", f.Name, err)
		}
		total += sz
	}
	return total, nil
}
