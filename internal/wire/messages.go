package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"github.com/dkellgren/motionctl/internal/sea"
)

// SupportedVersion is the protocol version this module speaks. A device
// reporting any other value in Describe.Version fails the handshake rather
// than risk misinterpreting a wire layout that changed underneath it.
const SupportedVersion uint32 = 1

// Describe answers Inquire: the device's protocol version and its
// parameters (axis count, ring buffer depth); the axis count is what the
// rest of the session's variable-sized records bind against.
type Describe struct {
	Version    uint32
	AxisCount  uint32
	Magic      uint32
	BufferSize uint32
}

func (Describe) Tag() Tag { return TagDescribe }

var describeSchema = Schema{Fields: []Field{
	{Name: "version", Type: U32},
	{Name: "axis_count", Type: U32},
	{Name: "magic", Type: U32},
	{Name: "buffer_size", Type: U32},
}}

func encodeDescribe(m Message) []byte {
	d := m.(Describe)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], d.Version)
	binary.LittleEndian.PutUint32(buf[4:8], d.AxisCount)
	binary.LittleEndian.PutUint32(buf[8:12], d.Magic)
	binary.LittleEndian.PutUint32(buf[12:16], d.BufferSize)
	return buf
}

func decodeDescribe(b []byte) (Message, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	return Describe{
		Version:    binary.LittleEndian.Uint32(b[0:4]),
		AxisCount:  binary.LittleEndian.Uint32(b[4:8]),
		Magic:      binary.LittleEndian.Uint32(b[8:12]),
		BufferSize: binary.LittleEndian.Uint32(b[12:16]),
	}, nil
}

// Ask requests a fresh Status, tagged with RequestCounter so the reply can
// be correlated back to this request.
type Ask struct {
	RequestCounter uint32
}

func (Ask) Tag() Tag { return TagAsk }

var askSchema = Schema{Fields: []Field{
	{Name: "request_counter", Type: U32},
}}

func encodeAsk(m Message) []byte {
	a := m.(Ask)
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf[0:4], a.RequestCounter)
	return buf
}

func decodeAsk(b []byte) (Message, error) {
	if len(b) < 4 {
		return nil, ErrShortBuffer
	}
	return Ask{RequestCounter: binary.LittleEndian.Uint32(b[0:4])}, nil
}

// StatusFlag is the device's coarse run state, reported in every Status.
type StatusFlag uint32

const (
	StatusIdle StatusFlag = iota + 1
	StatusBusy
	StatusHalt
	StatusHoming
	StatusDead
	StatusBufferUnderflow
)

func (f StatusFlag) valid() bool { return f >= StatusIdle && f <= StatusBufferUnderflow }

// Status is the device's reply to Ask: run state, free ring buffer slots,
// the move number currently executing, the active override, and the
// commanded position on every axis.
type Status struct {
	RequestCounter uint32
	Flag           StatusFlag
	FreeSpace      uint32
	MoveNumber     uint32
	Override       float64
	Position       []int32
}

func (Status) Tag() Tag { return TagStatus }

func statusSchema(axisCount *sea.Expr) Schema {
	return Schema{Fields: []Field{
		{Name: "request_counter", Type: U32},
		{Name: "flag", Type: U32},
		{Name: "free_space", Type: U32},
		{Name: "move_number", Type: U32},
		{Name: "override", Type: F64},
		{Name: "position", Type: I32, Repeat: axisCount},
	}}
}

func encodeStatus(m Message) []byte {
	s := m.(Status)
	buf := make([]byte, 24+4*len(s.Position))
	binary.LittleEndian.PutUint32(buf[0:4], s.RequestCounter)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(s.Flag))
	binary.LittleEndian.PutUint32(buf[8:12], s.FreeSpace)
	binary.LittleEndian.PutUint32(buf[12:16], s.MoveNumber)
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(s.Override))
	for i, p := range s.Position {
		off := 24 + 4*i
		binary.LittleEndian.PutUint32(buf[off:off+4], uint32(p))
	}
	return buf
}

func decodeStatus(axisCount int) func([]byte) (Message, error) {
	return func(b []byte) (Message, error) {
		want := 24 + 4*axisCount
		if len(b) < want {
			return nil, ErrShortBuffer
		}
		flag := StatusFlag(binary.LittleEndian.Uint32(b[4:8]))
		if !flag.valid() {
			return nil, fmt.Errorf("wire: status flag %d: %w", uint32(flag), ErrUnknownVariant)
		}
		pos := make([]int32, axisCount)
		for i := range pos {
			off := 24 + 4*i
			pos[i] = int32(binary.LittleEndian.Uint32(b[off : off+4]))
		}
		return Status{
			RequestCounter: binary.LittleEndian.Uint32(b[0:4]),
			Flag:           flag,
			FreeSpace:      binary.LittleEndian.Uint32(b[8:12]),
			MoveNumber:     binary.LittleEndian.Uint32(b[12:16]),
			Override:       math.Float64frombits(binary.LittleEndian.Uint64(b[16:24])),
			Position:       pos,
		}, nil
	}
}

// ErrUnknownVariant is returned when an enum-coded wire field holds a value
// outside its known range — a firmware/host protocol skew, not a framing
// error.
var ErrUnknownVariant = WireError("wire: unrecognized enum value")

// BufferMessage is the two-word exchange that keeps the device's ring
// buffer fill level synchronized with the host's write-ahead count: sent
// dev->host it reports free Count slots, sent host->dev it declares the
// Count of records the host is about to enqueue.
type BufferMessage struct {
	RequestCounter uint32
	Count          uint32
}

func (BufferMessage) Tag() Tag { return TagBuffer }

var bufferSchema = Schema{Fields: []Field{
	{Name: "request_counter", Type: U32},
	{Name: "count", Type: U32},
}}

func encodeBuffer(m Message) []byte {
	b := m.(BufferMessage)
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint32(buf[0:4], b.RequestCounter)
	binary.LittleEndian.PutUint32(buf[4:8], b.Count)
	return buf
}

func decodeBuffer(b []byte) (Message, error) {
	if len(b) < 8 {
		return nil, ErrShortBuffer
	}
	return BufferMessage{
		RequestCounter: binary.LittleEndian.Uint32(b[0:4]),
		Count:          binary.LittleEndian.Uint32(b[4:8]),
	}, nil
}

// Segment is a buffered, flow-controlled motion command: a trapezoidal
// velocity profile from StartVelocity to EndVelocity over the line to
// Coords, tagged with MoveID for Status.MoveNumber correlation.
type Segment struct {
	MoveID        uint32
	MoveFlag      uint32
	StartVelocity float64
	EndVelocity   float64
	Coords        []float64
}

func (Segment) Tag() Tag { return TagSegment }

func segmentSchema(axisCount *sea.Expr) Schema {
	return Schema{Fields: []Field{
		{Name: "move_id", Type: U32},
		{Name: "move_flag", Type: U32},
		{Name: "start_velocity", Type: F64},
		{Name: "end_velocity", Type: F64},
		{Name: "coords", Type: F64, Repeat: axisCount},
	}}
}

func encodeSegment(m Message) []byte {
	s := m.(Segment)
	return encodeSegmentLike(s.MoveID, s.MoveFlag, s.StartVelocity, s.EndVelocity, s.Coords)
}

func encodeSegmentLike(moveID, moveFlag uint32, startV, endV float64, coords []float64) []byte {
	buf := make([]byte, 24+8*len(coords))
	binary.LittleEndian.PutUint32(buf[0:4], moveID)
	binary.LittleEndian.PutUint32(buf[4:8], moveFlag)
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(startV))
	binary.LittleEndian.PutUint64(buf[16:24], math.Float64bits(endV))
	for i, c := range coords {
		off := 24 + 8*i
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(c))
	}
	return buf
}

func decodeSegmentLike(b []byte, axisCount int) (moveID, moveFlag uint32, startV, endV float64, coords []float64, err error) {
	want := 24 + 8*axisCount
	if len(b) < want {
		return 0, 0, 0, 0, nil, ErrShortBuffer
	}
	moveID = binary.LittleEndian.Uint32(b[0:4])
	moveFlag = binary.LittleEndian.Uint32(b[4:8])
	startV = math.Float64frombits(binary.LittleEndian.Uint64(b[8:16]))
	endV = math.Float64frombits(binary.LittleEndian.Uint64(b[16:24]))
	coords = make([]float64, axisCount)
	for i := range coords {
		off := 24 + 8*i
		coords[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
	}
	return moveID, moveFlag, startV, endV, coords, nil
}

func decodeSegment(axisCount int) func([]byte) (Message, error) {
	return func(b []byte) (Message, error) {
		id, flag, sv, ev, coords, err := decodeSegmentLike(b, axisCount)
		if err != nil {
			return nil, err
		}
		return Segment{MoveID: id, MoveFlag: flag, StartVelocity: sv, EndVelocity: ev, Coords: coords}, nil
	}
}

// Immediate carries the same shape as Segment but preempts the buffered
// queue — used for jog commands and anything that must reach the device
// ahead of whatever is already enqueued.
type Immediate Segment

func (Immediate) Tag() Tag { return TagImmediate }

func encodeImmediate(m Message) []byte {
	i := m.(Immediate)
	return encodeSegmentLike(i.MoveID, i.MoveFlag, i.StartVelocity, i.EndVelocity, i.Coords)
}

func decodeImmediate(axisCount int) func([]byte) (Message, error) {
	return func(b []byte) (Message, error) {
		id, flag, sv, ev, coords, err := decodeSegmentLike(b, axisCount)
		if err != nil {
			return nil, err
		}
		return Immediate{MoveID: id, MoveFlag: flag, StartVelocity: sv, EndVelocity: ev, Coords: coords}, nil
	}
}

// Special is a buffered, non-motion event interleaved with Segments at a
// specific point in the queue (e.g. a tool-change or laser-power change at
// a given position): Coords holds 2 leading control words plus one value
// per axis.
type Special struct {
	MoveID   uint32
	MoveFlag uint32
	Coords   []float64
}

func (Special) Tag() Tag { return TagSpecial }

func specialSchema(coordCount *sea.Expr) Schema {
	return Schema{Fields: []Field{
		{Name: "move_id", Type: U32},
		{Name: "move_flag", Type: U32},
		{Name: "coords", Type: F64, Repeat: coordCount},
	}}
}

func encodeSpecial(m Message) []byte {
	s := m.(Special)
	buf := make([]byte, 8+8*len(s.Coords))
	binary.LittleEndian.PutUint32(buf[0:4], s.MoveID)
	binary.LittleEndian.PutUint32(buf[4:8], s.MoveFlag)
	for i, c := range s.Coords {
		off := 8 + 8*i
		binary.LittleEndian.PutUint64(buf[off:off+8], math.Float64bits(c))
	}
	return buf
}

func decodeSpecial(coordCount int) func([]byte) (Message, error) {
	return func(b []byte) (Message, error) {
		want := 8 + 8*coordCount
		if len(b) < want {
			return nil, ErrShortBuffer
		}
		coords := make([]float64, coordCount)
		for i := range coords {
			off := 8 + 8*i
			coords[i] = math.Float64frombits(binary.LittleEndian.Uint64(b[off : off+8]))
		}
		return Special{
			MoveID:   binary.LittleEndian.Uint32(b[0:4]),
			MoveFlag: binary.LittleEndian.Uint32(b[4:8]),
			Coords:   coords,
		}, nil
	}
}

// HomingPhase reports which leg of the homing cycle a Home command (or the
// device's unsolicited homing progress) refers to.
type HomingPhase uint32

const (
	HomingApproach HomingPhase = iota + 1
	HomingBackoff
	HomingDone
)

func (p HomingPhase) valid() bool { return p >= HomingApproach && p <= HomingDone }

// Home commands the device to run its homing cycle on the axes in
// AxisBitmask at the given Phase and Speed.
type Home struct {
	AxisBitmask uint32
	Phase       HomingPhase
	Speed       float64
}

func (Home) Tag() Tag { return TagHome }

var homeSchema = Schema{Fields: []Field{
	{Name: "axis_bitmask", Type: U32},
	{Name: "phase", Type: U32},
	{Name: "speed", Type: F64},
}}

func encodeHome(m Message) []byte {
	h := m.(Home)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint32(buf[0:4], h.AxisBitmask)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(h.Phase))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(h.Speed))
	return buf
}

func decodeHome(b []byte) (Message, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	phase := HomingPhase(binary.LittleEndian.Uint32(b[4:8]))
	if !phase.valid() {
		return nil, fmt.Errorf("wire: homing phase %d: %w", uint32(phase), ErrUnknownVariant)
	}
	return Home{
		AxisBitmask: binary.LittleEndian.Uint32(b[0:4]),
		Phase:       phase,
		Speed:       math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// Override adjusts the feed-rate/power override and the velocity the device
// ramps toward it with.
type Override struct {
	Value    float64
	Velocity float64
}

func (Override) Tag() Tag { return TagOverride }

var overrideSchema = Schema{Fields: []Field{
	{Name: "override", Type: F64},
	{Name: "override_velocity", Type: F64},
}}

func encodeOverride(m Message) []byte {
	o := m.(Override)
	buf := make([]byte, 16)
	binary.LittleEndian.PutUint64(buf[0:8], math.Float64bits(o.Value))
	binary.LittleEndian.PutUint64(buf[8:16], math.Float64bits(o.Velocity))
	return buf
}

func decodeOverride(b []byte) (Message, error) {
	if len(b) < 16 {
		return nil, ErrShortBuffer
	}
	return Override{
		Value:    math.Float64frombits(binary.LittleEndian.Uint64(b[0:8])),
		Velocity: math.Float64frombits(binary.LittleEndian.Uint64(b[8:16])),
	}, nil
}

// Peripheral reports the state of auxiliary I/O (spindle/laser enable,
// coolant, limit switches — whatever the device firmware exposes) as a
// vector of status words, one per configured peripheral.
type Peripheral struct {
	RequestCounter uint32
	Status         []uint32
}

func (Peripheral) Tag() Tag { return TagPeripheral }

func peripheralSchema(wordCount *sea.Expr) Schema {
	return Schema{Fields: []Field{
		{Name: "request_counter", Type: U32},
		{Name: "status", Type: U32, Repeat: wordCount},
	}}
}

func encodePeripheral(m Message) []byte {
	p := m.(Peripheral)
	buf := make([]byte, 4+4*len(p.Status))
	binary.LittleEndian.PutUint32(buf[0:4], p.RequestCounter)
	for i, s := range p.Status {
		off := 4 + 4*i
		binary.LittleEndian.PutUint32(buf[off:off+4], s)
	}
	return buf
}

func decodePeripheral(wordCount int) func([]byte) (Message, error) {
	return func(b []byte) (Message, error) {
		want := 4 + 4*wordCount
		if len(b) < want {
			return nil, ErrShortBuffer
		}
		status := make([]uint32, wordCount)
		for i := range status {
			off := 4 + 4*i
			status[i] = binary.LittleEndian.Uint32(b[off : off+4])
		}
		return Peripheral{
			RequestCounter: binary.LittleEndian.Uint32(b[0:4]),
			Status:         status,
		}, nil
	}
}

// DeviceError reports a firmware-side fault. Unlike every other record its
// payload is self-delimiting: a u32 code, a u32 detail length, then that
// many opaque detail bytes, so the framing layer never needs a bound size for
// this tag.
type DeviceError struct {
	Code   uint32
	Detail []byte
}

func (DeviceError) Tag() Tag { return TagError }

func encodeDeviceError(m Message) []byte {
	e := m.(DeviceError)
	buf := make([]byte, 8+len(e.Detail))
	binary.LittleEndian.PutUint32(buf[0:4], e.Code)
	binary.LittleEndian.PutUint32(buf[4:8], uint32(len(e.Detail)))
	copy(buf[8:], e.Detail)
	return buf
}

// probeDeviceError reports the total payload length once the 8-byte header
// (Code + length prefix) has been buffered.
func probeDeviceError(buf []byte) (int, bool, error) {
	if len(buf) < 8 {
		return 0, false, nil
	}
	n := binary.LittleEndian.Uint32(buf[4:8])
	return 8 + int(n), true, nil
}

func decodeDeviceError(b []byte) (Message, error) {
	if len(b) < 8 {
		return nil, ErrShortBuffer
	}
	n := binary.LittleEndian.Uint32(b[4:8])
	if uint64(len(b)) < 8+uint64(n) {
		return nil, ErrShortBuffer
	}
	detail := make([]byte, n)
	copy(detail, b[8:8+n])
	return DeviceError{Code: binary.LittleEndian.Uint32(b[0:4]), Detail: detail}, nil
}

// Inquire, Done and Start carry no payload; they exist purely for their
// Tag byte.
type (
	Inquire struct{}
	Done    struct{}
	Start   struct{}
)

func (Inquire) Tag() Tag { return TagInquire }
func (Done) Tag() Tag    { return TagDone }
func (Start) Tag() Tag   { return TagStart }

func encodeEmpty(Message) []byte { return nil }

func decodeEmptyAs(m Message) func([]byte) (Message, error) {
	return func([]byte) (Message, error) { return m, nil }
}
