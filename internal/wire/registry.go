package wire

import (
	"fmt"

	"github.com/dkellgren/motionctl/internal/sea"
)

// ParamAxisCount and ParamPeripheralWords name the size-expression
// environment entries that bind the variable-length records. AxisCount is
// always supplied by the handshake's Describe; PeripheralWords is only
// present when the device exposes peripheral status words, and Peripheral
// is simply left unbound (and unusable) when it is absent.
const (
	ParamAxisCount       = "NUM_AXIS"
	ParamPeripheralWords = "PERIPHERAL_STATUS_WORDS"
)

// InitialCodecs returns a Table holding every record whose size is ground —
// fixed regardless of the handshake — plus the empty-payload records. This
// is enough to decode a Describe and drive the handshake itself; everything
// that depends on axis count or peripheral count is added by BindCodecs
// once that handshake has completed.
func InitialCodecs() *Table {
	t := newTable()

	t.register(TagDescribe, int(mustSize(describeSchema, nil)), encodeDescribe, decodeDescribe)
	t.register(TagAsk, int(mustSize(askSchema, nil)), encodeAsk, decodeAsk)
	t.register(TagBuffer, int(mustSize(bufferSchema, nil)), encodeBuffer, decodeBuffer)
	t.register(TagHome, int(mustSize(homeSchema, nil)), encodeHome, decodeHome)
	t.register(TagOverride, int(mustSize(overrideSchema, nil)), encodeOverride, decodeOverride)
	t.registerVariable(TagError, encodeDeviceError, decodeDeviceError, probeDeviceError)

	t.register(TagInquire, 0, encodeEmpty, decodeEmptyAs(Inquire{}))
	t.register(TagDone, 0, encodeEmpty, decodeEmptyAs(Done{}))
	t.register(TagStart, 0, encodeEmpty, decodeEmptyAs(Start{}))

	return t
}

// BindCodecs adds the records whose shape depends on parameters learned
// during the handshake (axis count, and optionally the peripheral status
// word count) to an existing Table. It is safe to call once, after
// handshake.Do has produced env; calling it twice overwrites the prior
// bindings with (normally identical) new ones.
func BindCodecs(t *Table, env map[string]uint64) error {
	axisCount, ok := env[ParamAxisCount]
	if !ok {
		return fmt.Errorf("wire: BindCodecs: environment missing %s", ParamAxisCount)
	}
	axisVar := sea.Var(ParamAxisCount)

	statusSz, err := statusSchema(&axisVar).Size(env)
	if err != nil {
		return err
	}
	t.register(TagStatus, int(statusSz), encodeStatus, decodeStatus(int(axisCount)))

	segSz, err := segmentSchema(&axisVar).Size(env)
	if err != nil {
		return err
	}
	t.register(TagSegment, int(segSz), encodeSegment, decodeSegment(int(axisCount)))
	t.register(TagImmediate, int(segSz), encodeImmediate, decodeImmediate(int(axisCount)))

	specialCoords := sea.Add(sea.Const(2), axisVar)
	specialCoordCount, err := specialCoords.Eval(env)
	if err != nil {
		return err
	}
	specialSz, err := specialSchema(&specialCoords).Size(env)
	if err != nil {
		return err
	}
	t.register(TagSpecial, int(specialSz), encodeSpecial, decodeSpecial(int(specialCoordCount)))

	if words, ok := env[ParamPeripheralWords]; ok {
		wordsVar := sea.Var(ParamPeripheralWords)
		periphSz, err := peripheralSchema(&wordsVar).Size(env)
		if err != nil {
			return err
		}
		t.register(TagPeripheral, int(periphSz), encodePeripheral, decodePeripheral(int(words)))
	}

	return nil
}

func mustSize(s Schema, env map[string]uint64) uint64 {
	n, err := s.Size(env)
	if err != nil {
		panic(fmt.Sprintf("wire: ground schema referenced an unbound parameter: %v", err))
	}
	return n
}
