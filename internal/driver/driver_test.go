package driver

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellgren/motionctl/internal/framing"
	"github.com/dkellgren/motionctl/internal/wire"
)

func boundCodecs(t *testing.T) *wire.Table {
	t.Helper()
	tab := wire.InitialCodecs()
	require.NoError(t, wire.BindCodecs(tab, map[string]uint64{wire.ParamAxisCount: 2}))
	return tab
}

func TestTokensAreMonotoneAndSkipZero(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, boundCodecs(t), 4096)

	seen := make(map[uint32]bool)
	var prev uint32
	for i := 0; i < 5; i++ {
		token := d.nextToken()
		assert.NotEqual(t, uint32(0), token)
		assert.False(t, seen[token])
		seen[token] = true
		if i > 0 {
			assert.Equal(t, prev+1, token)
		}
		prev = token
	}
}

func TestTokenWrapsBeforeReachingZero(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, boundCodecs(t), 4096)
	d.seq = maxToken

	token := d.nextToken()
	assert.Equal(t, uint32(1), token)
}

func TestRequestStatusMatchesReplyByToken(t *testing.T) {
	var buf bytes.Buffer
	codecs := boundCodecs(t)
	d := New(&buf, codecs, 4096)

	token, err := d.RequestStatus()
	require.NoError(t, err)
	require.NoError(t, d.Flush())

	stale := wire.Status{RequestCounter: token + 1, Position: []int32{0, 0}}
	assert.False(t, d.ObserveStatus(stale))

	fresh := wire.Status{RequestCounter: token, Position: []int32{0, 0}}
	assert.True(t, d.ObserveStatus(fresh))
	// A second delivery of the same token (duplicate/retransmit) no longer
	// matches anything pending.
	assert.False(t, d.ObserveStatus(fresh))
}

func TestBufferFlowControlTracksFreeSpace(t *testing.T) {
	var buf bytes.Buffer
	d := New(&buf, boundCodecs(t), 4096)

	assert.False(t, d.CanSend(1))

	token, err := d.RequestBufferSpace(3)
	require.NoError(t, err)

	matched := d.ObserveBuffer(wire.BufferMessage{RequestCounter: token, Count: 3})
	assert.True(t, matched)
	assert.Equal(t, 3, d.FreeSpace())
	assert.True(t, d.CanSend(3))
	assert.False(t, d.CanSend(4))

	segs := []wire.Segment{
		{MoveID: 1, Coords: []float64{1, 1}},
		{MoveID: 2, Coords: []float64{2, 2}},
	}
	require.NoError(t, d.SendSegments(segs))
	assert.Equal(t, 1, d.FreeSpace())

	// An unsolicited buffer report still updates FreeSpace but isn't
	// reported as matching anything pending.
	assert.False(t, d.ObserveBuffer(wire.BufferMessage{RequestCounter: 999, Count: 0}))
	assert.Equal(t, 0, d.FreeSpace())
}

func TestSendBatchesFramesAndFlushesOnOverflow(t *testing.T) {
	var buf bytes.Buffer
	codecs := boundCodecs(t)

	statusCodec, err := codecs.Get(wire.TagStart) // 1-byte tag, 0-byte payload
	require.NoError(t, err)
	frameLen := 1 + statusCodec.Size()

	d := New(&buf, codecs, frameLen*2) // room for exactly two frames
	require.NoError(t, d.SendStart())
	require.NoError(t, d.SendDone())
	assert.Equal(t, 0, buf.Len(), "two frames that fit should still be buffered")

	require.NoError(t, d.SendStart())
	assert.Equal(t, frameLen*2, buf.Len(), "a third frame should have forced a flush of the first two")

	require.NoError(t, d.Flush())
	assert.Equal(t, frameLen*3, buf.Len())

	p := framing.New(codecs)
	msgs, err := p.Feed(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, []wire.Message{wire.Start{}, wire.Done{}, wire.Start{}}, msgs)
}
