package framing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellgren/motionctl/internal/wire"
)

func boundCodecs(t *testing.T) *wire.Table {
	t.Helper()
	tab := wire.InitialCodecs()
	require.NoError(t, wire.BindCodecs(tab, map[string]uint64{wire.ParamAxisCount: 3}))
	return tab
}

func frame(t *testing.T, codecs *wire.Table, msg wire.Message) []byte {
	t.Helper()
	codec, err := codecs.Get(msg.Tag())
	require.NoError(t, err)
	payload := codec.Encode(msg)
	return append([]byte{byte(msg.Tag())}, payload...)
}

func TestFeedDecodesAStreamOfMixedMessages(t *testing.T) {
	codecs := boundCodecs(t)
	want := []wire.Message{
		wire.Status{RequestCounter: 1, Flag: wire.StatusIdle, Position: []int32{1, 2, 3}},
		wire.BufferMessage{RequestCounter: 2, Count: 5},
		wire.Done{},
	}

	var stream []byte
	for _, m := range want {
		stream = append(stream, frame(t, codecs, m)...)
	}

	p := New(codecs)
	got, err := p.Feed(stream)
	require.NoError(t, err)
	assert.Equal(t, want, got)
	assert.Equal(t, AwaitTag, p.State())
}

func TestFeedIsChunkingInvariant(t *testing.T) {
	codecs := boundCodecs(t)
	want := wire.Segment{MoveID: 9, MoveFlag: 1, StartVelocity: 1, EndVelocity: 2, Coords: []float64{1, 2, 3}}
	stream := frame(t, codecs, want)
	stream = append(stream, frame(t, codecs, wire.Done{})...)

	wholeParser := New(codecs)
	whole, err := wholeParser.Feed(stream)
	require.NoError(t, err)

	byteAtATime := New(codecs)
	var incremental []wire.Message
	for _, b := range stream {
		msgs, err := byteAtATime.Feed([]byte{b})
		require.NoError(t, err)
		incremental = append(incremental, msgs...)
	}

	assert.Equal(t, whole, incremental)
}

func TestFeedEntersErroredAfterASelfDelimitingDeviceError(t *testing.T) {
	codecs := boundCodecs(t)
	want := wire.DeviceError{Code: 4, Detail: []byte("limit switch on X")}
	stream := frame(t, codecs, want)
	stream = append(stream, frame(t, codecs, wire.Done{})...)

	p := New(codecs)
	var got []wire.Message
	var lastErr error
	for _, b := range stream {
		msgs, err := p.Feed([]byte{b})
		got = append(got, msgs...)
		if err != nil {
			lastErr = err
		}
	}

	require.Len(t, got, 1)
	assert.Equal(t, want, got[0])
	require.Error(t, lastErr)
	assert.Equal(t, Errored, p.State())

	// The trailing Done frame never decodes: once Errored, the parser
	// refuses to produce any further output.
	msgs, err := p.Feed([]byte{byte(wire.TagDone)})
	require.Error(t, err)
	assert.Empty(t, msgs)
}

func TestFeedEntersErroredOnUnknownTag(t *testing.T) {
	codecs := wire.InitialCodecs() // Status/Segment/... not yet bound
	p := New(codecs)

	_, err := p.Feed([]byte{byte(wire.TagStatus)})
	require.Error(t, err)
	assert.Equal(t, Errored, p.State())

	_, err = p.Feed([]byte{byte(wire.TagDone)})
	require.Error(t, err)
}
