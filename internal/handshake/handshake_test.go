package handshake

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkellgren/motionctl/internal/wire"
)

// fakeDevice writes a Describe reply as soon as it sees an Inquire arrive,
// standing in for the real device on the far end of the pipe.
func fakeDevice(t *testing.T, conn net.Conn, describe wire.Describe) {
	t.Helper()
	go func() {
		var tagByte [1]byte
		if _, err := conn.Read(tagByte[:]); err != nil {
			return
		}
		codec, err := wire.InitialCodecs().Get(wire.TagDescribe)
		if err != nil {
			return
		}
		payload := codec.Encode(describe)
		buf := make([]byte, 1+len(payload))
		buf[0] = byte(wire.TagDescribe)
		copy(buf[1:], payload)
		_, _ = conn.Write(buf)
	}()
}

func TestDoBindsCodecsFromDescribedAxisCount(t *testing.T) {
	hostConn, deviceConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	fakeDevice(t, deviceConn, wire.Describe{Version: 1, AxisCount: 4, Magic: 0xC0FFEE, BufferSize: 32})

	bound, err := Do(context.Background(), hostConn, time.Second)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), bound.Describe.AxisCount)
	assert.Equal(t, uint64(4), bound.Env[wire.ParamAxisCount])

	statusCodec, err := bound.Codecs.Get(wire.TagStatus)
	require.NoError(t, err)
	assert.Equal(t, 24+4*4, statusCodec.Size())
}

func TestDoTimesOutWithoutAReply(t *testing.T) {
	hostConn, deviceConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	// Drain the inquire so the write doesn't block net.Pipe forever, but
	// never answer with a Describe.
	go func() {
		buf := make([]byte, 1)
		_, _ = deviceConn.Read(buf)
	}()

	_, err := Do(context.Background(), hostConn, 20*time.Millisecond)
	require.Error(t, err)
}

func TestDoRejectsAnUnexpectedTag(t *testing.T) {
	hostConn, deviceConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	go func() {
		tagByte := make([]byte, 1)
		if _, err := deviceConn.Read(tagByte); err != nil {
			return
		}
		// Reply with a Done frame instead of Describe.
		_, _ = deviceConn.Write([]byte{byte(wire.TagDone)})
	}()

	_, err := Do(context.Background(), hostConn, time.Second)
	require.Error(t, err)
}

func TestDoRejectsAnUnsupportedVersion(t *testing.T) {
	hostConn, deviceConn := net.Pipe()
	defer hostConn.Close()
	defer deviceConn.Close()

	fakeDevice(t, deviceConn, wire.Describe{Version: wire.SupportedVersion + 1, AxisCount: 2, Magic: 0xC0FFEE, BufferSize: 16})

	_, err := Do(context.Background(), hostConn, time.Second)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrVersionMismatch)
}
