package motionctl

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/dkellgren/motionctl/internal/handshake"
	"github.com/dkellgren/motionctl/internal/wire"
)

// openTestConnection performs a Describe handshake over an in-memory pipe
// and wires the result into a live Connection exactly as Open does,
// without touching a real serial port. It returns the Connection and the
// device-side net.Conn a test drives to simulate device traffic.
func openTestConnection(t *testing.T, axisCount uint32, opts ...Option) (*Connection, net.Conn) {
	t.Helper()
	hostConn, deviceConn := net.Pipe()

	describeSent := make(chan struct{})
	go func() {
		defer close(describeSent)
		var tagByte [1]byte
		if _, err := deviceConn.Read(tagByte[:]); err != nil {
			return
		}
		codec, err := wire.InitialCodecs().Get(wire.TagDescribe)
		if err != nil {
			return
		}
		payload := codec.Encode(wire.Describe{
			Version:    wire.SupportedVersion,
			AxisCount:  axisCount,
			Magic:      0xC0FFEE,
			BufferSize: 64,
		})
		buf := append([]byte{byte(wire.TagDescribe)}, payload...)
		_, _ = deviceConn.Write(buf)
	}()

	bound, err := handshake.Do(context.Background(), hostConn, time.Second)
	require.NoError(t, err)
	<-describeSent

	cfg := defaultOpenConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	conn := newConnection(hostConn, bound, cfg)
	t.Cleanup(func() {
		conn.Close()
		deviceConn.Close()
	})
	return conn, deviceConn
}
