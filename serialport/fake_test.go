package serialport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeDeliversResponderRepliesToRead(t *testing.T) {
	f := NewFake()
	f.SetResponder(func(written []byte) []byte {
		reply := make([]byte, len(written))
		for i, b := range written {
			reply[i] = b + 1
		}
		return reply
	})

	n, err := f.Write([]byte{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	buf := make([]byte, 8)
	n, err = f.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, []byte{2, 3, 4}, buf[:n])
}

func TestFakeReadBlocksUntilBytesAreAvailable(t *testing.T) {
	f := NewFake()
	done := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 4)
		n, err := f.Read(buf)
		require.NoError(t, err)
		done <- buf[:n]
	}()

	select {
	case <-done:
		t.Fatal("Read returned before any bytes were available")
	case <-time.After(20 * time.Millisecond):
	}

	_, err := f.DeviceWrite([]byte{9, 9})
	require.NoError(t, err)

	select {
	case got := <-done:
		assert.Equal(t, []byte{9, 9}, got)
	case <-time.After(2 * time.Second):
		t.Fatal("Read never returned after DeviceWrite")
	}
}

func TestFakeCloseUnblocksAPendingRead(t *testing.T) {
	f := NewFake()
	done := make(chan error, 1)
	go func() {
		buf := make([]byte, 4)
		_, err := f.Read(buf)
		done <- err
	}()

	select {
	case <-done:
		t.Fatal("Read returned before Close")
	case <-time.After(20 * time.Millisecond):
	}

	require.NoError(t, f.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Read never returned after Close")
	}
	assert.True(t, f.IsClosed())
}

func TestFakeWriteAfterCloseFails(t *testing.T) {
	f := NewFake()
	require.NoError(t, f.Close())
	_, err := f.Write([]byte{1})
	assert.Error(t, err)
}

func TestFakeWrittenByHostCapturesAndClears(t *testing.T) {
	f := NewFake()
	_, err := f.Write([]byte("abc"))
	require.NoError(t, err)

	assert.Equal(t, []byte("abc"), f.WrittenByHost())
	assert.Empty(t, f.WrittenByHost())
}

func TestFakeCallCountsTrackReadsAndWrites(t *testing.T) {
	f := NewFake()
	_, _ = f.Write([]byte("x"))
	_, _ = f.DeviceWrite([]byte("y"))
	buf := make([]byte, 1)
	_, _ = f.Read(buf)

	reads, writes := f.CallCounts()
	assert.Equal(t, 1, reads)
	assert.Equal(t, 1, writes)
}
