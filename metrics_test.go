package motionctl

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/dkellgren/motionctl/internal/wire"
)

func TestMetricsRecordersIncrementExpectedCounters(t *testing.T) {
	m := &Metrics{}

	m.recordSegmentsSent(3)
	m.recordImmediateSent()
	m.recordStatus()
	m.recordBufferReply()
	m.recordBufferUnderflow()
	m.recordParseError()
	m.recordBytesWritten(64)
	m.recordBytesRead(128)
	m.recordHandshakeLatency(2 * time.Millisecond)

	snap := m.Snapshot()
	assert.Equal(t, uint64(3), snap.SegmentsSent)
	assert.Equal(t, uint64(1), snap.ImmediatesSent)
	assert.Equal(t, uint64(1), snap.StatusReceived)
	assert.Equal(t, uint64(1), snap.BufferReplies)
	assert.Equal(t, uint64(1), snap.BufferUnderflowEvents)
	assert.Equal(t, uint64(1), snap.ParseErrors)
	assert.Equal(t, uint64(64), snap.BytesWritten)
	assert.Equal(t, uint64(128), snap.BytesRead)
	assert.Equal(t, int64(2*time.Millisecond), snap.HandshakeLatencyNs)
}

func TestMetricsSnapshotIsIndependentOfLiveCounters(t *testing.T) {
	m := &Metrics{}
	m.recordSegmentsSent(1)
	snap := m.Snapshot()

	m.recordSegmentsSent(1)
	assert.Equal(t, uint64(1), snap.SegmentsSent)
	assert.Equal(t, uint64(2), m.Snapshot().SegmentsSent)
}

func TestNoOpObserverDoesNothing(t *testing.T) {
	var o Observer = NoOpObserver{}
	o.ObserveSegmentsSent(5)
	o.ObserveStatus(wire.StatusBusy)
	o.ObserveBufferUnderflow()
	o.ObserveParseError(errors.New("boom"))
}
