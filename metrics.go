package motionctl

import (
	"sync/atomic"
	"time"

	"github.com/dkellgren/motionctl/internal/wire"
)

// Metrics is the always-on counter set a *Connection keeps for its
// lifetime. Every field is updated with a plain atomic operation, so
// recording a metric never allocates and never blocks the hot path.
// SegmentsSent and ImmediatesSent count records accepted by SendBuffered
// and SendImmediate on the caller's goroutine; StatusReceived,
// BufferUnderflowEvents and ParseErrors are updated on the worker
// goroutine; HandshakeLatencyNs is stored once by Open. Connection does
// not update BufferReplies, BytesWritten or BytesRead, so they stay zero.
type Metrics struct {
	SegmentsSent          atomic.Uint64
	ImmediatesSent        atomic.Uint64
	StatusReceived        atomic.Uint64
	BufferReplies         atomic.Uint64
	BufferUnderflowEvents atomic.Uint64
	HandshakeLatencyNs    atomic.Int64
	BytesWritten          atomic.Uint64
	BytesRead             atomic.Uint64
	ParseErrors           atomic.Uint64
}

// MetricsSnapshot is a point-in-time copy of Metrics, returned by
// (*Connection).Metrics so callers don't hold references into the live
// atomics.
type MetricsSnapshot struct {
	SegmentsSent          uint64
	ImmediatesSent        uint64
	StatusReceived        uint64
	BufferReplies         uint64
	BufferUnderflowEvents uint64
	HandshakeLatencyNs    int64
	BytesWritten          uint64
	BytesRead             uint64
	ParseErrors           uint64
}

// Snapshot reads every counter into a MetricsSnapshot.
func (m *Metrics) Snapshot() MetricsSnapshot {
	return MetricsSnapshot{
		SegmentsSent:          m.SegmentsSent.Load(),
		ImmediatesSent:        m.ImmediatesSent.Load(),
		StatusReceived:        m.StatusReceived.Load(),
		BufferReplies:         m.BufferReplies.Load(),
		BufferUnderflowEvents: m.BufferUnderflowEvents.Load(),
		HandshakeLatencyNs:    m.HandshakeLatencyNs.Load(),
		BytesWritten:          m.BytesWritten.Load(),
		BytesRead:             m.BytesRead.Load(),
		ParseErrors:           m.ParseErrors.Load(),
	}
}

func (m *Metrics) recordSegmentsSent(n int)               { m.SegmentsSent.Add(uint64(n)) }
func (m *Metrics) recordImmediateSent()                   { m.ImmediatesSent.Add(1) }
func (m *Metrics) recordStatus()                          { m.StatusReceived.Add(1) }
func (m *Metrics) recordBufferReply()                     { m.BufferReplies.Add(1) }
func (m *Metrics) recordBufferUnderflow()                 { m.BufferUnderflowEvents.Add(1) }
func (m *Metrics) recordParseError()                      { m.ParseErrors.Add(1) }
func (m *Metrics) recordBytesWritten(n int)                { m.BytesWritten.Add(uint64(n)) }
func (m *Metrics) recordBytesRead(n int)                  { m.BytesRead.Add(uint64(n)) }
func (m *Metrics) recordHandshakeLatency(d time.Duration) { m.HandshakeLatencyNs.Store(d.Nanoseconds()) }

// Observer is an optional sink for per-event callbacks, invoked
// synchronously alongside the matching always-on Metrics counter updates:
// ObserveSegmentsSent on the goroutine that called SendBuffered, the
// others on the worker goroutine. Supplying one never disables the counters; it adds a
// second, user-defined place to react to the same events.
type Observer interface {
	ObserveSegmentsSent(n int)
	ObserveStatus(flag wire.StatusFlag)
	ObserveBufferUnderflow()
	ObserveParseError(err error)
}

// NoOpObserver is the zero-cost default Observer: every method is a no-op,
// so Open without a WithObserver option costs nothing beyond the interface
// call itself.
type NoOpObserver struct{}

func (NoOpObserver) ObserveSegmentsSent(int)       {}
func (NoOpObserver) ObserveStatus(wire.StatusFlag) {}
func (NoOpObserver) ObserveBufferUnderflow()       {}
func (NoOpObserver) ObserveParseError(error)       {}

var _ Observer = NoOpObserver{}
