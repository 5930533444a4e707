// Package motionctl is the host-side client for a serial-attached stepper
// and laser motion controller: a handshake, a framed binary protocol, a
// trapezoidal motion planner, and a single worker goroutine gluing them to
// a serial port.
package motionctl

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/dkellgren/motionctl/internal/driver"
	"github.com/dkellgren/motionctl/internal/handshake"
	"github.com/dkellgren/motionctl/internal/logging"
	"github.com/dkellgren/motionctl/internal/wire"
	"github.com/dkellgren/motionctl/internal/worker"
	"github.com/dkellgren/motionctl/serialport"
)

// openConfig collects Option settings before Open constructs a Connection.
type openConfig struct {
	baud              int
	handshakeTimeout  time.Duration
	pollTimeout       time.Duration
	pollInterval      time.Duration
	writeBufferSize   int
	cpuAffinity       int
	observer          Observer
}

func defaultOpenConfig() openConfig {
	return openConfig{
		baud:             DefaultBaudRate,
		handshakeTimeout: DefaultHandshakeTimeout,
		pollTimeout:      DefaultPollTimeout,
		pollInterval:     DefaultPollInterval,
		writeBufferSize:  DefaultWriteBufferSize,
		observer:         NoOpObserver{},
	}
}

// Option configures Open. The zero value of every unset field falls back to
// this package's Default* constants.
type Option func(*openConfig)

// WithBaud overrides the serial baud rate.
func WithBaud(baud int) Option { return func(c *openConfig) { c.baud = baud } }

// WithHandshakeTimeout overrides how long Open waits for the Describe
// reply before failing with CodeHandshakeFailed.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *openConfig) { c.handshakeTimeout = d }
}

// WithPollInterval overrides how often the worker requests a Status when
// nothing else prompts one.
func WithPollInterval(d time.Duration) Option {
	return func(c *openConfig) { c.pollInterval = d }
}

// WithWriteBufferSize overrides the driver's write-batching buffer size.
func WithWriteBufferSize(n int) Option {
	return func(c *openConfig) { c.writeBufferSize = n }
}

// WithCPUAffinity pins the worker's OS thread to a CPU for deterministic
// polling latency. The zero value leaves scheduling to the Go runtime.
func WithCPUAffinity(cpu int) Option { return func(c *openConfig) { c.cpuAffinity = cpu } }

// WithObserver supplies a sink for per-event metrics callbacks alongside
// the always-on Metrics counters.
func WithObserver(o Observer) Option { return func(c *openConfig) { c.observer = o } }

// event is a level-triggered, re-settable signal: Set makes every current
// and future Wait return until the next Clear. It is the Go translation of
// the original's threading.Event (busy/idle/initialized), built on a
// mutex-guarded channel rather than a condition variable so Wait can select
// against a context alongside it.
type event struct {
	mu sync.Mutex
	ch chan struct{}
}

func newEvent() *event { return &event{ch: make(chan struct{})} }

func (e *event) Set() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.ch:
	default:
		close(e.ch)
	}
}

func (e *event) Clear() {
	e.mu.Lock()
	defer e.mu.Unlock()
	select {
	case <-e.ch:
		e.ch = make(chan struct{})
	default:
	}
}

func (e *event) Wait(ctx context.Context) error {
	e.mu.Lock()
	ch := e.ch
	e.mu.Unlock()
	select {
	case <-ch:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Connection is a live, handshaken link to a device. It owns a background
// worker goroutine that exclusively reads the serial port and drives the
// protocol driver; every exported method here only ever touches Signals, a
// mutex-guarded status slot, or the atomic Metrics counters.
type Connection struct {
	port    io.ReadWriteCloser
	signals *worker.Signals
	metrics *Metrics
	observer Observer

	busy  *event
	idle  *event

	statusMu sync.Mutex
	status   *wire.Status
	deadErr  error

	cancel  context.CancelFunc
	workerDone chan struct{}
	runErr  error
}

// Open starts a session against the serial device at path: opens the port,
// performs the Inquire/Describe handshake, and launches the background
// worker. It blocks until the handshake completes (or fails).
func Open(path string, opts ...Option) (*Connection, error) {
	cfg := defaultOpenConfig()
	for _, opt := range opts {
		opt(&cfg)
	}

	started := time.Now()

	var bound *handshake.Bound
	port, err := serialport.OpenHandshake(path, cfg.baud, cfg.pollTimeout, cfg.handshakeTimeout, func(rw io.ReadWriteCloser) error {
		b, herr := handshake.Do(context.Background(), rw, cfg.handshakeTimeout)
		if herr != nil {
			return herr
		}
		bound = b
		return nil
	})
	if err != nil {
		return nil, wrapOpenError(err)
	}
	latency := time.Since(started)

	conn := newConnection(port, bound, cfg)
	conn.metrics.recordHandshakeLatency(latency)
	return conn, nil
}

// newConnection wires an already-handshaken port into a running Connection.
// Open is its only production caller; tests that don't need a real serial
// port construct bound directly (handshake.Do against an in-memory pipe)
// and call this instead.
func newConnection(port io.ReadWriteCloser, bound *handshake.Bound, cfg openConfig) *Connection {
	log := logging.Default()
	d := driver.New(port, bound.Codecs, cfg.writeBufferSize)
	signals := worker.NewSignals()

	conn := &Connection{
		port:       port,
		signals:    signals,
		metrics:    &Metrics{},
		observer:   cfg.observer,
		busy:       newEvent(),
		idle:       newEvent(),
		workerDone: make(chan struct{}),
	}
	conn.idle.Set()

	ctx, cancel := context.WithCancel(context.Background())
	conn.cancel = cancel

	go func() {
		defer close(conn.workerDone)
		err := worker.Run(ctx, worker.Config{
			Reader:       port,
			Driver:       d,
			Codecs:       bound.Codecs,
			Signals:      signals,
			Observer:     conn,
			PollInterval: cfg.pollInterval,
			CPUAffinity:  cfg.cpuAffinity,
		})
		if err != nil && !errors.Is(err, context.Canceled) {
			log.WithError(err).Warn("worker loop exited")
		}
		conn.statusMu.Lock()
		conn.runErr = err
		conn.statusMu.Unlock()
	}()

	return conn
}

// Close stops the worker and releases the port. It is safe to call more
// than once.
func (c *Connection) Close() error {
	if c.cancel != nil {
		c.cancel()
	}
	closeErr := c.port.Close()
	<-c.workerDone

	c.statusMu.Lock()
	deadErr := c.deadErr
	runErr := c.runErr
	c.statusMu.Unlock()
	if deadErr != nil {
		return deadErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return NewError("Close", CodePortClosed, runErr)
	}
	if closeErr != nil {
		return NewError("Close", CodePortClosed, closeErr)
	}
	return nil
}

// deadError returns the error a DeviceError declared this connection dead
// with, or nil if the device hasn't reported one. Every send path checks
// this first so a connection the worker has already abandoned fails fast
// instead of racing workerDone's closure.
func (c *Connection) deadError() error {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	return c.deadErr
}

// SendImmediate enqueues a single preempting command: Home, Override,
// Start, Done, or a raw Immediate record sent outside a buffered batch. It
// is delivered ahead of anything already queued via SendBuffered.
func (c *Connection) SendImmediate(record wire.Message) error {
	if err := c.deadError(); err != nil {
		return err
	}
	select {
	case c.signals.Immediate <- record:
		c.metrics.recordImmediateSent()
		return nil
	case <-c.workerDone:
		return NewError("SendImmediate", CodePortClosed, errConnectionDead)
	}
}

// SendBuffered enqueues events (each tagged Segment, Immediate, Special, or
// Home) subject to the device's ring buffer flow control. start and done
// mark this call as the first and/or last chunk of a job: done appends a
// Done marker after the batch and start a Start marker, matching the
// original's send_segments(..., start=, done=) bracketing. SendBuffered
// clears the busy event optimistically so a subsequent WaitUntilIdle
// cannot mistake a stale Busy status left over from a previous job for
// this one's completion.
func (c *Connection) SendBuffered(events []wire.Message, start, done bool) error {
	if err := c.deadError(); err != nil {
		return err
	}
	for _, m := range events {
		if !isBufferedTag(m.Tag()) {
			return NewError("SendBuffered", CodeUnknownVariant, fmt.Errorf("tag %s cannot be buffered", m.Tag()))
		}
	}

	c.busy.Clear()

	for _, m := range events {
		select {
		case c.signals.Buffered <- m:
		case <-c.workerDone:
			return NewError("SendBuffered", CodePortClosed, errConnectionDead)
		}
	}
	if done {
		if err := c.pushControl(wire.Done{}); err != nil {
			return err
		}
	}
	if start {
		if err := c.pushControl(wire.Start{}); err != nil {
			return err
		}
	}
	c.metrics.recordSegmentsSent(countSegments(events))
	c.observer.ObserveSegmentsSent(countSegments(events))
	return nil
}

func (c *Connection) pushControl(m wire.Message) error {
	select {
	case c.signals.Buffered <- m:
		return nil
	case <-c.workerDone:
		return NewError("SendBuffered", CodePortClosed, errConnectionDead)
	}
}

func countSegments(events []wire.Message) int {
	n := 0
	for _, m := range events {
		if _, ok := m.(wire.Segment); ok {
			n++
		}
	}
	return n
}

func isBufferedTag(t wire.Tag) bool {
	switch t {
	case wire.TagSegment, wire.TagImmediate, wire.TagSpecial, wire.TagHome:
		return true
	default:
		return false
	}
}

// WaitUntilIdle blocks until the device has reported Busy or Homing at
// least once since the last SendBuffered call, and then reports neither —
// i.e. until the job that call started has actually finished — or until
// ctx is done.
func (c *Connection) WaitUntilIdle(ctx context.Context) error {
	if err := c.busy.Wait(ctx); err != nil {
		return err
	}
	c.busy.Clear()
	return c.idle.Wait(ctx)
}

// Status returns the most recently observed Status and true, or (nil,
// false) if no Status has arrived yet or the device has since reported a
// DeviceError — a dead connection has nothing trustworthy left to report.
func (c *Connection) Status() (*wire.Status, bool) {
	c.statusMu.Lock()
	defer c.statusMu.Unlock()
	if c.deadErr != nil || c.status == nil {
		return nil, false
	}
	s := *c.status
	return &s, true
}

// Metrics returns a snapshot of this connection's protocol-event counters.
func (c *Connection) Metrics() MetricsSnapshot { return c.metrics.Snapshot() }

// ObserveStatus implements worker.Observer: it updates the published
// status slot, the busy/idle events, the BufferUnderflowEvents counter,
// and forwards to the user-supplied Observer.
func (c *Connection) ObserveStatus(s wire.Status) {
	c.metrics.recordStatus()

	c.statusMu.Lock()
	c.status = &s
	c.statusMu.Unlock()

	switch s.Flag {
	case wire.StatusBusy, wire.StatusHoming:
		c.busy.Set()
		c.idle.Clear()
	default:
		c.idle.Set()
	}

	if s.Flag == wire.StatusBufferUnderflow {
		c.metrics.recordBufferUnderflow()
		c.observer.ObserveBufferUnderflow()
	}
	c.observer.ObserveStatus(s.Flag)
}

// ObservePeripheral implements worker.Observer. Peripheral state has no
// counterpart in Metrics or Observer (both are protocol-event-scoped); a
// caller that needs it uses WithObserver with its own type and reaches in
// through a different channel — this module has no peripheral consumer of
// its own to wire one to.
func (c *Connection) ObservePeripheral(wire.Peripheral) {}

// ObserveDeviceError implements worker.Observer: a DeviceError is terminal.
// It is recorded as the connection's dead error, a CodeDeviceError *Error
// wrapping a *DeviceFault: from then on SendImmediate, SendBuffered and
// Close return it, so further sends fail fast instead of racing the
// worker's own shutdown, and Status reports (nil, false).
func (c *Connection) ObserveDeviceError(e wire.DeviceError) {
	c.metrics.recordParseError()
	fault := &DeviceFault{Code: e.Code, Payload: e.Detail}
	logging.Default().Error("device reported a protocol error, connection is dead", "code", e.Code)
	c.statusMu.Lock()
	c.deadErr = NewError("worker", CodeDeviceError, fault)
	c.statusMu.Unlock()
	c.observer.ObserveParseError(c.deadErr)
}

var errConnectionDead = errors.New("motionctl: connection closed or worker exited")

// wrapOpenError classifies the error Open's handshake closure produced into
// the ErrorCode §7 calls for.
func wrapOpenError(err error) error {
	if errors.Is(err, handshake.ErrVersionMismatch) {
		return NewError("Open", CodeVersionMismatch, err)
	}
	return NewError("Open", CodeHandshakeFailed, err)
}
