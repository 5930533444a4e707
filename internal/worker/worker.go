// Package worker runs the single goroutine that owns the serial link after
// a handshake has bound its codecs: it reads and decodes incoming frames,
// forwards queued sends as flow control allows, and polls Status on a
// timer. Every other package (the Client facade, cmd/ drivers) talks to it
// only through Signals — never through the Driver directly.
package worker

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"time"

	"golang.org/x/sys/unix"

	"github.com/dkellgren/motionctl/internal/driver"
	"github.com/dkellgren/motionctl/internal/framing"
	"github.com/dkellgren/motionctl/internal/logging"
	"github.com/dkellgren/motionctl/internal/wire"
)

// defaultPollInterval is how often Run polls Status when the caller hasn't
// set Config.PollInterval.
const defaultPollInterval = 50 * time.Millisecond

// Signals is how other goroutines submit work to a running worker loop.
// Immediate carries jog/home/override/start/done commands that preempt the
// buffered queue; Buffered carries Segment/Special records subject to the
// device's ring buffer flow control, plus Immediate/Home/Start/Done
// entries that keep their place in that queue without using ring buffer
// slots; PollNow requests an out-of-band
// Status poll ahead of the next timer tick.
type Signals struct {
	Immediate chan wire.Message
	Buffered  chan wire.Message
	PollNow   chan struct{}
}

// NewSignals allocates a Signals with buffering generous enough that
// ordinary callers (the Client facade, a jog UI) don't stall behind the
// worker loop's own pace.
func NewSignals() *Signals {
	return &Signals{
		Immediate: make(chan wire.Message, 16),
		Buffered:  make(chan wire.Message, 256),
		PollNow:   make(chan struct{}, 1),
	}
}

// Observer is notified, on the worker goroutine itself, of every decoded
// reply the device sends. Implementations must not block.
type Observer interface {
	ObserveStatus(wire.Status)
	ObservePeripheral(wire.Peripheral)
	ObserveDeviceError(wire.DeviceError)
}

// NoOpObserver implements Observer by doing nothing; it is Config's
// Observer default so callers that only care about Signals don't need to
// supply one.
type NoOpObserver struct{}

func (NoOpObserver) ObserveStatus(wire.Status)          {}
func (NoOpObserver) ObservePeripheral(wire.Peripheral)   {}
func (NoOpObserver) ObserveDeviceError(wire.DeviceError) {}

// Config configures one worker loop instance.
type Config struct {
	Reader       io.Reader
	Driver       *driver.Driver
	Codecs       *wire.Table
	Signals      *Signals
	Observer     Observer
	PollInterval time.Duration
	// CPUAffinity pins the loop's OS thread to a CPU for deterministic
	// polling latency. Zero (the default) leaves scheduling to the Go
	// runtime.
	CPUAffinity int
}

// Run blocks, driving the worker loop until ctx is canceled or the reader
// goroutine hits an unrecoverable error (including a malformed frame,
// which framing.Parser never recovers from on its own).
func Run(ctx context.Context, cfg Config) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	log := logging.Default()
	if cfg.Observer == nil {
		cfg.Observer = NoOpObserver{}
	}
	if cfg.CPUAffinity > 0 {
		var mask unix.CPUSet
		mask.Set(cfg.CPUAffinity)
		if err := unix.SchedSetaffinity(0, &mask); err != nil {
			log.Warn("failed to set worker CPU affinity", "cpu", cfg.CPUAffinity, "err", err)
		} else {
			log.Debug("worker pinned to CPU", "cpu", cfg.CPUAffinity)
		}
	}

	l := &loop{cfg: cfg, parser: framing.New(cfg.Codecs), backlog: newBacklog()}
	return l.run(ctx)
}

type readResult struct {
	chunk []byte
	err   error
}

type loop struct {
	cfg     Config
	parser  *framing.Parser
	backlog *backlog
}

func (l *loop) run(ctx context.Context) error {
	reads := make(chan readResult, 1)
	go l.readLoop(reads)

	interval := l.cfg.PollInterval
	if interval <= 0 {
		interval = defaultPollInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case r := <-reads:
			if r.err != nil {
				return fmt.Errorf("worker: reading from port: %w", r.err)
			}
			msgs, err := l.parser.Feed(r.chunk)
			if err != nil {
				return fmt.Errorf("worker: %w", err)
			}
			for _, m := range msgs {
				if err := l.observe(m); err != nil {
					return err
				}
			}
			if err := l.drainBacklog(); err != nil {
				return err
			}

		case m := <-l.cfg.Signals.Immediate:
			if err := l.sendImmediate(m); err != nil {
				return fmt.Errorf("worker: sending immediate: %w", err)
			}

		case m := <-l.cfg.Signals.Buffered:
			l.backlog.push(m)
			if err := l.drainBacklog(); err != nil {
				return err
			}

		case <-l.cfg.Signals.PollNow:
			if err := l.pollStatus(); err != nil {
				return err
			}

		case <-ticker.C:
			if err := l.pollStatus(); err != nil {
				return err
			}
		}
	}
}

// readLoop is the only goroutine that calls Reader.Read; it never touches
// the Driver or Parser, keeping both single-owner.
func (l *loop) readLoop(reads chan<- readResult) {
	buf := make([]byte, 4096)
	for {
		n, err := l.cfg.Reader.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			reads <- readResult{chunk: chunk}
		}
		if err != nil {
			reads <- readResult{err: err}
			return
		}
	}
}

func (l *loop) pollStatus() error {
	if _, err := l.cfg.Driver.RequestStatus(); err != nil {
		return fmt.Errorf("worker: requesting status: %w", err)
	}
	return l.cfg.Driver.Flush()
}

// observe dispatches a decoded reply to the Driver's own bookkeeping and
// then to the caller-supplied Observer. A DeviceError is a terminal
// protocol fault (§7): the Observer is still notified, but observe then
// returns an error so run exits the loop and stops accepting new work
// rather than looping back to AwaitTag behind a connection the device has
// already declared broken.
func (l *loop) observe(m wire.Message) error {
	switch v := m.(type) {
	case wire.Status:
		l.cfg.Driver.ObserveStatus(v)
		l.cfg.Observer.ObserveStatus(v)
	case wire.BufferMessage:
		l.cfg.Driver.ObserveBuffer(v)
	case wire.Peripheral:
		l.cfg.Observer.ObservePeripheral(v)
	case wire.DeviceError:
		l.cfg.Observer.ObserveDeviceError(v)
		return fmt.Errorf("worker: device reported error %d", v.Code)
	}
	return nil
}

// sendImmediate dispatches one preempting command and flushes it onto the
// wire right away — immediates exist precisely so they don't wait behind
// whatever else is batched.
func (l *loop) sendImmediate(m wire.Message) error {
	var err error
	switch v := m.(type) {
	case wire.Immediate:
		err = l.cfg.Driver.SendImmediate(v)
	case wire.Home:
		err = l.cfg.Driver.SendHome(v)
	case wire.Override:
		err = l.cfg.Driver.SendOverride(v)
	case wire.Start:
		err = l.cfg.Driver.SendStart()
	case wire.Done:
		err = l.cfg.Driver.SendDone()
	default:
		err = fmt.Errorf("unsupported immediate message type %T", m)
	}
	if err != nil {
		return err
	}
	return l.cfg.Driver.Flush()
}

// drainBacklog pulls as many backlog entries as the device's last-reported
// free space allows, in FIFO order, and flushes them in one batch — the
// queue_taker idiom of taking a whole ready chunk at once rather than one
// record per wakeup. Runs of consecutive Segment records are handed to
// Driver.SendSegments as a single send_segments call rather than one send
// per record, so the batch is pre-announced with one BufferMessage request
// covering the whole run.
func (l *loop) drainBacklog() error {
	sent := 0
	for l.backlog.len() > 0 {
		head := l.backlog.peek()
		if !consumesRingSlot(head) {
			l.backlog.pop()
			if err := l.sendBacklogItem(head); err != nil {
				return fmt.Errorf("worker: draining backlog: %w", err)
			}
			sent++
			continue
		}
		if !l.cfg.Driver.CanSend(1) {
			break
		}

		segs := l.takeSegmentRun()
		if len(segs) > 0 {
			if err := l.cfg.Driver.SendSegments(segs); err != nil {
				return fmt.Errorf("worker: draining backlog: %w", err)
			}
			sent += len(segs)
			continue
		}

		// A ring-slot record that isn't a Segment (Special): send_segments
		// has no slot for it, so it gets its own single-record batch.
		l.backlog.pop()
		sp, ok := head.(wire.Special)
		if !ok {
			return fmt.Errorf("worker: draining backlog: unsupported buffered message type %T", head)
		}
		if err := l.cfg.Driver.SendSpecial(sp); err != nil {
			return fmt.Errorf("worker: draining backlog: %w", err)
		}
		sent++
	}
	if sent == 0 {
		return nil
	}
	return l.cfg.Driver.Flush()
}

// takeSegmentRun pops the contiguous run of wire.Segment records at the
// front of the backlog, bounded by how many more the device can currently
// accept, so the caller can announce and send them as one batch.
func (l *loop) takeSegmentRun() []wire.Segment {
	var segs []wire.Segment
	for l.backlog.len() > 0 && l.cfg.Driver.CanSend(len(segs)+1) {
		seg, ok := l.backlog.peek().(wire.Segment)
		if !ok {
			break
		}
		segs = append(segs, seg)
		l.backlog.pop()
	}
	return segs
}

// sendBacklogItem dispatches a single backlog entry that doesn't consume a
// ring buffer slot: Immediate records tagged within a buffered job sequence
// (the device executes them out of ring-buffer order, but the host still
// drains them through the backlog so they stay behind whatever Segments
// were queued ahead of them in the same SendBuffered call), and the Home /
// Start / Done control markers.
func (l *loop) sendBacklogItem(m wire.Message) error {
	switch v := m.(type) {
	case wire.Immediate:
		return l.cfg.Driver.SendImmediate(v)
	case wire.Home:
		return l.cfg.Driver.SendHome(v)
	case wire.Start:
		return l.cfg.Driver.SendStart()
	case wire.Done:
		return l.cfg.Driver.SendDone()
	default:
		return fmt.Errorf("unsupported buffered message type %T", m)
	}
}

// consumesRingSlot reports whether m occupies one of the device's ring
// buffer slots and therefore must wait on Driver.CanSend. Start and Done
// are control markers bracketing a batch of Segments, not ring buffer
// entries themselves, so they drain as soon as they're at the front of the
// backlog regardless of free space — mirroring send_segments appending
// DONE/START directly after the segment bytes in the same write.
func consumesRingSlot(m wire.Message) bool {
	switch m.(type) {
	case wire.Segment, wire.Special:
		return true
	default:
		return false
	}
}

// backlog is an unbounded FIFO of buffered records waiting on device ring
// buffer space.
type backlog struct {
	items []wire.Message
}

func newBacklog() *backlog { return &backlog{} }

func (b *backlog) push(m wire.Message) { b.items = append(b.items, m) }

func (b *backlog) len() int { return len(b.items) }

func (b *backlog) peek() wire.Message { return b.items[0] }

func (b *backlog) pop() wire.Message {
	m := b.items[0]
	b.items = b.items[1:]
	return m
}
