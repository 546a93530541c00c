// Package conn provides Connection: one bidirectional framed byte stream
// between a Scheduler-side process and a Worker-side process
// (ThreadWorkers do not use one). Connection drives the
// frame codec, emits observable events in FIFO arrival order, and exposes a
// non-blocking Send.
package conn

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/tjper/workerfabric/internal/frame"
	"github.com/tjper/workerfabric/internal/log"
)

var logger = log.New(io.Discard, "conn")

// SetLogOutput redirects package logging; tests and cmd/ entrypoints may
// call this to point at os.Stdout.
func SetLogOutput(w io.Writer) { logger = log.New(w, "conn") }

// Kind identifies the variety of Event delivered on a Conn's Events channel.
type Kind int

const (
	// Connected is emitted once, when the Conn's underlying stream becomes
	// usable.
	Connected Kind = iota
	// Disconnected is emitted once, when the Conn closes for any reason.
	Disconnected
	// CommandReceived is emitted for every Frame read off the underlying
	// stream, in the order received.
	CommandReceived
	// Error is emitted on transport failure. A Disconnected event always
	// follows.
	Error
)

// Event is a single observation delivered on a Conn's Events channel, in a
// single-threaded context: Events is only ever written to from the Conn's
// own read loop goroutine, so consumers observe a consistent FIFO order.
type Event struct {
	Kind    Kind
	Cmd     int32
	Payload []byte
	Reason  string
}

// New wraps rwc in a Conn and starts its read and write loops. The caller
// must consume Events until it observes a Disconnected event.
func New(rwc io.ReadWriteCloser) *Conn {
	c := &Conn{
		rwc:    rwc,
		events: make(chan Event, 16),
		outbox: make(chan frame.Frame, 16),
		closed: make(chan struct{}),
	}
	go c.writeLoop()
	go c.readLoop()
	return c
}

// Conn owns one bidirectional byte stream, driving the frame codec and
// delivering commandReceived/error/connected/disconnected observations.
type Conn struct {
	rwc io.ReadWriteCloser

	events chan Event
	outbox chan frame.Frame

	mu       sync.Mutex
	sendOpen bool
	closeErr error

	closeOnce sync.Once
	closed    chan struct{}
}

// Events returns the channel Event values are delivered on, in FIFO arrival
// order. The channel is closed after a Disconnected event has been sent.
func (c *Conn) Events() <-chan Event { return c.events }

// Send enqueues a frame for transmission. It returns false iff the Conn is
// no longer accepting writes (already closed); it does not block on the
// network and does not guarantee delivery.
func (c *Conn) Send(cmd int32, payload []byte) bool {
	c.mu.Lock()
	closed := c.closeErr != nil
	c.mu.Unlock()
	if closed {
		return false
	}

	select {
	case c.outbox <- frame.Frame{Cmd: cmd, Payload: payload}:
		return true
	case <-c.closed:
		return false
	}
}

// Close tears down the Conn's underlying stream. Close is idempotent.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		close(c.closed)
		c.rwc.Close()
	})
	return nil
}

func (c *Conn) readLoop() {
	c.events <- Event{Kind: Connected}

	dec := frame.NewDecoder(c.rwc)
	var reason string
	for {
		cmd, payload, err := dec.Next()
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				reason = err.Error()
			}
			break
		}
		c.events <- Event{Kind: CommandReceived, Cmd: cmd, Payload: payload}
	}

	c.mu.Lock()
	c.closeErr = fmt.Errorf("conn: closed")
	c.mu.Unlock()

	if reason != "" {
		c.events <- Event{Kind: Error, Reason: reason}
	}
	c.events <- Event{Kind: Disconnected}
	close(c.events)

	c.Close()
}

func (c *Conn) writeLoop() {
	for {
		select {
		case f := <-c.outbox:
			if err := frame.Encode(c.rwc, f.Cmd, f.Payload); err != nil {
				logger.Errorf("write failed; cmd: %d, error: %s", f.Cmd, err)
				c.Close()
				return
			}
		case <-c.closed:
			return
		}
	}
}
