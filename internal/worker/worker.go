// Package worker provides the executor abstraction WorkerPool and
// Scheduler dispatch jobs to: one Worker per (protocol, url) in flight,
// realized either as a ProcessWorker (a re-exec'd sidecar process) or a
// ThreadWorker (an in-process plugin on a cooperative loop). Both report
// the same Event shape so callers cannot distinguish them structurally.
package worker

import (
	"io"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/log"
)

var logger = log.New(io.Discard, "worker")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "worker") }

// State is a Worker's position in the None -> Idle <-> Busy -> Dead state
// machine. Only WorkerPool may drive Idle -> Busy (via acquisition) and
// Busy -> Idle (via release); Dead is terminal and reachable from any
// state.
type State int

const (
	None State = iota
	Idle
	Busy
	Dead
)

func (s State) String() string {
	switch s {
	case None:
		return "none"
	case Idle:
		return "idle"
	case Busy:
		return "busy"
	case Dead:
		return "dead"
	default:
		return "unknown"
	}
}

// Kind identifies how a Worker realizes its execution: in a child process
// or on an in-process goroutine.
type Kind int

const (
	KindProcess Kind = iota
	KindThread
)

// EventKind identifies the variety of Event delivered on a Worker's Events
// channel.
type EventKind int

const (
	// StateChanged is emitted every time the Worker's State transitions.
	StateChanged EventKind = iota
	// CommandReceived is emitted for every frame the Worker's plugin (local
	// or remote) sends back: PROGRESS, DATA, RESULT, ERROR, or a task code.
	CommandReceived
	// Error is emitted on transport or plugin failure that does not by
	// itself imply death (e.g. a single failed send).
	Error
	// Died is emitted exactly once, the terminal event of a Worker's
	// lifetime. No further events follow.
	Died
)

// Event is a single Worker observation.
type Event struct {
	Kind    EventKind
	State   State
	Cmd     int32
	Payload []byte
	Reason  string
}

// Worker is one executor bound to a single protocol, handed out by
// WorkerPool and bound to at most one Job at a time.
type Worker interface {
	// ID uniquely identifies this Worker instance.
	ID() uuid.UUID
	// Protocol is the URL scheme this Worker services.
	Protocol() string
	// Kind reports whether this Worker runs as a process or a thread.
	Kind() Kind
	// State reports the Worker's current lifecycle state.
	State() State
	// Alive reports whether the Worker can still accept commands.
	Alive() bool
	// Events returns the channel Event values are delivered on.
	Events() <-chan Event
	// Send enqueues a command for the Worker's plugin. It returns false iff
	// the Worker is not connected.
	Send(cmd int32, payload []byte) bool
	// Terminate irreversibly transitions the Worker to Dead. After
	// Terminate returns, no further Events fire.
	Terminate()
	// SetState is used by WorkerPool to record Idle<->Busy transitions; it
	// does not affect the Worker's own internal execution.
	SetState(State)
}
