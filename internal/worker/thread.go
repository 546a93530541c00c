package worker

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/plugin"
)

// NewThreadWorker runs pluginName's registered Plugin on an internal
// cooperative loop, emitting the same Event shape a ProcessWorker would as
// if the commands had crossed a Connection. Used for protocol "file",
// where process isolation buys nothing and a goroutine is cheaper.
func NewThreadWorker(protocolName, pluginName string) (Worker, error) {
	p, ok := plugin.Lookup(pluginName)
	if !ok {
		return nil, fmt.Errorf("worker: no plugin registered as %q", pluginName)
	}
	if ok := p.Initialize(); !ok {
		return nil, fmt.Errorf("worker: plugin %q failed to initialize", pluginName)
	}

	w := &ThreadWorker{
		id:       uuid.New(),
		protocol: protocolName,
		state:    Busy,
		plugin:   p,
		inbox:    make(chan frameMsg, 16),
		events:   make(chan Event, 16),
		dead:     make(chan struct{}),
	}

	go w.loop()

	return w, nil
}

type frameMsg struct {
	cmd     int32
	payload []byte
}

// ThreadWorker is a Worker that hosts a Plugin directly on a goroutine
// rather than in a sidecar process.
type ThreadWorker struct {
	id       uuid.UUID
	protocol string

	mu    sync.Mutex
	state State

	plugin plugin.Plugin
	inbox  chan frameMsg
	events chan Event

	terminateOnce sync.Once
	dead          chan struct{}
}

var _ Worker = (*ThreadWorker)(nil)

func (w *ThreadWorker) ID() uuid.UUID        { return w.id }
func (w *ThreadWorker) Protocol() string     { return w.protocol }
func (w *ThreadWorker) Kind() Kind           { return KindThread }
func (w *ThreadWorker) Events() <-chan Event { return w.events }

func (w *ThreadWorker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *ThreadWorker) SetState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.events <- Event{Kind: StateChanged, State: s}
}

func (w *ThreadWorker) Alive() bool { return w.State() != Dead }

func (w *ThreadWorker) Send(cmd int32, payload []byte) bool {
	if !w.Alive() {
		return false
	}
	select {
	case w.inbox <- frameMsg{cmd: cmd, payload: payload}:
		return true
	case <-w.dead:
		return false
	}
}

// Terminate shuts down the plugin and transitions the Worker to Dead.
// Terminate is idempotent and, once it returns, no further Events fire.
func (w *ThreadWorker) Terminate() {
	w.terminateOnce.Do(func() {
		close(w.dead)
		w.plugin.Shutdown()

		w.mu.Lock()
		w.state = Dead
		w.mu.Unlock()

		w.events <- Event{Kind: StateChanged, State: Dead}
		w.events <- Event{Kind: Died, Reason: "terminated"}
		close(w.events)
	})
}

func (w *ThreadWorker) loop() {
	reply := func(cmd int32, payload []byte) {
		select {
		case w.events <- (Event{Kind: CommandReceived, Cmd: cmd, Payload: payload}):
		case <-w.dead:
		}
	}

	for {
		select {
		case f := <-w.inbox:
			w.plugin.Handle(f.cmd, f.payload, reply)
		case <-w.dead:
			return
		}
	}
}
