package worker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/conn"
	"github.com/tjper/workerfabric/internal/endpoint"
	"github.com/tjper/workerfabric/internal/protocol"
)

// terminateGrace is how long Terminate waits for a graceful exit before
// force-killing the sidecar process group.
const terminateGrace = 3 * time.Second

// acceptTimeout bounds how long NewProcessWorker waits for its sidecar to
// dial back, matching the 30s connect timeout from spec §5.
const acceptTimeout = 30 * time.Second

// NewProcessWorker launches a sidecar executable hosting pluginPath and
// connects a Connection to it. The returned Worker is already Busy: it is
// vended directly to the caller that requested its creation, the same as
// WorkerPool.Acquire hands out any freshly built Worker.
func NewProcessWorker(protocolName, pluginPath string) (Worker, error) {
	name := endpoint.Name(protocolName)
	srv, err := endpoint.Listen(name)
	if err != nil {
		return nil, fmt.Errorf("worker: listen sidecar endpoint: %w", err)
	}

	self, err := os.Executable()
	if err != nil {
		srv.Close()
		return nil, fmt.Errorf("worker: resolve executable: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(
		ctx, self,
		protocol.SubcommandSidecar,
		"-plugin", pluginPath,
		"-connection", name,
	)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		srv.Close()
		return nil, fmt.Errorf("worker: start sidecar: %w", err)
	}

	accepted := make(chan *conn.Conn, 1)
	acceptErr := make(chan error, 1)
	go func() {
		c, err := srv.Accept()
		if err != nil {
			acceptErr <- err
			return
		}
		accepted <- c
	}()

	var c *conn.Conn
	select {
	case c = <-accepted:
	case err := <-acceptErr:
		cancel()
		srv.Close()
		_ = cmd.Wait()
		return nil, fmt.Errorf("worker: accept sidecar connection: %w", err)
	case <-time.After(acceptTimeout):
		cancel()
		srv.Close()
		_ = cmd.Wait()
		return nil, fmt.Errorf("worker: timed out waiting for sidecar connection")
	}
	srv.Close()

	w := &ProcessWorker{
		id:       uuid.New(),
		protocol: protocolName,
		state:    Busy,
		conn:     c,
		cmd:      cmd,
		cancel:   cancel,
		events:   make(chan Event, 16),
		dead:     make(chan struct{}),
	}

	go w.pump()
	go w.wait()

	return w, nil
}

// ProcessWorker is a Worker that forwards commands to a plugin hosted in a
// re-exec'd sidecar process, communicating over a framed Connection.
type ProcessWorker struct {
	id       uuid.UUID
	protocol string

	mu    sync.Mutex
	state State

	conn   *conn.Conn
	cmd    *exec.Cmd
	cancel context.CancelFunc

	events chan Event

	deadOnce sync.Once
	dead     chan struct{}
}

var _ Worker = (*ProcessWorker)(nil)

func (w *ProcessWorker) ID() uuid.UUID      { return w.id }
func (w *ProcessWorker) Protocol() string   { return w.protocol }
func (w *ProcessWorker) Kind() Kind         { return KindProcess }
func (w *ProcessWorker) Events() <-chan Event { return w.events }

func (w *ProcessWorker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *ProcessWorker) SetState(s State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
	w.emit(Event{Kind: StateChanged, State: s})
}

func (w *ProcessWorker) Alive() bool {
	return w.State() != Dead
}

func (w *ProcessWorker) Send(cmd int32, payload []byte) bool {
	if !w.Alive() {
		return false
	}
	return w.conn.Send(cmd, payload)
}

// Terminate sends DISCONNECT and SIGTERMs the sidecar's process group,
// waits terminateGrace for it to exit, then SIGKILLs it. The Connection is
// always closed, on every exit path.
func (w *ProcessWorker) Terminate() {
	w.conn.Send(protocol.CmdDisconnect, nil)

	if w.cmd.Process != nil {
		_ = syscall.Kill(-w.cmd.Process.Pid, syscall.SIGTERM)
	}

	select {
	case <-w.dead:
	case <-time.After(terminateGrace):
		if w.cmd.Process != nil {
			_ = syscall.Kill(-w.cmd.Process.Pid, syscall.SIGKILL)
		}
		<-w.dead
	}

	w.conn.Close()
	w.cancel()
}

// pump forwards Connection events as Worker events until the Connection
// disconnects.
func (w *ProcessWorker) pump() {
	for ev := range w.conn.Events() {
		switch ev.Kind {
		case conn.CommandReceived:
			w.emit(Event{Kind: CommandReceived, Cmd: ev.Cmd, Payload: ev.Payload})
		case conn.Error:
			w.emit(Event{Kind: Error, Reason: ev.Reason})
		case conn.Disconnected:
			// handled by wait(), which observes process exit and marks Dead.
		}
	}
}

// wait blocks until the sidecar process exits, classifies the exit, and
// marks the Worker Dead exactly once.
func (w *ProcessWorker) wait() {
	err := w.cmd.Wait()

	reason := "sidecar exited cleanly"
	switch {
	case err == nil:
	default:
		if exitErr, ok := err.(*exec.ExitError); ok {
			if exitErr.ProcessState.ExitCode() == -1 {
				reason = "crashed"
			} else {
				reason = fmt.Sprintf("exit:%d", exitErr.ProcessState.ExitCode())
			}
		} else {
			reason = err.Error()
		}
	}

	if err != nil {
		w.emit(Event{Kind: Error, Reason: reason})
	}

	w.mu.Lock()
	w.state = Dead
	w.mu.Unlock()

	w.deadOnce.Do(func() { close(w.dead) })

	w.emit(Event{Kind: StateChanged, State: Dead})
	w.emit(Event{Kind: Died, Reason: reason})
	close(w.events)
}

func (w *ProcessWorker) emit(ev Event) {
	w.events <- ev
}
