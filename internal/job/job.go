// Package job implements the Job state machine: a unit of work dispatched
// by the Scheduler to a Worker, tracked through a fixed set of states and
// observed by listeners subscribed to its transitions.
package job

import (
	"encoding/binary"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/protocol"
)

var logger = log.New(io.Discard, "job")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "job") }

// State is a Job's position in its state machine.
type State string

const (
	None     State = "none"
	Starting State = "starting"
	Running  State = "running"
	Paused   State = "paused"
	Finished State = "finished"
	Error    State = "error"
	Canceled State = "canceled"
)

// New constructs a Job bound to url (empty for a URL-less Job) and cmd,
// the protocol command the Worker is asked to perform.
func New(owner, url string, cmd int32, payload []byte) *Job {
	id := uuid.New()
	return &Job{
		mutex:     new(sync.RWMutex),
		ID:        id,
		Owner:     owner,
		URL:       url,
		Cmd:       cmd,
		Payload:   payload,
		state:     None,
		listeners: make(map[uuid.UUID]chan Event),
	}
}

// Event is published to Job listeners on every state transition and on
// every progress update.
type Event struct {
	State    State
	Progress int32
	Err      string
	Data     []byte
}

// Job is a single unit of work with a state machine and a progress/error
// channel. Only setState mutates state; setState emits stateChanged and,
// on a terminal state, finished(success).
type Job struct {
	mutex *sync.RWMutex

	ID    uuid.UUID
	Owner string
	// URL is the protocol-scoped target this Job operates on, e.g.
	// "smb://host/share/file". Empty for Jobs that do not acquire a Worker.
	URL string
	// Cmd is the task command (protocol.TaskCmdMin..TaskCmdMax) sent to the
	// bound Worker when the Job starts.
	Cmd     int32
	Payload []byte

	state    State
	progress int32
	errMsg   string

	listeners map[uuid.UUID]chan Event
}

// Scheme returns the URL's scheme, or "" if the Job has no URL.
func (j *Job) Scheme() string {
	if j.URL == "" {
		return ""
	}
	for i := 0; i < len(j.URL); i++ {
		if j.URL[i] == ':' {
			return j.URL[:i]
		}
	}
	return ""
}

// State returns the Job's current state.
func (j *Job) State() State {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.state
}

// Progress returns the last reported completion percentage.
func (j *Job) Progress() int32 {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.progress
}

// ErrorString returns the last reported error reason, if any.
func (j *Job) ErrorString() string {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	return j.errMsg
}

// Listen registers a channel that receives every Event published for this
// Job from this point forward. The returned cancel func must be called
// once the caller is no longer interested.
func (j *Job) Listen() (<-chan Event, func()) {
	id := uuid.New()
	ch := make(chan Event, 8)

	j.mutex.Lock()
	j.listeners[id] = ch
	j.mutex.Unlock()

	return ch, func() {
		j.mutex.Lock()
		delete(j.listeners, id)
		j.mutex.Unlock()
	}
}

// Start transitions the Job None -> Starting -> Running.
func (j *Job) Start() {
	j.setState(Starting, "")
	j.setState(Running, "")
}

// Pause transitions a Running Job to Paused. Pause on any other state is a
// no-op.
func (j *Job) Pause() {
	if j.State() != Running {
		return
	}
	j.setState(Paused, "")
}

// Resume transitions a Paused Job back to Running. Resume on any other
// state is a no-op.
func (j *Job) Resume() {
	if j.State() != Paused {
		return
	}
	j.setState(Running, "")
}

// Cancel transitions a Running or Paused Job to Canceled. Cancel on any
// other state is a no-op.
func (j *Job) Cancel() {
	switch j.State() {
	case Running, Paused:
		j.setState(Canceled, "")
	}
}

// HandleCommand interprets a command/payload pair received from the Job's
// bound Worker, per the protocol response command space.
func (j *Job) HandleCommand(cmd int32, payload []byte) {
	switch cmd {
	case protocol.CmdProgress:
		if len(payload) < 4 {
			logger.Warnf("job %s: short PROGRESS payload", j.ID)
			return
		}
		j.setProgress(int32(binary.BigEndian.Uint32(payload)))
	case protocol.CmdError:
		j.setState(Error, string(payload))
	case protocol.CmdResult:
		j.publish(Event{State: j.State(), Data: payload})
		j.setState(Finished, "")
	case protocol.CmdData:
		j.publish(Event{State: j.State(), Data: payload})
	default:
		logger.Warnf("job %s: ignoring unrecognized command %d", j.ID, cmd)
	}
}

func (j *Job) setProgress(p int32) {
	j.mutex.Lock()
	j.progress = p
	j.mutex.Unlock()
	j.publish(Event{State: j.State(), Progress: p})
}

// setState is the sole state mutator. It emits stateChanged and, on a
// terminal state, finished(success = state == Finished).
func (j *Job) setState(s State, errMsg string) {
	j.mutex.Lock()
	j.state = s
	if errMsg != "" {
		j.errMsg = errMsg
	}
	j.mutex.Unlock()

	logger.Infof("job %s: state -> %s", j.ID, s)
	j.publish(Event{State: s, Err: errMsg})
}

// Finished reports whether the Job has reached a terminal state.
func (j *Job) Finished() bool {
	switch j.State() {
	case Finished, Error, Canceled:
		return true
	default:
		return false
	}
}

// Success reports whether a finished Job completed successfully. Success
// is only meaningful once Finished reports true.
func (j *Job) Success() bool {
	return j.State() == Finished
}

func (j *Job) publish(ev Event) {
	j.mutex.RLock()
	defer j.mutex.RUnlock()
	for _, ch := range j.listeners {
		select {
		case ch <- ev:
		default:
			logger.Warnf("job %s: listener channel full, dropping event", j.ID)
		}
	}
}

// String implements fmt.Stringer for log friendliness.
func (j *Job) String() string {
	return fmt.Sprintf("job{id=%s owner=%s state=%s}", j.ID, j.Owner, j.State())
}
