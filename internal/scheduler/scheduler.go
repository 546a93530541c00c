// Package scheduler dispatches queued Jobs to Workers acquired from a Pool,
// bounded by a configurable concurrency cap.
package scheduler

import (
	"io"
	"sync"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/job"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/protocol"
	"github.com/tjper/workerfabric/internal/worker"
)

var logger = log.New(io.Discard, "scheduler")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "scheduler") }

// DefaultMaxWorkers is the default concurrency cap.
const DefaultMaxWorkers = 5

// Pool is the subset of *pool.Pool the Scheduler depends on.
type Pool interface {
	Acquire(protocol, url string) (worker.Worker, error)
	Release(w worker.Worker)
	// Watch subscribes to a bound Worker's events through the Pool, which is
	// already the sole reader of worker.Worker.Events() (see pool.Pool.reap).
	// Calling w.Events() directly here would split delivery between the
	// Pool's reaper and the Scheduler non-deterministically.
	Watch(w worker.Worker) (<-chan worker.Event, func())
}

// New constructs a Scheduler with the given concurrency cap. maxWorkers
// must be > 0; a non-positive value is replaced with DefaultMaxWorkers.
func New(pool Pool, maxWorkers int) *Scheduler {
	if maxWorkers <= 0 {
		maxWorkers = DefaultMaxWorkers
	}

	s := &Scheduler{
		pool:         pool,
		maxWorkers:   maxWorkers,
		bindings:     make(map[uuid.UUID]worker.Worker),
		continuation: make(chan func(), 64),
	}
	go s.continuationLoop()
	return s
}

// Scheduler holds a FIFO queue of Jobs and dispatches them to acquired
// Workers as the concurrency cap allows. All mutations of queue, bindings,
// and runningCount occur under mutex; continuations — run when a Job
// finishes — re-enter via a queued callback instead of recursing directly,
// avoiding a re-entrant lock acquisition from inside a Job listener
// goroutine.
type Scheduler struct {
	pool       Pool
	maxWorkers int

	mutex        sync.Mutex
	queue        []*job.Job
	bindings     map[uuid.UUID]worker.Worker
	runningCount int

	continuation chan func()
}

// ScheduleJob enqueues job and attempts to advance the queue.
func (s *Scheduler) ScheduleJob(j *job.Job) {
	s.mutex.Lock()
	s.queue = append(s.queue, j)
	s.mutex.Unlock()

	s.processQueue()
}

// CancelJob removes job from the queue if it has not yet started, or
// cancels it if it is running. A running Job's Worker release, binding
// removal, and runningCount decrement happen through the same watch/finish
// path a normal completion takes — CancelJob only triggers the state
// transition that path reacts to, so the two can never race each other
// into a double release.
func (s *Scheduler) CancelJob(j *job.Job) {
	s.mutex.Lock()
	for i, queued := range s.queue {
		if queued.ID == j.ID {
			s.queue = append(s.queue[:i], s.queue[i+1:]...)
			s.mutex.Unlock()
			return
		}
	}
	s.mutex.Unlock()

	// A running URL-less Job has no binding, so Cancel is called for any Job
	// not found in the queue; it is a no-op unless the Job is Running or
	// Paused.
	j.Cancel()
}

// processQueue pops queued Jobs and binds them to acquired Workers while
// the concurrency cap allows, never blocking on a Job's own lifecycle.
func (s *Scheduler) processQueue() {
	for {
		j := s.dequeueNext()
		if j == nil {
			return
		}

		scheme := j.Scheme()
		if scheme == "" {
			s.runJob(j, nil)
			continue
		}

		w, err := s.pool.Acquire(scheme, j.URL)
		if err != nil {
			logger.Errorf("acquire worker for job %s; error: %s", j.ID, err)
			s.finishWithoutWorker(j)
			continue
		}
		s.runJob(j, w)
	}
}

// dequeueNext pops the next Job eligible to run, or returns nil if the
// queue is empty or the concurrency cap is reached.
func (s *Scheduler) dequeueNext() *job.Job {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if len(s.queue) == 0 || s.runningCount >= s.maxWorkers {
		return nil
	}

	j := s.queue[0]
	s.queue = s.queue[1:]
	s.runningCount++
	return j
}

// finishWithoutWorker transitions a Job to Error when pool acquisition
// fails, without ever having bound a Worker to it.
func (s *Scheduler) finishWithoutWorker(j *job.Job) {
	j.Start()
	j.HandleCommand(protocol.CmdError, []byte("failed to acquire worker"))

	s.mutex.Lock()
	s.runningCount--
	s.mutex.Unlock()

	s.enqueueContinuation(func() { s.processQueue() })
}

// runJob binds w (nil if the Job is URL-less) to j, subscribes to j's
// terminal events, and starts it.
func (s *Scheduler) runJob(j *job.Job, w worker.Worker) {
	if w != nil {
		s.mutex.Lock()
		s.bindings[j.ID] = w
		s.mutex.Unlock()
	}

	events, cancel := j.Listen()
	go s.watch(j, w, events, cancel)

	j.Start()
	if w != nil {
		w.Send(j.Cmd, j.Payload)
	}
	logger.Infof("job %s started", j.ID)
}

// watch relays a bound Worker's events to the Job and, once the Job
// reaches a terminal state, runs the release/unbind/decrement sequence as
// a queued continuation rather than recursing into processQueue directly.
func (s *Scheduler) watch(j *job.Job, w worker.Worker, events <-chan job.Event, cancelListen func()) {
	defer cancelListen()

	var workerEvents <-chan worker.Event
	if w != nil {
		var cancelWatch func()
		workerEvents, cancelWatch = s.pool.Watch(w)
		defer cancelWatch()
	}

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if isTerminal(ev.State) {
				s.finish(j, w)
				return
			}
		case wev, ok := <-workerEvents:
			if !ok {
				workerEvents = nil
				continue
			}
			switch wev.Kind {
			case worker.CommandReceived:
				j.HandleCommand(wev.Cmd, wev.Payload)
			case worker.Died:
				j.HandleCommand(protocol.CmdError, []byte("worker died: "+wev.Reason))
				s.finish(j, w)
				return
			}
		}
	}
}

func isTerminal(s job.State) bool {
	switch s {
	case job.Finished, job.Error, job.Canceled:
		return true
	default:
		return false
	}
}

// finish releases j's Worker (if any), removes the binding, decrements
// runningCount, and queues processQueue as a continuation.
func (s *Scheduler) finish(j *job.Job, w worker.Worker) {
	if w != nil {
		s.pool.Release(w)
	}

	s.mutex.Lock()
	delete(s.bindings, j.ID)
	s.runningCount--
	s.mutex.Unlock()

	logger.Infof("job %s finished; success: %t", j.ID, j.Success())

	s.enqueueContinuation(func() { s.processQueue() })
}

func (s *Scheduler) enqueueContinuation(fn func()) {
	select {
	case s.continuation <- fn:
	default:
		// Continuation queue is large relative to maxWorkers; this would
		// indicate a stuck continuationLoop goroutine.
		go fn()
	}
}

func (s *Scheduler) continuationLoop() {
	for fn := range s.continuation {
		fn()
	}
}
