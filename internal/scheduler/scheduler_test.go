package scheduler

import (
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/job"
	"github.com/tjper/workerfabric/internal/protocol"
	"github.com/tjper/workerfabric/internal/worker"
)

// fakeWorker is a test double satisfying worker.Worker without spawning any
// process or goroutine plugin loop; the test drives its Events channel
// directly to simulate RESULT/ERROR/Died deliveries.
type fakeWorker struct {
	id       uuid.UUID
	protocol string

	mu    sync.Mutex
	state worker.State

	events chan worker.Event
	sent   []int32
}

func newFakeWorker(protocol string) *fakeWorker {
	return &fakeWorker{
		id:       uuid.New(),
		protocol: protocol,
		state:    worker.Busy,
		events:   make(chan worker.Event, 8),
	}
}

func (w *fakeWorker) ID() uuid.UUID               { return w.id }
func (w *fakeWorker) Protocol() string            { return w.protocol }
func (w *fakeWorker) Kind() worker.Kind           { return worker.KindThread }
func (w *fakeWorker) Events() <-chan worker.Event { return w.events }

func (w *fakeWorker) State() worker.State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

func (w *fakeWorker) SetState(s worker.State) {
	w.mu.Lock()
	w.state = s
	w.mu.Unlock()
}

func (w *fakeWorker) Alive() bool { return w.State() != worker.Dead }

func (w *fakeWorker) Send(cmd int32, payload []byte) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.sent = append(w.sent, cmd)
	return true
}

func (w *fakeWorker) Terminate() {
	w.SetState(worker.Dead)
}

// fakePool hands out pre-seeded fakeWorkers keyed by protocol and records
// Release calls.
type fakePool struct {
	mu       sync.Mutex
	workers  map[string][]*fakeWorker
	fail     map[string]bool
	released []worker.Worker
}

func newFakePool() *fakePool {
	return &fakePool{
		workers: make(map[string][]*fakeWorker),
		fail:    make(map[string]bool),
	}
}

func (p *fakePool) seed(protocol string, w *fakeWorker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.workers[protocol] = append(p.workers[protocol], w)
}

func (p *fakePool) Acquire(protocol, url string) (worker.Worker, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.fail[protocol] {
		return nil, errFakeAcquire
	}

	stack := p.workers[protocol]
	if len(stack) == 0 {
		return nil, errFakeAcquire
	}
	w := stack[len(stack)-1]
	p.workers[protocol] = stack[:len(stack)-1]
	return w, nil
}

func (p *fakePool) Release(w worker.Worker) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.released = append(p.released, w)
}

// Watch hands back w's own Events channel directly: fakePool has no reaper
// goroutine of its own to race against, unlike the real Pool.
func (p *fakePool) Watch(w worker.Worker) (<-chan worker.Event, func()) {
	return w.Events(), func() {}
}

type fakeAcquireError struct{}

func (fakeAcquireError) Error() string { return "fake: no worker available" }

var errFakeAcquire = fakeAcquireError{}

func TestScheduleJobRunsAndCompletesOnResult(t *testing.T) {
	pool := newFakePool()
	fw := newFakeWorker("smb")
	pool.seed("smb", fw)

	s := New(pool, 5)

	j := job.New("alice", "smb://host/share", 101, []byte("payload"))
	s.ScheduleJob(j)

	waitForState(t, j, job.Running)

	fw.events <- worker.Event{Kind: worker.CommandReceived, Cmd: protocol.CmdResult, Payload: []byte("done")}

	waitForState(t, j, job.Finished)

	pool.mu.Lock()
	released := len(pool.released)
	pool.mu.Unlock()
	if released != 1 {
		t.Fatalf("expected worker released exactly once, got %d", released)
	}
}

func TestScheduleJobErrorsWhenPoolAcquireFails(t *testing.T) {
	pool := newFakePool()
	pool.fail["smb"] = true

	s := New(pool, 5)
	j := job.New("alice", "smb://host/share", 101, nil)
	s.ScheduleJob(j)

	waitForState(t, j, job.Error)
}

func TestConcurrencyCapQueuesExcessJobs(t *testing.T) {
	pool := newFakePool()
	fw1 := newFakeWorker("smb")
	fw2 := newFakeWorker("smb")
	pool.seed("smb", fw1)
	pool.seed("smb", fw2)

	s := New(pool, 1)

	j1 := job.New("alice", "smb://host/a", 101, nil)
	j2 := job.New("alice", "smb://host/b", 101, nil)

	s.ScheduleJob(j1)
	s.ScheduleJob(j2)

	waitForState(t, j1, job.Running)

	time.Sleep(20 * time.Millisecond)
	if j2.State() == job.Running {
		t.Fatal("expected second job to remain queued under cap of 1")
	}

	// fakePool pops the most recently seeded worker first, so j1 is bound
	// to fw2.
	fw2.events <- worker.Event{Kind: worker.CommandReceived, Cmd: protocol.CmdResult, Payload: nil}
	waitForState(t, j1, job.Finished)
	waitForState(t, j2, job.Running)
}

func TestCancelQueuedJobRemovesIt(t *testing.T) {
	pool := newFakePool()
	fw := newFakeWorker("smb")
	pool.seed("smb", fw)

	s := New(pool, 1)

	running := job.New("alice", "smb://host/a", 101, nil)
	queued := job.New("alice", "smb://host/b", 101, nil)

	s.ScheduleJob(running)
	s.ScheduleJob(queued)
	waitForState(t, running, job.Running)

	s.CancelJob(queued)

	time.Sleep(20 * time.Millisecond)
	if queued.State() != job.None {
		t.Fatalf("expected canceled-while-queued job to remain in None, got %s", queued.State())
	}
}

func waitForState(t *testing.T, j *job.Job, want job.State) {
	t.Helper()
	deadline := time.After(time.Second)
	for {
		if j.State() == want {
			return
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for state %s, last seen %s", want, j.State())
		case <-time.After(time.Millisecond):
		}
	}
}
