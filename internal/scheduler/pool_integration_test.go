package scheduler

import (
	"errors"
	"testing"

	"github.com/tjper/workerfabric/internal/job"
	"github.com/tjper/workerfabric/internal/plugin"
	"github.com/tjper/workerfabric/internal/pool"
)

type noopPlugin struct{}

func (noopPlugin) Initialize() bool { return true }
func (noopPlugin) Shutdown()        {}
func (noopPlugin) Handle(cmd int32, payload []byte, reply plugin.Reply) {}

func init() {
	plugin.Register("file", func() plugin.Plugin { return noopPlugin{} })
}

func noopResolve(protocol string) (string, error) {
	return "", errors.New("no process plugin configured in test")
}

// TestRealPoolAndSchedulerHandleWorkerDeath pairs a real *pool.Pool (not
// fakePool) with a Scheduler and kills the bound Worker mid-job. Pool's own
// reap goroutine is the sole reader of the Worker's events and
// Scheduler.watch observes them through Pool.Watch, so this exercises the
// fan-out that keeps the two from splitting the single Events stream
// between them.
//
// The Worker under test is obtained by seeding the Pool's idle stack for
// "file" before scheduling the Job: Acquire/Release push and pop that stack
// LIFO, so the Scheduler's own Acquire call is guaranteed to hand back the
// same Worker instance, giving the test a handle to kill.
func TestRealPoolAndSchedulerHandleWorkerDeath(t *testing.T) {
	p := pool.New(noopResolve)
	defer p.TerminateAll()

	w, err := p.Acquire("file", "file:///tmp/seed")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	p.Release(w)

	s := New(p, 5)

	j := job.New("alice", "file:///tmp/a", 101, nil)
	s.ScheduleJob(j)

	waitForState(t, j, job.Running)

	w.Terminate()

	waitForState(t, j, job.Error)
}
