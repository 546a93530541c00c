package pool

import (
	"errors"
	"testing"
	"time"

	"github.com/tjper/workerfabric/internal/plugin"
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

func TestAcquireReleaseReusesWorker(t *testing.T) {
	p := New(noopResolve)
	defer p.TerminateAll()

	w1, err := p.Acquire("file", "file:///tmp/a")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	id := w1.ID()

	p.Release(w1)

	w2, err := p.Acquire("file", "file:///tmp/b")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	if w2.ID() != id {
		t.Fatalf("expected worker reuse; got new worker %s, want %s", w2.ID(), id)
	}
}

func TestEvictIdleTerminatesAgedWorkers(t *testing.T) {
	p := New(noopResolve)
	defer p.TerminateAll()

	w, err := p.Acquire("file", "file:///tmp/a")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	p.Release(w)

	p.mu.Lock()
	p.lastIdle[w.ID()] = time.Now().Add(-time.Hour)
	p.mu.Unlock()

	p.EvictIdle(time.Minute)

	if w.Alive() {
		t.Fatal("expected evicted worker to be dead")
	}

	p.mu.Lock()
	remaining := len(p.idle["file"])
	p.mu.Unlock()
	if remaining != 0 {
		t.Fatalf("expected idle set empty after eviction, got %d", remaining)
	}
}

func TestAcquireCreationFailureIsNonFatal(t *testing.T) {
	p := New(noopResolve)
	defer p.TerminateAll()

	if _, err := p.Acquire("smb", "smb://host/share"); err == nil {
		t.Fatal("expected creation failure for unresolvable protocol")
	}

	// Pool must remain usable after a creation failure.
	if _, err := p.Acquire("file", "file:///tmp/a"); err != nil {
		t.Fatalf("unexpected error after prior failure: %s", err)
	}
}
