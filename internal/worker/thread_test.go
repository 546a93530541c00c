package worker

import (
	"testing"
	"time"

	"github.com/tjper/workerfabric/internal/plugin"
)

type echoPlugin struct {
	initialized bool
	shutdown    bool
}

func (p *echoPlugin) Initialize() bool { p.initialized = true; return true }
func (p *echoPlugin) Shutdown()        { p.shutdown = true }
func (p *echoPlugin) Handle(cmd int32, payload []byte, reply plugin.Reply) {
	reply(200, payload)
}

func TestThreadWorkerRoundTrip(t *testing.T) {
	plugin.Register("test-echo-worker", func() plugin.Plugin { return &echoPlugin{} })

	w, err := NewThreadWorker("file", "test-echo-worker")
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if !w.Send(101, []byte("hello")) {
		t.Fatal("expected send to succeed")
	}

	select {
	case ev := <-w.Events():
		if ev.Kind != CommandReceived || ev.Cmd != 200 || string(ev.Payload) != "hello" {
			t.Fatalf("unexpected event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for echo")
	}

	w.Terminate()
	if w.Alive() {
		t.Fatal("expected worker to be dead after Terminate")
	}
	if !w.Send(1, nil) {
		// Send after Terminate must report failure.
	} else {
		t.Fatal("expected send to fail after terminate")
	}
}
