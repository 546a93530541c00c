package job

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/tjper/workerfabric/internal/protocol"
)

func TestStartTransitionsToRunning(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Start()
	if j.State() != Running {
		t.Fatalf("unexpected state: %s", j.State())
	}
}

func TestPauseResume(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Start()

	j.Pause()
	if j.State() != Paused {
		t.Fatalf("unexpected state after pause: %s", j.State())
	}

	j.Resume()
	if j.State() != Running {
		t.Fatalf("unexpected state after resume: %s", j.State())
	}
}

func TestPauseNoopWhenNotRunning(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Pause()
	if j.State() != None {
		t.Fatalf("expected pause on non-running job to be a no-op, got %s", j.State())
	}
}

func TestCancelFromRunning(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Start()
	j.Cancel()
	if j.State() != Canceled {
		t.Fatalf("unexpected state: %s", j.State())
	}
	if !j.Finished() {
		t.Fatal("expected Finished to report true for Canceled")
	}
	if j.Success() {
		t.Fatal("expected Success to report false for Canceled")
	}
}

func TestHandleCommandProgress(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Start()

	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, 42)
	j.HandleCommand(protocol.CmdProgress, payload)

	if j.Progress() != 42 {
		t.Fatalf("unexpected progress: %d", j.Progress())
	}
	if j.State() != Running {
		t.Fatalf("progress must not change state, got %s", j.State())
	}
}

func TestHandleCommandResultFinishes(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Start()

	events, cancel := j.Listen()
	defer cancel()

	j.HandleCommand(protocol.CmdResult, []byte("artifact"))

	if j.State() != Finished {
		t.Fatalf("unexpected state: %s", j.State())
	}
	if !j.Success() {
		t.Fatal("expected Success after Finished")
	}

	select {
	case ev := <-events:
		if string(ev.Data) != "artifact" {
			t.Fatalf("unexpected data event: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for data event")
	}
}

func TestHandleCommandErrorSetsErrorString(t *testing.T) {
	j := New("alice", "", 101, nil)
	j.Start()
	j.HandleCommand(protocol.CmdError, []byte("boom"))

	if j.State() != Error {
		t.Fatalf("unexpected state: %s", j.State())
	}
	if j.ErrorString() != "boom" {
		t.Fatalf("unexpected error string: %q", j.ErrorString())
	}
}

func TestSchemeParsing(t *testing.T) {
	tests := map[string]struct {
		url    string
		scheme string
	}{
		"no url":    {url: "", scheme: ""},
		"smb url":   {url: "smb://host/share", scheme: "smb"},
		"file url":  {url: "file:///tmp/a", scheme: "file"},
		"malformed": {url: "nocolon", scheme: ""},
	}

	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			j := New("alice", test.url, 101, nil)
			if got := j.Scheme(); got != test.scheme {
				t.Fatalf("unexpected scheme; actual: %q, expected: %q", got, test.scheme)
			}
		})
	}
}
