package conn

import (
	"bytes"
	"net"
	"testing"
	"time"
)

func TestSendDeliversInOrder(t *testing.T) {
	client, server := net.Pipe()
	defer client.Close()
	defer server.Close()

	sender := New(client)
	receiver := New(server)
	defer sender.Close()
	defer receiver.Close()

	drainConnected(t, sender.Events())
	drainConnected(t, receiver.Events())

	want := []struct {
		cmd     int32
		payload []byte
	}{
		{cmd: 100, payload: []byte("first")},
		{cmd: 101, payload: []byte("second")},
		{cmd: 200, payload: nil},
	}

	for _, f := range want {
		if ok := sender.Send(f.cmd, f.payload); !ok {
			t.Fatalf("send returned false for cmd %d", f.cmd)
		}
	}

	for _, f := range want {
		ev := nextCommand(t, receiver.Events())
		if ev.Cmd != f.cmd || !bytes.Equal(ev.Payload, f.payload) {
			t.Fatalf("unexpected event; actual: %+v, expected cmd=%d payload=%v", ev, f.cmd, f.payload)
		}
	}
}

func TestSendAfterCloseReturnsFalse(t *testing.T) {
	client, server := net.Pipe()
	defer server.Close()

	c := New(client)
	drainConnected(t, c.Events())
	c.Close()

	// Give the read loop a chance to observe the close and flip closeErr.
	time.Sleep(10 * time.Millisecond)

	if ok := c.Send(1, nil); ok {
		t.Fatalf("expected Send to fail after Close")
	}
}

func drainConnected(t *testing.T, events <-chan Event) {
	t.Helper()
	select {
	case ev := <-events:
		if ev.Kind != Connected {
			t.Fatalf("expected Connected event, got: %+v", ev)
		}
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for Connected event")
	}
}

func nextCommand(t *testing.T, events <-chan Event) Event {
	t.Helper()
	for {
		select {
		case ev, ok := <-events:
			if !ok {
				t.Fatal("events channel closed before expected command")
			}
			if ev.Kind == CommandReceived {
				return ev
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for command event")
		}
	}
}
