package endpoint

import (
	"net"
	"testing"
	"time"
)

func TestListenDialAccept(t *testing.T) {
	name := Name("file")
	srv, err := Listen(name)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer srv.Close()

	accepted := make(chan struct{})
	go func() {
		c, err := srv.Accept()
		if err != nil {
			t.Errorf("accept: %s", err)
			return
		}
		defer c.Close()
		close(accepted)
	}()

	client, err := Dial(name)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer client.Close()

	select {
	case <-accepted:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for accept")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	name := Name("file")

	first, err := Listen(name)
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	// Simulate a crash: the listener's fd is gone but the socket file
	// remains on disk.
	first.lis.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = first.lis.Close()

	second, err := Listen(name)
	if err != nil {
		t.Fatalf("unexpected error re-listening on stale socket: %s", err)
	}
	defer second.Close()
}
