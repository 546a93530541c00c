package acceptmutex

import "testing"

func TestTryAcquireReleaseRoundTrip(t *testing.T) {
	m, f, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer f.Close()
	defer m.Close()

	if !m.TryAcquire() {
		t.Fatal("expected first TryAcquire to succeed")
	}
	if m.TryAcquire() {
		t.Fatal("expected second TryAcquire to fail while held")
	}

	m.Release()

	if !m.TryAcquire() {
		t.Fatal("expected TryAcquire to succeed after release")
	}
}

func TestOpenSharesStateWithNew(t *testing.T) {
	m1, f, err := New()
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer f.Close()
	defer m1.Close()

	m2, err := Open(f)
	if err != nil {
		t.Fatalf("unexpected error opening second mapping: %s", err)
	}
	defer m2.Close()

	if !m1.TryAcquire() {
		t.Fatal("expected m1 to acquire")
	}
	if m2.TryAcquire() {
		t.Fatal("expected m2 to observe m1's held mutex")
	}

	m1.Release()

	if !m2.TryAcquire() {
		t.Fatal("expected m2 to acquire after m1 released")
	}
}
