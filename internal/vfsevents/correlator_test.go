package vfsevents

import (
	"context"
	"testing"
	"time"
)

func newTestCorrelator() *Correlator {
	return NewCorrelator(&Normalizer{watchRoot: "/home/alice"})
}

func TestHandleNewFileEmitsCreated(t *testing.T) {
	c := newTestCorrelator()
	evs, ok := c.Handle(RawEvent{Act: NewFile, Path: "/home/alice/a.txt"})
	if !ok {
		t.Fatal("expected an event")
	}
	if len(evs) != 1 || evs[0].Kind != Created || evs[0].Path != "/home/alice/a.txt" {
		t.Fatalf("got %+v", evs)
	}
}

func TestHandleOutsideWatchRootIsDropped(t *testing.T) {
	c := newTestCorrelator()
	if _, ok := c.Handle(RawEvent{Act: NewFile, Path: "/home/bob/a.txt"}); ok {
		t.Fatal("expected event outside watch root to be dropped")
	}
}

func TestHandleHiddenPathIsDropped(t *testing.T) {
	c := newTestCorrelator()
	if _, ok := c.Handle(RawEvent{Act: NewFile, Path: "/home/alice/.cache/a.txt"}); ok {
		t.Fatal("expected hidden path to be dropped")
	}
}

// TestRenamePairEmitsRenamed asserts a paired file rename emits both a
// Renamed event and a companion Modified event, matching the original
// filewatcher's fileRenamed+fileModified signal pair
// (_examples/original_source/search/file-events/src/filewatcher/filewatcher.cpp).
func TestRenamePairEmitsRenamed(t *testing.T) {
	c := newTestCorrelator()

	if _, ok := c.Handle(RawEvent{Act: RenameFromFile, Cookie: 7, Path: "/home/alice/old.txt"}); ok {
		t.Fatal("RENAME_FROM should not emit directly")
	}

	evs, ok := c.Handle(RawEvent{Act: RenameToFile, Cookie: 7, Path: "/home/alice/new.txt"})
	if !ok {
		t.Fatal("expected RENAME_TO paired with RENAME_FROM to emit")
	}
	if len(evs) != 2 {
		t.Fatalf("expected 2 events (Renamed, Modified); got %+v", evs)
	}
	if evs[0].Kind != Renamed || evs[0].From != "/home/alice/old.txt" || evs[0].Path != "/home/alice/new.txt" {
		t.Fatalf("got %+v", evs[0])
	}
	if evs[1].Kind != Modified || evs[1].Path != "/home/alice/new.txt" {
		t.Fatalf("expected companion Modified event; got %+v", evs[1])
	}
}

// TestRenamePairFolderEmitsDirRenamed asserts a paired folder rename emits
// only DirRenamed, matching the original's directoryRenamed-only handling
// (no companion directoryModified signal).
func TestRenamePairFolderEmitsDirRenamed(t *testing.T) {
	c := newTestCorrelator()
	c.Handle(RawEvent{Act: RenameFromFolder, Cookie: 3, Path: "/home/alice/olddir"})
	evs, ok := c.Handle(RawEvent{Act: RenameToFolder, Cookie: 3, Path: "/home/alice/newdir"})
	if !ok || len(evs) != 1 || evs[0].Kind != DirRenamed {
		t.Fatalf("got %+v, ok=%v", evs, ok)
	}
}

func TestUnpairedRenameToIsDropped(t *testing.T) {
	c := newTestCorrelator()
	if _, ok := c.Handle(RawEvent{Act: RenameToFile, Cookie: 99, Path: "/home/alice/new.txt"}); ok {
		t.Fatal("expected unpaired RENAME_TO to be dropped")
	}
}

func TestSweepOrphansEvictsStaleRenameFrom(t *testing.T) {
	c := newTestCorrelator()
	c.Handle(RawEvent{Act: RenameFromFile, Cookie: 1, Path: "/home/alice/old.txt"})

	c.mu.Lock()
	entry := c.pending[1]
	entry.receivedAt = time.Now().Add(-3 * renameSweepInterval)
	c.pending[1] = entry
	c.mu.Unlock()

	out := make(chan Event, 1)
	ctx, cancel := context.WithTimeout(context.Background(), renameSweepInterval+500*time.Millisecond)
	defer cancel()

	go c.SweepOrphans(ctx, out)

	select {
	case ev := <-out:
		if ev.Kind != Deleted || ev.Path != "/home/alice/old.txt" {
			t.Fatalf("got %+v", ev)
		}
	case <-ctx.Done():
		t.Fatal("timed out waiting for orphan sweep eviction")
	}
}

func TestMountRefreshesNormalizer(t *testing.T) {
	c := newTestCorrelator()
	evs, ok := c.Handle(RawEvent{Act: Mount, Path: "/dev/sdb1"})
	if !ok || len(evs) != 1 || evs[0].Kind != Mounted {
		t.Fatalf("got %+v, ok=%v", evs, ok)
	}
}
