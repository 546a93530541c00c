package vfsevents

import (
	"context"
	"sync"
	"time"
)

// renameSweepInterval mirrors the 2s orphan-eviction timeout: an entry
// older than this with no matching RENAME_TO_* is considered abandoned
// and evicted as a Deleted.
const renameSweepInterval = 2 * time.Second

type renameEntry struct {
	path       string
	receivedAt time.Time
	dir        bool
}

// Correlator consumes normalized RawEvents and emits the higher-level
// Event vocabulary, pairing RENAME_FROM_*/RENAME_TO_* notifications by
// cookie into a single Renamed (followed by Modified, for files) or
// DirRenamed event. The original C++
// filewatcher holds rename_from_* entries in a map forever; this
// Correlator instead sweeps entries older than renameSweepInterval and
// emits Deleted for them, since an unpaired RENAME_FROM in practice
// means the kernel never reported (or already processed past) the
// matching RENAME_TO.
type Correlator struct {
	norm *Normalizer

	mu      sync.Mutex
	pending map[uint32]renameEntry
}

// NewCorrelator constructs a Correlator that normalizes paths through
// norm before correlating them.
func NewCorrelator(norm *Normalizer) *Correlator {
	return &Correlator{
		norm:    norm,
		pending: make(map[uint32]renameEntry),
	}
}

// Handle processes one RawEvent, returning the derived Events and true if
// any should be emitted now. RENAME_FROM_* events are absorbed into
// pending state and return ok=false, as do paths outside the watch root
// or hidden paths, an unpaired RENAME_TO_*, RENAME_FOLDER, and
// unrecognized actions; everything else (including a successfully paired
// RENAME_TO_*) returns ok=true. A paired rename of a
// file emits two Events, Renamed followed by Modified, matching the
// original filewatcher's fileRenamed+fileModified signal pair; a paired
// rename of a folder emits a single DirRenamed, matching the original's
// directoryRenamed-only handling.
func (c *Correlator) Handle(raw RawEvent) ([]Event, bool) {
	path := c.norm.Normalize(raw.Path)

	if raw.Act == Mount || raw.Act == Unmount {
		c.norm.Refresh()
		return []Event{{Kind: mountKind(raw.Act), Path: path, Act: raw.Act}}, true
	}

	if !c.norm.IsInWatchPath(path) || isHidden(path) {
		return nil, false
	}

	switch raw.Act {
	case RenameFromFile, RenameFromFolder:
		c.mu.Lock()
		c.pending[raw.Cookie] = renameEntry{
			path:       path,
			receivedAt: now(),
			dir:        raw.Act == RenameFromFolder,
		}
		c.mu.Unlock()
		return nil, false

	case RenameToFile, RenameToFolder:
		c.mu.Lock()
		from, found := c.pending[raw.Cookie]
		if found {
			delete(c.pending, raw.Cookie)
		}
		c.mu.Unlock()
		if !found {
			return nil, false
		}
		if raw.Act == RenameToFolder {
			return []Event{{Kind: DirRenamed, Path: path, From: from.path, Act: raw.Act}}, true
		}
		return []Event{
			{Kind: Renamed, Path: path, From: from.path, Act: raw.Act},
			{Kind: Modified, Path: path, From: from.path, Act: raw.Act},
		}, true

	case NewFile, NewSymlink, NewLink:
		return []Event{{Kind: Created, Path: path, Act: raw.Act}}, true
	case NewFolder:
		return []Event{{Kind: Created, Path: path, Act: raw.Act}}, true
	case DelFile, DelFolder:
		return []Event{{Kind: Deleted, Path: path, Act: raw.Act}}, true
	case RenameFile:
		return []Event{{Kind: Modified, Path: path, Act: raw.Act}}, true
	case RenameFolder:
		// Logged only, matching the original's asymmetric handling of
		// ACT_RENAME_FOLDER (it never reaches a RENAME_TO_* pairing).
		logger.Infof("folder renamed: %s", path)
		return nil, false
	case CloseWriteFile:
		return []Event{{Kind: Modified, Path: path, Act: raw.Act}}, true
	default:
		return nil, false
	}
}

// SweepOrphans runs until ctx is canceled, periodically evicting
// rename-from entries older than renameSweepInterval and delivering a
// synthetic Deleted event for each to out.
func (c *Correlator) SweepOrphans(ctx context.Context, out chan<- Event) {
	ticker := time.NewTicker(renameSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			for _, ev := range c.evictOrphans() {
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}
}

func (c *Correlator) evictOrphans() []Event {
	cutoff := now().Add(-renameSweepInterval)

	c.mu.Lock()
	defer c.mu.Unlock()

	var orphaned []Event
	for cookie, entry := range c.pending {
		if entry.receivedAt.Before(cutoff) {
			orphaned = append(orphaned, Event{Kind: Deleted, Path: entry.path})
			delete(c.pending, cookie)
		}
	}
	return orphaned
}

func mountKind(act Action) Kind {
	if act == Mount {
		return Mounted
	}
	return Unmounted
}

func isHidden(path string) bool {
	for i, r := range path {
		if r == '/' && i+1 < len(path) && path[i+1] == '.' {
			return true
		}
	}
	return false
}

func now() time.Time { return time.Now() }
