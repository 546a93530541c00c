// Package acceptmutex implements the shared-memory mutual-exclusion point
// the Master Supervisor and its re-exec'd children use to serialize
// accept() calls on one listening socket, avoiding a thundering herd.
//
// The original implementation maps an anonymous region inherited by
// fork()'d children. Go processes replicate by re-exec rather than fork,
// so the region is backed by a memfd (unix.MemfdCreate) passed across
// exec.Cmd.ExtraFiles instead of inherited implicitly, and mmap'd
// MAP_SHARED in both the Supervisor and every child. The mutex itself is
// a single uint32 CAS (sync/atomic over a pointer into the mapping) —
// Go's equivalent of the original's compare_exchange over the raw region.
package acceptmutex

import (
	"fmt"
	"os"
	"sync/atomic"
	"unsafe"

	"golang.org/x/sys/unix"
)

const regionSize = 4

// New creates a fresh memfd-backed mutex region, already mapped into this
// process. The returned *os.File must be passed to children via
// exec.Cmd.ExtraFiles; Open maps the same region from the inherited fd.
func New() (*Mutex, *os.File, error) {
	fd, err := unix.MemfdCreate("acceptmutex", 0)
	if err != nil {
		return nil, nil, fmt.Errorf("acceptmutex: memfd_create: %w", err)
	}
	if err := unix.Ftruncate(fd, regionSize); err != nil {
		unix.Close(fd)
		return nil, nil, fmt.Errorf("acceptmutex: ftruncate: %w", err)
	}

	m, err := mapFd(fd)
	if err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	return m, os.NewFile(uintptr(fd), "acceptmutex"), nil
}

// Open maps the mutex region from a file descriptor inherited from the
// Supervisor (conventionally fd 4, exec.Cmd.ExtraFiles[1]).
func Open(f *os.File) (*Mutex, error) {
	return mapFd(int(f.Fd()))
}

func mapFd(fd int) (*Mutex, error) {
	region, err := unix.Mmap(fd, 0, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("acceptmutex: mmap: %w", err)
	}
	return &Mutex{region: region}, nil
}

// Mutex is a single-word CAS mutex living in memory shared across
// processes. Zero value of the backing word means free; one means held.
type Mutex struct {
	region []byte
}

func (m *Mutex) word() *uint32 {
	return (*uint32)(unsafe.Pointer(&m.region[0]))
}

// TryAcquire attempts the 0->1 transition and reports whether it
// succeeded. A failed TryAcquire means another process currently holds
// the mutex; the caller should treat its wakeup as spurious and return
// to waiting, per the thundering-herd guard.
func (m *Mutex) TryAcquire() bool {
	return atomic.CompareAndSwapUint32(m.word(), 0, 1)
}

// Release performs the 1->0 transition. Release is only valid after a
// successful TryAcquire.
func (m *Mutex) Release() {
	atomic.StoreUint32(m.word(), 0)
}

// Close unmaps the region. It does not close the underlying fd.
func (m *Mutex) Close() error {
	return unix.Munmap(m.region)
}
