package cgroup

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

// Cgroup represents a Linux cgroup limiting one Supervisor child process.
type Cgroup struct {
	// ID is the unique identifier of the cgroup.
	ID uuid.UUID
	// Memory is the "memory.high" bytes limit applied to this cgroup. A
	// zeroed value indicates no limit is set.
	Memory uint64
	// Cpus is the "cpu.max" limit applied to this cgroup, in cores. A
	// zeroed value indicates no limit is set.
	Cpus float32
	// DiskWriteBps is the "io.max" bytes-written-per-second limit applied
	// across this host's disk (major 8) block devices. A zeroed value
	// indicates no limit is set.
	DiskWriteBps uint64
	// DiskReadBps is the "io.max" bytes-read-per-second limit applied
	// across this host's disk (major 8) block devices. A zeroed value
	// indicates no limit is set.
	DiskReadBps uint64

	service Service
	path    string
}

// CgroupOption mutates a Cgroup being constructed via Service.CreateCgroup.
type CgroupOption func(*Cgroup)

// WithMemory configures a Cgroup's memory.high bytes limit.
func WithMemory(limit uint64) CgroupOption {
	return func(c *Cgroup) { c.Memory = limit }
}

// WithCpus configures a Cgroup's cpu.max cores limit.
func WithCpus(limit float32) CgroupOption {
	return func(c *Cgroup) { c.Cpus = limit }
}

// WithDiskWriteBps configures a Cgroup's io.max write bytes-per-second limit.
func WithDiskWriteBps(limit uint64) CgroupOption {
	return func(c *Cgroup) { c.DiskWriteBps = limit }
}

// WithDiskReadBps configures a Cgroup's io.max read bytes-per-second limit.
func WithDiskReadBps(limit uint64) CgroupOption {
	return func(c *Cgroup) { c.DiskReadBps = limit }
}

// create creates the cgroup directory and applies every configured limit.
func (c Cgroup) create() error {
	if err := os.Mkdir(c.path, fileMode); err != nil {
		return fmt.Errorf("create cgroup: %w", err)
	}

	var set []controller
	if c.Memory > 0 {
		set = append(set, newMemoryController(c, c.Memory))
	}
	if c.Cpus > 0 {
		set = append(set, newCPUController(c, c.Cpus))
	}
	if c.DiskWriteBps > 0 {
		set = append(set, newDiskWriteBpsController(c, c.DiskWriteBps))
	}
	if c.DiskReadBps > 0 {
		set = append(set, newDiskReadBpsController(c, c.DiskReadBps))
	}

	for _, ctl := range set {
		if err := ctl.enable(); err != nil {
			return fmt.Errorf("enable controller: %w", err)
		}
		if err := ctl.apply(); err != nil {
			return fmt.Errorf("apply controller: %w", err)
		}
	}

	return nil
}

// placePID adds pid to the cgroup. If pid already belongs to another
// cgroup, the kernel moves it here.
func (c Cgroup) placePID(pid int) error {
	file := filepath.Join(c.path, cgroupProcs)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("open cgroup.procs: %w", err)
	}
	defer fd.Close()

	_, err = fd.WriteString(strconv.Itoa(pid))
	if err != nil {
		return fmt.Errorf("write cgroup pid: %w", err)
	}
	return nil
}

// remove relocates any remaining pids to the root cgroup, then removes the
// cgroup directory. A cgroup must have no pids in cgroup.procs to be
// removed.
func (c Cgroup) remove() error {
	pids, err := c.readPids()
	if err != nil {
		return err
	}

	if err := c.service.placeInRootCgroup(pids); err != nil {
		return err
	}

	if err := unix.Rmdir(c.path); err != nil {
		return fmt.Errorf("remove cgroup: %w", err)
	}

	return nil
}

// readPids retrieves all pids that belong to this cgroup.
func (c Cgroup) readPids() ([]int, error) {
	file := filepath.Join(c.path, cgroupProcs)
	fd, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open cgroup.procs: %w", err)
	}
	defer fd.Close()

	var pids []int
	procs := bufio.NewScanner(fd)
	for procs.Scan() {
		pid, err := strconv.Atoi(procs.Text())
		if err != nil {
			return nil, fmt.Errorf("parse cgroup.procs pid: %w", err)
		}
		pids = append(pids, pid)
	}
	if err := procs.Err(); err != nil {
		return nil, fmt.Errorf("scan cgroup.procs: %w", err)
	}

	return pids, nil
}

const (
	// cgroupProcs is the name of the file that contains all processes
	// within a cgroup.
	cgroupProcs = "cgroup.procs"
)
