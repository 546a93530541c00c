// Package cgroup places Supervisor child processes under Linux cgroups v2
// resource limits: memory, CPU, and per-device disk bandwidth.
package cgroup

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/tjper/workerfabric/internal/log"

	"github.com/google/uuid"
	"golang.org/x/sys/unix"
)

var logger = log.New(os.Stdout, "cgroup")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "cgroup") }

// NewService mounts (or reuses) the cgroup2 filesystem at mountPath and
// creates a fabric base cgroup beneath it. NewService requires root.
func NewService(options ...ServiceOption) (*Service, error) {
	s := &Service{
		mountPath: mountPath,
	}
	for _, option := range options {
		option(s)
	}

	s.path = path.Join(s.mountPath, fabricBase)

	if err := s.mount(); err != nil {
		return nil, err
	}

	controllers := []string{cpu, memory, io}
	if err := s.enableControllers(controllers); err != nil {
		return nil, err
	}

	return s, nil
}

// Service facilitates cgroup interactions. Service currently only supports
// cgroups v2.
type Service struct {
	mountPath string
	path      string
}

// ServiceOption mutates the Service instance. Typically used with
// NewService.
type ServiceOption func(*Service)

// WithMountPath configures the Service instance to mount cgroup2 on
// mountPath instead of the default.
func WithMountPath(mountPath string) ServiceOption {
	return func(s *Service) { s.mountPath = mountPath }
}

// CreateCgroup creates a new Cgroup under the Service's base cgroup.
// CgroupOptions configure the limits applied.
func (s Service) CreateCgroup(options ...CgroupOption) (*Cgroup, error) {
	id := uuid.New()
	cgroup := &Cgroup{
		ID:      id,
		service: s,
		path:    path.Join(s.path, id.String()),
	}
	for _, option := range options {
		option(cgroup)
	}

	if err := cgroup.create(); err != nil {
		return nil, err
	}

	return cgroup, nil
}

// PlaceInCgroup places pid in cgroup.
func (s Service) PlaceInCgroup(cgroup Cgroup, pid int) error {
	return cgroup.placePID(pid)
}

// RemoveCgroup removes the cgroup uniquely identified by id, relocating any
// remaining pids to the root cgroup first.
func (s Service) RemoveCgroup(id uuid.UUID) error {
	cgroup := Cgroup{ID: id, service: s, path: path.Join(s.path, id.String())}
	return cgroup.remove()
}

// Cleanup removes all fabric Service resources and unmounts cgroup2. Call
// before process exit when a Service was created.
func (s Service) Cleanup() error {
	if err := s.cleanup(); err != nil {
		return err
	}
	return s.unmount()
}

// placeInRootCgroup moves the pids into the root cgroup.
func (s Service) placeInRootCgroup(pids []int) error {
	file := path.Join(s.mountPath, cgroupProcs)
	fd, err := os.OpenFile(file, os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("open root cgroup: %w", err)
	}
	defer fd.Close()

	for _, pid := range pids {
		if _, err := fd.WriteString(strconv.Itoa(pid)); err != nil {
			return fmt.Errorf("write to root cgroup: %w", err)
		}
	}

	return nil
}

// mount sets up the cgroup2 filesystem and creates the fabric base cgroup.
func (s Service) mount() error {
	if err := os.MkdirAll(s.mountPath, fileMode); err != nil {
		return fmt.Errorf("mount service %s: %w", s.mountPath, err)
	}

	entries, err := os.ReadDir(s.mountPath)
	if err != nil || len(entries) == 0 {
		if err := s.mountCgroup2(); err != nil {
			return err
		}
	}

	if err := os.MkdirAll(s.path, fileMode); err != nil {
		return fmt.Errorf("create fabric base cgroup: %w", err)
	}

	return nil
}

func (s Service) mountCgroup2() error {
	if err := unix.Mount("none", s.mountPath, "cgroup2", 0, ""); err != nil {
		return fmt.Errorf("mount cgroup2 %s: %w", s.mountPath, err)
	}
	return nil
}

// cleanup walks the Service base directory, moving all pids into the root
// cgroup and removing each cgroup directory.
func (s Service) cleanup() error {
	var cgroups []uuid.UUID

	if err := filepath.WalkDir(s.path, func(walkPath string, d fs.DirEntry, err error) error {
		if err != nil {
			logger.Errorf("cleanup walking dir: %s", err)
			return nil
		}

		if !d.Type().IsRegular() || d.Name() != cgroupProcs {
			return nil
		}

		parts := strings.Split(walkPath, s.mountPath)
		if len(parts) != 2 {
			return nil
		}

		cgroup2Path := parts[1]
		parts = strings.Split(cgroup2Path, string(filepath.Separator))
		if len(parts) != 4 {
			return nil
		}

		cgroupID, err := uuid.Parse(parts[2])
		if err != nil {
			logger.Errorf("non-uuid dir; dir: %s", parts[2])
			return nil
		}

		cgroups = append(cgroups, cgroupID)
		return nil
	}); err != nil {
		return fmt.Errorf("cleanup fabric cgroup: %w", err)
	}

	for _, cgroup := range cgroups {
		if err := s.RemoveCgroup(cgroup); err != nil {
			return err
		}
	}

	if err := unix.Rmdir(s.path); err != nil {
		return fmt.Errorf("rm fabric cgroup: %w", err)
	}

	return nil
}

func (s Service) unmount() error {
	if err := unix.Unmount(s.mountPath, 0); err != nil {
		return fmt.Errorf("unmount cgroup2: %w", err)
	}
	return nil
}

// enableControllers enables the passed controllers for the root and fabric
// base cgroup.
func (s Service) enableControllers(controllers []string) error {
	if err := enableControllers(s.mountPath, controllers); err != nil {
		return err
	}
	return enableControllers(s.path, controllers)
}

func enableControllers(dir string, controllers []string) error {
	fd, err := os.OpenFile(path.Join(dir, cgroupSubtreeControl), os.O_WRONLY, fileMode)
	if err != nil {
		return fmt.Errorf("open %s subtree_control: %w", dir, err)
	}
	defer fd.Close()

	for _, controller := range controllers {
		if _, err := fd.WriteString(fmt.Sprintf("+%s", controller)); err != nil {
			return fmt.Errorf("enable %s %s controller: %w", dir, controller, err)
		}
	}

	return nil
}

const (
	fileMode   = 0644
	mountPath  = "/sys/fs/cgroup/workerfabric"
	fabricBase = "jobs"
)
