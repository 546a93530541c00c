package cgroup

import (
	"bufio"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func isRoot() bool { return os.Geteuid() == 0 }

func TestServiceSetupAndCleanup(t *testing.T) {
	if !isRoot() {
		t.Skip("must be root to run")
	}

	dir := t.TempDir()
	service, err := NewService(WithMountPath(dir))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}

	if _, err := os.Stat(service.path); err != nil {
		t.Fatalf("stat service cgroup; path: %s, error: %s", service.path, err)
	}

	expected := []string{cpu, io, memory}
	controllers, err := readControllers(service.path)
	if err != nil {
		t.Fatalf("read service controllers; path: %s, error: %s", service.path, err)
	}
	for _, c := range expected {
		if !contains(controllers, c) {
			t.Fatalf("expected controller %s enabled; got %v", c, controllers)
		}
	}

	if err := service.Cleanup(); err != nil {
		t.Fatalf("cleanup: %s", err)
	}
}

func TestServiceCreatePlaceAndRemoveCgroup(t *testing.T) {
	if !isRoot() {
		t.Skip("must be root to run")
	}

	dir := t.TempDir()
	service, err := NewService(WithMountPath(dir))
	if err != nil {
		t.Fatalf("unexpected error: %s", err)
	}
	defer service.Cleanup()

	cg, err := service.CreateCgroup(WithMemory(64 * 1024 * 1024))
	if err != nil {
		t.Fatalf("create cgroup: %s", err)
	}

	if err := service.PlaceInCgroup(*cg, os.Getpid()); err != nil {
		t.Fatalf("place pid: %s", err)
	}

	pids, err := cg.readPids()
	if err != nil {
		t.Fatalf("read pids: %s", err)
	}
	if len(pids) != 1 || pids[0] != os.Getpid() {
		t.Fatalf("expected [%d]; got %v", os.Getpid(), pids)
	}

	if err := service.RemoveCgroup(cg.ID); err != nil {
		t.Fatalf("remove cgroup: %s", err)
	}
}

func readControllers(dir string) ([]string, error) {
	fd, err := os.Open(filepath.Join(dir, cgroupSubtreeControl))
	if err != nil {
		return nil, err
	}
	defer fd.Close()

	scanner := bufio.NewScanner(fd)
	var controllers []string
	for scanner.Scan() {
		controllers = append(controllers, strings.Fields(scanner.Text())...)
	}
	return controllers, scanner.Err()
}

func contains(set []string, v string) bool {
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}
