// Package supervisor implements the Master process: it binds the
// fabric's listening socket, maps the shared accept-mutex region, and
// re-execs a configurable number of child processes that share both,
// restarting children that exit unexpectedly and tearing the whole set
// down on SIGHUP.
package supervisor

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/tjper/workerfabric/internal/acceptmutex"
	"github.com/tjper/workerfabric/internal/cgroup"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/protocol"
)

var logger = log.New(io.Discard, "supervisor")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "supervisor") }

// DefaultChildren is the default number of children forked at startup.
const DefaultChildren = 4

// terminateGrace matches the grace window ProcessWorker.Terminate uses
// before escalating to SIGKILL.
const terminateGrace = 3 * time.Second

// Config configures a Supervisor.
type Config struct {
	// Addr is the TCP address the shared listening socket binds, e.g.
	// ":9443".
	Addr string
	// Children is how many child processes to maintain. Zero uses
	// DefaultChildren.
	Children int

	// CgroupMemory, if non-zero, caps each child's memory.high in bytes.
	CgroupMemory uint64
	// CgroupCpus, if non-zero, caps each child's cpu.max in cores.
	CgroupCpus float32
}

// Start binds the listening socket, maps a fresh accept-mutex region,
// spawns cfg.Children child processes, and installs signal handling. The
// returned Supervisor's Wait blocks until shutdown completes.
func Start(ctx context.Context, cfg Config) (*Supervisor, error) {
	if cfg.Children <= 0 {
		cfg.Children = DefaultChildren
	}

	lc := net.ListenConfig{Control: setReuseAddr}
	lis, err := lc.Listen(ctx, "tcp", cfg.Addr)
	if err != nil {
		return nil, fmt.Errorf("supervisor: listen %s: %w", cfg.Addr, err)
	}

	tcpLis, ok := lis.(*net.TCPListener)
	if !ok {
		lis.Close()
		return nil, fmt.Errorf("supervisor: expected *net.TCPListener")
	}
	lisFile, err := tcpLis.File()
	if err != nil {
		lis.Close()
		return nil, fmt.Errorf("supervisor: dup listener fd: %w", err)
	}

	mutex, mutexFile, err := acceptmutex.New()
	if err != nil {
		lis.Close()
		return nil, err
	}

	self, err := os.Executable()
	if err != nil {
		lis.Close()
		mutex.Close()
		return nil, fmt.Errorf("supervisor: resolve executable: %w", err)
	}

	var cgroups *cgroup.Service
	if cfg.CgroupMemory > 0 || cfg.CgroupCpus > 0 {
		cgroups, err = cgroup.NewService()
		if err != nil {
			logger.Warnf("cgroup resource limits disabled: %s", err)
			cgroups = nil
		}
	}

	s := &Supervisor{
		cfg:      cfg,
		self:     self,
		lis:      lis,
		lisFile:  lisFile,
		mutex:    mutex,
		cgroups:  cgroups,
		restart:  make(chan struct{}, 1),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.mutexFile = mutexFile

	s.mutexReg.Lock()
	for i := 0; i < cfg.Children; i++ {
		s.spawnLocked()
	}
	s.mutexReg.Unlock()

	go s.handleSignals()
	go s.superviseLoop()

	return s, nil
}

// Supervisor owns the shared listening socket and accept mutex and
// supervises the child process set.
type Supervisor struct {
	cfg  Config
	self string

	lis     net.Listener
	lisFile *os.File

	mutex     *acceptmutex.Mutex
	mutexFile *os.File

	cgroups *cgroup.Service

	mutexReg sync.Mutex
	children []*child

	restart  chan struct{}
	shutdown chan struct{}
	done     chan struct{}
	exitOnce sync.Once
}

type child struct {
	cmd    *exec.Cmd
	cancel context.CancelFunc
	cgroup *cgroup.Cgroup

	// terminating is set by terminateChild before it signals the process, so
	// waitChild knows its exit was requested rather than unexpected and
	// skips the respawn: restartAll terminates the old set and spawns a
	// fresh one itself, so a waitChild-driven respawn on top of that would
	// leave twice the configured child count running.
	terminating atomic.Bool
	// waited is closed once waitChild's own cmd.Wait() returns, letting
	// terminateChild await that result instead of issuing a second,
	// unsynchronized Wait() call on the same *exec.Cmd.
	waited chan struct{}
}

// spawnLocked re-execs one child. Callers must hold s.mutexReg.
func (s *Supervisor) spawnLocked() {
	ctx, cancel := context.WithCancel(context.Background())
	cmd := exec.CommandContext(ctx, s.self, protocol.SubcommandChild)
	cmd.ExtraFiles = []*os.File{s.lisFile, s.mutexFile}
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		logger.Errorf("spawn child: %s", err)
		cancel()
		return
	}

	c := &child{cmd: cmd, cancel: cancel, waited: make(chan struct{})}
	s.children = append(s.children, c)
	logger.Infof("spawned child; pid: %d", cmd.Process.Pid)

	if s.cgroups != nil {
		c.cgroup = s.placeInCgroupLocked(cmd.Process.Pid)
	}

	go s.waitChild(c)
}

// placeInCgroupLocked creates a cgroup limited to s.cfg's resource caps and
// moves pid into it. Failures are logged and otherwise non-fatal: a child
// that can't be placed in a cgroup still runs, just without the resource
// cap. Callers must hold s.mutexReg.
func (s *Supervisor) placeInCgroupLocked(pid int) *cgroup.Cgroup {
	cg, err := s.cgroups.CreateCgroup(cgroup.WithMemory(s.cfg.CgroupMemory), cgroup.WithCpus(s.cfg.CgroupCpus))
	if err != nil {
		logger.Warnf("create cgroup for pid %d: %s", pid, err)
		return nil
	}
	if err := s.cgroups.PlaceInCgroup(*cg, pid); err != nil {
		logger.Warnf("place pid %d in cgroup: %s", pid, err)
	}
	return cg
}

// waitChild blocks until c exits, then (outside of a shutdown) requests a
// replacement to restore the configured child count.
func (s *Supervisor) waitChild(c *child) {
	err := c.cmd.Wait()
	close(c.waited)

	s.mutexReg.Lock()
	for i, existing := range s.children {
		if existing == c {
			s.children = append(s.children[:i], s.children[i+1:]...)
			break
		}
	}
	s.mutexReg.Unlock()

	s.removeCgroup(c)

	if c.terminating.Load() {
		return
	}

	select {
	case <-s.shutdown:
		return
	default:
	}

	logger.Warnf("child exited unexpectedly; pid: %d, error: %v", c.cmd.Process.Pid, err)

	s.mutexReg.Lock()
	s.spawnLocked()
	s.mutexReg.Unlock()
}

// handleSignals installs SIGINT/SIGTERM/SIGHUP handling. Go's runtime
// reaps child process state through exec.Cmd.Wait rather than a manual
// SIGCHLD/waitpid loop, so waitChild (above) is this supervisor's
// equivalent of the original's SIGCHLD handler.
func (s *Supervisor) handleSignals() {
	sigs := make(chan os.Signal, 4)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)

	for {
		select {
		case sig := <-sigs:
			switch sig {
			case syscall.SIGINT, syscall.SIGTERM:
				s.Shutdown()
				return
			case syscall.SIGHUP:
				s.restartAll()
			}
		case <-s.done:
			return
		}
	}
}

// restartAll terminates every current child and spawns a fresh set,
// implementing SIGHUP's graceful-restart semantics.
func (s *Supervisor) restartAll() {
	logger.Infof("restarting children")

	s.mutexReg.Lock()
	old := s.children
	s.children = nil
	s.mutexReg.Unlock()

	for _, c := range old {
		terminateChild(c)
	}

	s.mutexReg.Lock()
	for i := 0; i < s.cfg.Children; i++ {
		s.spawnLocked()
	}
	s.mutexReg.Unlock()
}

// Shutdown terminates all children, closes the listening socket, and
// unblocks Wait. Shutdown is idempotent.
func (s *Supervisor) Shutdown() {
	s.exitOnce.Do(func() {
		close(s.shutdown)
		logger.Infof("shutting down")

		s.mutexReg.Lock()
		children := s.children
		s.children = nil
		s.mutexReg.Unlock()

		for _, c := range children {
			terminateChild(c)
		}

		s.lis.Close()
		s.lisFile.Close()
		s.mutex.Close()
		s.mutexFile.Close()

		if s.cgroups != nil {
			if err := s.cgroups.Cleanup(); err != nil {
				logger.Warnf("cleanup cgroup service: %s", err)
			}
		}

		close(s.done)
	})
}

// Wait blocks until Shutdown completes.
func (s *Supervisor) Wait() { <-s.done }

// terminateChild signals c to exit and waits for waitChild's own Wait() to
// observe it, escalating to SIGKILL if it doesn't within terminateGrace.
// terminateChild never calls cmd.Wait() itself: os/exec.Cmd.Wait is not
// safe to call concurrently from two goroutines on the same *exec.Cmd, and
// waitChild is always already blocked in its own Wait() call for c.
func terminateChild(c *child) {
	if c.cmd.Process == nil {
		return
	}
	c.terminating.Store(true)
	pid := c.cmd.Process.Pid

	_ = syscall.Kill(-pid, syscall.SIGTERM)

	select {
	case <-c.waited:
	case <-time.After(terminateGrace):
		_ = syscall.Kill(-pid, syscall.SIGKILL)
		<-c.waited
	}
	c.cancel()
}

// removeCgroup removes c's cgroup, if one was assigned.
func (s *Supervisor) removeCgroup(c *child) {
	if c.cgroup == nil || s.cgroups == nil {
		return
	}
	if err := s.cgroups.RemoveCgroup(c.cgroup.ID); err != nil {
		logger.Warnf("remove cgroup for exited child: %s", err)
	}
}

// superviseLoop exists so a future richer supervision policy (e.g.
// exponential backoff on repeated crash-restarts) has a single place to
// live; today it only waits for shutdown.
func (s *Supervisor) superviseLoop() {
	<-s.shutdown
}

func setReuseAddr(_, _ string, c syscall.RawConn) error {
	var sockErr error
	err := c.Control(func(fd uintptr) {
		sockErr = syscall.SetsockoptInt(int(fd), syscall.SOL_SOCKET, syscall.SO_REUSEADDR, 1)
	})
	if err != nil {
		return err
	}
	return sockErr
}
