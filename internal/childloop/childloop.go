// Package childloop implements the Child Event Loop: the re-exec'd
// Supervisor child that shares one listening socket and one accept
// mutex with its siblings, accepts connections under the thundering-herd
// guard, and frames/dispatches each client's bytes.
package childloop

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/tjper/workerfabric/internal/acceptmutex"
	"github.com/tjper/workerfabric/internal/frame"
	"github.com/tjper/workerfabric/internal/log"
	"golang.org/x/sys/unix"
)

var logger = log.New(io.Discard, "childloop")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "childloop") }

const maxEvents = 64

// Dispatcher handles one fully-reassembled frame from a client and
// returns the frame to write back. A false ok sends nothing. The
// concrete application protocol fronting the shared socket is left to
// the integrator (spec §4.9 deliberately leaves the payload unspecified);
// cmd/master's child role passes echoDispatch, which echoes every task
// command back as a RESULT so the accept/frame/dispatch path is exercised
// end-to-end.
type Dispatcher func(cmd int32, payload []byte) (replyCmd int32, replyPayload []byte, ok bool)

// Run drives the event loop until eventFd becomes readable (the
// Supervisor's SIGTERM handler writes to it) or an unrecoverable epoll
// error occurs. lisFd is the shared listening socket; mutex is this
// child's mapping of the shared accept-mutex region.
func Run(lisFd int, mutex *acceptmutex.Mutex, eventFd int, dispatch Dispatcher) error {
	epfd, err := unix.EpollCreate1(0)
	if err != nil {
		return fmt.Errorf("childloop: epoll_create1: %w", err)
	}
	defer unix.Close(epfd)

	if err := epollAdd(epfd, lisFd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("childloop: register listener: %w", err)
	}
	if err := epollAdd(epfd, eventFd, unix.EPOLLIN); err != nil {
		return fmt.Errorf("childloop: register eventfd: %w", err)
	}

	clients := make(map[int]*client)
	defer func() {
		for fd := range clients {
			unix.Close(fd)
		}
	}()

	events := make([]unix.EpollEvent, maxEvents)
	for {
		n, err := unix.EpollWait(epfd, events, -1)
		if err == unix.EINTR {
			continue
		}
		if err != nil {
			return fmt.Errorf("childloop: epoll_wait: %w", err)
		}

		for i := 0; i < n; i++ {
			fd := int(events[i].Fd)

			switch fd {
			case eventFd:
				logger.Infof("shutdown signaled")
				return nil
			case lisFd:
				acceptUnderMutex(epfd, lisFd, mutex, clients)
			default:
				c, ok := clients[fd]
				if !ok {
					continue
				}
				if events[i].Events&(unix.EPOLLHUP|unix.EPOLLERR) != 0 {
					closeClient(epfd, clients, c)
					continue
				}
				if err := c.drain(dispatch); err != nil {
					closeClient(epfd, clients, c)
				}
			}
		}
	}
}

// acceptUnderMutex implements §4.9's thundering-herd guard: only the
// child that wins the CAS drains accept() to EAGAIN.
func acceptUnderMutex(epfd, lisFd int, mutex *acceptmutex.Mutex, clients map[int]*client) {
	if !mutex.TryAcquire() {
		return
	}
	defer mutex.Release()

	for {
		fd, _, err := unix.Accept4(lisFd, unix.SOCK_NONBLOCK)
		if err != nil {
			if err == unix.EAGAIN {
				return
			}
			logger.Warnf("accept: %s", err)
			return
		}

		if err := epollAdd(epfd, fd, unix.EPOLLIN|unix.EPOLLET); err != nil {
			logger.Warnf("register client fd %d: %s", fd, err)
			unix.Close(fd)
			continue
		}
		clients[fd] = &client{fd: fd}
	}
}

func closeClient(epfd int, clients map[int]*client, c *client) {
	unix.EpollCtl(epfd, unix.EPOLL_CTL_DEL, c.fd, nil)
	unix.Close(c.fd)
	delete(clients, c.fd)
}

// client holds one accepted, edge-triggered, non-blocking connection's
// partial-frame reassembly buffer.
type client struct {
	fd  int
	buf []byte
}

// drain reads until EAGAIN (edge-triggered semantics require draining
// the fd fully on each wakeup), reassembles complete frames from the
// accumulated buffer, and writes back whatever the Dispatcher returns.
func (c *client) drain(dispatch Dispatcher) error {
	tmp := make([]byte, 4096)
	for {
		n, err := unix.Read(c.fd, tmp)
		if n > 0 {
			c.buf = append(c.buf, tmp[:n]...)
		}
		if err == unix.EAGAIN {
			break
		}
		if n == 0 || err != nil {
			return io.EOF
		}
	}

	for {
		cmd, payload, consumed, ok := parseFrame(c.buf)
		if !ok {
			break
		}
		c.buf = c.buf[consumed:]

		if dispatch == nil {
			continue
		}
		replyCmd, replyPayload, ok := dispatch(cmd, payload)
		if !ok {
			continue
		}
		if err := c.write(replyCmd, replyPayload); err != nil {
			return err
		}
	}
	return nil
}

func (c *client) write(cmd int32, payload []byte) error {
	var buf writeBuf
	if err := frame.Encode(&buf, cmd, payload); err != nil {
		return err
	}
	_, err := unix.Write(c.fd, buf.b)
	return err
}

// writeBuf adapts frame.Encode (which wants an io.Writer) to a plain
// byte slice this package then writes to the raw fd with unix.Write.
type writeBuf struct{ b []byte }

func (w *writeBuf) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// parseFrame extracts one complete frame from buf, mirroring
// internal/frame's header layout without requiring a blocking
// io.Reader, since buf is filled from non-blocking reads.
func parseFrame(buf []byte) (cmd int32, payload []byte, consumed int, ok bool) {
	const headerSize = 8
	if len(buf) < headerSize {
		return 0, nil, 0, false
	}
	c := int32(binary.BigEndian.Uint32(buf[0:4]))
	size := int32(binary.BigEndian.Uint32(buf[4:8]))
	if size < 0 || size > frame.MaxPayloadSize {
		return 0, nil, 0, false
	}
	total := headerSize + int(size)
	if len(buf) < total {
		return 0, nil, 0, false
	}
	payload = make([]byte, size)
	copy(payload, buf[headerSize:total])
	return c, payload, total, true
}

func epollAdd(epfd, fd int, events uint32) error {
	return unix.EpollCtl(epfd, unix.EPOLL_CTL_ADD, fd, &unix.EpollEvent{
		Fd:     int32(fd),
		Events: events,
	})
}

// NewShutdownEventFd creates an eventfd the caller's signal handler
// writes to in order to break Run's epoll_wait.
func NewShutdownEventFd() (int, error) {
	return unix.Eventfd(0, unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
}

// SignalShutdown wakes a Run loop blocked in epoll_wait on eventFd.
func SignalShutdown(eventFd int) error {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], 1)
	_, err := unix.Write(eventFd, buf[:])
	return os.NewSyscallError("write", err)
}
