// Package endpoint implements named local endpoints: unix-domain sockets
// addressed by the "dfm-worker-<protocol>-<uuid>" naming scheme (spec §6.2),
// each accepted connection handed off as a *conn.Conn.
package endpoint

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/tjper/workerfabric/internal/conn"
)

// Name builds the endpoint name a ProcessWorker's sidecar will dial, unique
// per spawn.
func Name(protocol string) string {
	return fmt.Sprintf("dfm-worker-%s-%s", protocol, uuid.New())
}

// socketDir is the directory named endpoints are created under.
var socketDir = os.TempDir()

// Path returns the filesystem path backing the named endpoint.
func Path(name string) string {
	return filepath.Join(socketDir, name)
}

// Listen removes any stale socket file at name's path, then listens on a
// unix-domain socket there.
func Listen(name string) (*Server, error) {
	path := Path(name)

	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("endpoint: remove stale socket %s: %w", path, err)
	}

	lis, err := net.Listen("unix", path)
	if err != nil {
		return nil, fmt.Errorf("endpoint: listen %s: %w", path, err)
	}

	return &Server{lis: lis, path: path}, nil
}

// Dial connects to a named endpoint as a client, wrapping the resulting
// stream in a *conn.Conn.
func Dial(name string) (*conn.Conn, error) {
	c, err := net.Dial("unix", Path(name))
	if err != nil {
		return nil, fmt.Errorf("endpoint: dial %s: %w", name, err)
	}
	return conn.New(c), nil
}

// Server accepts inbound connections on a named local endpoint.
type Server struct {
	lis  net.Listener
	path string
}

// Accept blocks until a connection arrives or the Server is closed, handing
// off each accepted stream as a *conn.Conn.
func (s *Server) Accept() (*conn.Conn, error) {
	c, err := s.lis.Accept()
	if err != nil {
		return nil, fmt.Errorf("endpoint: accept: %w", err)
	}
	return conn.New(c), nil
}

// Close stops listening and removes the backing socket file.
func (s *Server) Close() error {
	err := s.lis.Close()
	if rmErr := os.Remove(s.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		return fmt.Errorf("endpoint: remove socket %s: %w", s.path, rmErr)
	}
	return err
}
