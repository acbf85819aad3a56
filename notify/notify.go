// Package notify implements the rendezvous channel between the runtime and a
// container init process. The runtime creates a Listener before the init
// process exists, hands it across the process boundary, and later connects a
// Socket to release the init process into the user workload.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"

	"github.com/containerd/log"
)

// startMessage is the payload that releases a waiting init process.
const startMessage = "start"

// maxSocketPathLen is the size of sockaddr_un.sun_path on Linux, minus the
// trailing NUL. Longer paths cannot be bound.
const maxSocketPathLen = 107

// Listener is the receiving end of the rendezvous. It must be created before
// the init process enters any new mount or user namespace: the socket path
// lives outside the container rootfs and may be unreachable afterwards.
type Listener struct {
	listener *net.UnixListener
	path     string
}

// NewListener binds a unix domain socket at path. The parent directory is
// created if needed.
func NewListener(path string) (*Listener, error) {
	if len(path) > maxSocketPathLen {
		return nil, fmt.Errorf("notify socket path %q longer than %d bytes", path, maxSocketPathLen)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create notify socket directory: %w", err)
	}
	l, err := net.ListenUnix("unix", &net.UnixAddr{Name: path, Net: "unix"})
	if err != nil {
		return nil, fmt.Errorf("bind notify socket %s: %w", path, err)
	}
	return &Listener{listener: l, path: path}, nil
}

// Path returns the filesystem path the listener is bound to.
func (l *Listener) Path() string {
	return l.path
}

// WaitForContainerStart blocks until a peer connects and sends the start
// message. Any other payload is an error.
func (l *Listener) WaitForContainerStart(ctx context.Context) error {
	conn, err := l.listener.AcceptUnix()
	if err != nil {
		return fmt.Errorf("accept on notify socket: %w", err)
	}
	defer conn.Close()

	buf := make([]byte, len(startMessage))
	if _, err := io.ReadFull(conn, buf); err != nil {
		return fmt.Errorf("read from notify socket: %w", err)
	}
	if string(buf) != startMessage {
		return fmt.Errorf("unexpected message %q on notify socket", buf)
	}
	log.G(ctx).WithField("socket", l.path).Debug("received container start")
	return nil
}

// File returns a duplicate of the underlying socket file, for handing the
// listener to another process. The listener itself stays usable.
func (l *Listener) File() (*os.File, error) {
	f, err := l.listener.File()
	if err != nil {
		return nil, fmt.Errorf("dup notify socket: %w", err)
	}
	return f, nil
}

// ListenerFromFile reconstructs a Listener from a file produced by File,
// typically on the far side of an exec boundary.
func ListenerFromFile(f *os.File, path string) (*Listener, error) {
	fl, err := net.FileListener(f)
	if err != nil {
		return nil, fmt.Errorf("reconstruct notify listener: %w", err)
	}
	ul, ok := fl.(*net.UnixListener)
	if !ok {
		fl.Close()
		return nil, fmt.Errorf("notify socket fd is a %T, not a unix socket", fl)
	}
	return &Listener{listener: ul, path: path}, nil
}

// Close shuts the listener down and unlinks the socket file.
func (l *Listener) Close() error {
	err := l.listener.Close()
	if rmErr := os.Remove(l.path); rmErr != nil && !errors.Is(rmErr, os.ErrNotExist) {
		// The net package unlinks sockets it bound itself; only surface
		// removal errors if closing also did not take care of it.
		if err == nil {
			err = rmErr
		}
	}
	return err
}

// Socket is the sending end of the rendezvous, used by `start` to release a
// created container into its workload.
type Socket struct {
	path string
}

// NewSocket returns a Socket for the listener bound at path.
func NewSocket(path string) *Socket {
	return &Socket{path: path}
}

// NotifyContainerStart connects to the listener and sends the start message.
func (s *Socket) NotifyContainerStart(ctx context.Context) error {
	conn, err := net.DialUnix("unix", nil, &net.UnixAddr{Name: s.path, Net: "unix"})
	if err != nil {
		return fmt.Errorf("dial notify socket %s: %w", s.path, err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(startMessage)); err != nil {
		return fmt.Errorf("write to notify socket: %w", err)
	}
	log.G(ctx).WithField("socket", s.path).Debug("sent container start")
	return nil
}
