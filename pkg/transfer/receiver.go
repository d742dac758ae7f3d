package transfer

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"
)

// AcceptTimeout bounds how long a receiver waits for the peer to
// connect before abandoning the file.
const AcceptTimeout = 5 * time.Second

// Receiver accepts exactly one TCP connection on an ephemeral port and
// streams the peer's bytes into one destination file. The listener is
// open and accepting from the moment NewReceiver returns, so the
// coordinator can safely announce the port before the receiver task has
// been scheduled.
type Receiver struct {
	listener *net.TCPListener
	dest     string
}

// NewReceiver opens an ephemeral-port listener for a single file
// destined for repoDir. The filename is flattened to its base name so a
// peer cannot write outside the repository.
func NewReceiver(repoDir, filename string) (*Receiver, error) {
	addr, err := net.ResolveTCPAddr("tcp", ":0")
	if err != nil {
		return nil, fmt.Errorf("failed to resolve listen address: %w", err)
	}
	listener, err := net.ListenTCP("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open transfer listener: %w", err)
	}
	return &Receiver{
		listener: listener,
		dest:     filepath.Join(repoDir, filepath.Base(filename)),
	}, nil
}

// Port returns the OS-allocated listener port.
func (r *Receiver) Port() int {
	return r.listener.Addr().(*net.TCPAddr).Port
}

// Dest returns the destination file path.
func (r *Receiver) Dest() string {
	return r.dest
}

// Close abandons the receiver without accepting a connection.
func (r *Receiver) Close() error {
	return r.listener.Close()
}

// Run accepts one connection within acceptTimeout and appends the
// peer's bytes to the destination file until the peer closes the
// socket. Returns the byte count on a clean close. On accept timeout or
// read failure the file is abandoned and an error returned.
func (r *Receiver) Run(acceptTimeout time.Duration) (int64, error) {
	defer r.listener.Close()

	if err := r.listener.SetDeadline(time.Now().Add(acceptTimeout)); err != nil {
		return 0, fmt.Errorf("failed to set accept deadline: %w", err)
	}

	conn, err := r.listener.Accept()
	if err != nil {
		return 0, fmt.Errorf("no connection within %s: %w", acceptTimeout, err)
	}
	defer conn.Close()

	// One connection per file; stop listening immediately.
	r.listener.Close()

	file, err := os.OpenFile(r.dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		return 0, fmt.Errorf("failed to open destination file: %w", err)
	}

	written, err := io.Copy(file, conn)
	if err != nil {
		file.Close()
		return written, fmt.Errorf("transfer aborted after %d bytes: %w", written, err)
	}

	if err := file.Sync(); err != nil {
		file.Close()
		return written, fmt.Errorf("failed to flush destination file: %w", err)
	}
	if err := file.Close(); err != nil {
		return written, fmt.Errorf("failed to close destination file: %w", err)
	}

	return written, nil
}

// Send streams the file at path to the receiver listening at host:port
// and closes the socket, signalling a clean end of file.
func Send(host string, port int, path string) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open sample file: %w", err)
	}
	defer file.Close()

	conn, err := net.DialTimeout("tcp", net.JoinHostPort(host, fmt.Sprintf("%d", port)), AcceptTimeout)
	if err != nil {
		return fmt.Errorf("failed to connect to receiver: %w", err)
	}
	defer conn.Close()

	if _, err := io.Copy(conn, file); err != nil {
		return fmt.Errorf("failed to stream sample file: %w", err)
	}

	return nil
}

// IsTimeout reports whether err is a network timeout (an abandoned
// accept rather than a failed read).
func IsTimeout(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
