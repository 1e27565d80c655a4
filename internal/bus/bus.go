// Package bus is the control channel between the CLI and a running daemon:
// a unix socket carrying one command byte per connection, plus a pid file.
package bus

import (
	"bufio"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	SockName = "control.sock"
	PidName  = "uttertype.pid"
	ProtoVer = "1"
)

// Commands understood by the daemon.
const (
	CmdToggle  byte = 't'
	CmdPress   byte = 'p'
	CmdRelease byte = 'r'
	CmdCancel  byte = 'c'
	CmdStatus  byte = 's'
	CmdVersion byte = 'v'
	CmdQuit    byte = 'q'
)

// ErrNotRunning is returned by SendCommand when no daemon listens.
var ErrNotRunning = errors.New("uttertype daemon is not running")

const replyTimeout = 5 * time.Second

// Dir is ~/.cache/uttertype.
func Dir() (string, error) {
	dir, err := os.UserCacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "uttertype"), nil
}

// ~/.cache/uttertype/control.sock
func SockPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, SockName), nil
}

// ~/.cache/uttertype/uttertype.pid
func PidPath() (string, error) {
	dir, err := Dir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, PidName), nil
}

type socketManager struct {
	path string
}

func (s *socketManager) listen() (net.Listener, error) {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o700); err != nil {
		return nil, err
	}
	_ = os.Remove(s.path) // stale socket from last run
	return net.Listen("unix", s.path)
}

func (s *socketManager) dial() (net.Conn, error) {
	return net.DialTimeout("unix", s.path, replyTimeout)
}

func (s *socketManager) send(cmd byte) (string, error) {
	c, err := s.dial()
	if err != nil {
		if errors.Is(err, os.ErrNotExist) || errors.Is(err, syscall.ECONNREFUSED) {
			return "", ErrNotRunning
		}
		return "", err
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(replyTimeout))

	if _, err := c.Write([]byte{cmd, '\n'}); err != nil {
		return "", err
	}
	resp, err := bufio.NewReader(c).ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("read reply: %w", err)
	}
	return strings.TrimRight(resp, "\n"), nil
}

type pidManager struct {
	path string
}

func (p *pidManager) create() error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o700); err != nil {
		return err
	}
	return os.WriteFile(p.path, []byte(strconv.Itoa(os.Getpid())), 0o600)
}

func (p *pidManager) remove() error {
	return os.Remove(p.path)
}

// checkExisting fails when the pid file names a live process.
func (p *pidManager) checkExisting() error {
	data, err := os.ReadFile(p.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return nil // invalid pid file, assume stale
	}
	if p.isProcessAlive(pid) {
		return fmt.Errorf("daemon already running with PID %d", pid)
	}
	return nil
}

func (p *pidManager) isProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

// Server owns the socket and the pid file of a running daemon.
type Server struct {
	sock *socketManager
	pid  *pidManager
	ln   net.Listener
}

// NewServer uses the default paths. Empty arguments fall back to them.
func NewServer(sockPath, pidPath string) (*Server, error) {
	var err error
	if sockPath == "" {
		if sockPath, err = SockPath(); err != nil {
			return nil, err
		}
	}
	if pidPath == "" {
		if pidPath, err = PidPath(); err != nil {
			return nil, err
		}
	}
	return &Server{sock: &socketManager{path: sockPath}, pid: &pidManager{path: pidPath}}, nil
}

// Open refuses to start a second daemon, then listens and writes the pid file.
func (s *Server) Open() (net.Listener, error) {
	if err := s.pid.checkExisting(); err != nil {
		return nil, err
	}
	ln, err := s.sock.listen()
	if err != nil {
		return nil, err
	}
	if err := s.pid.create(); err != nil {
		ln.Close()
		return nil, fmt.Errorf("failed to create PID file: %w", err)
	}
	s.ln = ln
	return ln, nil
}

// Close stops listening and removes the socket and the pid file.
func (s *Server) Close() error {
	var errs []error
	if s.ln != nil {
		if err := s.ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
	}
	if err := s.pid.remove(); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = append(errs, err)
	}
	_ = os.Remove(s.sock.path)
	return errors.Join(errs...)
}

// SendCommand sends cmd to the daemon at the default socket and returns
// its one-line reply.
func SendCommand(cmd byte) (string, error) {
	path, err := SockPath()
	if err != nil {
		return "", err
	}
	return SendCommandTo(path, cmd)
}

func SendCommandTo(sockPath string, cmd byte) (string, error) {
	return (&socketManager{path: sockPath}).send(cmd)
}
