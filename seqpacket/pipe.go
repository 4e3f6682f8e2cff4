//go:build linux

// Package seqpacket implements a message-mode xenconsole.Endpoint over
// AF_UNIX SOCK_SEQPACKET sockets. Every write of the server arrives as one
// record, so a read never returns parts of two messages.
//
// Reads run on goroutines of an errgroup owned by the Pipe. A fault returned
// by a read completion is kept by the group and reported by Wait.
package seqpacket

import (
	"io"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sys/unix"

	"github.com/borzel/xenconsole"
)

const network = "unixpacket"

// Mode is the access a Pipe is opened with.
type Mode int

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	ModeReadWrite = ModeRead | ModeWrite
)

func (m Mode) String() string {
	switch m {
	case ModeRead:
		return "read"
	case ModeWrite:
		return "write"
	case ModeReadWrite:
		return "read-write"
	default:
		return "none"
	}
}

// Errors returned by a Pipe.
var (
	ErrNotConnected     = errors.New("pipe is not connected")
	ErrAlreadyConnected = errors.New("pipe is already connected")
	ErrClosed           = errors.New("pipe is closed")
	ErrInvalidRead      = errors.New("pending read was not issued by this pipe")
)

// readOp is the PendingRead of a Pipe.
type readOp struct {
	n   int
	err error
}

// Pipe is the client end of a SOCK_SEQPACKET console channel.
type Pipe struct {
	path string
	mode Mode
	opts pipeOptions

	group errgroup.Group

	mu     sync.Mutex
	conn   *net.UnixConn
	closed bool
}

// NewPipe opens a pipe to the socket at path without connecting it.
func NewPipe(path string, mode Mode, opt ...Option) *Pipe {
	var opts pipeOptions
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Pipe{
		path: path,
		mode: mode,
		opts: opts,
	}
}

// Path returns the socket path.
func (p *Pipe) Path() string {
	return p.path
}

// Connect dials the server. A pipe that is not opened ModeReadWrite, or a
// socket the process may not open, fails with an *xenconsole.AccessError.
// While the socket is missing or refuses connections Connect retries until
// the connect timeout expires.
func (p *Pipe) Connect() error {
	if p.mode != ModeReadWrite {
		return &xenconsole.AccessError{Path: p.path, Err: xenconsole.ErrAccessDenied}
	}

	p.mu.Lock()
	switch {
	case p.closed:
		p.mu.Unlock()
		return ErrClosed
	case p.conn != nil:
		p.mu.Unlock()
		return ErrAlreadyConnected
	}
	p.mu.Unlock()

	conn, err := p.dial()
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		conn.Close()
		return ErrClosed
	}
	p.conn = conn
	return nil
}

func (p *Pipe) dial() (*net.UnixConn, error) {
	addr := &net.UnixAddr{Name: p.path, Net: network}
	deadline := time.Now().Add(p.opts.connectTimeout)

	for attempt := 1; ; attempt++ {
		conn, err := net.DialUnix(network, nil, addr)
		if err == nil {
			p.opts.logger.Debug("pipe connected", "path", p.path, "attempts", attempt)
			return conn, nil
		}

		if errors.Is(err, unix.EACCES) || errors.Is(err, unix.EPERM) {
			return nil, &xenconsole.AccessError{Path: p.path, Err: xenconsole.ErrAccessDenied}
		}
		if !retryable(err) || !time.Now().Add(p.opts.retryInterval).Before(deadline) {
			return nil, errors.Wrapf(err, "dial %s", p.path)
		}
		time.Sleep(p.opts.retryInterval)
	}
}

// retryable reports whether the server may simply not be listening yet.
func retryable(err error) bool {
	return errors.Is(err, unix.ENOENT) || errors.Is(err, unix.ECONNREFUSED)
}

// BeginRead reads the next record into buf on a group goroutine and then
// calls done.
func (p *Pipe) BeginRead(buf []byte, done xenconsole.Completion) (xenconsole.PendingRead, error) {
	p.mu.Lock()
	conn, closed := p.conn, p.closed
	p.mu.Unlock()

	switch {
	case conn == nil && closed:
		return nil, ErrClosed
	case conn == nil:
		return nil, ErrNotConnected
	}

	op := &readOp{}
	if closed {
		// Closed locally between two reads: report it like a pending read
		// interrupted by Close.
		op.err = net.ErrClosed
		p.group.Go(func() error {
			return done(op)
		})
		return op, nil
	}

	p.group.Go(func() error {
		n, _, flags, _, err := conn.ReadMsgUnix(buf, nil)
		op.n, op.err = n, err
		if err == nil && flags&unix.MSG_TRUNC != 0 {
			op.err = xenconsole.ErrMoreData
		}
		return done(op)
	})
	return op, nil
}

// EndRead returns the size of the record read by pr. A closed peer, or a
// pipe closed locally while the read was pending, reads as zero bytes.
func (p *Pipe) EndRead(pr xenconsole.PendingRead) (int, error) {
	op, ok := pr.(*readOp)
	if !ok {
		return 0, ErrInvalidRead
	}

	switch {
	case op.err == nil:
		return op.n, nil
	case errors.Is(op.err, io.EOF), errors.Is(op.err, net.ErrClosed):
		return 0, nil
	default:
		return op.n, op.err
	}
}

// Wait blocks until no read is pending and returns the first fault raised
// by a read completion.
func (p *Pipe) Wait() error {
	return p.group.Wait()
}

// PeerCredentials returns the process credentials of the server.
func (p *Pipe) PeerCredentials() (*unix.Ucred, error) {
	p.mu.Lock()
	conn := p.conn
	p.mu.Unlock()

	if conn == nil {
		return nil, ErrNotConnected
	}

	raw, err := conn.SyscallConn()
	if err != nil {
		return nil, errors.Wrap(err, "syscall conn")
	}

	var (
		cred    *unix.Ucred
		credErr error
	)
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil {
		return nil, errors.Wrap(err, "control")
	}
	if credErr != nil {
		return nil, errors.Wrap(credErr, "SO_PEERCRED")
	}
	return cred, nil
}

// Close closes the pipe. A pending read completes as a clean disconnect.
// Safe to call multiple times.
func (p *Pipe) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	p.closed = true

	if p.conn == nil {
		return nil
	}
	return p.conn.Close()
}
