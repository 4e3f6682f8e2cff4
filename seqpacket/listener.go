//go:build linux

package seqpacket

import (
	"context"
	"log/slog"
	"net"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/borzel/xenconsole"
)

// Handler handles one accepted console connection.
// Each Write on the connection is delivered to the client as one message.
type Handler interface {
	Handle(conn *net.UnixConn)
}

// HandlerFunc adapts a function to the Handler interface.
type HandlerFunc func(conn *net.UnixConn)

// Handle calls f(conn).
func (f HandlerFunc) Handle(conn *net.UnixConn) {
	f(conn)
}

// Listener is the server end of a console channel. The Stream never needs
// it; it backs the demo console server and tests.
type Listener struct {
	listener *net.UnixListener
	logger   xenconsole.Logger

	mu       sync.Mutex
	shutdown bool
}

// Listen creates the socket at path and starts listening on it.
// A stale socket file left behind by a previous server is removed first.
func Listen(path string, opts ...ListenerOption) (*Listener, error) {
	if fi, err := os.Lstat(path); err == nil && fi.Mode()&os.ModeSocket != 0 {
		if err := os.Remove(path); err != nil {
			return nil, errors.Wrap(err, "remove stale socket")
		}
	}

	listener, err := net.ListenUnix(network, &net.UnixAddr{Name: path, Net: network})
	if err != nil {
		return nil, errors.Wrapf(err, "listen %s", path)
	}

	l := &Listener{
		listener: listener,
		logger:   slog.Default().With("component", "seqpacket"),
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Serve accepts connections and dispatches each to handler on its own
// goroutine. It blocks until the context is canceled, Close is called, or
// Accept fails.
func (l *Listener) Serve(ctx context.Context, handler Handler) error {
	l.logger.Info("listener started", "addr", l.listener.Addr())

	go func() {
		<-ctx.Done()

		l.mu.Lock()
		l.shutdown = true
		l.mu.Unlock()
		// Unblock Accept.
		_ = l.listener.SetDeadline(time.Now())
	}()

	for {
		conn, err := l.listener.AcceptUnix()
		if err != nil {
			l.mu.Lock()
			isShutdown := l.shutdown
			l.mu.Unlock()

			if isShutdown {
				l.logger.Info("listener stopped", "addr", l.listener.Addr())
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return ErrClosed
			}

			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			l.logger.Error("accept error", "error", err)
			return err
		}

		l.logger.Debug("accepted connection", "addr", l.listener.Addr())
		go handler.Handle(conn)
	}
}

// Close stops the listener and removes its socket file.
func (l *Listener) Close() error {
	l.mu.Lock()
	l.shutdown = true
	l.mu.Unlock()

	return l.listener.Close()
}

// Addr returns the listener's socket address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}
