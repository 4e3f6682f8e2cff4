//go:build linux

package main

import (
	"bufio"
	"context"
	"flag"
	"log/slog"
	"net"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"

	"github.com/borzel/xenconsole/seqpacket"
)

// Server sends every line read from stdin to all attached clients,
// one line per message.
type Server struct {
	connID int64

	sync.RWMutex
	connections map[int64]*net.UnixConn
}

func newServer() *Server {
	return &Server{connections: make(map[int64]*net.UnixConn)}
}

func (s *Server) Handle(conn *net.UnixConn) {
	connID := atomic.AddInt64(&s.connID, 1)
	s.addConn(connID, conn)
	defer s.deleteConn(connID)

	// Clients never write; a read returns when they hang up.
	buf := make([]byte, 1)
	for {
		if _, err := conn.Read(buf); err != nil {
			return
		}
	}
}

// broadcast sends line to every client. An empty record reads as a hang-up
// on the client side, so empty lines are not sent.
func (s *Server) broadcast(line []byte) {
	if len(line) == 0 {
		return
	}

	s.RLock()
	defer s.RUnlock()

	for connID, conn := range s.connections {
		if _, err := conn.Write(line); err != nil {
			slog.Warn("write failed", "connID", connID, "error", err)
		}
	}
}

func (s *Server) addConn(connID int64, conn *net.UnixConn) {
	s.Lock()
	defer s.Unlock()

	slog.Info("client attached", "connID", connID)
	s.connections[connID] = conn
}

func (s *Server) deleteConn(connID int64) {
	s.Lock()
	defer s.Unlock()

	if conn, ok := s.connections[connID]; ok {
		conn.Close()
		delete(s.connections, connID)
		slog.Info("client detached", "connID", connID)
	}
}

func (s *Server) closeAll() {
	s.Lock()
	defer s.Unlock()

	for connID, conn := range s.connections {
		conn.Close()
		delete(s.connections, connID)
	}
}

func main() {
	path := flag.String("pipe", "/tmp/xenconsole.sock", "Console socket path")
	flag.Parse()

	listener, err := seqpacket.Listen(*path)
	if err != nil {
		slog.Error("failed to listen", "error", err)
		return
	}
	defer listener.Close()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	server := newServer()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			server.broadcast(scanner.Bytes())
		}
		// EOF on stdin closes the console.
		slog.Info("stdin closed, detaching clients")
		server.closeAll()
		cancel()
	}()

	slog.Info("console start", "pipe", *path)
	if err := listener.Serve(ctx, server); err != nil && ctx.Err() == nil {
		slog.Error("server error", "error", err)
	}
}
