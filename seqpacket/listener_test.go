//go:build linux

package seqpacket

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// mockHandler records accepted connections.
type mockHandler struct {
	mu       sync.Mutex
	conns    []*net.UnixConn
	handleCh chan *net.UnixConn
}

func newMockHandler() *mockHandler {
	return &mockHandler{
		handleCh: make(chan *net.UnixConn, 10),
	}
}

func (h *mockHandler) Handle(conn *net.UnixConn) {
	h.mu.Lock()
	h.conns = append(h.conns, conn)
	h.mu.Unlock()
	h.handleCh <- conn
}

func (h *mockHandler) getConns() []*net.UnixConn {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]*net.UnixConn(nil), h.conns...)
}

// socketPath returns a fresh socket path in a per-test directory.
func socketPath(t *testing.T) string {
	t.Helper()

	dir, err := os.MkdirTemp("", "xc")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })
	return filepath.Join(dir, "console.sock")
}

func TestListen(t *testing.T) {
	path := socketPath(t)

	l, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	defer l.Close()

	if l.Addr() == nil {
		t.Error("Addr returned nil")
	}
	if l.Addr().Network() != network {
		t.Errorf("network = %s, want %s", l.Addr().Network(), network)
	}
	if fi, err := os.Stat(path); err != nil || fi.Mode()&os.ModeSocket == 0 {
		t.Errorf("socket file missing: %v", err)
	}
}

func TestListen_RemovesStaleSocket(t *testing.T) {
	path := socketPath(t)

	first, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}
	// Leave the socket file behind, as a crashed server would.
	first.listener.SetUnlinkOnClose(false)
	first.Close()

	second, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen over stale socket failed: %v", err)
	}
	second.Close()
}

func TestListener_Close(t *testing.T) {
	path := socketPath(t)

	l, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	if err := l.Close(); err != nil {
		t.Errorf("Close failed: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("socket file should be removed, stat error = %v", err)
	}
}

func TestListener_Serve_AcceptsConnections(t *testing.T) {
	path := socketPath(t)

	l, err := Listen(path)
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	handler := newMockHandler()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- l.Serve(ctx, handler)
	}()

	numClients := 3
	clients := make([]*net.UnixConn, numClients)
	for i := 0; i < numClients; i++ {
		conn, err := net.DialUnix(network, nil, &net.UnixAddr{Name: path, Net: network})
		if err != nil {
			t.Fatalf("client %d dial failed: %v", i, err)
		}
		clients[i] = conn
	}

	for i := 0; i < numClients; i++ {
		select {
		case conn := <-handler.handleCh:
			if conn == nil {
				t.Errorf("handler %d received nil connection", i)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timeout waiting for handler %d", i)
		}
	}

	if conns := handler.getConns(); len(conns) != numClients {
		t.Errorf("handler received %d connections, want %d", len(conns), numClients)
	}

	for _, conn := range clients {
		conn.Close()
	}
	for _, conn := range handler.getConns() {
		conn.Close()
	}

	cancel()

	select {
	case err := <-done:
		if err != context.Canceled {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}

func TestListener_Serve_Close(t *testing.T) {
	l, err := Listen(socketPath(t))
	if err != nil {
		t.Fatalf("Listen failed: %v", err)
	}

	done := make(chan error, 1)
	go func() {
		done <- l.Serve(context.Background(), newMockHandler())
	}()

	time.Sleep(50 * time.Millisecond)
	l.Close()

	select {
	case err := <-done:
		if err != ErrClosed {
			t.Errorf("expected ErrClosed, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for Serve to return")
	}
}
