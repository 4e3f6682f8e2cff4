// Package xenconsole provides the client side of a message-mode console
// channel between a guest agent and its host-side server.
// A Stream reads discrete messages from an Endpoint through a chain of
// asynchronous reads, decodes them into text and hands them to subscribers,
// and reports exactly once when the peer closes the channel.
package xenconsole

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// State is the connection state of a Stream.
// It only moves forward: NotStarted, Connected, Disconnected.
type State int32

const (
	NotStarted State = iota
	Connected
	Disconnected
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "not started"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}

// Stream reads framed text messages from one Endpoint.
//
// A Stream serves a single session: it is started once, and once it reaches
// Disconnected a new Stream over a new Endpoint is needed. Subscriptions must
// be made before Start, and Start must be called from a single goroutine.
// The Stream starts no goroutines of its own; completions run wherever the
// Endpoint schedules them, one at a time.
type Stream struct {
	id       uuid.UUID
	endpoint Endpoint
	buf      []byte
	logger   Logger

	opts options

	mu             sync.Mutex // guards subscribers, started and fault
	onMessage      []func(message string)
	onDisconnected []func()
	started        bool
	fault          error

	state    atomic.Int32
	inFlight atomic.Bool
	seq      atomic.Uint64 // sequence number of the latest read
	done     chan struct{}
}

// New creates a Stream over an endpoint that is opened but not connected.
// bufferCapacity is the largest message, in bytes, the Stream accepts.
// The endpoint is not touched until Start.
func New(endpoint Endpoint, bufferCapacity int, opt ...Option) (*Stream, error) {
	if endpoint == nil {
		return nil, ErrInvalidEndpoint
	}
	if bufferCapacity <= 0 {
		return nil, ErrInvalidBufferCapacity
	}

	var opts options
	for _, o := range opt {
		o(&opts)
	}
	checkOptions(&opts)

	return &Stream{
		id:       uuid.New(),
		endpoint: endpoint,
		buf:      make([]byte, bufferCapacity),
		logger:   opts.logger,
		opts:     opts,
		done:     make(chan struct{}),
	}, nil
}

// OnMessage subscribes fn to every decoded message, in arrival order.
func (s *Stream) OnMessage(fn func(message string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onMessage = append(s.onMessage, fn)
}

// OnDisconnected subscribes fn to the clean disconnect of the channel.
// At least one subscriber is required before Start.
func (s *Stream) OnDisconnected(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onDisconnected = append(s.onDisconnected, fn)
}

// Start connects the endpoint and issues the first read.
//
// It fails with ErrNoDisconnectedSubscriber when nobody subscribed to
// OnDisconnected, with ErrAlreadyConnected on any call after the first one,
// and with an *AccessError when the endpoint is not opened for full duplex
// access. Start returns once the first read is issued; messages are
// delivered from the read chain.
func (s *Stream) Start() error {
	s.mu.Lock()
	if len(s.onDisconnected) == 0 {
		s.mu.Unlock()
		return ErrNoDisconnectedSubscriber
	}
	if s.started || s.State() != NotStarted {
		s.mu.Unlock()
		return ErrAlreadyConnected
	}
	s.started = true
	s.mu.Unlock()

	s.logger.Debug("connecting", "session", s.id, "buffer_capacity", len(s.buf))

	if err := s.endpoint.Connect(); err != nil {
		if ae, ok := asAccessError(err); ok {
			s.logger.Error("connect refused", "session", s.id, "error", ae)
			return ae
		}
		s.logger.Error("connect failed", "session", s.id, "error", err)
		return errors.Wrap(err, "connect")
	}

	s.state.Store(int32(Connected))
	s.logger.Info("stream connected", "session", s.id)

	if err := s.read(); err != nil {
		return s.fail(err)
	}
	return nil
}

// IsConnected reports whether the Stream is connected.
// It is safe to call from any goroutine.
func (s *Stream) IsConnected() bool {
	return s.State() == Connected
}

// State returns the current connection state.
func (s *Stream) State() State {
	return State(s.state.Load())
}

// ID returns the session identifier used in log records.
func (s *Stream) ID() uuid.UUID {
	return s.id
}

// BufferCapacity returns the largest message size the Stream accepts.
func (s *Stream) BufferCapacity() int {
	return len(s.buf)
}

// Done returns a channel that is closed when the read chain ends, either by
// a clean disconnect or by a fault.
func (s *Stream) Done() <-chan struct{} {
	return s.done
}

// Err returns the fault that stopped the read chain, or nil.
func (s *Stream) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fault
}

// read issues the next asynchronous read into the scratch buffer.
func (s *Stream) read() error {
	if !s.inFlight.CompareAndSwap(false, true) {
		return ErrReadInFlight
	}

	seq := s.seq.Add(1)
	done := func(pr PendingRead) error {
		return s.complete(seq, pr)
	}

	if _, err := s.endpoint.BeginRead(s.buf, done); err != nil {
		s.inFlight.Store(false)
		return errors.Wrap(err, "begin read")
	}
	return nil
}

// complete handles one finished read and continues the chain.
// The returned error is the fault of this read; the endpoint owns reporting it.
// Completions for anything but the outstanding read are ignored.
func (s *Stream) complete(seq uint64, pr PendingRead) error {
	if s.State() != Connected || s.seq.Load() != seq || !s.inFlight.CompareAndSwap(true, false) {
		s.logger.Warn("ignoring stray read completion", "session", s.id, "state", s.State(), "read", seq)
		return nil
	}

	n, err := s.endpoint.EndRead(pr)
	switch {
	case errors.Is(err, ErrMoreData):
		return s.fail(&FramingError{Capacity: len(s.buf)})
	case err != nil:
		return s.fail(errors.Wrap(err, "end read"))
	case n == 0:
		s.disconnect()
		return nil
	}

	message, err := s.opts.decoder(s.buf[:n])
	if err != nil {
		return s.fail(&DecodeError{Len: n, Err: err})
	}

	s.opts.observer.MessageReceived(n)
	s.logger.Debug("message received", "session", s.id, "bytes", n)

	for _, fn := range s.messageHandlers() {
		fn(message)
	}

	if s.State() != Connected {
		return nil
	}
	if err := s.read(); err != nil {
		return s.fail(err)
	}
	return nil
}

// disconnect moves the Stream to Disconnected and notifies subscribers once.
func (s *Stream) disconnect() {
	if !s.state.CompareAndSwap(int32(Connected), int32(Disconnected)) {
		return
	}
	defer close(s.done)

	s.opts.observer.Disconnected()
	s.logger.Info("stream disconnected", "session", s.id)

	s.mu.Lock()
	handlers := append([]func(){}, s.onDisconnected...)
	s.mu.Unlock()

	for _, fn := range handlers {
		fn()
	}
}

// fail stops the chain on err without notifying disconnect subscribers.
func (s *Stream) fail(err error) error {
	if !s.state.CompareAndSwap(int32(Connected), int32(Disconnected)) {
		return err
	}

	defer close(s.done)

	s.mu.Lock()
	s.fault = err
	s.mu.Unlock()

	s.opts.observer.Fault(err)
	s.logger.Error("read chain stopped", "session", s.id, "error", err)
	return err
}

func (s *Stream) messageHandlers() []func(string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]func(string){}, s.onMessage...)
}
