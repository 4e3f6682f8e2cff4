package xenconsole

import (
	"fmt"

	"github.com/pkg/errors"
)

// Errors returned by New and by the read chain.
var (
	// ErrInvalidEndpoint is returned when New is given a nil endpoint.
	ErrInvalidEndpoint = errors.New("invalid endpoint")
	// ErrInvalidBufferCapacity is returned when the buffer capacity is not positive.
	ErrInvalidBufferCapacity = errors.New("invalid buffer capacity")
	// ErrReadInFlight is returned when a read is issued while another one is outstanding.
	ErrReadInFlight = errors.New("a read is already in flight")
)

// ErrAccessDenied is reported by an Endpoint whose Connect fails because it
// was not opened for full duplex access.
var ErrAccessDenied = errors.New("access to the path is denied")

// ErrMoreData is reported by EndRead when the message was larger than the
// buffer handed to BeginRead and the rest of it is still pending.
var ErrMoreData = errors.New("more data is available")

// PreconditionError reports a Start call made in a state that does not allow it.
type PreconditionError struct {
	Reason string
}

func (e *PreconditionError) Error() string {
	return e.Reason
}

// Precondition failures of Start.
var (
	ErrNoDisconnectedSubscriber = &PreconditionError{
		Reason: "event 'Disconnected' must have at least 1 subscriber before attempting to connect",
	}
	ErrAlreadyConnected = &PreconditionError{
		Reason: "the client is already connected",
	}
)

// AccessError reports that the endpoint refused the connection because of
// its access mode.
type AccessError struct {
	Path string
	Err  error
}

func (e *AccessError) Error() string {
	if e.Path == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e *AccessError) Unwrap() error {
	return e.Err
}

// FramingError reports a message that did not fit into one buffer.
// Reassembly across reads is not supported, so the read chain stops.
type FramingError struct {
	Capacity int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("message is larger than %d bytes", e.Capacity)
}

// Unwrap lets callers match the transport condition with errors.Is(err, ErrMoreData).
func (e *FramingError) Unwrap() error {
	return ErrMoreData
}

// DecodeError reports a message the Decoder could not turn into text.
type DecodeError struct {
	Len int
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %d byte message: %v", e.Len, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// asAccessError converts a connect failure into an *AccessError when it was
// caused by the endpoint's access mode.
func asAccessError(err error) (*AccessError, bool) {
	var ae *AccessError
	if errors.As(err, &ae) {
		return ae, true
	}
	if errors.Is(err, ErrAccessDenied) {
		return &AccessError{Err: err}, true
	}
	return nil, false
}
