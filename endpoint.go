package xenconsole

import (
	"strings"
	"unicode/utf8"
)

// PendingRead is the handle of one asynchronous read issued on an Endpoint.
// Its contents are owned by the Endpoint; the Stream only passes it back to
// EndRead.
type PendingRead interface{}

// Completion is the continuation an Endpoint invokes when a pending read
// finishes. It may run on any goroutine. A non-nil return value is a fault
// the Endpoint must surface to its owner instead of dropping it.
type Completion func(PendingRead) error

// Endpoint is the message-mode IPC transport a Stream reads from.
//
// Each write on the server side must arrive as exactly one read on the client
// side. An Endpoint is handed to New already opened but not yet connected.
type Endpoint interface {
	// Connect blocks until the channel is ready for I/O. It fails with an
	// error matching ErrAccessDenied when the endpoint was not opened for
	// both reading and writing.
	Connect() error
	// BeginRead starts an asynchronous read of at most len(buf) bytes and
	// calls done once the read has finished.
	//
	// done may run before BeginRead returns. The Stream issues the next read
	// from inside done, so an Endpoint that always completes inline nests one
	// set of frames per message on the caller's stack. Long-lived endpoints
	// should complete on another goroutine.
	BeginRead(buf []byte, done Completion) (PendingRead, error)
	// EndRead returns the number of bytes delivered by a finished read.
	// Zero means the peer closed the channel. ErrMoreData means the message
	// did not fit into the buffer handed to BeginRead.
	EndRead(PendingRead) (int, error)
}

// Decoder turns the bytes of one message into text.
type Decoder func(b []byte) (string, error)

// UTF8Decoder decodes b as UTF-8, replacing invalid sequences with U+FFFD.
func UTF8Decoder(b []byte) (string, error) {
	if utf8.Valid(b) {
		return string(b), nil
	}
	return strings.ToValidUTF8(string(b), string(utf8.RuneError)), nil
}
