// Package reactor is the completion-based I/O layer under the TCP server.
//
// Operations are submitted from the loop goroutine and return at once; their
// completions are delivered later, again on the loop goroutine. Blocking
// socket calls run on helper goroutines that only ever Post back to the Loop.
package reactor

import (
	"io"
	"net"

	"github.com/pkg/errors"
)

var (
	// ErrCanceled completes writes and shutdowns abandoned by Close.
	ErrCanceled = errors.New("reactor: operation canceled")
	// ErrAlreadyReading is returned by a second ReadStart.
	ErrAlreadyReading = errors.New("reactor: stream already reading")
	// ErrStreamClosing is returned for submissions after Close.
	ErrStreamClosing = errors.New("reactor: stream is closing")
	// ErrShutdownPending is returned for writes or shutdowns after Shutdown.
	ErrShutdownPending = errors.New("reactor: stream shutdown pending")
	ErrListenerClosed  = errors.New("reactor: listener closed")
	ErrNoPendingConn   = errors.New("reactor: no pending connection")
)

// EOF is reported to a ReadFunc at end of stream.
var EOF = io.EOF

type (
	// ReadFunc receives n bytes in buf, or err (EOF at end of stream). buf is
	// owned by the callee and must be handed back to the Allocator.
	ReadFunc func(n int, buf []byte, err error)
	// WriteFunc completes one Write. The written buffer is released to the
	// caller once it runs.
	WriteFunc      func(err error)
	ShutdownFunc   func(err error)
	CloseFunc      func()
	ConnectionFunc func(status error)
)

// Allocator supplies read buffers. It is called from reactor goroutines and
// must be safe for concurrent use.
type Allocator interface {
	Alloc(size int) ([]byte, error)
	Free(buf []byte)
}

type Stream interface {
	// ReadStart keeps reading until end of stream, an error or Close.
	ReadStart(alloc Allocator, cb ReadFunc) error
	// Write queues data; the stream must not touch it after cb runs.
	Write(data []byte, cb WriteFunc) error
	// Shutdown half-closes after every queued write has completed.
	Shutdown(cb ShutdownFunc) error
	// Close cancels pending requests and runs cb after all their completions.
	Close(cb CloseFunc)
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
}

type Listener interface {
	// Start delivers one ConnectionFunc per incoming connection.
	Start(cb ConnectionFunc) error
	// Accept takes the connection announced by the last notification. On
	// failure the returned Stream, if non-nil, still has to be closed.
	Accept() (Stream, error)
	Addr() net.Addr
	Close(cb CloseFunc)
}

// Transport creates listeners bound to a loop.
type Transport interface {
	Listen(loop *Loop, addr *net.TCPAddr) (Listener, error)
}
