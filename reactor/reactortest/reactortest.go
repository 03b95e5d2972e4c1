// Package reactortest provides an in-memory reactor driven step by step by
// tests. Every method must be called from the goroutine that owns the loop.
package reactortest

import (
	"net"

	"github.com/hsgames/evnet/reactor"
	"github.com/pkg/errors"
)

// Transport hands out a single Listener per Listen call.
type Transport struct {
	// ListenErr fails the next Listen when set.
	ListenErr error
	Listener  *Listener
	Addrs     []*net.TCPAddr
}

func NewTransport() *Transport {
	return &Transport{}
}

func (t *Transport) Listen(loop *reactor.Loop, addr *net.TCPAddr) (reactor.Listener, error) {
	t.Addrs = append(t.Addrs, addr)
	if err := t.ListenErr; err != nil {
		t.ListenErr = nil
		return nil, err
	}
	t.Listener = &Listener{loop: loop, addr: addr}
	return t.Listener, nil
}

type accepted struct {
	stream *Stream
	err    error
}

type Listener struct {
	loop    *reactor.Loop
	addr    *net.TCPAddr
	cb      reactor.ConnectionFunc
	pending []accepted
	closed  bool
}

func (l *Listener) Start(cb reactor.ConnectionFunc) error {
	if l.closed {
		return reactor.ErrListenerClosed
	}
	if l.cb != nil {
		return errors.New("reactortest: listener already started")
	}
	l.cb = cb
	return nil
}

func (l *Listener) Accept() (reactor.Stream, error) {
	if len(l.pending) == 0 {
		return nil, reactor.ErrNoPendingConn
	}
	a := l.pending[0]
	l.pending = l.pending[1:]
	if a.stream == nil {
		return nil, a.err
	}
	return a.stream, a.err
}

func (l *Listener) Addr() net.Addr {
	return l.addr
}

func (l *Listener) Closed() bool {
	return l.closed
}

func (l *Listener) Close(cb reactor.CloseFunc) {
	if l.closed {
		return
	}
	l.closed = true
	if cb != nil {
		l.loop.Post(cb)
	}
}

// Connect announces s as a new connection and runs the connection callback.
func (l *Listener) Connect(s *Stream) {
	l.connect(s, nil)
}

// ConnectFailing announces a connection whose Accept returns err. s may be
// nil for a failure that leaves no transport behind.
func (l *Listener) ConnectFailing(s *Stream, err error) {
	l.connect(s, err)
}

// Notify runs the connection callback with a failed status.
func (l *Listener) Notify(status error) {
	l.cb(status)
}

func (l *Listener) connect(s *Stream, err error) {
	if s != nil {
		s.loop = l.loop
	}
	l.pending = append(l.pending, accepted{stream: s, err: err})
	l.cb(nil)
}

type write struct {
	data []byte
	cb   reactor.WriteFunc
}

// Stream records every request submitted to it.
type Stream struct {
	loop       *reactor.Loop
	local      net.Addr
	remote     net.Addr
	alloc      reactor.Allocator
	readCb     reactor.ReadFunc
	writes     []write
	shutdownCb reactor.ShutdownFunc
	closeCb    reactor.CloseFunc
	closed     bool

	ReadStarts int
	Shutdowns  int
	Closes     int
	// Written holds the bytes of every submitted write, in order.
	Written []byte
	// WrittenBufs holds the buffers handed to Write, in order.
	WrittenBufs [][]byte
	// ReadSize is the size passed to the Allocator on delivery.
	ReadSize int
}

func NewStream() *Stream {
	return &Stream{
		local:    &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 7000},
		remote:   &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 50000},
		ReadSize: reactor.DefaultReadSize,
	}
}

func (s *Stream) LocalAddr() net.Addr {
	return s.local
}

func (s *Stream) RemoteAddr() net.Addr {
	return s.remote
}

func (s *Stream) ReadStart(alloc reactor.Allocator, cb reactor.ReadFunc) error {
	if s.closed {
		return reactor.ErrStreamClosing
	}
	s.ReadStarts++
	if s.readCb != nil {
		return reactor.ErrAlreadyReading
	}
	s.alloc, s.readCb = alloc, cb
	return nil
}

func (s *Stream) Reading() bool {
	return s.readCb != nil && !s.closed
}

// Deliver runs the read callback with a buffer holding data. It reports
// false when the stream is not reading.
func (s *Stream) Deliver(data []byte) bool {
	if !s.Reading() {
		return false
	}
	buf, err := s.alloc.Alloc(max(s.ReadSize, len(data)))
	if err != nil {
		s.readCb(0, nil, err)
		return true
	}
	n := copy(buf, data)
	s.readCb(n, buf, nil)
	return true
}

func (s *Stream) DeliverEOF() bool {
	return s.DeliverError(reactor.EOF)
}

func (s *Stream) DeliverError(err error) bool {
	if !s.Reading() {
		return false
	}
	s.readCb(0, nil, err)
	return true
}

func (s *Stream) Write(data []byte, cb reactor.WriteFunc) error {
	if s.closed {
		return reactor.ErrStreamClosing
	}
	if s.Shutdowns > 0 {
		return reactor.ErrShutdownPending
	}
	s.writes = append(s.writes, write{data: data, cb: cb})
	s.Written = append(s.Written, data...)
	s.WrittenBufs = append(s.WrittenBufs, data)
	return nil
}

func (s *Stream) PendingWrites() int {
	return len(s.writes)
}

// CompleteWrite completes the oldest pending write with err.
func (s *Stream) CompleteWrite(err error) bool {
	if len(s.writes) == 0 {
		return false
	}
	w := s.writes[0]
	s.writes = s.writes[1:]
	w.cb(err)
	return true
}

func (s *Stream) Shutdown(cb reactor.ShutdownFunc) error {
	if s.closed {
		return reactor.ErrStreamClosing
	}
	if s.Shutdowns > 0 {
		return reactor.ErrShutdownPending
	}
	s.Shutdowns++
	s.shutdownCb = cb
	return nil
}

func (s *Stream) ShutdownPending() bool {
	return s.shutdownCb != nil
}

// CompleteShutdown completes the pending shutdown with err.
func (s *Stream) CompleteShutdown(err error) bool {
	if s.shutdownCb == nil {
		return false
	}
	cb := s.shutdownCb
	s.shutdownCb = nil
	cb(err)
	return true
}

// Close cancels pending requests and posts their completions, followed by
// the close completion, to the loop.
func (s *Stream) Close(cb reactor.CloseFunc) {
	if s.closed {
		return
	}
	s.closed = true
	s.Closes++
	for _, w := range s.writes {
		wcb := w.cb
		s.loop.Post(func() { wcb(reactor.ErrCanceled) })
	}
	s.writes = nil
	if s.shutdownCb != nil {
		scb := s.shutdownCb
		s.shutdownCb = nil
		s.loop.Post(func() { scb(reactor.ErrCanceled) })
	}
	s.closeCb = cb
	s.loop.Post(func() {
		if s.closeCb != nil {
			s.closeCb()
		}
	})
}

func (s *Stream) Closed() bool {
	return s.closed
}
