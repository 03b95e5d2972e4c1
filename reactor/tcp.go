package reactor

import (
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	fifo "github.com/eapache/queue"
	"github.com/pkg/errors"
)

const DefaultReadSize = 64 * 1024

type TCPOptions struct {
	// KeepAlivePeriod enables TCP keep-alive when positive.
	KeepAlivePeriod time.Duration
	NoDelay         bool
	// ReadTimeout bounds every single read when positive.
	ReadTimeout time.Duration
	// ReadSize is the buffer size requested from the Allocator per read.
	ReadSize int
}

type tcpTransport struct {
	opts TCPOptions
}

// NewTCPTransport returns the Transport backed by the operating system's
// TCP stack.
func NewTCPTransport(opts TCPOptions) Transport {
	if opts.ReadSize <= 0 {
		opts.ReadSize = DefaultReadSize
	}
	return &tcpTransport{opts: opts}
}

func (t *tcpTransport) Listen(loop *Loop, addr *net.TCPAddr) (Listener, error) {
	ln, err := listenTCP(addr)
	if err != nil {
		return nil, errors.Wrapf(err, "reactor: listen %s", addr)
	}
	return &tcpListener{
		loop: loop,
		ln:   ln,
		opts: t.opts,
		done: make(chan struct{}),
	}, nil
}

type tcpListener struct {
	loop    *Loop
	ln      net.Listener
	opts    TCPOptions
	mu      sync.Mutex
	pending []net.Conn
	started bool
	closed  bool
	wg      sync.WaitGroup
	done    chan struct{}
}

func (l *tcpListener) String() string {
	return fmt.Sprintf("[listen_addr:%s]", l.ln.Addr())
}

func (l *tcpListener) Addr() net.Addr {
	return l.ln.Addr()
}

func (l *tcpListener) Start(cb ConnectionFunc) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrListenerClosed
	}
	if l.started {
		return errors.Errorf("reactor: listener %s already started", l)
	}
	l.started = true
	l.wg.Add(1)
	go l.acceptLoop(cb)
	return nil
}

func (l *tcpListener) acceptLoop(cb ConnectionFunc) {
	defer l.wg.Done()
	logger := l.loop.Logger()
	var tempDelay time.Duration
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			select {
			case <-l.done:
				return
			default:
			}
			if ne, ok := err.(net.Error); ok && ne.Temporary() {
				if tempDelay == 0 {
					tempDelay = 5 * time.Millisecond
				} else {
					tempDelay *= 2
				}
				if max := 1 * time.Second; tempDelay > max {
					tempDelay = max
				}
				logger.Error(fmt.Sprintf("reactor: listener %s accept retry", l),
					slog.Any("error", err))
				timer := time.NewTimer(tempDelay)
				select {
				case <-timer.C:
				case <-l.done:
					timer.Stop()
					return
				}
				continue
			}
			err = errors.Wrapf(err, "reactor: listener %s accept", l)
			l.loop.Post(func() { cb(err) })
			return
		}
		tempDelay = 0
		l.mu.Lock()
		if l.closed {
			l.mu.Unlock()
			_ = conn.Close()
			return
		}
		l.pending = append(l.pending, conn)
		l.mu.Unlock()
		l.loop.Post(func() { cb(nil) })
	}
}

func (l *tcpListener) Accept() (Stream, error) {
	l.mu.Lock()
	if len(l.pending) == 0 {
		l.mu.Unlock()
		return nil, ErrNoPendingConn
	}
	conn := l.pending[0]
	l.pending[0] = nil
	l.pending = l.pending[1:]
	l.mu.Unlock()
	tc, ok := conn.(*net.TCPConn)
	if !ok {
		_ = conn.Close()
		return nil, errors.Errorf("reactor: listener %s accepted %T", l, conn)
	}
	s := newTCPStream(l.loop, tc, l.opts)
	return s, setConnOptions(tc, l.opts)
}

func (l *tcpListener) Close(cb CloseFunc) {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return
	}
	l.closed = true
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()
	close(l.done)
	if err := l.ln.Close(); err != nil {
		l.loop.Logger().Error(fmt.Sprintf("reactor: listener %s close", l),
			slog.Any("error", errors.WithStack(err)))
	}
	go func() {
		l.wg.Wait()
		for _, conn := range pending {
			_ = conn.Close()
		}
		if cb != nil {
			l.loop.Post(cb)
		}
	}()
}

func setConnOptions(conn *net.TCPConn, opts TCPOptions) error {
	if opts.KeepAlivePeriod > 0 {
		if err := conn.SetKeepAlive(true); err != nil {
			return errors.Wrapf(err, "reactor: set conn keep alive, conn %s", conn.RemoteAddr())
		}
		if err := conn.SetKeepAlivePeriod(opts.KeepAlivePeriod); err != nil {
			return errors.Wrapf(err, "reactor: set conn keep alive period, conn %s", conn.RemoteAddr())
		}
	}
	if err := conn.SetNoDelay(opts.NoDelay); err != nil {
		return errors.Wrapf(err, "reactor: set conn no delay, conn %s", conn.RemoteAddr())
	}
	return nil
}

type writeReq struct {
	data       []byte
	onWrite    WriteFunc
	onShutdown ShutdownFunc
}

type tcpStream struct {
	loop     *Loop
	conn     *net.TCPConn
	opts     TCPOptions
	mu       sync.Mutex
	cond     *sync.Cond
	reqs     *fifo.Queue
	reading  bool
	shutdown bool
	closed   bool
	wg       sync.WaitGroup
}

func newTCPStream(loop *Loop, conn *net.TCPConn, opts TCPOptions) *tcpStream {
	s := &tcpStream{
		loop: loop,
		conn: conn,
		opts: opts,
		reqs: fifo.New(),
	}
	s.cond = sync.NewCond(&s.mu)
	s.wg.Add(1)
	go s.writeLoop()
	return s
}

func (s *tcpStream) String() string {
	return fmt.Sprintf("[local_addr:%s][remote_addr:%s]", s.LocalAddr(), s.RemoteAddr())
}

func (s *tcpStream) LocalAddr() net.Addr {
	return s.conn.LocalAddr()
}

func (s *tcpStream) RemoteAddr() net.Addr {
	return s.conn.RemoteAddr()
}

func (s *tcpStream) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *tcpStream) ReadStart(alloc Allocator, cb ReadFunc) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosing
	}
	if s.reading {
		return ErrAlreadyReading
	}
	s.reading = true
	s.wg.Add(1)
	go s.readLoop(alloc, cb)
	return nil
}

func (s *tcpStream) readLoop(alloc Allocator, cb ReadFunc) {
	defer s.wg.Done()
	for {
		buf, err := alloc.Alloc(s.opts.ReadSize)
		if err != nil {
			s.postRead(alloc, cb, 0, nil, errors.Wrapf(err, "reactor: stream %s alloc", s))
			return
		}
		if s.opts.ReadTimeout > 0 {
			if err = s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
				alloc.Free(buf)
				s.postRead(alloc, cb, 0, nil, errors.WithStack(err))
				return
			}
		}
		n, err := s.conn.Read(buf)
		if s.isClosed() {
			alloc.Free(buf)
			return
		}
		if n > 0 || err == nil {
			if !s.postRead(alloc, cb, n, buf, nil) {
				return
			}
		} else {
			alloc.Free(buf)
		}
		if err != nil {
			if !errors.Is(err, io.EOF) {
				err = errors.Wrapf(err, "reactor: stream %s read", s)
			} else {
				err = EOF
			}
			s.postRead(alloc, cb, 0, nil, err)
			return
		}
	}
}

// postRead hands a read result to the loop. Results reaching the loop after
// Close are dropped and their buffers freed.
func (s *tcpStream) postRead(alloc Allocator, cb ReadFunc, n int, buf []byte, err error) bool {
	ok := s.loop.Post(func() {
		if s.isClosed() {
			if buf != nil {
				alloc.Free(buf)
			}
			return
		}
		cb(n, buf, err)
	})
	if !ok && buf != nil {
		alloc.Free(buf)
	}
	return ok
}

func (s *tcpStream) Write(data []byte, cb WriteFunc) error {
	return s.submit(&writeReq{data: data, onWrite: cb})
}

func (s *tcpStream) Shutdown(cb ShutdownFunc) error {
	return s.submit(&writeReq{onShutdown: cb})
}

func (s *tcpStream) submit(r *writeReq) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrStreamClosing
	}
	if s.shutdown {
		return ErrShutdownPending
	}
	if r.onShutdown != nil {
		s.shutdown = true
	}
	s.reqs.Add(r)
	s.cond.Signal()
	return nil
}

func (s *tcpStream) writeLoop() {
	defer s.wg.Done()
	for {
		s.mu.Lock()
		for s.reqs.Length() == 0 && !s.closed {
			s.cond.Wait()
		}
		if s.closed {
			canceled := make([]*writeReq, 0, s.reqs.Length())
			for s.reqs.Length() > 0 {
				canceled = append(canceled, s.reqs.Remove().(*writeReq))
			}
			s.mu.Unlock()
			for _, r := range canceled {
				s.complete(r, ErrCanceled)
			}
			return
		}
		r := s.reqs.Peek().(*writeReq)
		s.mu.Unlock()

		var err error
		if r.onShutdown != nil {
			err = s.conn.CloseWrite()
		} else {
			_, err = s.conn.Write(r.data)
		}

		s.mu.Lock()
		s.reqs.Remove()
		closed := s.closed
		s.mu.Unlock()
		if err != nil {
			if closed {
				err = ErrCanceled
			} else {
				err = errors.Wrapf(err, "reactor: stream %s write", s)
			}
		}
		s.complete(r, err)
	}
}

// complete hands a write or shutdown result to the loop. Once the loop has
// stopped the result is dropped, and whoever submitted the request reclaims
// what it held.
func (s *tcpStream) complete(r *writeReq, err error) {
	f := func() { r.onWrite(err) }
	if r.onShutdown != nil {
		f = func() { r.onShutdown(err) }
	}
	if !s.loop.Post(f) {
		s.loop.Logger().Debug(fmt.Sprintf("reactor: stream %s completion dropped, loop stopped", s),
			slog.Any("error", err))
	}
}

func (s *tcpStream) Close(cb CloseFunc) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.cond.Broadcast()
	s.mu.Unlock()
	if err := s.conn.Close(); err != nil {
		s.loop.Logger().Error(fmt.Sprintf("reactor: stream %s close", s),
			slog.Any("error", errors.WithStack(err)))
	}
	go func() {
		s.wg.Wait()
		if cb != nil {
			s.loop.Post(cb)
		}
	}()
}
