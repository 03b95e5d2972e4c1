package tcp

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsgames/evnet/callback"
	"github.com/hsgames/evnet/event"
	"github.com/hsgames/evnet/id"
	evnet "github.com/hsgames/evnet/net"
	"github.com/hsgames/evnet/reactor"
	"github.com/pkg/errors"
)

var _ evnet.EndPoint = (*Server)(nil)

// Server accepts TCP connections and dispatches their events on a single
// loop goroutine.
//
// Methods taking a ConnID, Conn, Stats and Events must run on the loop, that
// is inside a callback or through Do and Await. The callbacks must not block.
type Server struct {
	opts      options
	name      string
	loop      *reactor.Loop
	ownLoop   bool
	transport reactor.Transport
	registry  *callback.Registry
	onConnect callback.Slot[evnet.ConnectFunc]
	alloc     *allocator
	serial    id.Serial
	conns     arena
	events    event.Manager
	listener  reactor.Listener
	lisAddr   atomic.Value
	connNum   atomic.Int64
	mu        sync.Mutex
	listened  bool
	served    bool
	shutdown  bool
	doneOnce  sync.Once
	doneChan  chan struct{}
	logger    *slog.Logger

	// loop side
	draining       bool
	listenerClosed bool
	accepted       uint64
	rejected       uint64
	closed         uint64
	writeBufs      int
}

func NewServer(name string, onConnect evnet.ConnectFunc, opt ...Option) (*Server, error) {
	if onConnect == nil {
		return nil, errors.Errorf("tcp: server %s onConnect is nil", name)
	}
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	if err := opts.check(); err != nil {
		return nil, err
	}
	loop, ownLoop := opts.loop, false
	if loop == nil {
		loopOptions := append([]reactor.Option{reactor.WithLogger(opts.logger)}, opts.loopOptions...)
		loop, ownLoop = reactor.NewLoop(name, loopOptions...), true
	}
	transport := opts.transport
	if transport == nil {
		transport = reactor.NewTCPTransport(reactor.TCPOptions{
			KeepAlivePeriod: opts.keepAlivePeriod,
			NoDelay:         opts.noDelay,
			ReadTimeout:     opts.readTimeout,
			ReadSize:        opts.readSize,
		})
	}
	s := &Server{
		opts:      opts,
		name:      name,
		loop:      loop,
		ownLoop:   ownLoop,
		transport: transport,
		registry:  callback.NewRegistry(),
		alloc:     newAllocator(opts.bufferPool, opts.maxReadSize),
		doneChan:  make(chan struct{}),
		logger:    opts.logger,
	}
	if err := s.onConnect.Store(s.registry, onConnect); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Server) String() string {
	return fmt.Sprintf("[name:%s][listen_addr:%s]", s.Name(), s.Addr())
}

func (s *Server) Name() string {
	return s.name
}

// Addr is the bound address once Listen succeeded.
func (s *Server) Addr() string {
	if lisAddr := s.lisAddr.Load(); lisAddr != nil {
		return lisAddr.(string)
	}
	return ""
}

// ConnNum is safe to call from any goroutine.
func (s *Server) ConnNum() int {
	return int(s.connNum.Load())
}

func (s *Server) Events() *event.Manager {
	return &s.events
}

func (s *Server) ListenAndServe(ctx context.Context, port int, host string) error {
	if err := s.Listen(port, host); err != nil {
		return err
	}
	return s.Serve(ctx)
}

// Listen binds host:port and starts accepting. It must be called before Serve.
func (s *Server) Listen(port int, host string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutdown {
		return errors.Wrapf(ErrServerShutdown, "tcp: server %s listen", s)
	}
	if s.listened {
		return errors.Errorf("tcp: server %s already listened", s)
	}
	if s.served {
		return errors.Errorf("tcp: server %s already served", s)
	}
	addr, err := resolveAddr(host, port)
	if err != nil {
		return err
	}
	ln, err := s.transport.Listen(s.loop, addr)
	if err != nil {
		return errors.Wrapf(err, "tcp: server %s listen %s", s, addr)
	}
	s.listener = ln
	if err = ln.Start(s.onConnection); err != nil {
		s.listener = nil
		ln.Close(nil)
		return errors.Wrapf(err, "tcp: server %s start %s", s, addr)
	}
	s.listened = true
	s.lisAddr.Store(ln.Addr().String())
	return nil
}

// resolveAddr maps "localhost" to the IPv4 loopback and resolves anything else.
func resolveAddr(host string, port int) (*net.TCPAddr, error) {
	if port < 0 || port > 65535 {
		return nil, errors.Errorf("tcp: invalid port %d", port)
	}
	if host == "localhost" {
		return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}, nil
	}
	addr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(port)))
	if err != nil {
		return nil, errors.Wrapf(err, "tcp: resolve host %s", host)
	}
	return addr, nil
}

// Serve runs the loop until ctx is done or the loop stops. An owned loop
// stops once Shutdown completes and Serve returns nil. Cancelling ctx stops
// accepting and closes every connection without waiting for its half-close,
// then Serve returns ctx.Err() once all of them are released.
func (s *Server) Serve(ctx context.Context) error {
	s.mu.Lock()
	if s.shutdown {
		s.mu.Unlock()
		return errors.Wrapf(ErrServerShutdown, "tcp: server %s serve", s)
	}
	if s.served {
		s.mu.Unlock()
		return errors.Errorf("tcp: server %s already served", s)
	}
	if !s.listened {
		s.mu.Unlock()
		return errors.Errorf("tcp: server %s no listener", s)
	}
	s.served = true
	s.mu.Unlock()

	runCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	exited := make(chan struct{})
	defer close(exited)
	go s.watch(ctx, cancel, exited)

	err := s.loop.Run(runCtx)
	if errors.Is(err, reactor.ErrLoopRunning) {
		return errors.Wrapf(err, "tcp: server %s serve", s)
	}
	select {
	case <-s.doneChan:
	default:
		s.abandon()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return errors.Wrapf(err, "tcp: server %s serve", s)
	}
	return ctx.Err()
}

// watch turns the cancellation of ctx into a forced shutdown and ends Run
// once the shutdown is complete.
func (s *Server) watch(ctx context.Context, cancel context.CancelFunc, exited <-chan struct{}) {
	select {
	case <-ctx.Done():
	case <-exited:
		return
	}
	select {
	case <-s.doneChan:
	default:
		s.mu.Lock()
		s.shutdown = true
		s.mu.Unlock()
		s.logger.Info(fmt.Sprintf("tcp: server %s serve canceled", s), slog.Any("error", ctx.Err()))
		s.loop.Post(func() {
			s.beginShutdown()
			s.forceClose()
		})
	}
	select {
	case <-s.doneChan:
		cancel()
	case <-exited:
	}
}

// abandon reclaims what is left when the loop stopped under Serve before the
// shutdown completed. No completion can arrive any more.
func (s *Server) abandon() {
	s.logger.Warn(fmt.Sprintf("tcp: server %s loop stopped, abandon conns", s), slog.Int("conn_num", s.conns.live))
	s.mu.Lock()
	s.shutdown = true
	s.mu.Unlock()
	s.draining = true
	if s.listener != nil {
		s.listener.Close(nil)
	}
	s.conns.each(func(c *conn) {
		if c.stream != nil && c.state < StateClosing {
			c.stream.Close(nil)
		}
		c.abandonWrites()
		s.destroy(c)
	})
	s.onListenerClosed()
}

// Shutdown stops accepting and ends every connection. When ctx is done
// first, the remaining connections are closed without waiting for their
// half-close. It must not be called on the loop goroutine.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	first := !s.shutdown
	s.shutdown = true
	served := s.served
	s.mu.Unlock()

	if !served {
		if !first {
			return nil
		}
		s.beginShutdown()
		s.forceClose()
		if s.ownLoop {
			return s.settle(ctx)
		}
		return nil
	}

	if first {
		err := s.loop.Send(func() error {
			s.beginShutdown()
			return nil
		})
		if err != nil && !errors.Is(err, reactor.ErrLoopStopped) {
			return errors.Wrapf(err, "tcp: server %s shutdown", s)
		}
	}
	select {
	case <-s.doneChan:
		return nil
	case <-ctx.Done():
	}
	s.logger.Warn(fmt.Sprintf("tcp: server %s shutdown force close", s), slog.Any("error", ctx.Err()))
	err := s.loop.Send(func() error {
		s.forceClose()
		return nil
	})
	if err != nil && !errors.Is(err, reactor.ErrLoopStopped) {
		return errors.Wrapf(err, "tcp: server %s shutdown", s)
	}
	<-s.doneChan
	return ctx.Err()
}

// settle drives an owned loop that never ran until the close completions of
// the listener and every connection have been handled.
func (s *Server) settle(ctx context.Context) error {
	ticker := time.NewTicker(time.Millisecond)
	defer ticker.Stop()
	for {
		s.loop.Tick()
		select {
		case <-s.doneChan:
			return nil
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "tcp: server %s shutdown", s)
		case <-ticker.C:
		}
	}
}

func (s *Server) beginShutdown() {
	if s.draining {
		return
	}
	s.draining = true
	if s.listener != nil {
		s.listener.Close(s.onListenerClosed)
	} else {
		s.onListenerClosed()
	}
	s.conns.each(func(c *conn) {
		if c.state.open() {
			s.endConn(c)
		}
	})
	s.checkShutdown()
}

func (s *Server) forceClose() {
	s.conns.each(func(c *conn) {
		if c.state < StateClosing && c.stream != nil {
			s.closeConn(c)
		}
	})
}

func (s *Server) onListenerClosed() {
	if s.listenerClosed {
		return
	}
	s.listenerClosed = true
	if err := s.onConnect.Release(s.registry); err != nil {
		s.logger.Error(fmt.Sprintf("tcp: server %s release connect callback", s), slog.Any("error", err))
	}
	s.checkShutdown()
}

func (s *Server) checkShutdown() {
	if !s.draining || !s.listenerClosed || s.conns.live > 0 {
		return
	}
	s.doneOnce.Do(func() {
		close(s.doneChan)
		if s.ownLoop {
			s.loop.Stop()
		}
	})
}

// Do runs f on the loop without waiting for it.
func (s *Server) Do(f func()) error {
	return s.loop.Send(func() error {
		f()
		return nil
	})
}

// AddTicker runs f on the loop every d while the loop runs. It must be called
// on the loop or before Serve.
func (s *Server) AddTicker(d time.Duration, f func()) {
	s.loop.AddTicker(d, f)
}

// Await runs f on the loop and waits for its result.
func (s *Server) Await(ctx context.Context, f func() error) error {
	return s.loop.Await(ctx, f)
}

func (s *Server) lookup(id evnet.ConnID) (*conn, error) {
	c, ok := s.conns.get(id)
	if !ok {
		return nil, errors.Wrapf(ErrInvalidConn, "tcp: server %s conn %s", s, id)
	}
	return c, nil
}

// OnData sets the data callback of id and starts reading. nil clears it.
func (s *Server) OnData(id evnet.ConnID, fn evnet.DataFunc) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	if fn == nil {
		return c.data.Release(s.registry)
	}
	if err = c.state.err(); err != nil {
		return err
	}
	if err = c.data.Store(s.registry, fn); err != nil {
		return err
	}
	return s.ensureReading(c)
}

// OnEnd sets the end callback of id and starts reading. nil clears it.
func (s *Server) OnEnd(id evnet.ConnID, fn evnet.EndFunc) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	if fn == nil {
		return c.end.Release(s.registry)
	}
	if err = c.state.err(); err != nil {
		return err
	}
	if err = c.end.Store(s.registry, fn); err != nil {
		return err
	}
	return s.ensureReading(c)
}

// OnError sets the callback receiving the error that closes id. nil clears it.
func (s *Server) OnError(id evnet.ConnID, fn evnet.ErrorFunc) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	if fn == nil {
		return c.onError.Release(s.registry)
	}
	if err = c.state.err(); err != nil {
		return err
	}
	return c.onError.Store(s.registry, fn)
}

// End half-closes id once its queued writes are done. It is a no-op on a
// connection that is already ending or closing.
func (s *Server) End(id evnet.ConnID) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	if c.state.open() {
		s.endConn(c)
	}
	return nil
}

func (s *Server) Conn(id evnet.ConnID) (ConnInfo, error) {
	c, err := s.lookup(id)
	if err != nil {
		return ConnInfo{}, err
	}
	return c.info(), nil
}

func (s *Server) Stats() Stats {
	return Stats{
		Conns:        s.conns.live,
		Accepted:     s.accepted,
		Rejected:     s.rejected,
		Closed:       s.closed,
		ReadBuffers:  s.alloc.Live(),
		WriteBuffers: s.writeBufs,
		Callbacks:    s.registry.Live(),
	}
}

func (s *Server) emit(e event.Event, msg any) {
	if err := s.events.Dispatch(e, msg); err != nil {
		s.logger.Error(fmt.Sprintf("tcp: server %s dispatch event %d", s, e), slog.Any("error", err))
	}
}
