package tcp

import (
	"fmt"
	"log/slog"
	"net"
	"os"
	"time"

	"github.com/hsgames/evnet/callback"
	evnet "github.com/hsgames/evnet/net"
	"github.com/hsgames/evnet/net/internal"
	"github.com/hsgames/evnet/reactor"
	"github.com/hsgames/evnet/safe"
	"github.com/hsgames/evnet/timer"
	"github.com/pkg/errors"
)

// conn is only touched on the loop goroutine.
type conn struct {
	id            evnet.ConnID
	name          string
	stream        reactor.Stream
	state         State
	data          callback.Slot[evnet.DataFunc]
	end           callback.Slot[evnet.EndFunc]
	onError       callback.Slot[evnet.ErrorFunc]
	defender      *internal.Defender
	readBytes     uint64
	writeBytes    uint64
	writes        map[*pendingWrite]struct{}
	shutdownTimer timer.ID
	opened        bool
	eof           bool
	failed        bool
	openedAt      time.Time
}

func (c *conn) String() string {
	return fmt.Sprintf("[name:%s][id:%s][local_addr:%s][remote_addr:%s]",
		c.name, c.id, c.localAddr(), c.remoteAddr())
}

func (c *conn) localAddr() string {
	if c.stream == nil {
		return ""
	}
	return addrString(c.stream.LocalAddr())
}

func (c *conn) remoteAddr() string {
	if c.stream == nil {
		return ""
	}
	return addrString(c.stream.RemoteAddr())
}

func addrString(addr net.Addr) string {
	if addr == nil {
		return ""
	}
	return addr.String()
}

func (c *conn) info() ConnInfo {
	return ConnInfo{
		ID:            c.id,
		Name:          c.name,
		State:         c.state,
		LocalAddr:     c.localAddr(),
		RemoteAddr:    c.remoteAddr(),
		ReadBytes:     c.readBytes,
		WriteBytes:    c.writeBytes,
		PendingWrites: len(c.writes),
		OpenedAt:      c.openedAt,
	}
}

func (s *Server) onConnection(status error) {
	if status != nil {
		s.logger.Error(fmt.Sprintf("tcp: server %s connection", s), slog.Any("error", status))
		return
	}
	c := &conn{
		name:     fmt.Sprintf("%s_%d", s.name, s.serial.Next()),
		state:    StateAccepted,
		writes:   make(map[*pendingWrite]struct{}),
		defender: internal.NewDefender(s.opts.maxReadsPerSecond),
	}
	c.id = s.conns.alloc(c)
	s.connNum.Store(int64(s.conns.live))

	stream, err := s.listener.Accept()
	c.stream = stream
	if err == nil {
		switch {
		case s.draining:
			err = ErrServerShutdown
		case s.opts.maxConnNum > 0 && s.conns.live > s.opts.maxConnNum:
			err = ErrTooManyConns
		}
	}
	if err != nil {
		s.rejected++
		s.logger.Warn(fmt.Sprintf("tcp: server %s accept conn %s", s, c), slog.Any("error", err))
		s.endConn(c)
		return
	}

	s.accepted++
	c.opened = true
	c.openedAt = s.loop.Now()
	s.emit(EventOpen, c.info())
	fn, _ := s.onConnect.Load()
	if err = safe.Call(func() { fn(c.id) }); err != nil {
		s.connError(c, errors.Wrapf(err, "tcp: conn %s on connect", c))
	}
}

// ensureReading starts reads on the first data or end registration.
func (s *Server) ensureReading(c *conn) error {
	switch c.state {
	case StateAccepted:
		err := c.stream.ReadStart(s.alloc, func(n int, buf []byte, err error) {
			s.onRead(c, n, buf, err)
		})
		if err != nil {
			return errors.Wrapf(err, "tcp: conn %s read start", c)
		}
		c.state = StateReading
		return nil
	case StateReading:
		return nil
	default:
		return c.state.err()
	}
}

func (s *Server) onRead(c *conn, n int, buf []byte, err error) {
	if c.state >= StateClosing {
		s.alloc.Free(buf)
		return
	}
	if err != nil {
		s.alloc.Free(buf)
		switch {
		case errors.Is(err, reactor.EOF):
			s.onEOF(c)
		case errors.Is(err, os.ErrDeadlineExceeded):
			s.connError(c, errors.Wrapf(ErrReadTimeout, "tcp: conn %s read [%v]", c, err))
		default:
			s.connError(c, errors.Wrapf(err, "tcp: conn %s read", c))
		}
		return
	}
	if n <= 0 {
		s.alloc.Free(buf)
		return
	}
	chunk := string(buf[:n])
	s.alloc.Free(buf)
	c.readBytes += uint64(n)
	if !c.defender.Allow(s.loop.Now()) {
		s.connError(c, errors.Wrapf(ErrReadRateExceeded, "tcp: conn %s", c))
		return
	}
	if fn, ok := c.data.Load(); ok {
		if err = safe.Call(func() { fn(chunk) }); err != nil {
			s.connError(c, errors.Wrapf(err, "tcp: conn %s on data", c))
		}
	}
}

func (s *Server) onEOF(c *conn) {
	if c.eof {
		return
	}
	c.eof = true
	if fn, ok := c.end.Load(); ok {
		if err := safe.Call(fn); err != nil {
			s.connError(c, errors.Wrapf(err, "tcp: conn %s on end", c))
			return
		}
	}
	if s.opts.autoEnd && c.state.open() {
		s.endConn(c)
	}
}

// endConn half-closes c after its queued writes. The shutdown completion,
// whatever its status, leads to close.
func (s *Server) endConn(c *conn) {
	c.state = StateEnding
	if c.stream == nil {
		s.destroy(c)
		return
	}
	if err := c.stream.Shutdown(func(err error) { s.onShutdown(c, err) }); err != nil {
		s.logger.Debug(fmt.Sprintf("tcp: conn %s shutdown", c), slog.Any("error", err))
		s.closeConn(c)
		return
	}
	if s.opts.shutdownTimeout > 0 {
		c.shutdownTimer = s.loop.AddTimer(s.opts.shutdownTimeout, func() {
			c.shutdownTimer = 0
			if c.state == StateEnding {
				s.logger.Warn(fmt.Sprintf("tcp: conn %s shutdown timeout", c))
				s.closeConn(c)
			}
		})
	}
}

func (s *Server) onShutdown(c *conn, err error) {
	if err != nil && !errors.Is(err, reactor.ErrCanceled) {
		s.logger.Debug(fmt.Sprintf("tcp: conn %s shutdown", c), slog.Any("error", err))
	}
	s.closeConn(c)
}

func (s *Server) closeConn(c *conn) {
	if c.state >= StateClosing {
		return
	}
	c.state = StateClosing
	if c.shutdownTimer != 0 {
		s.loop.RemoveTimer(c.shutdownTimer)
		c.shutdownTimer = 0
	}
	c.stream.Close(func() { s.destroy(c) })
}

// destroy releases every callback c still holds and frees its handle.
func (s *Server) destroy(c *conn) {
	c.state = StateClosed
	for _, release := range []func(*callback.Registry) error{
		c.data.Release, c.end.Release, c.onError.Release,
	} {
		if err := release(s.registry); err != nil {
			s.logger.Error(fmt.Sprintf("tcp: conn %s release callback", c), slog.Any("error", err))
		}
	}
	s.conns.release(c.id)
	s.connNum.Store(int64(s.conns.live))
	if c.opened {
		s.closed++
		s.emit(EventClose, c.info())
	}
	s.checkShutdown()
}

// connError reports err once and closes c.
func (s *Server) connError(c *conn, err error) {
	if c.state >= StateClosing {
		return
	}
	if !c.failed {
		c.failed = true
		s.logger.Error(fmt.Sprintf("tcp: conn %s", c), slog.Any("error", err))
		if fn, ok := c.onError.Load(); ok {
			if perr := safe.Call(func() { fn(c.id, err) }); perr != nil {
				s.logger.Error(fmt.Sprintf("tcp: conn %s on error", c), slog.Any("error", perr))
			}
		}
		if h := s.opts.errorHandler; h != nil {
			if perr := safe.Call(func() { h(c.id, err) }); perr != nil {
				s.logger.Error(fmt.Sprintf("tcp: server %s error handler", s), slog.Any("error", perr))
			}
		}
		s.emit(EventError, ErrorInfo{ConnInfo: c.info(), Err: err})
	}
	s.closeConn(c)
}
