package tcp

import (
	evnet "github.com/hsgames/evnet/net"
	"github.com/hsgames/evnet/reactor"
	"github.com/pkg/errors"
)

// pendingWrite owns a pooled copy of the caller's bytes until the write
// completion arrives.
type pendingWrite struct {
	s   *Server
	c   *conn
	buf []byte
}

// Write queues a copy of data and returns at once. data may be reused as
// soon as Write returns.
func (s *Server) Write(id evnet.ConnID, data []byte) error {
	c, err := s.lookup(id)
	if err != nil {
		return err
	}
	if err = c.state.err(); err != nil {
		return err
	}
	if len(data) == 0 {
		return nil
	}
	w := &pendingWrite{s: s, c: c, buf: s.opts.bufferPool.Get(len(data))}
	copy(w.buf, data)
	s.writeBufs++
	c.writes[w] = struct{}{}
	if err = c.stream.Write(w.buf, w.done); err != nil {
		w.release()
		return errors.Wrapf(err, "tcp: conn %s write", c)
	}
	return nil
}

func (w *pendingWrite) release() int {
	n := len(w.buf)
	w.s.opts.bufferPool.Put(w.buf)
	w.buf = nil
	w.s.writeBufs--
	delete(w.c.writes, w)
	return n
}

func (w *pendingWrite) done(err error) {
	if w.buf == nil {
		return
	}
	n := w.release()
	if err == nil {
		w.c.writeBytes += uint64(n)
		return
	}
	if errors.Is(err, reactor.ErrCanceled) {
		return
	}
	w.s.connError(w.c, errors.Wrapf(err, "tcp: conn %s write", w.c))
}

// abandonWrites frees the writes of c whose completions can no longer arrive.
func (c *conn) abandonWrites() {
	for w := range c.writes {
		w.release()
	}
}
