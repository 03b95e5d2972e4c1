package reactor_test

import (
	"context"
	"errors"
	"io"
	"net"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hsgames/evnet/reactor"
)

type countingAlloc struct {
	live atomic.Int64
}

func (a *countingAlloc) Alloc(size int) ([]byte, error) {
	a.live.Add(1)
	return make([]byte, size), nil
}

func (a *countingAlloc) Free(buf []byte) {
	a.live.Add(-1)
}

type event struct {
	kind string
	data string
	err  error
}

// acceptOne listens on loopback, dials it and returns the accepted stream
// together with the client side.
func acceptOne(t *testing.T, l *reactor.Loop, tr reactor.Transport) (reactor.Stream, net.Conn, chan event) {
	t.Helper()
	ln, err := tr.Listen(l, &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1)})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { l.Post(func() { ln.Close(nil) }) })

	events := make(chan event, 64)
	streams := make(chan reactor.Stream, 1)
	if err = ln.Start(func(status error) {
		if status != nil {
			t.Errorf("status: %v", status)
			return
		}
		s, err := ln.Accept()
		if err != nil {
			t.Errorf("accept: %v", err)
			return
		}
		streams <- s
	}); err != nil {
		t.Fatal(err)
	}

	client, err := net.Dial("tcp", ln.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { client.Close() })
	select {
	case s := <-streams:
		return s, client, events
	case <-time.After(5 * time.Second):
		t.Fatal("accept timeout")
	}
	return nil, nil, nil
}

func next(t *testing.T, events chan event) event {
	t.Helper()
	select {
	case ev := <-events:
		return ev
	case <-time.After(5 * time.Second):
		t.Fatal("event timeout")
	}
	return event{}
}

func TestTCP_ReadWriteShutdown(t *testing.T) {
	l := reactor.NewLoop("test")
	runLoop(t, l)
	alloc := &countingAlloc{}
	s, client, events := acceptOne(t, l, reactor.NewTCPTransport(reactor.TCPOptions{NoDelay: true}))

	err := l.Await(context.Background(), func() error {
		return s.ReadStart(alloc, func(n int, buf []byte, err error) {
			if err != nil {
				events <- event{kind: "err", err: err}
				return
			}
			events <- event{kind: "data", data: string(buf[:n])}
			alloc.Free(buf)
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	err = l.Await(context.Background(), func() error {
		return s.ReadStart(alloc, func(int, []byte, error) {})
	})
	if !errors.Is(err, reactor.ErrAlreadyReading) {
		t.Fatalf("second read start: %v", err)
	}

	if _, err = client.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	var got string
	for len(got) < 5 {
		ev := next(t, events)
		if ev.kind != "data" {
			t.Fatalf("event %+v", ev)
		}
		got += ev.data
	}
	if got != "hello" {
		t.Fatalf("got %q", got)
	}

	if err = client.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}
	if ev := next(t, events); ev.kind != "err" || !errors.Is(ev.err, reactor.EOF) {
		t.Fatalf("want EOF, got %+v", ev)
	}

	err = l.Await(context.Background(), func() error {
		if err := s.Write([]byte("ack"), func(err error) {
			events <- event{kind: "write", err: err}
		}); err != nil {
			return err
		}
		return s.Shutdown(func(err error) {
			events <- event{kind: "shutdown", err: err}
		})
	})
	if err != nil {
		t.Fatal(err)
	}
	if ev := next(t, events); ev.kind != "write" || ev.err != nil {
		t.Fatalf("want write, got %+v", ev)
	}
	if ev := next(t, events); ev.kind != "shutdown" || ev.err != nil {
		t.Fatalf("want shutdown, got %+v", ev)
	}
	reply, err := io.ReadAll(client)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "ack" {
		t.Fatalf("reply %q", reply)
	}

	err = l.Await(context.Background(), func() error {
		return s.Write([]byte("late"), func(error) {})
	})
	if !errors.Is(err, reactor.ErrShutdownPending) {
		t.Fatalf("write after shutdown: %v", err)
	}

	closed := make(chan struct{})
	l.Post(func() { s.Close(func() { close(closed) }) })
	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("close timeout")
	}
	if n := alloc.live.Load(); n != 0 {
		t.Fatalf("%d read buffers not freed", n)
	}
}

func TestTCP_ReadTimeout(t *testing.T) {
	l := reactor.NewLoop("test")
	runLoop(t, l)
	alloc := &countingAlloc{}
	s, _, events := acceptOne(t, l, reactor.NewTCPTransport(reactor.TCPOptions{
		ReadTimeout: 50 * time.Millisecond,
	}))
	l.Post(func() {
		_ = s.ReadStart(alloc, func(n int, buf []byte, err error) {
			events <- event{kind: "err", err: err}
		})
	})
	ev := next(t, events)
	if ev.err == nil || errors.Is(ev.err, reactor.EOF) {
		t.Fatalf("want timeout, got %+v", ev)
	}
	var ne net.Error
	if !errors.As(ev.err, &ne) || !ne.Timeout() {
		t.Fatalf("want net timeout, got %v", ev.err)
	}
	l.Post(func() { s.Close(nil) })
}

func TestTCP_CloseBeforeRead(t *testing.T) {
	l := reactor.NewLoop("test")
	runLoop(t, l)
	s, _, _ := acceptOne(t, l, reactor.NewTCPTransport(reactor.TCPOptions{}))

	closed := make(chan struct{})
	err := l.Await(context.Background(), func() error {
		s.Close(func() { close(closed) })
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	<-closed
	err = l.Await(context.Background(), func() error {
		return s.Write([]byte("x"), func(error) {})
	})
	if !errors.Is(err, reactor.ErrStreamClosing) {
		t.Fatalf("write after close: %v", err)
	}
}
