package app_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	"github.com/hsgames/evnet/app"
	evnet "github.com/hsgames/evnet/net"
	"github.com/hsgames/evnet/net/tcp"
)

var discard = slog.New(slog.NewTextHandler(io.Discard, nil))

func TestApp_Stop(t *testing.T) {
	a := app.New(app.WithLogger(discard))
	stopped := make(chan struct{})
	a.AddService("blocker",
		func() error {
			<-stopped
			return nil
		},
		func(context.Context) error {
			close(stopped)
			return nil
		},
	)
	time.AfterFunc(50*time.Millisecond, a.Stop)
	if err := a.Run(); err != nil {
		t.Fatal(err)
	}
}

func TestApp_StartError(t *testing.T) {
	a := app.New(app.WithLogger(discard))
	boom := errors.New("boom")
	stops := 0
	a.AddService("failing",
		func() error { return boom },
		func(context.Context) error {
			stops++
			return nil
		},
	)
	if err := a.Run(); !errors.Is(err, boom) {
		t.Fatalf("err = %v", err)
	}
	if stops != 1 {
		t.Fatalf("stops = %d", stops)
	}
}

func TestApp_TCPServer(t *testing.T) {
	var srv *tcp.Server
	srv, err := tcp.NewServer("echo", func(id evnet.ConnID) {
		_ = srv.OnData(id, func(chunk string) { _ = srv.Write(id, []byte(chunk)) })
		_ = srv.OnEnd(id, func() { _ = srv.End(id) })
	}, tcp.WithLogger(discard))
	if err != nil {
		t.Fatal(err)
	}
	a := app.New(app.WithLogger(discard))
	if err = a.AddTCPServer(srv, 0, "localhost"); err != nil {
		t.Fatal(err)
	}
	errc := make(chan error, 1)
	go func() { errc <- a.Run() }()

	c, err := net.Dial("tcp", srv.Addr())
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	_ = c.SetDeadline(time.Now().Add(5 * time.Second))
	if _, err = c.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	if err = c.(*net.TCPConn).CloseWrite(); err != nil {
		t.Fatal(err)
	}
	reply, err := io.ReadAll(c)
	if err != nil {
		t.Fatal(err)
	}
	if string(reply) != "ping" {
		t.Fatalf("reply = %q", reply)
	}

	a.Stop()
	if err = <-errc; err != nil {
		t.Fatal(err)
	}
}
