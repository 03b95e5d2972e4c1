package reactor_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hsgames/evnet/reactor"
)

func runLoop(t *testing.T, l *reactor.Loop) {
	t.Helper()
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()
	t.Cleanup(func() {
		l.Stop()
		if err := <-errc; err != nil {
			t.Errorf("run: %v", err)
		}
	})
}

func TestLoop_PostOrder(t *testing.T) {
	l := reactor.NewLoop("test")
	var got []int
	for i := 0; i < 5; i++ {
		if !l.Post(func() { got = append(got, i) }) {
			t.Fatal("post failed")
		}
	}
	l.Tick()
	for i, v := range got {
		if v != i {
			t.Fatalf("got %v", got)
		}
	}
	if len(got) != 5 {
		t.Fatalf("got %v", got)
	}
}

func TestLoop_Await(t *testing.T) {
	l := reactor.NewLoop("test")
	runLoop(t, l)

	n := 0
	for i := 0; i < 10; i++ {
		if err := l.Await(context.Background(), func() error { n++; return nil }); err != nil {
			t.Fatal(err)
		}
	}
	if n != 10 {
		t.Fatalf("n = %d", n)
	}

	want := errors.New("boom")
	if err := l.Await(context.Background(), func() error { return want }); !errors.Is(err, want) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoop_PanicKeepsRunning(t *testing.T) {
	l := reactor.NewLoop("test")
	runLoop(t, l)

	done := make(chan struct{})
	l.Post(func() { panic("boom") })
	l.Post(func() { close(done) })
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("loop stalled after panic")
	}
}

func TestLoop_Timer(t *testing.T) {
	now := time.Unix(1000, 0)
	l := reactor.NewLoop("test", reactor.WithClock(func() time.Time { return now }))
	fired := 0
	id := l.AddTimer(time.Second, func() { fired++ })
	l.AddTimer(time.Second, func() { fired += 10 })
	l.RemoveTimer(id)

	l.Tick()
	if fired != 0 {
		t.Fatalf("fired early: %d", fired)
	}
	now = now.Add(time.Second)
	l.Tick()
	if fired != 10 {
		t.Fatalf("fired = %d", fired)
	}
}

func TestLoop_Stop(t *testing.T) {
	l := reactor.NewLoop("test")
	errc := make(chan error, 1)
	go func() { errc <- l.Run(context.Background()) }()

	ran := make(chan struct{})
	l.Post(func() { close(ran) })
	<-ran
	l.Stop()
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
	<-l.Done()
	if l.Post(func() {}) {
		t.Fatal("post after stop succeeded")
	}
	if err := l.Send(func() error { return nil }); !errors.Is(err, reactor.ErrLoopStopped) {
		t.Fatalf("send after stop: %v", err)
	}
	if err := l.Run(context.Background()); !errors.Is(err, reactor.ErrLoopRunning) {
		t.Fatalf("second run: %v", err)
	}
}

func TestLoop_ContextCancel(t *testing.T) {
	l := reactor.NewLoop("test")
	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- l.Run(ctx) }()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
}

func TestLoop_TickRunsCalls(t *testing.T) {
	l := reactor.NewLoop("test")
	n := 0
	for i := 0; i < 3; i++ {
		if err := l.Send(func() error { n++; return nil }); err != nil {
			t.Fatal(err)
		}
	}
	l.Tick()
	if n != 3 {
		t.Fatalf("ran %d calls, want 3", n)
	}
}

func TestLoop_ContextCancelDrains(t *testing.T) {
	l := reactor.NewLoop("test")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	ran := false
	if !l.Post(func() { ran = true }) {
		t.Fatal("post failed")
	}
	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v", err)
	}
	if !ran {
		t.Fatal("queued completion dropped on cancel")
	}
	if l.Post(func() {}) {
		t.Fatal("post after cancel succeeded")
	}
}

func TestLoop_WakesAtTimerDeadline(t *testing.T) {
	l := reactor.NewLoop("test", reactor.WithTickInterval(time.Hour))
	fired := make(chan struct{})
	l.AddTimer(10*time.Millisecond, func() { close(fired) })
	runLoop(t, l)
	select {
	case <-fired:
	case <-time.After(5 * time.Second):
		t.Fatal("timer waited for the tick interval")
	}
}

func TestLoop_Ticker(t *testing.T) {
	now := time.Unix(1000, 0)
	l := reactor.NewLoop("test", reactor.WithClock(func() time.Time { return now }))
	n := 0
	id := l.AddTicker(time.Second, func() { n++ })
	for i := 0; i < 3; i++ {
		now = now.Add(time.Second)
		l.Tick()
	}
	if !l.RemoveTimer(id) || n != 3 {
		t.Fatalf("ticks = %d", n)
	}
}
