package reactor

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hsgames/evnet/async"
	"github.com/hsgames/evnet/container/queue"
	"github.com/hsgames/evnet/safe"
	"github.com/hsgames/evnet/timer"
	"github.com/pkg/errors"
)

var (
	ErrLoopRunning = errors.New("reactor: loop already running")
	ErrLoopStopped = errors.New("reactor: loop stopped")
)

// Loop runs completions, foreign calls and timers on one goroutine.
type Loop struct {
	opts        options
	name        string
	completions *queue.MPSCQueue[func()]
	calls       *async.Service
	timers      *timer.Manager
	running     atomic.Bool
	stopped     atomic.Bool
	stopOnce    sync.Once
	stopChan    chan struct{}
	doneChan    chan struct{}
	logger      *slog.Logger
}

func NewLoop(name string, opt ...Option) *Loop {
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	opts.ensure()
	return &Loop{
		opts:        opts,
		name:        name,
		completions: queue.NewMPSCQueue[func()](opts.queueShrink),
		calls:       async.New(name, opts.callChanSize, opts.awaitTimeout, async.WithLogger(opts.logger)),
		timers:      timer.New(timer.WithClock(opts.clock), timer.WithLogger(opts.logger)),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		logger:      opts.logger,
	}
}

func (l *Loop) String() string {
	return fmt.Sprintf("[name:%s]", l.name)
}

func (l *Loop) Name() string {
	return l.name
}

func (l *Loop) Logger() *slog.Logger {
	return l.logger
}

// Post queues a completion from any goroutine. Completions run in Post
// order per producer. It reports false once the loop has stopped.
func (l *Loop) Post(f func()) bool {
	if l.stopped.Load() {
		return false
	}
	return l.completions.Push(f)
}

// Send queues f from a foreign goroutine without waiting for it.
func (l *Loop) Send(f func() error) error {
	if l.stopped.Load() {
		return ErrLoopStopped
	}
	return l.closedErr(l.calls.Send(f))
}

// Await runs f on the loop and returns its error.
func (l *Loop) Await(ctx context.Context, f func() error) error {
	if l.stopped.Load() {
		return ErrLoopStopped
	}
	_, err := async.Await(ctx, l.calls, func() (struct{}, error) {
		return struct{}{}, f()
	})
	return l.closedErr(err)
}

// closedErr maps a call rejected by the closed service to ErrLoopStopped.
func (l *Loop) closedErr(err error) error {
	if errors.Is(err, async.ErrServiceClosed) {
		return ErrLoopStopped
	}
	return err
}

// Now reads the loop clock.
func (l *Loop) Now() time.Time {
	return l.opts.clock()
}

// AddTimer, AddTicker and RemoveTimer must be called on the loop goroutine,
// or before Run.
func (l *Loop) AddTimer(d time.Duration, f func()) timer.ID {
	return l.timers.AddTimer(d, f)
}

func (l *Loop) AddTicker(d time.Duration, f func()) timer.ID {
	return l.timers.AddTicker(d, f)
}

func (l *Loop) RemoveTimer(id timer.ID) bool {
	return l.timers.Remove(id)
}

func (l *Loop) Run(ctx context.Context) error {
	if !l.running.CompareAndSwap(false, true) {
		return ErrLoopRunning
	}
	if l.stopped.Load() {
		return ErrLoopStopped
	}
	defer close(l.doneChan)
	defer l.shutdown()

	wake := time.NewTimer(l.nextWake())
	defer wake.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.stopChan:
			return nil
		case <-l.completions.Notify():
			l.runCompletions()
		case f := <-l.calls.Get():
			l.run(f)
		case <-wake.C:
			l.timers.Run(l.opts.tickLimit)
			wake.Reset(l.nextWake())
		}
	}
}

// nextWake is the tick interval, shortened to the earliest timer deadline.
func (l *Loop) nextWake() time.Duration {
	d := l.opts.tickInterval
	if next, ok := l.timers.Next(); ok {
		d = min(d, max(next.Sub(l.opts.clock()), 0))
	}
	return d
}

// shutdown refuses later Posts and calls, then runs whatever was queued
// before, whichever way Run returned.
func (l *Loop) shutdown() {
	l.stopped.Store(true)
	l.calls.Close()
	l.completions.Close()
	l.drain()
}

func (l *Loop) drain() {
	l.runCompletions()
	for n := l.calls.Len(); n > 0; n-- {
		l.run(<-l.calls.Get())
	}
}

// Tick runs pending completions, queued calls and expired timers once, for
// driving a loop that is not running.
func (l *Loop) Tick() {
	l.drain()
	l.timers.Run(l.opts.tickLimit)
}

func (l *Loop) Stop() {
	l.stopOnce.Do(func() {
		close(l.stopChan)
	})
}

func (l *Loop) Done() <-chan struct{} {
	return l.doneChan
}

func (l *Loop) runCompletions() {
	for _, f := range l.completions.Drain() {
		l.run(f)
	}
}

func (l *Loop) run(f func()) {
	if err := safe.Call(f); err != nil {
		var pe *safe.PanicError
		if errors.As(err, &pe) {
			l.logger.Error(fmt.Sprintf("reactor: loop %s task panic", l),
				slog.Any("error", err), slog.String("stack", pe.Stack))
			return
		}
		l.logger.Error(fmt.Sprintf("reactor: loop %s task", l), slog.Any("error", err))
	}
}
