package reactor

import (
	"fmt"
	"log/slog"
	"time"
)

type options struct {
	tickInterval time.Duration
	tickLimit    int
	callChanSize int
	awaitTimeout time.Duration
	queueShrink  int
	clock        func() time.Time
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		tickInterval: 10 * time.Millisecond,
		callChanSize: 1024,
		awaitTimeout: 5 * time.Second,
		queueShrink:  4096,
		clock:        time.Now,
	}
}

func (opts *options) ensure() {
	if opts.tickInterval <= 0 {
		panic(fmt.Sprintf("reactor: options tickInterval:%d <= 0", opts.tickInterval))
	}
	if opts.callChanSize <= 0 {
		panic(fmt.Sprintf("reactor: options callChanSize:%d <= 0", opts.callChanSize))
	}
	if opts.clock == nil {
		panic("reactor: options clock is nil")
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
}

type Option func(o *options)

// WithTickInterval sets the longest wait between timer checks.
func WithTickInterval(tickInterval time.Duration) Option {
	return func(o *options) {
		o.tickInterval = tickInterval
	}
}

// WithTickLimit bounds the timers fired per tick, 0 means unbounded.
func WithTickLimit(tickLimit int) Option {
	return func(o *options) {
		o.tickLimit = tickLimit
	}
}

func WithCallChanSize(callChanSize int) Option {
	return func(o *options) {
		o.callChanSize = callChanSize
	}
}

func WithAwaitTimeout(awaitTimeout time.Duration) Option {
	return func(o *options) {
		o.awaitTimeout = awaitTimeout
	}
}

func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		o.clock = clock
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
