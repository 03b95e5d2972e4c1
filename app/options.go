package app

import (
	"log/slog"
	"os"
	"slices"
	"syscall"
	"time"
)

// SignalHandler reports whether sig should stop the App.
type SignalHandler func(a *App, sig os.Signal) (stop bool)

var shutdownSignals = []os.Signal{syscall.SIGTERM, syscall.SIGQUIT, syscall.SIGINT}

func defaultSignalHandler(a *App, sig os.Signal) bool {
	if slices.Contains(shutdownSignals, sig) {
		a.logger.Info("app: handle shutdown signal", slog.String("signal", sig.String()))
		return true
	}
	a.logger.Info("app: unhandled signal", slog.String("signal", sig.String()))
	return false
}

type options struct {
	sigs        []os.Signal
	sigHandler  SignalHandler
	stopTimeout time.Duration
	logger      *slog.Logger
}

func defaultOptions() options {
	return options{
		sigs:        slices.Clone(shutdownSignals),
		sigHandler:  defaultSignalHandler,
		stopTimeout: 10 * time.Second,
	}
}

func (opts *options) ensure() {
	if opts.sigHandler == nil {
		panic("app: options sigHandler == nil")
	}
	if opts.stopTimeout <= 0 {
		panic("app: options stopTimeout <= 0")
	}
	if opts.logger == nil {
		opts.logger = slog.Default()
	}
}

type Option func(o *options)

// AddSignals subscribes to more signals; duplicates are ignored.
func AddSignals(sigs ...os.Signal) Option {
	return func(o *options) {
		for _, sig := range sigs {
			if !slices.Contains(o.sigs, sig) {
				o.sigs = append(o.sigs, sig)
			}
		}
	}
}

func WithSignalHandler(sigHandler SignalHandler) Option {
	return func(o *options) {
		o.sigHandler = sigHandler
	}
}

// WithStopTimeout bounds how long each service may take to stop.
func WithStopTimeout(stopTimeout time.Duration) Option {
	return func(o *options) {
		o.stopTimeout = stopTimeout
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}
