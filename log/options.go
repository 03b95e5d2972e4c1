package log

import (
	"io"
	"log/slog"
)

const (
	FormatJSON = "json"
	FormatText = "text"
)

type options struct {
	w      io.Writer
	opts   *slog.HandlerOptions
	format string
	args   []any
}

type Option func(*options)

func WithWriter(w io.Writer) Option {
	return func(opts *options) {
		opts.w = w
	}
}

func WithHandlerOptions(ho *slog.HandlerOptions) Option {
	return func(opts *options) {
		opts.opts = ho
	}
}

func WithSource(add bool) Option {
	return func(opts *options) {
		opts.opts.AddSource = add
	}
}

func WithLevel(level slog.Level) Option {
	return func(opts *options) {
		opts.opts.Level = level
	}
}

// WithFormat selects the handler: FormatJSON (default) or FormatText.
func WithFormat(format string) Option {
	return func(opts *options) {
		opts.format = format
	}
}

func WithAttrs(args ...any) Option {
	return func(opts *options) {
		clear(opts.args)
		opts.args = append(opts.args[:0], args...)
	}
}
