package log

import (
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
)

// New builds a logger without touching the process default.
func New(opt ...Option) *slog.Logger {
	opts := options{
		w:      os.Stdout,
		opts:   &slog.HandlerOptions{AddSource: true},
		format: FormatJSON,
	}

	for _, v := range opt {
		v(&opts)
	}

	var h slog.Handler
	if opts.format == FormatText {
		h = slog.NewTextHandler(opts.w, opts.opts)
	} else {
		h = slog.NewJSONHandler(opts.w, opts.opts)
	}

	return slog.New(h).With(opts.args...)
}

func Init(opt ...Option) {
	slog.SetDefault(New(opt...))
}

func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	}

	return slog.LevelInfo, errors.Errorf("log: unknown level [%s]", s)
}
