// Package async hands closures from foreign goroutines to the one goroutine
// that owns some state, such as a reactor loop.
package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/hsgames/evnet/safe"
	"github.com/pkg/errors"
)

var (
	ErrServiceChanFull     = errors.New("async: service chan is full")
	ErrServiceAwaitTimeout = errors.New("async: service await timeout")
	ErrServiceClosed       = errors.New("async: service closed")
)

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

type Service struct {
	name    string
	ch      chan func()
	timeout time.Duration
	logger  *slog.Logger
	mu      sync.RWMutex
	closed  bool
}

// New returns a service queueing at most size calls. A positive timeout
// bounds every Await.
func New(name string, size int, timeout time.Duration, opt ...Option) *Service {
	s := &Service{
		name:    name,
		ch:      make(chan func(), size),
		timeout: timeout,
		logger:  slog.Default(),
	}
	for _, o := range opt {
		o(s)
	}
	return s
}

func (s *Service) String() string {
	return fmt.Sprintf("[name:%s]", s.name)
}

func (s *Service) Name() string {
	return s.name
}

// Get is drained by the owning goroutine, which runs every received func.
func (s *Service) Get() <-chan func() {
	return s.ch
}

// Len is the number of queued calls.
func (s *Service) Len() int {
	return len(s.ch)
}

// Close rejects later calls. Calls already queued stay in Get.
func (s *Service) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Service) push(fn func()) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return errors.Wrapf(ErrServiceClosed, "async: service %s", s)
	}
	select {
	case s.ch <- fn:
		return nil
	default:
		return errors.Wrapf(ErrServiceChanFull, "async: service %s", s)
	}
}

// invoke runs f, turning a panic into an error.
func (s *Service) invoke(kind string, f func() error) (err error) {
	if perr := safe.Call(func() { err = f() }); perr != nil {
		err = errors.Wrapf(perr, "async: service %s %s func", s, kind)
	}
	if err != nil {
		s.logger.Error(fmt.Sprintf("async: service %s %s func", s, kind), slog.Any("error", err))
	}
	return err
}

type response[T any] struct {
	res T
	err error
}

// Await runs f on the owning goroutine and waits for its result, bounded by
// ctx and the service timeout.
func Await[T any](ctx context.Context, s *Service, f func() (T, error)) (res T, err error) {
	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}
	ch := make(chan response[T], 1)
	err = s.push(func() {
		var r T
		ferr := s.invoke("await", func() (err error) {
			r, err = f()
			return err
		})
		ch <- response[T]{r, ferr}
	})
	if err != nil {
		return res, err
	}
	select {
	case resp := <-ch:
		return resp.res, resp.err
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return res, errors.Wrapf(ErrServiceAwaitTimeout, "async: service %s", s)
		}
		return res, ctx.Err()
	}
}

// Send queues f without waiting. Its error is only logged.
func (s *Service) Send(f func() error) error {
	return s.push(func() {
		_ = s.invoke("send", f)
	})
}
