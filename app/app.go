package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"sync"

	"github.com/hsgames/evnet/net/tcp"
	"github.com/hsgames/evnet/safe"
	"github.com/pkg/errors"
)

type service struct {
	name     string
	start    func() error
	stop     func(ctx context.Context) error
	doneChan chan error
}

// App runs services until one fails or a shutdown signal arrives, then stops
// them in reverse order.
type App struct {
	opts     options
	services []*service
	stopChan chan struct{}
	stopOnce sync.Once
	logger   *slog.Logger
}

func New(opt ...Option) *App {
	opts := defaultOptions()
	for _, o := range opt {
		o(&opts)
	}
	opts.ensure()
	return &App{
		opts:     opts,
		stopChan: make(chan struct{}),
		logger:   opts.logger,
	}
}

// AddTCPServer listens on host:port right away, so bind errors surface
// before Run, and serves srv while the app runs.
func (a *App) AddTCPServer(srv *tcp.Server, port int, host string) error {
	if err := srv.Listen(port, host); err != nil {
		return err
	}
	a.logger.Info(fmt.Sprintf("app: tcp server %s listen", srv))
	a.AddService(srv.Name(),
		func() error {
			if err := srv.Serve(context.Background()); err != nil {
				return err
			}
			a.logger.Info(fmt.Sprintf("app: tcp server %s shutdown", srv))
			return nil
		},
		srv.Shutdown,
	)
	return nil
}

// AddPProf serves net/http/pprof on addr.
func (a *App) AddPProf(addr string) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	s := &http.Server{Addr: addr, Handler: mux}
	a.AddService("pprof",
		func() error {
			a.logger.Info("app: pprof server listen", slog.String("addr", addr))
			err := s.ListenAndServe()
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				return errors.Wrapf(err, "app: pprof server %s", addr)
			}
			a.logger.Info("app: pprof server shutdown", slog.String("addr", addr))
			return nil
		},
		s.Shutdown,
	)
}

func (a *App) AddService(name string, start func() error, stop func(ctx context.Context) error) {
	if start == nil {
		panic("app: app add service start func is nil")
	}
	if stop == nil {
		panic("app: app add service stop func is nil")
	}
	a.services = append(a.services, &service{
		name:     name,
		start:    start,
		stop:     stop,
		doneChan: make(chan error, 2),
	})
}

// Stop makes Run stop every service and return.
func (a *App) Stop() {
	a.stopOnce.Do(func() { close(a.stopChan) })
}

func (a *App) Run() error {
	var errOnce sync.Once
	errChan := make(chan error, 1)
	for _, v := range a.services {
		s := v
		safe.Go(func() {
			var err error
			defer func() {
				s.doneChan <- err
				if err != nil {
					errOnce.Do(func() { errChan <- err })
				}
			}()
			defer safe.RecoverError(&err)
			err = s.start()
		})
	}
	var (
		err  error
		done bool
	)
	c := make(chan os.Signal, 1)
	signal.Notify(c, a.opts.sigs...)
	defer signal.Stop(c)
	for !done {
		select {
		case err = <-errChan:
			done = true
		case <-a.stopChan:
			done = true
		case sig := <-c:
			done, err = func() (done bool, err error) {
				defer safe.RecoverError(&err)
				done = a.opts.sigHandler(a, sig)
				return
			}()
			if err != nil {
				a.logger.Error("app: app handle signal", slog.Any("error", err))
				done = true
			}
		}
	}

	for i := len(a.services) - 1; i >= 0; i-- {
		s := a.services[i]
		func() {
			var err error
			defer func() {
				if err != nil {
					s.doneChan <- err
				}
			}()
			defer safe.RecoverError(&err)
			ctx, cancel := context.WithTimeout(context.Background(), a.opts.stopTimeout)
			defer cancel()
			err = s.stop(ctx)
		}()
	}
	for _, v := range a.services {
		if err := <-v.doneChan; err != nil {
			a.logger.Error(fmt.Sprintf("app: app service %s done", v.name), slog.Any("error", err))
		}
	}
	return err
}
