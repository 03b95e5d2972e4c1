package tcp

import (
	"fmt"
	"log/slog"
	"time"

	evnet "github.com/hsgames/evnet/net"
	"github.com/hsgames/evnet/pool/bytespool"
	"github.com/hsgames/evnet/reactor"
	"github.com/pkg/errors"
)

type connOptions struct {
	keepAlivePeriod   time.Duration
	noDelay           bool
	readTimeout       time.Duration
	readSize          int
	maxReadSize       int
	shutdownTimeout   time.Duration
	maxReadsPerSecond int
	autoEnd           bool
}

type options struct {
	connOptions

	maxConnNum   int
	transport    reactor.Transport
	loop         *reactor.Loop
	loopOptions  []reactor.Option
	bufferPool   *bytespool.Pool
	errorHandler evnet.ErrorFunc
	logger       *slog.Logger
}

func defaultOptions() options {
	return options{
		connOptions: connOptions{
			keepAlivePeriod: 3 * time.Minute,
			noDelay:         true,
			readSize:        reactor.DefaultReadSize,
			shutdownTimeout: 30 * time.Second,
		},
	}
}

func (o *options) check() error {
	if o.keepAlivePeriod < 0 {
		return fmt.Errorf("tcp: options keepAlivePeriod [%s] < 0", o.keepAlivePeriod)
	}
	if o.readTimeout < 0 {
		return fmt.Errorf("tcp: options readTimeout [%s] < 0", o.readTimeout)
	}
	if o.readSize <= 0 {
		return fmt.Errorf("tcp: options readSize [%d] <= 0", o.readSize)
	}
	if o.maxReadSize < 0 {
		return fmt.Errorf("tcp: options maxReadSize [%d] < 0", o.maxReadSize)
	}
	if o.maxReadSize > 0 && o.readSize > o.maxReadSize {
		return fmt.Errorf("tcp: options readSize [%d] > maxReadSize [%d]", o.readSize, o.maxReadSize)
	}
	if o.shutdownTimeout < 0 {
		return fmt.Errorf("tcp: options shutdownTimeout [%s] < 0", o.shutdownTimeout)
	}
	if o.maxConnNum < 0 {
		return fmt.Errorf("tcp: options maxConnNum [%d] < 0", o.maxConnNum)
	}
	if o.maxReadsPerSecond < 0 {
		return fmt.Errorf("tcp: options maxReadsPerSecond [%d] < 0", o.maxReadsPerSecond)
	}
	if o.loop != nil && len(o.loopOptions) > 0 {
		return errors.New("tcp: options loop and loopOptions are exclusive")
	}
	if o.logger == nil {
		o.logger = slog.Default()
	}
	if o.bufferPool == nil {
		o.bufferPool = bytespool.Default()
	}
	return nil
}

type Option func(o *options)

// WithKeepAlivePeriod enables TCP keep-alive on accepted connections, 0 disables it.
func WithKeepAlivePeriod(keepAlivePeriod time.Duration) Option {
	return func(o *options) {
		o.keepAlivePeriod = keepAlivePeriod
	}
}

func WithNoDelay(noDelay bool) Option {
	return func(o *options) {
		o.noDelay = noDelay
	}
}

// WithReadTimeout closes a connection with ErrReadTimeout when a single read
// waits longer than readTimeout.
func WithReadTimeout(readTimeout time.Duration) Option {
	return func(o *options) {
		o.readTimeout = readTimeout
	}
}

func WithReadSize(readSize int) Option {
	return func(o *options) {
		o.readSize = readSize
	}
}

// WithMaxReadSize makes the allocator refuse bigger requests.
func WithMaxReadSize(maxReadSize int) Option {
	return func(o *options) {
		o.maxReadSize = maxReadSize
	}
}

// WithShutdownTimeout forces a close when a half-close does not complete in
// time, 0 waits forever.
func WithShutdownTimeout(shutdownTimeout time.Duration) Option {
	return func(o *options) {
		o.shutdownTimeout = shutdownTimeout
	}
}

func WithMaxReadsPerSecond(maxReadsPerSecond int) Option {
	return func(o *options) {
		o.maxReadsPerSecond = maxReadsPerSecond
	}
}

// WithAutoEnd ends a connection right after its end callback ran.
func WithAutoEnd(autoEnd bool) Option {
	return func(o *options) {
		o.autoEnd = autoEnd
	}
}

func WithMaxConnNum(maxConnNum int) Option {
	return func(o *options) {
		o.maxConnNum = maxConnNum
	}
}

// WithTransport replaces the operating system TCP transport.
func WithTransport(transport reactor.Transport) Option {
	return func(o *options) {
		o.transport = transport
	}
}

// WithLoop runs the server on an existing loop instead of creating one.
func WithLoop(loop *reactor.Loop) Option {
	return func(o *options) {
		o.loop = loop
	}
}

func WithLoopOptions(opt ...reactor.Option) Option {
	return func(o *options) {
		o.loopOptions = append(o.loopOptions, opt...)
	}
}

// WithErrorHandler receives every connection error after the connection's
// own error callback.
func WithErrorHandler(errorHandler evnet.ErrorFunc) Option {
	return func(o *options) {
		o.errorHandler = errorHandler
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithBufferPool sets the pool read buffers and write copies come from.
func WithBufferPool(bufferPool *bytespool.Pool) Option {
	return func(o *options) {
		o.bufferPool = bufferPool
	}
}
