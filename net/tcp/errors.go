package tcp

import "github.com/pkg/errors"

var (
	// ErrInvalidConn is returned for a zero or stale ConnID.
	ErrInvalidConn = errors.New("tcp: invalid connection")
	// ErrConnEnding is returned for writes and registrations once End ran.
	ErrConnEnding = errors.New("tcp: connection ending")
	// ErrConnClosed is returned while the connection is being closed.
	ErrConnClosed       = errors.New("tcp: connection closed")
	ErrReadTimeout      = errors.New("tcp: read timeout")
	ErrTooManyConns     = errors.New("tcp: too many connections")
	ErrReadRateExceeded = errors.New("tcp: read rate exceeded")
	ErrServerShutdown   = errors.New("tcp: server shutdown")
)
