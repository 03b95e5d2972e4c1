//go:build !linux

package reactor

import (
	"context"
	"net"

	"github.com/pkg/errors"
)

func listenTCP(addr *net.TCPAddr) (net.Listener, error) {
	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", addr.String())
	if err != nil {
		return nil, errors.WithStack(err)
	}
	return ln, nil
}
