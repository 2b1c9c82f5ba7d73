// Package sockopt applies platform socket options and exposes the few raw
// socket operations the transports need: readable-byte probing, option
// pass-through, family probing and a listen that honours the backlog.
package sockopt

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"syscall"

	"github.com/jabberwocky238/netstream/common/errors"
)

// Settings are the options applied to a socket before bind or connect.
type Settings struct {
	ReuseAddr bool
	KeepAlive bool
	Broadcast bool
}

// Control returns a net.Dialer / net.ListenConfig control hook applying s.
func Control(s Settings) func(network, address string, c syscall.RawConn) error {
	return func(network, address string, c syscall.RawConn) error {
		var opErr error
		err := c.Control(func(fd uintptr) {
			opErr = s.apply(fd)
		})
		if err != nil {
			return errors.Trace(err)
		}
		return errors.Trace(opErr)
	}
}

// ListenConfig returns a ListenConfig whose sockets get s applied.
func ListenConfig(s Settings) *net.ListenConfig {
	return &net.ListenConfig{Control: Control(s)}
}

func rawControl(conn syscall.Conn, f func(fd uintptr) error) error {
	raw, err := conn.SyscallConn()
	if err != nil {
		return errors.Trace(err)
	}
	var opErr error
	err = raw.Control(func(fd uintptr) {
		opErr = f(fd)
	})
	if err != nil {
		return errors.Trace(err)
	}
	return opErr
}

// listenDefault listens through the runtime, which picks its own backlog.
func listenDefault(ctx context.Context, ap netip.AddrPort, wildcard bool, s Settings) (*net.TCPListener, error) {
	network, address := "tcp", ap.String()
	if wildcard {
		address = ":" + strconv.Itoa(int(ap.Port()))
	} else if ap.Addr().Is4() {
		network = "tcp4"
	} else {
		network = "tcp6"
	}
	l, err := ListenConfig(s).Listen(ctx, network, address)
	if err != nil {
		return nil, errors.Trace(err)
	}
	return l.(*net.TCPListener), nil
}
