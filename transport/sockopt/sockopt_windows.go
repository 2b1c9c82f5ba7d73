//go:build windows

package sockopt

import (
	"context"
	"net"
	"net/netip"
	"syscall"

	"github.com/jabberwocky238/netstream/common/errors"
	"golang.org/x/sys/windows"
)

func (s Settings) apply(fd uintptr) error {
	h := windows.Handle(fd)
	if s.ReuseAddr {
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_REUSEADDR, 1); err != nil {
			return errors.TraceMsg(err, "SO_REUSEADDR")
		}
	}
	if s.KeepAlive {
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_KEEPALIVE, 1); err != nil {
			return errors.TraceMsg(err, "SO_KEEPALIVE")
		}
	}
	if s.Broadcast {
		if err := windows.SetsockoptInt(h, windows.SOL_SOCKET, windows.SO_BROADCAST, 1); err != nil {
			return errors.TraceMsg(err, "SO_BROADCAST")
		}
	}
	return nil
}

// Available always reports zero on Windows, so async reads are always handed
// to a worker.
func Available(conn syscall.Conn) (int, error) {
	return 0, nil
}

func GetInt(conn syscall.Conn, level, name int) (int, error) {
	var value int
	err := rawControl(conn, func(fd uintptr) error {
		var err error
		value, err = windows.GetsockoptInt(windows.Handle(fd), level, name)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return value, nil
}

func SetInt(conn syscall.Conn, level, name, value int) error {
	return errors.Trace(rawControl(conn, func(fd uintptr) error {
		return windows.SetsockoptInt(windows.Handle(fd), level, name, value)
	}))
}

func Probe(ipv6 bool) error {
	domain := windows.AF_INET
	if ipv6 {
		domain = windows.AF_INET6
	}
	h, err := windows.Socket(domain, windows.SOCK_STREAM, 0)
	if err != nil {
		return errors.Trace(err)
	}
	windows.Closesocket(h)
	return nil
}

// ListenStream ignores the backlog on Windows.
func ListenStream(ctx context.Context, ap netip.AddrPort, wildcard bool, backlog int, s Settings) (*net.TCPListener, error) {
	return listenDefault(ctx, ap, wildcard, s)
}
