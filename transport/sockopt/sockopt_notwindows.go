//go:build !windows

package sockopt

import (
	"context"
	"net"
	"net/netip"
	"os"
	"syscall"

	"github.com/jabberwocky238/netstream/common/errors"
	"golang.org/x/sys/unix"
)

func (s Settings) apply(fd uintptr) error {
	if s.ReuseAddr {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEADDR, 1); err != nil {
			return errors.TraceMsg(err, "SO_REUSEADDR")
		}
	}
	if s.KeepAlive {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_KEEPALIVE, 1); err != nil {
			return errors.TraceMsg(err, "SO_KEEPALIVE")
		}
	}
	if s.Broadcast {
		if err := unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_BROADCAST, 1); err != nil {
			return errors.TraceMsg(err, "SO_BROADCAST")
		}
	}
	return nil
}

func GetInt(conn syscall.Conn, level, name int) (int, error) {
	var value int
	err := rawControl(conn, func(fd uintptr) error {
		var err error
		value, err = unix.GetsockoptInt(int(fd), level, name)
		return err
	})
	if err != nil {
		return 0, errors.Trace(err)
	}
	return value, nil
}

func SetInt(conn syscall.Conn, level, name, value int) error {
	return errors.Trace(rawControl(conn, func(fd uintptr) error {
		return unix.SetsockoptInt(int(fd), level, name, value)
	}))
}

// Probe creates and immediately closes a stream socket of the given family,
// reporting whether this host can use it.
func Probe(ipv6 bool) error {
	domain := unix.AF_INET
	if ipv6 {
		domain = unix.AF_INET6
	}
	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return errors.Trace(err)
	}
	unix.Close(fd)
	return nil
}

// ListenStream binds a stream socket to ap and listens with the given
// backlog. A wildcard bind is dual-stack where IPv6 is available. With a
// backlog of zero or less the runtime's own listen path is used.
//
// The raw syscall sequence follows the one used for device-bound dials:
// socket, options, bind, listen, then hand the fd to the runtime.
func ListenStream(ctx context.Context, ap netip.AddrPort, wildcard bool, backlog int, s Settings) (*net.TCPListener, error) {
	if backlog <= 0 {
		return listenDefault(ctx, ap, wildcard, s)
	}

	var domain int
	var sa unix.Sockaddr
	dualStack := false
	switch {
	case wildcard && Probe(true) == nil:
		domain, sa, dualStack = unix.AF_INET6, &unix.SockaddrInet6{Port: int(ap.Port())}, true
	case wildcard:
		domain, sa = unix.AF_INET, &unix.SockaddrInet4{Port: int(ap.Port())}
	case ap.Addr().Is4():
		domain, sa = unix.AF_INET, &unix.SockaddrInet4{Port: int(ap.Port()), Addr: ap.Addr().As4()}
	default:
		sa6 := &unix.SockaddrInet6{Port: int(ap.Port()), Addr: ap.Addr().As16()}
		if zone := ap.Addr().Zone(); zone != "" {
			iface, err := net.InterfaceByName(zone)
			if err != nil {
				return nil, errors.Trace(err)
			}
			sa6.ZoneId = uint32(iface.Index)
		}
		domain, sa = unix.AF_INET6, sa6
	}

	fd, err := unix.Socket(domain, unix.SOCK_STREAM, 0)
	if err != nil {
		return nil, errors.Trace(err)
	}
	unix.CloseOnExec(fd)

	if err := s.apply(uintptr(fd)); err != nil {
		unix.Close(fd)
		return nil, errors.Trace(err)
	}
	if dualStack {
		if err := unix.SetsockoptInt(fd, unix.IPPROTO_IPV6, unix.IPV6_V6ONLY, 0); err != nil {
			unix.Close(fd)
			return nil, errors.TraceMsg(err, "IPV6_V6ONLY")
		}
	}
	if err := unix.Bind(fd, sa); err != nil {
		unix.Close(fd)
		return nil, errors.Trace(err)
	}
	if err := unix.Listen(fd, backlog); err != nil {
		unix.Close(fd)
		return nil, errors.Trace(err)
	}

	file := os.NewFile(uintptr(fd), "")
	l, err := net.FileListener(file) // dups fd
	file.Close()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return l.(*net.TCPListener), nil
}
