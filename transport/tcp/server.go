package tcp

import (
	"context"
	"net"
	"syscall"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/sockopt"
)

var ErrNotListening = errors.New("server not listening")

type TCPServer struct {
	// Backlog is passed to listen(2) when positive.
	Backlog int

	listener *net.TCPListener
}

func NewTCPServer(backlog int) *TCPServer {
	return &TCPServer{Backlog: backlog}
}

func (t *TCPServer) Listen(ctx context.Context, addr address.Address) error {
	if !addr.IsValid() {
		return errors.Tracef("cannot listen on %s", addr)
	}
	settings := sockopt.Settings{ReuseAddr: true, KeepAlive: true}
	listener, err := sockopt.ListenStream(ctx, addr.AddrPort(), addr.IsAny(), t.Backlog, settings)
	if err != nil {
		return errors.Trace(err)
	}
	t.listener = listener
	return nil
}

// Accept blocks until one connection arrives.
func (t *TCPServer) Accept() (transport.TransportConn, error) {
	if t.listener == nil {
		return nil, errors.Trace(ErrNotListening)
	}
	conn, err := t.listener.AcceptTCP()
	if err != nil {
		return nil, errors.Trace(err)
	}
	// 关闭Nagle算法，减少延迟
	conn.SetNoDelay(true)
	return conn, nil
}

func (t *TCPServer) Addr() net.Addr {
	if t.listener == nil {
		return nil
	}
	return t.listener.Addr()
}

func (t *TCPServer) SetDeadline(deadline time.Time) error {
	if t.listener == nil {
		return errors.Trace(ErrNotListening)
	}
	return t.listener.SetDeadline(deadline)
}

func (t *TCPServer) SyscallConn() (syscall.RawConn, error) {
	if t.listener == nil {
		return nil, errors.Trace(ErrNotListening)
	}
	return t.listener.SyscallConn()
}

func (t *TCPServer) Close() error {
	if t.listener == nil {
		return nil
	}
	return t.listener.Close()
}
