package transport

import (
	"context"
	"net"
	"time"

	"github.com/jabberwocky238/netstream/transport/address"
)

// TransportServer binds a stream endpoint and hands out accepted connections
// one at a time.
type TransportServer interface {
	Listen(ctx context.Context, addr address.Address) error
	Accept() (TransportConn, error)
	Addr() net.Addr
	SetDeadline(t time.Time) error
	Close() error
}

// TransportBinder binds a datagram endpoint. There is no accept phase, the
// bound socket is usable immediately.
type TransportBinder interface {
	Bind(ctx context.Context, addr address.Address) (TransportConn, error)
}

type TransportClient interface {
	Dial(ctx context.Context, addr address.Address) (TransportConn, error)
}

type TransportConn interface {
	Read(b []byte) (n int, err error)
	Write(b []byte) (n int, err error)
	Close() error
	LocalAddr() net.Addr
	RemoteAddr() net.Addr
	SetDeadline(t time.Time) error
}

// the layers stack in one direction only:
// [socket] -> tls -> tcp
// [socket] -> udp
//
// a server is opened by Listen (stream) or Bind (datagram); a client by Dial.
// for tls the tcp client dials first and the handshake runs on top of the
// established conn, so a failed handshake leaves a tcp conn for the caller
// to release.
