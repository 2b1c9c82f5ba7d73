package tcp

import (
	"context"
	"net"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/sockopt"
)

type TCPClient struct {
	Settings sockopt.Settings
}

func NewTCPClient() *TCPClient {
	return &TCPClient{Settings: sockopt.Settings{KeepAlive: true}}
}

func (t *TCPClient) Dial(ctx context.Context, addr address.Address) (transport.TransportConn, error) {
	if addr.Kind() != address.KindIPv4 && addr.Kind() != address.KindIPv6 {
		return nil, errors.Tracef("cannot dial %s", addr)
	}
	dialer := &net.Dialer{Control: sockopt.Control(t.Settings)}
	conn, err := dialer.DialContext(ctx, addr.Network("tcp"), addr.HostPort())
	if err != nil {
		return nil, errors.Trace(err)
	}
	// 关闭Nagle算法，减少延迟，避免等待ACK
	if tcpConn, ok := conn.(*net.TCPConn); ok {
		tcpConn.SetNoDelay(true)
	}
	return conn, nil
}
