package udp

import (
	"context"
	"net"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/sockopt"
)

type UDPClient struct {
	Settings sockopt.Settings
}

func NewUDPClient() *UDPClient {
	return &UDPClient{}
}

// Dial binds an ephemeral local port in the family of addr; datagrams are
// sent to addr.
func (t *UDPClient) Dial(ctx context.Context, addr address.Address) (transport.TransportConn, error) {
	if addr.Kind() != address.KindIPv4 && addr.Kind() != address.KindIPv6 {
		return nil, errors.Tracef("cannot dial %s", addr)
	}
	// 客户端不需要绑定到特定端口，让系统自动分配可用端口
	packetConn, err := sockopt.ListenConfig(t.Settings).ListenPacket(ctx, addr.Network("udp"), ":0")
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewUDPConn(packetConn.(*net.UDPConn), addr.UDPAddr(), false), nil
}
