package udp

import (
	"context"
	"net"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/sockopt"
)

type UDPServer struct {
	Settings sockopt.Settings
}

func NewUDPServer() *UDPServer {
	return &UDPServer{Settings: sockopt.Settings{ReuseAddr: true, Broadcast: true}}
}

// Bind opens the datagram socket a server reads from. The returned conn
// answers whichever peer sent the most recent datagram.
func (t *UDPServer) Bind(ctx context.Context, addr address.Address) (transport.TransportConn, error) {
	if !addr.IsValid() {
		return nil, errors.Tracef("cannot bind %s", addr)
	}
	packetConn, err := sockopt.ListenConfig(t.Settings).ListenPacket(ctx, addr.Network("udp"), addr.HostPort())
	if err != nil {
		return nil, errors.Trace(err)
	}
	return NewUDPConn(packetConn.(*net.UDPConn), nil, true), nil
}
