package socket

import (
	"syscall"

	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/tls"

	"github.com/sirupsen/logrus"
)

// endpoint is the part of a Socket that state handlers read and modify.
type endpoint struct {
	protocol   Protocol
	resolver   *address.Resolver
	backlog    int
	tlsPorts   []uint16
	tlsPending []tlsSetting
	tlsOpts    tls.Options

	// set on sockets handed out by Listen; they cannot be reopened
	terminal bool

	// handle owns the OS socket. conn is what reads and writes go through:
	// the handle itself, or the TLS session layered on it.
	handle   transport.TransportConn
	conn     transport.TransportConn
	listener transport.TransportServer
	session  tlsSession

	local address.Address
	peer  address.Address

	log *logrus.Entry
}

type tlsSession interface {
	transport.TransportConn
	Release() error
	Get(name int) (interface{}, error)
	Pending() (int, error)
}

// sysConn returns the OS handle for option pass-through and byte probing.
func (e *endpoint) sysConn() syscall.Conn {
	if sc, ok := e.handle.(syscall.Conn); ok {
		return sc
	}
	if sc, ok := e.listener.(syscall.Conn); ok {
		return sc
	}
	return nil
}

func (e *endpoint) isTLSPort(port uint16) bool {
	if e.protocol != Stream {
		return false
	}
	for _, p := range e.tlsPorts {
		if p == port {
			return true
		}
	}
	return false
}

// release closes whatever OS handle the endpoint holds.
func (e *endpoint) release() error {
	var err error
	if e.listener != nil {
		err = e.listener.Close()
		e.listener = nil
	}
	if e.handle != nil {
		if closeErr := e.handle.Close(); err == nil {
			err = closeErr
		}
		e.handle = nil
	}
	e.conn = nil
	e.session = nil
	return err
}

// remote is the current peer. A datagram server learns it from the last
// datagram read.
func (e *endpoint) remote() address.Address {
	if e.protocol == Datagram && e.handle != nil {
		return e.resolver.FromNetAddr(e.handle.RemoteAddr())
	}
	return e.peer
}
