package udp

import (
	"net"
	"sync"
	"syscall"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
)

var ErrNoPeer = errors.New("no datagram peer known yet")

// UDP无状态，所以需要记录当前链接的对端地址。
// A server-side conn learns its peer from each datagram it reads; a
// client-side conn keeps the peer it was dialed with.
type UDPConn struct {
	conn      *net.UDPConn
	learnPeer bool

	mu   sync.Mutex
	peer *net.UDPAddr
}

func NewUDPConn(conn *net.UDPConn, peer *net.UDPAddr, learnPeer bool) *UDPConn {
	return &UDPConn{
		conn:      conn,
		peer:      peer,
		learnPeer: learnPeer,
	}
}

// Read receives one datagram. A datagram longer than b is truncated.
func (c *UDPConn) Read(b []byte) (int, error) {
	n, from, err := c.conn.ReadFromUDP(b)
	if err != nil {
		return n, err
	}
	if c.learnPeer {
		c.mu.Lock()
		c.peer = from
		c.mu.Unlock()
	}
	return n, nil
}

// Write sends b as one datagram to the current peer.
func (c *UDPConn) Write(b []byte) (int, error) {
	peer := c.Peer()
	if peer == nil {
		return 0, errors.Trace(ErrNoPeer)
	}
	return c.conn.WriteToUDP(b, peer)
}

func (c *UDPConn) Peer() *net.UDPAddr {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.peer
}

func (c *UDPConn) Close() error {
	return c.conn.Close()
}

func (c *UDPConn) LocalAddr() net.Addr {
	return c.conn.LocalAddr()
}

func (c *UDPConn) RemoteAddr() net.Addr {
	if peer := c.Peer(); peer != nil {
		return peer
	}
	return nil
}

func (c *UDPConn) SetDeadline(t time.Time) error {
	return c.conn.SetDeadline(t)
}

func (c *UDPConn) SyscallConn() (syscall.RawConn, error) {
	return c.conn.SyscallConn()
}
