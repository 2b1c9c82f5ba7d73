package socket

import (
	"bytes"
	"context"
	"io"
	"net"
	"runtime"
	"sync"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
)

// events records teardown order across fakes.
type events struct {
	mu   sync.Mutex
	list []string
}

func (e *events) add(name string) {
	if e == nil {
		return
	}
	e.mu.Lock()
	e.list = append(e.list, name)
	e.mu.Unlock()
}

func (e *events) get() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.list...)
}

// fakeConn hands out its chunks one underlying read at a time; a read
// smaller than the chunk leaves the rest for the next read.
type fakeConn struct {
	name   string
	events *events

	mu      sync.Mutex
	chunks  [][]byte
	reads   int
	written bytes.Buffer
	closed  bool
}

func newFakeConn(name string, ev *events, chunks ...string) *fakeConn {
	c := &fakeConn{name: name, events: ev}
	for _, chunk := range chunks {
		c.chunks = append(c.chunks, []byte(chunk))
	}
	return c
}

func (c *fakeConn) Read(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	if len(c.chunks) == 0 {
		return 0, io.EOF
	}
	c.reads++
	n := copy(b, c.chunks[0])
	if n < len(c.chunks[0]) {
		c.chunks[0] = c.chunks[0][n:]
	} else {
		c.chunks = c.chunks[1:]
	}
	return n, nil
}

func (c *fakeConn) Write(b []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return 0, net.ErrClosed
	}
	return c.written.Write(b)
}

func (c *fakeConn) Written() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.written.String()
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.events.add(c.name + ".close")
	return nil
}

func (c *fakeConn) LocalAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40000}
}

func (c *fakeConn) RemoteAddr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40001}
}

func (c *fakeConn) SetDeadline(time.Time) error { return nil }

// fakeSession stands in for a TLS session: releasing it releases its
// context, and neither touches the raw handle.
type fakeSession struct {
	*fakeConn
	events *events
}

func (s *fakeSession) Release() error {
	s.events.add("session.release")
	s.events.add("context.release")
	return nil
}

func (s *fakeSession) Get(name int) (interface{}, error) {
	return "TLS 1.3", nil
}

// Pending reports the next chunk as already decrypted.
func (s *fakeSession) Pending() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.chunks) == 0 {
		return 0, nil
	}
	return len(s.chunks[0]), nil
}

type fakeListener struct {
	events *events
	conns  []transport.TransportConn
}

func (l *fakeListener) Listen(context.Context, address.Address) error { return nil }

func (l *fakeListener) Accept() (transport.TransportConn, error) {
	if len(l.conns) == 0 {
		return nil, errors.TraceNew("nothing to accept")
	}
	conn := l.conns[0]
	l.conns = l.conns[1:]
	return conn, nil
}

func (l *fakeListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 40002}
}

func (l *fakeListener) SetDeadline(time.Time) error { return nil }

func (l *fakeListener) Close() error {
	l.events.add("listener.close")
	return nil
}

// socketIn builds a socket already in state, wired to fakes.
func socketIn(state State, ev *events) *Socket {
	s := New()
	// fakes need no finalizing, and opening states cannot be closed
	runtime.SetFinalizer(s, nil)
	s.state = state
	s.mode = ModeReadWrite
	switch state {
	case Listening:
		s.ep.listener = &fakeListener{events: ev, conns: []transport.TransportConn{newFakeConn("accepted", ev)}}
	case Connected:
		conn := newFakeConn("socket", ev, "x")
		s.ep.handle, s.ep.conn = conn, conn
	case ConnectedTLS:
		raw := newFakeConn("socket", ev)
		session := &fakeSession{fakeConn: newFakeConn("session", ev, "x"), events: ev}
		s.ep.handle, s.ep.conn, s.ep.session = raw, session, session
	}
	return s
}
