package socket

import (
	"context"
	"fmt"
	"io"
	"net"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/common/log"
	"github.com/jabberwocky238/netstream/transport/address"

	"github.com/jpillora/sizestr"
	"golang.org/x/sync/semaphore"
)

var lastSocketID atomic.Uint64

// maxDatagramSize bounds a single datagram read by ReadUntil and IPC.
const maxDatagramSize = 64 * 1024

// Socket is one end of a stream, datagram or TLS connection. See the package
// documentation for its lifecycle.
type Socket struct {
	id    uint64
	ep    endpoint
	state State
	mode  Mode
	async bool

	callback   Callback
	maxWorkers int
	maxRecord  int
	sem        *semaphore.Weighted
	workers    sync.WaitGroup

	acl     *peerFilter
	pending *outBlock
	cookie  atomic.Uint32

	bytesRead    atomic.Uint64
	bytesWritten atomic.Uint64
}

type Stats struct {
	BytesRead    uint64
	BytesWritten uint64
}

func New(opts ...Option) *Socket {
	s := &Socket{state: Closed, maxRecord: DefaultMaxRecordSize}
	s.ep.resolver = address.DefaultResolver
	s.ep.tlsPorts = defaultTLSPorts
	for _, opt := range opts {
		opt(s)
	}
	s.init()
	return s
}

func (s *Socket) init() {
	s.id = lastSocketID.Add(1)
	s.ep.log = log.WithField("socket", s.id)
	if s.maxWorkers > 0 {
		s.sem = semaphore.NewWeighted(int64(s.maxWorkers))
	}
	runtime.SetFinalizer(s, (*Socket).finalize)
}

// finalize closes a socket that was dropped while still open.
func (s *Socket) finalize() {
	if s.state == Closed {
		return
	}
	s.ep.log.Warnf("socket dropped while %s, closing", s.state)
	s.Close()
}

func (s *Socket) handler() stateHandler {
	return handlers[s.state]
}

func (s *Socket) setState(next State) {
	if next != s.state {
		s.ep.log.WithField("state", next).Debugf("%s -> %s", s.state, next)
	}
	s.state = next
}

// Open parses target as [scheme://]host[:port], resolves it and opens the
// socket. See OpenAddress.
func (s *Socket) Open(target string, mode Mode) error {
	return s.OpenContext(context.Background(), target, mode)
}

// OpenContext is Open with ctx bounding resolution, connect and the TLS
// handshake.
func (s *Socket) OpenContext(ctx context.Context, target string, mode Mode) error {
	t, err := address.ParseTarget(target)
	if err != nil {
		return errors.Trace(err)
	}
	return s.OpenAddress(ctx, t.Resolve(ctx, s.ep.resolver), t.Host, mode)
}

// OpenAddress opens the socket on a resolved address. The wildcard address
// or ModeCreate opens a server; anything else a client, with TLS when the
// port is one of the TLS ports. host is used as the TLS server name.
//
// On failure the socket is Closed and holds no handle.
func (s *Socket) OpenAddress(ctx context.Context, addr address.Address, host string, mode Mode) error {
	req := &openRequest{target: addr, host: host, mode: mode}
	for {
		next, err := s.handler().open(ctx, &s.ep, req)
		if err != nil {
			s.ep.release()
			s.setState(Closed)
			s.ep.log.Debugf("open %s failed: %v", addr, err)
			return err
		}
		s.setState(next)
		if !next.opening() {
			break
		}
	}
	s.mode = mode
	s.async = mode.Has(ModeAsync)
	s.bytesRead.Store(0)
	s.bytesWritten.Store(0)
	s.ep.log.Debugf("opened %s %s local %s peer %s", s.ep.protocol, mode, s.ep.local, s.ep.peer)
	return nil
}

// Listen accepts one pending connection and returns it as a new Connected
// socket. On failure the socket stays Listening and nil is returned.
func (s *Socket) Listen() (*Socket, error) {
	conn, err := s.handler().accept(&s.ep)
	if err != nil {
		return nil, err
	}
	peer := s.ep.resolver.FromNetAddr(conn.RemoteAddr())
	if !s.acl.allowed(peer.IP()) {
		conn.Close()
		s.ep.log.Warnf("rejected peer %s", peer)
		return nil, errors.TraceMsg(ErrPeerRejected, peer.String())
	}

	child := &Socket{
		state:      Connected,
		mode:       s.mode,
		async:      s.async,
		maxWorkers: s.maxWorkers,
		maxRecord:  s.maxRecord,
		ep: endpoint{
			protocol: s.ep.protocol,
			resolver: s.ep.resolver,
			tlsPorts: s.ep.tlsPorts,
			terminal: true,
			handle:   conn,
			conn:     conn,
			local:    s.ep.resolver.FromNetAddr(conn.LocalAddr()),
			peer:     peer,
		},
	}
	child.init()
	s.ep.log.Debugf("accepted %s as socket %d", peer, child.id)
	return child, nil
}

// Read reads up to len(b) bytes. In async mode it returns ErrNoData or
// ErrPending instead of blocking; see the package documentation.
func (s *Socket) Read(b []byte) (int, error) {
	h := s.handler()
	if !s.mode.Has(ModeRead) {
		panic(&ContractViolation{State: s.state, Op: "read", Reason: "not opened for reading"})
	}
	if len(b) == 0 {
		panic(&ContractViolation{State: s.state, Op: "read", Reason: "zero-length buffer"})
	}
	if s.async {
		return s.readAsync(h, b)
	}
	return s.readSync(h, b)
}

func (s *Socket) readSync(h stateHandler, b []byte) (int, error) {
	n, err := h.stream(&s.ep, "read").Read(b)
	if n > 0 {
		s.bytesRead.Add(uint64(n))
	}
	return n, err
}

// ReadUntil reads until the data read ends with delim or the stream ends,
// returning everything read. Stream sockets read one byte at a time so
// nothing past the delimiter is consumed; datagram sockets read whole
// datagrams.
func (s *Socket) ReadUntil(delim string) (string, error) {
	h := s.handler()
	if !s.mode.Has(ModeRead) {
		panic(&ContractViolation{State: s.state, Op: "read", Reason: "not opened for reading"})
	}
	if delim == "" {
		panic(&ContractViolation{State: s.state, Op: "read", Reason: "empty delimiter"})
	}

	var sb strings.Builder
	size := 1
	if s.ep.protocol == Datagram {
		size = maxDatagramSize
	}
	buf := make([]byte, size)
	for {
		n, err := s.readSync(h, buf)
		sb.Write(buf[:n])
		if n > 0 {
			got := sb.String()
			if strings.HasSuffix(got, delim) || (s.ep.protocol == Datagram && strings.Contains(got, delim)) {
				return got, nil
			}
		}
		if err != nil {
			return sb.String(), err
		}
		if n == 0 {
			return sb.String(), io.EOF
		}
	}
}

// Write writes b. In async mode with a callback registered the write is
// handed to a worker and ErrPending returned.
func (s *Socket) Write(b []byte) (int, error) {
	h := s.handler()
	if !s.mode.Has(ModeWrite) {
		panic(&ContractViolation{State: s.state, Op: "write", Reason: "not opened for writing"})
	}
	conn := h.stream(&s.ep, "write")
	if s.async && s.callback != nil {
		s.writeAsync(conn, b)
		return 0, ErrPending
	}
	n, err := conn.Write(b)
	if n > 0 {
		s.bytesWritten.Add(uint64(n))
	}
	return n, err
}

func (s *Socket) WriteString(str string) (int, error) {
	return s.Write([]byte(str))
}

// writeFull writes all of b synchronously, whatever the async mode.
func (s *Socket) writeFull(b []byte) error {
	conn := s.handler().stream(&s.ep, "write")
	for len(b) > 0 {
		n, err := conn.Write(b)
		if n > 0 {
			s.bytesWritten.Add(uint64(n))
		}
		if err != nil {
			return err
		}
		b = b[n:]
	}
	return nil
}

// Close flushes buffered output and releases the handle. Closing a closed
// socket does nothing.
func (s *Socket) Close() error {
	if s.state == Closed {
		return nil
	}
	if s.pending != nil && s.state.connected() && s.mode.Has(ModeWrite) {
		if err := s.pending.flush(s); err != nil {
			s.ep.log.Debugf("flush on close failed: %v", err)
		}
	}
	err := s.handler().close(&s.ep)
	s.setState(Closed)
	s.ep.log.Debugf("closed (read %s, wrote %s)",
		sizestr.ToString(int64(s.bytesRead.Load())), sizestr.ToString(int64(s.bytesWritten.Load())))
	return errors.Trace(err)
}

// Abort interrupts a blocked accept, read or write. Workers already running
// may still deliver their callbacks.
func (s *Socket) Abort() error {
	return s.handler().abort(&s.ep)
}

func (s *Socket) SetSockopt(level, name int, value interface{}) error {
	return s.handler().setOption(&s.ep, level, name, value)
}

func (s *Socket) GetSockopt(level, name int) (interface{}, error) {
	return s.handler().getOption(&s.ep, level, name)
}

func (s *Socket) State() State { return s.state }

// Valid reports whether the socket holds an OS handle.
func (s *Socket) Valid() bool {
	return s.ep.handle != nil || s.ep.listener != nil
}

func (s *Socket) Protocol() Protocol { return s.ep.protocol }

func (s *Socket) LocalAddr() address.Address { return s.ep.local }

func (s *Socket) RemoteAddr() address.Address { return s.ep.remote() }

func (s *Socket) Stats() Stats {
	return Stats{BytesRead: s.bytesRead.Load(), BytesWritten: s.bytesWritten.Load()}
}

// Display renders the peer, or the local address of a listening socket, as
// host:port using the reverse-resolved name when there is one.
func (s *Socket) Display() string {
	a := s.ep.remote()
	if !a.IsValid() {
		a = s.ep.local
	}
	switch a.Kind() {
	case address.KindIPv4, address.KindIPv6:
		host := a.Display()
		if host == "" {
			host = a.Numeric()
		}
		return net.JoinHostPort(host, strconv.Itoa(int(a.Port())))
	}
	return a.String()
}

func (s *Socket) String() string {
	return fmt.Sprintf("socket#%d(%s %s %s->%s)", s.id, s.ep.protocol, s.state, s.ep.local, s.ep.remote())
}
