package tls

import (
	"context"
	"crypto/tls"
	"io"
	"net"
	"sync"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
)

const (
	closeNotifyTimeout = 1 * time.Second
	peekSize           = 4096
)

// Session is a client TLS session layered over an established connection.
// It owns its Context; the raw connection stays owned by the caller.
type Session struct {
	conn *tls.Conn
	raw  net.Conn
	ctx  *Context

	// plaintext taken off the session by Pending, served first by Read
	peekBuf []byte
	peeked  []byte

	once       sync.Once
	releaseErr error
}

// Client runs the handshake over raw. On failure nothing is left to release
// except raw itself and tctx, both still owned by the caller.
func Client(ctx context.Context, raw net.Conn, tctx *Context, serverName string) (*Session, error) {
	config := tctx.Config().Clone()
	if config.ServerName == "" {
		config.ServerName = serverName
	}
	conn := tls.Client(raw, config)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, errors.Trace(err)
	}
	return &Session{conn: conn, raw: raw, ctx: tctx}, nil
}

func (s *Session) Read(b []byte) (int, error) {
	if len(s.peeked) > 0 {
		n := copy(b, s.peeked)
		s.peeked = s.peeked[n:]
		return n, nil
	}
	return s.conn.Read(b)
}

// Pending returns how many plaintext bytes Read can return without
// blocking. Counting pending bytes on the raw socket is not enough: records
// already decrypted sit inside the session, and a partial record on the
// socket yields nothing yet. Pending reads under an expired deadline, which
// crypto/tls treats as a retryable error, and keeps what it got for Read.
//
// It must not run while another goroutine is in Read, and it clears any read
// deadline set on the session.
func (s *Session) Pending() (int, error) {
	if len(s.peeked) > 0 {
		return len(s.peeked), nil
	}
	if s.peekBuf == nil {
		s.peekBuf = make([]byte, peekSize)
	}
	if err := s.raw.SetReadDeadline(time.Now()); err != nil {
		return 0, errors.Trace(err)
	}
	n, err := s.conn.Read(s.peekBuf)
	s.raw.SetReadDeadline(time.Time{})
	if n > 0 {
		s.peeked = s.peekBuf[:n]
		return n, nil
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 0, nil
	}
	// end of stream counts as nothing pending; Read reports it
	if errors.Is(err, io.EOF) {
		return 0, nil
	}
	return 0, err
}

func (s *Session) Write(b []byte) (int, error) {
	return s.conn.Write(b)
}

func (s *Session) LocalAddr() net.Addr {
	return s.raw.LocalAddr()
}

func (s *Session) RemoteAddr() net.Addr {
	return s.raw.RemoteAddr()
}

func (s *Session) SetDeadline(t time.Time) error {
	return s.raw.SetDeadline(t)
}

// Raw returns the connection the session runs over.
func (s *Session) Raw() net.Conn {
	return s.raw
}

func (s *Session) State() tls.ConnectionState {
	return s.conn.ConnectionState()
}

// Get reads a handshake property by option name.
func (s *Session) Get(name int) (interface{}, error) {
	state := s.State()
	switch name {
	case OptProtocolVersion:
		return tls.VersionName(state.Version), nil
	case OptCipherSuite:
		return tls.CipherSuiteName(state.CipherSuite), nil
	case OptPeerSubject:
		if len(state.PeerCertificates) == 0 {
			return "", nil
		}
		return state.PeerCertificates[0].Subject.String(), nil
	}
	return nil, errors.Tracef("%w: %d", ErrUnknownOption, name)
}

// Release sends close_notify and then releases the Context. The raw
// connection is left open. Later calls return the first result.
func (s *Session) Release() error {
	s.once.Do(func() {
		s.raw.SetWriteDeadline(time.Now().Add(closeNotifyTimeout))
		s.releaseErr = s.conn.CloseWrite()
		s.ctx.Release()
	})
	return s.releaseErr
}

// Close releases the session and then closes the raw connection.
func (s *Session) Close() error {
	err := s.Release()
	if closeErr := s.raw.Close(); closeErr != nil {
		return closeErr
	}
	return err
}
