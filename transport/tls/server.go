package tls

import (
	"context"
	"crypto/tls"
	"net"
	"syscall"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/tcp"
)

type TLSServerConfig struct {
	ServerName string
	KeyPem     []byte
	CertPem    []byte
}

func (c *TLSServerConfig) ToTlsConfig() (*tls.Config, error) {
	cfg := &tls.Config{MinVersion: tls.VersionTLS12}

	if len(c.CertPem) > 0 && len(c.KeyPem) > 0 {
		cert, err := tls.X509KeyPair(c.CertPem, c.KeyPem)
		if err != nil {
			return nil, errors.Trace(err)
		}
		cfg.Certificates = []tls.Certificate{cert}
	}

	if c.ServerName != "" {
		cfg.ServerName = c.ServerName
	}

	return cfg, nil
}

// TLSServer accepts stream connections and completes the server handshake
// before handing them out. Sockets only ever take the client side of TLS;
// this is the peer they talk to.
type TLSServer struct {
	tlsCfg *tls.Config
	inner  *tcp.TCPServer
}

func NewTLSServer(cfg *TLSServerConfig) (*TLSServer, error) {
	tlsCfg, err := cfg.ToTlsConfig()
	if err != nil {
		return nil, errors.Trace(err)
	}
	return &TLSServer{tlsCfg: tlsCfg, inner: tcp.NewTCPServer(0)}, nil
}

func (t *TLSServer) Listen(ctx context.Context, addr address.Address) error {
	return t.inner.Listen(ctx, addr)
}

func (t *TLSServer) Accept() (transport.TransportConn, error) {
	raw, err := t.inner.Accept()
	if err != nil {
		return nil, errors.Trace(err)
	}
	conn := tls.Server(raw.(net.Conn), t.tlsCfg)
	if err := conn.Handshake(); err != nil {
		raw.Close()
		return nil, errors.Trace(err)
	}
	return conn, nil
}

func (t *TLSServer) Addr() net.Addr {
	return t.inner.Addr()
}

func (t *TLSServer) SetDeadline(deadline time.Time) error {
	return t.inner.SetDeadline(deadline)
}

func (t *TLSServer) SyscallConn() (syscall.RawConn, error) {
	return t.inner.SyscallConn()
}

func (t *TLSServer) Close() error {
	return t.inner.Close()
}
