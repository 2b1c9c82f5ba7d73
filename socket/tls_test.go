package socket

import (
	"context"
	"io"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/tls"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startTLSEcho serves TLS echo on loopback and returns its port and the
// path of a CA file trusting it.
func startTLSEcho(t *testing.T) (uint16, string) {
	t.Helper()
	certPEM, keyPEM, err := tls.GenerateSelfSignedCert("localhost")
	require.NoError(t, err)
	server, err := tls.NewTLSServer(&tls.TLSServerConfig{ServerName: "localhost", CertPem: certPEM, KeyPem: keyPEM})
	require.NoError(t, err)
	ctx := context.Background()
	require.NoError(t, server.Listen(ctx, address.DefaultResolver.Resolve(ctx, "127.0.0.1", 0)))
	t.Cleanup(func() { server.Close() })

	go func() {
		for {
			conn, err := server.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) {
					return
				}
				continue
			}
			go func() {
				defer conn.Close()
				io.Copy(conn, conn)
			}()
		}
	}()

	caFile := filepath.Join(t.TempDir(), "ca.pem")
	require.NoError(t, os.WriteFile(caFile, certPEM, 0o600))
	return address.FromNetAddr(server.Addr()).Port(), caFile
}

func TestTLSClient(t *testing.T) {
	port, _ := startTLSEcho(t)

	s := New(WithTLSPorts(port), WithTLS(tls.Options{InsecureSkipVerify: true}))
	require.NoError(t, s.Open("localhost:"+strconv.Itoa(int(port)), ModeReadWrite))
	defer s.Close()
	require.Equal(t, ConnectedTLS, s.State())

	_, err := s.WriteString("secret\n")
	require.NoError(t, err)
	line, err := s.ReadUntil("\n")
	require.NoError(t, err)
	assert.Equal(t, "secret\n", line)

	version, err := s.GetSockopt(LevelTLS, tls.OptProtocolVersion)
	require.NoError(t, err)
	assert.Equal(t, "TLS 1.3", version)
	subject, err := s.GetSockopt(LevelTLS, tls.OptPeerSubject)
	require.NoError(t, err)
	assert.Contains(t, subject, "localhost")

	err = s.SetSockopt(LevelTLS, tls.OptServerName, "other")
	assert.True(t, errors.Is(err, ErrOptionRejected), "%v", err)
	_, err = s.GetSockopt(LevelTLS, tls.OptPassword)
	assert.True(t, errors.Is(err, tls.ErrWriteOnly), "%v", err)

	require.NoError(t, s.Close())
	assert.False(t, s.Valid())
	assert.Equal(t, Closed, s.State())
}

func TestTLSClientWithCAFile(t *testing.T) {
	port, caFile := startTLSEcho(t)

	s := New(WithTLSPorts(port), WithTLSOption(tls.OptCAFile, caFile))
	require.NoError(t, s.Open("localhost:"+strconv.Itoa(int(port)), ModeReadWrite))
	defer s.Close()
	assert.Equal(t, ConnectedTLS, s.State())
}

func TestTLSHandshakeFailure(t *testing.T) {
	port, _ := startTLSEcho(t)

	// nothing trusts the self-signed certificate
	s := New(WithTLSPorts(port))
	err := s.Open("localhost:"+strconv.Itoa(int(port)), ModeReadWrite)
	require.Error(t, err)
	assert.Equal(t, Closed, s.State())
	assert.False(t, s.Valid())

	// a bad option fails the open before connecting
	s = New(WithTLSPorts(port), WithTLSOption(tls.OptInsecureSkipVerify, "yes"))
	err = s.Open("localhost:"+strconv.Itoa(int(port)), ModeReadWrite)
	assert.True(t, errors.Is(err, tls.ErrBadValue), "%v", err)
	assert.Equal(t, Closed, s.State())
}

func TestTLSPortsAreStreamOnly(t *testing.T) {
	s := New(WithProtocol(Datagram), WithTLSPorts(443))
	assert.False(t, s.ep.isTLSPort(443))
	s = New()
	assert.True(t, s.ep.isTLSPort(443))
	assert.False(t, s.ep.isTLSPort(80))
}

func TestTLSOptionsRejectedOutsideOpening(t *testing.T) {
	s := New()
	err := s.SetSockopt(LevelTLS, tls.OptServerName, "x")
	assert.True(t, errors.Is(err, ErrOptionRejected), "%v", err)
	_, err = s.GetSockopt(LevelTLS, tls.OptServerName)
	assert.True(t, errors.Is(err, ErrOptionRejected), "%v", err)

	// OpeningClientTLS takes them
	s = socketIn(OpeningClientTLS, nil)
	require.NoError(t, s.SetSockopt(LevelTLS, tls.OptServerName, "example.test"))
	assert.Equal(t, "example.test", s.ep.tlsOpts.ServerName)
}

func TestTLSAsyncShortReadKeepsRest(t *testing.T) {
	port, _ := startTLSEcho(t)

	s := New(WithTLSPorts(port), WithTLS(tls.Options{InsecureSkipVerify: true}))
	require.NoError(t, s.Open("localhost:"+strconv.Itoa(int(port)), ModeReadWrite|ModeAsync))
	defer s.Close()
	require.Equal(t, ConnectedTLS, s.State())

	_, err := s.WriteString("hello world")
	require.NoError(t, err)

	buf := make([]byte, 5)
	require.Eventually(t, func() bool {
		n, err := s.Read(buf)
		return err == nil && string(buf[:n]) == "hello"
	}, 2*time.Second, 5*time.Millisecond)

	// the rest of the record is already decrypted and must be readable now
	rest := make([]byte, 16)
	n, err := s.Read(rest)
	require.NoError(t, err)
	assert.Equal(t, " world", string(rest[:n]))

	n, err = s.Read(rest)
	assert.Zero(t, n)
	assert.True(t, errors.Is(err, ErrNoData), "%v", err)
}
