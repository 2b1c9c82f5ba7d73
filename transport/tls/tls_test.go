package tls

import (
	"context"
	"crypto/rand"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/tcp"
)

// startEchoServer runs a TLS echo server on an ephemeral loopback port and
// returns its address and the certificate PEM it serves.
func startEchoServer(t *testing.T) (address.Address, []byte) {
	certPEM, keyPEM, err := GenerateSelfSignedCert("localhost")
	if err != nil {
		t.Fatal(err)
	}
	server, err := NewTLSServer(&TLSServerConfig{
		ServerName: "localhost",
		CertPem:    certPEM,
		KeyPem:     keyPEM,
	})
	if err != nil {
		t.Fatal(err)
	}
	ctx := context.Background()
	if err := server.Listen(ctx, address.DefaultResolver.Resolve(ctx, "127.0.0.1", 0)); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { server.Close() })

	// 服务端：简单 echo 处理
	go func() {
		for {
			srvConn, err := server.Accept()
			if err != nil {
				if errors.Is(err, net.ErrClosed) || errors.Is(err, tcp.ErrNotListening) {
					return
				}
				continue
			}
			go func() {
				defer srvConn.Close()
				buf := make([]byte, 1024)
				n, err := srvConn.Read(buf)
				if err == nil && n > 0 {
					_, _ = srvConn.Write(buf[:n])
				}
			}()
		}
	}()
	return address.FromNetAddr(server.Addr()), certPEM
}

func dialSession(t *testing.T, addr address.Address, o *Options) (*Session, *Context, error) {
	ctx := context.Background()
	raw, err := tcp.NewTCPClient().Dial(ctx, addr)
	if err != nil {
		t.Fatal(err)
	}
	tctx, err := NewContext(o)
	if err != nil {
		raw.Close()
		t.Fatal(err)
	}
	session, err := Client(ctx, raw.(net.Conn), tctx, "localhost")
	if err != nil {
		tctx.Release()
		raw.Close()
		return nil, tctx, err
	}
	return session, tctx, nil
}

func echo(t *testing.T, session *Session) {
	if _, err := session.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 1024)
	rlen, err := session.Read(buf)
	if err != nil {
		t.Fatal(err)
	}
	if string(buf[:rlen]) != "hello" {
		t.Fatalf("data mismatch: %s != %s", string(buf[:rlen]), "hello")
	}
}

// go test -v ./transport/tls -run TestTLSWithSelfSignedCert -timeout 5s
func TestTLSWithSelfSignedCert(t *testing.T) {
	addr, _ := startEchoServer(t)

	session, tctx, err := dialSession(t, addr, &Options{InsecureSkipVerify: true})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()
	echo(t, session)

	version, err := session.Get(OptProtocolVersion)
	if err != nil {
		t.Fatal(err)
	}
	if version != "TLS 1.3" && version != "TLS 1.2" {
		t.Fatalf("unexpected version %v", version)
	}
	subject, _ := session.Get(OptPeerSubject)
	if subject != "CN=localhost" {
		t.Fatalf("unexpected peer subject %v", subject)
	}

	if err := session.Release(); err != nil {
		t.Fatal(err)
	}
	if !tctx.Released() {
		t.Fatal("context should be released with the session")
	}
	// second release is a no-op
	if err := session.Release(); err != nil {
		t.Fatal(err)
	}
}

// go test -v ./transport/tls -run TestPendingSeesDecryptedData -timeout 5s
func TestPendingSeesDecryptedData(t *testing.T) {
	addr, _ := startEchoServer(t)

	session, _, err := dialSession(t, addr, &Options{InsecureSkipVerify: true})
	if err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	// nothing sent yet; the expired deadline must not break the session
	n, err := session.Pending()
	if err != nil || n != 0 {
		t.Fatalf("Pending() = %d, %v on an idle session", n, err)
	}

	if _, err := session.Write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 200 && n == 0; i++ {
		if n, err = session.Pending(); err != nil {
			t.Fatal(err)
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n != 11 {
		t.Fatalf("expected 11 pending bytes, got %d", n)
	}

	buf := make([]byte, 5)
	if _, err := io.ReadFull(session, buf); err != nil || string(buf) != "hello" {
		t.Fatalf("read %q, %v", buf, err)
	}
	// the rest of the record is still counted
	if n, err = session.Pending(); err != nil || n != 6 {
		t.Fatalf("Pending() = %d, %v after a short read", n, err)
	}
	rest := make([]byte, 16)
	rlen, err := session.Read(rest)
	if err != nil || string(rest[:rlen]) != " world" {
		t.Fatalf("read %q, %v", rest[:rlen], err)
	}
}

// go test -v ./transport/tls -run TestTLSWithCAFile -timeout 5s
func TestTLSWithCAFile(t *testing.T) {
	addr, certPEM := startEchoServer(t)

	dir := t.TempDir()
	caFile := filepath.Join(dir, "ca.pem")
	if err := os.WriteFile(caFile, certPEM, 0o600); err != nil {
		t.Fatal(err)
	}

	session, _, err := dialSession(t, addr, &Options{CAFile: caFile})
	if err != nil {
		t.Fatal(err)
	}
	echo(t, session)
	session.Close()

	session, _, err = dialSession(t, addr, &Options{CADir: dir, ServerName: "localhost"})
	if err != nil {
		t.Fatal(err)
	}
	echo(t, session)
	session.Close()

	// system roots do not know the self-signed CA
	if _, _, err := dialSession(t, addr, &Options{}); err == nil {
		t.Fatal("handshake against an unknown CA should fail")
	}
}

func TestOptions(t *testing.T) {
	var o Options
	if err := o.Set(OptServerName, "example.com"); err != nil {
		t.Fatal(err)
	}
	if err := o.Set(OptKeyMaterial, []byte("key")); err != nil {
		t.Fatal(err)
	}
	if err := o.Set(OptInsecureSkipVerify, true); err != nil {
		t.Fatal(err)
	}
	if err := o.Set(OptInsecureSkipVerify, "yes"); !errors.Is(err, ErrBadValue) {
		t.Fatalf("expected ErrBadValue, got %v", err)
	}
	if err := o.Set(OptProtocolVersion, "TLS 1.3"); !errors.Is(err, ErrReadOnly) {
		t.Fatalf("expected ErrReadOnly, got %v", err)
	}
	if err := o.Set(999, "x"); !errors.Is(err, ErrUnknownOption) {
		t.Fatalf("expected ErrUnknownOption, got %v", err)
	}

	if v, err := o.Get(OptServerName); err != nil || v != "example.com" {
		t.Fatalf("server name %v, %v", v, err)
	}
	if _, err := o.Get(OptKeyMaterial); !errors.Is(err, ErrWriteOnly) {
		t.Fatalf("expected ErrWriteOnly, got %v", err)
	}

	var names []int
	o.Each(func(name int, value interface{}) error {
		names = append(names, name)
		return nil
	})
	if len(names) != 3 || names[0] != OptKeyMaterial || names[1] != OptServerName || names[2] != OptInsecureSkipVerify {
		t.Fatalf("unexpected option order %v", names)
	}

	material := o.KeyMaterial
	o.Wipe()
	if o.KeyMaterial != nil || material[0] != 0 {
		t.Fatal("key material not wiped")
	}
}

func TestContextKeySources(t *testing.T) {
	certPEM, keyPEM, err := GenerateSelfSignedCert("client")
	if err != nil {
		t.Fatal(err)
	}

	tctx, err := NewContext(&Options{KeyMaterial: append(append([]byte{}, keyPEM...), certPEM...)})
	if err != nil {
		t.Fatal(err)
	}
	if len(tctx.Config().Certificates) != 1 {
		t.Fatal("client certificate not loaded")
	}
	tctx.Release()
	if tctx.Config().Certificates != nil {
		t.Fatal("certificates survive release")
	}

	// encrypted key file plus separate cert file
	dir := t.TempDir()
	block, _ := pem.Decode(keyPEM)
	//nolint:staticcheck
	encrypted, err := x509.EncryptPEMBlock(rand.Reader, block.Type, block.Bytes, []byte("secret"), x509.PEMCipherAES256)
	if err != nil {
		t.Fatal(err)
	}
	keyFile := filepath.Join(dir, "key.pem")
	certFile := filepath.Join(dir, "cert.pem")
	os.WriteFile(keyFile, pem.EncodeToMemory(encrypted), 0o600)
	os.WriteFile(certFile, certPEM, 0o600)

	if _, err := NewContext(&Options{KeyFile: keyFile, CertFile: certFile}); err == nil {
		t.Fatal("encrypted key without password should fail")
	}
	tctx, err = NewContext(&Options{KeyFile: keyFile, CertFile: certFile, Password: "secret"})
	if err != nil {
		t.Fatal(err)
	}
	tctx.Release()

	// a key with no certificate anywhere
	if _, err := NewContext(&Options{KeyMaterial: keyPEM}); err == nil {
		t.Fatal("key without certificate should fail")
	}

	p12 := filepath.Join(dir, "client.p12")
	os.WriteFile(p12, []byte("not pkcs12"), 0o600)
	if _, err := NewContext(&Options{KeyFile: p12, Password: "secret"}); err == nil {
		t.Fatal("garbage PKCS#12 should fail")
	}

	if _, err := NewContext(&Options{CAFile: certFile + ".missing"}); err == nil {
		t.Fatal("missing CA file should fail")
	}
}
