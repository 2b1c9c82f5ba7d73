//go:build !windows

package sockopt

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"syscall"
	"testing"
	"time"

	"github.com/prep/socketpair"
	"golang.org/x/sys/unix"
)

// go test -v ./transport/sockopt

func TestAvailable(t *testing.T) {
	a, b, err := socketpair.New("unix")
	if err != nil {
		t.Fatal(err)
	}
	defer a.Close()
	defer b.Close()

	n, err := Available(b.(syscall.Conn))
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Fatalf("expected nothing pending, got %d", n)
	}

	if _, err := a.Write([]byte("hello")); err != nil {
		t.Fatal(err)
	}
	n, err = Available(b.(syscall.Conn))
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Fatalf("expected 5 pending bytes, got %d", n)
	}
}

func TestAvailableOnTCP(t *testing.T) {
	l, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	client, err := net.Dial("tcp4", l.Addr().String())
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()
	server, err := l.Accept()
	if err != nil {
		t.Fatal(err)
	}
	defer server.Close()

	if _, err := client.Write([]byte("pending")); err != nil {
		t.Fatal(err)
	}
	var n int
	for i := 0; i < 100; i++ {
		if n, err = Available(server.(syscall.Conn)); err != nil {
			t.Fatal(err)
		}
		if n == 7 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}
	if n != 7 {
		t.Fatalf("expected 7 pending bytes, got %d", n)
	}
}

func TestControlAppliesSettings(t *testing.T) {
	l, err := ListenConfig(Settings{ReuseAddr: true, KeepAlive: true}).Listen(context.Background(), "tcp4", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	conn := l.(syscall.Conn)
	for _, name := range []int{unix.SO_REUSEADDR, unix.SO_KEEPALIVE} {
		v, err := GetInt(conn, unix.SOL_SOCKET, name)
		if err != nil {
			t.Fatal(err)
		}
		if v == 0 {
			t.Fatalf("option %d not set", name)
		}
	}

	if err := SetInt(conn, unix.SOL_SOCKET, unix.SO_KEEPALIVE, 0); err != nil {
		t.Fatal(err)
	}
	if v, _ := GetInt(conn, unix.SOL_SOCKET, unix.SO_KEEPALIVE); v != 0 {
		t.Fatalf("SO_KEEPALIVE still %d", v)
	}
}

func TestProbe(t *testing.T) {
	if err := Probe(false); err != nil {
		t.Fatalf("IPv4 sockets unavailable: %v", err)
	}
}

func TestListenStreamBacklog(t *testing.T) {
	cases := []struct {
		name     string
		ap       netip.AddrPort
		wildcard bool
		backlog  int
	}{
		{"raw loopback", netip.MustParseAddrPort("127.0.0.1:0"), false, 16},
		{"raw wildcard", netip.AddrPortFrom(netip.Addr{}, 0), true, 4},
		{"runtime loopback", netip.MustParseAddrPort("127.0.0.1:0"), false, 0},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			l, err := ListenStream(context.Background(), c.ap, c.wildcard, c.backlog, Settings{ReuseAddr: true})
			if err != nil {
				t.Fatal(err)
			}
			defer l.Close()

			port := l.Addr().(*net.TCPAddr).Port
			done := make(chan error, 1)
			go func() {
				conn, err := l.Accept()
				if err == nil {
					conn.Close()
				}
				done <- err
			}()

			conn, err := net.Dial("tcp4", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
			if err != nil {
				t.Fatal(err)
			}
			conn.Close()
			if err := <-done; err != nil {
				t.Fatal(err)
			}
		})
	}
}
