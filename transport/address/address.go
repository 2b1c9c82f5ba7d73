// Package address resolves host/service text into concrete network addresses
// and parses the [scheme://]host[:port] target strings accepted by sockets.
package address

import (
	"context"
	"net"
	"net/netip"
	"strconv"
	"sync"

	"github.com/jabberwocky238/netstream/common/log"
)

// Kind tags which variant of Address is active.
type Kind uint8

const (
	KindUnset Kind = iota
	KindIPv4
	KindIPv6
	// KindAny is the server-bind wildcard.
	KindAny
	// KindNone marks a failed resolution. It must never be opened.
	KindNone
)

func (k Kind) String() string {
	switch k {
	case KindUnset:
		return "unset"
	case KindIPv4:
		return "ipv4"
	case KindIPv6:
		return "ipv6"
	case KindAny:
		return "any"
	case KindNone:
		return "none"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Address is a resolved network address. It is immutable once resolved; only
// the port can be overridden, and that yields a new value.
type Address struct {
	kind Kind
	ap   netip.AddrPort

	// shared by copies so the reverse lookup runs once per resolved host
	rev *reverseName
}

type reverseName struct {
	once     sync.Once
	name     string
	resolver *Resolver
}

// Any returns the wildcard bind address with the given port.
func Any(port uint16) Address {
	return Address{kind: KindAny, ap: netip.AddrPortFrom(netip.Addr{}, port)}
}

// None returns the failed-resolution marker.
func None() Address {
	return Address{kind: KindNone}
}

// FromAddrPort wraps a concrete IP and port. IPv4-mapped IPv6 addresses are
// unmapped so they report KindIPv4.
func FromAddrPort(ap netip.AddrPort) Address {
	return fromAddrPort(ap, DefaultResolver)
}

func fromAddrPort(ap netip.AddrPort, r *Resolver) Address {
	ip := ap.Addr().Unmap()
	if !ip.IsValid() {
		return None()
	}
	kind := KindIPv6
	if ip.Is4() {
		kind = KindIPv4
	}
	return Address{
		kind: kind,
		ap:   netip.AddrPortFrom(ip, ap.Port()),
		rev:  &reverseName{resolver: r},
	}
}

// FromNetAddr converts the address of an accepted or bound socket.
func FromNetAddr(addr net.Addr) Address {
	return DefaultResolver.FromNetAddr(addr)
}

// FromNetAddr converts addr; reverse lookups of the result go through r.
func (r *Resolver) FromNetAddr(addr net.Addr) Address {
	switch a := addr.(type) {
	case *net.TCPAddr:
		return fromAddrPort(a.AddrPort(), r)
	case *net.UDPAddr:
		return fromAddrPort(a.AddrPort(), r)
	case nil:
		return Address{}
	}
	ap, err := netip.ParseAddrPort(addr.String())
	if err != nil {
		return None()
	}
	return fromAddrPort(ap, r)
}

func (a Address) Kind() Kind { return a.kind }

// IsValid reports whether the address names a concrete or wildcard endpoint.
func (a Address) IsValid() bool {
	return a.kind == KindIPv4 || a.kind == KindIPv6 || a.kind == KindAny
}

func (a Address) IsAny() bool  { return a.kind == KindAny }
func (a Address) IsNone() bool { return a.kind == KindNone }

func (a Address) Port() uint16 { return a.ap.Port() }

// IP returns the concrete IP; it is the zero Addr for Any, None and unset.
func (a Address) IP() netip.Addr { return a.ap.Addr() }

func (a Address) AddrPort() netip.AddrPort { return a.ap }

// WithPort returns a copy with the port replaced.
func (a Address) WithPort(port uint16) Address {
	if a.kind == KindNone || a.kind == KindUnset {
		return a
	}
	b := a
	b.ap = netip.AddrPortFrom(a.ap.Addr(), port)
	return b
}

// Numeric renders the IP alone, e.g. "127.0.0.1". Empty for non-IP kinds.
func (a Address) Numeric() string {
	if a.kind != KindIPv4 && a.kind != KindIPv6 {
		return ""
	}
	return a.ap.Addr().String()
}

// String renders the numeric host:port form.
func (a Address) String() string {
	switch a.kind {
	case KindIPv4, KindIPv6:
		return a.ap.String()
	case KindAny:
		return ":" + strconv.Itoa(int(a.ap.Port()))
	case KindNone:
		return "<none>"
	default:
		return "<unset>"
	}
}

// Display returns the reverse-resolved host name. The lookup runs on first
// use and its result is kept for the lifetime of the resolved address,
// including a failed lookup, which leaves the name empty.
func (a Address) Display() string {
	if a.rev == nil || (a.kind != KindIPv4 && a.kind != KindIPv6) {
		return ""
	}
	a.rev.once.Do(func() {
		r := a.rev.resolver
		if r == nil {
			r = DefaultResolver
		}
		ctx, cancel := context.WithTimeout(context.Background(), r.timeout())
		defer cancel()
		name, err := r.LookupAddr(ctx, a.ap.Addr())
		if err != nil {
			log.Debugf("reverse lookup of %s failed: %v", a.ap.Addr(), err)
			return
		}
		a.rev.name = name
	})
	return a.rev.name
}

// Network returns the Go network name for this address family, e.g. "tcp4".
// Any maps to the dual-stack name.
func (a Address) Network(base string) string {
	switch a.kind {
	case KindIPv4:
		return base + "4"
	case KindIPv6:
		return base + "6"
	default:
		return base
	}
}

// HostPort renders a form accepted by net.Listen / net.Dial.
func (a Address) HostPort() string {
	if a.kind == KindAny {
		return net.JoinHostPort("", strconv.Itoa(int(a.ap.Port())))
	}
	return a.ap.String()
}

func (a Address) TCPAddr() *net.TCPAddr {
	if a.kind == KindAny {
		return &net.TCPAddr{Port: int(a.ap.Port())}
	}
	return net.TCPAddrFromAddrPort(a.ap)
}

func (a Address) UDPAddr() *net.UDPAddr {
	if a.kind == KindAny {
		return &net.UDPAddr{Port: int(a.ap.Port())}
	}
	return net.UDPAddrFromAddrPort(a.ap)
}
