package socket

import (
	"net/netip"
	"strings"

	"github.com/jabberwocky238/netstream/transport/address"
	"github.com/jabberwocky238/netstream/transport/tls"
)

type Protocol uint8

const (
	Stream Protocol = iota
	Datagram
)

func (p Protocol) String() string {
	if p == Datagram {
		return "udp"
	}
	return "tcp"
}

// Mode is the set of flags passed to Open.
type Mode uint8

const (
	ModeRead Mode = 1 << iota
	ModeWrite
	// ModeCreate forces the server path even for a concrete address.
	ModeCreate
	// ModeAsync turns async mode on when the open succeeds.
	ModeAsync

	ModeReadWrite = ModeRead | ModeWrite
)

func (m Mode) Has(flag Mode) bool { return m&flag == flag }

func (m Mode) String() string {
	var parts []string
	for _, f := range []struct {
		flag Mode
		name string
	}{{ModeRead, "read"}, {ModeWrite, "write"}, {ModeCreate, "create"}, {ModeAsync, "async"}} {
		if m.Has(f.flag) {
			parts = append(parts, f.name)
		}
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// LevelTLS is the private socket-option level for TLS configuration. Option
// names are the tls.Opt* constants.
const LevelTLS = 0x7f544c53

var defaultTLSPorts = []uint16{443}

type Option func(*Socket)

func WithProtocol(p Protocol) Option {
	return func(s *Socket) { s.ep.protocol = p }
}

func WithResolver(r *address.Resolver) Option {
	return func(s *Socket) { s.ep.resolver = r }
}

// WithBacklog sets the listen(2) backlog of a stream server.
func WithBacklog(n int) Option {
	return func(s *Socket) { s.ep.backlog = n }
}

// WithMaxWorkers bounds how many async operations run at once. Zero means
// unbounded.
func WithMaxWorkers(n int) Option {
	return func(s *Socket) { s.maxWorkers = n }
}

// WithMaxRecordSize bounds the declared size RemoteReadData accepts from a
// stream peer. Zero or less keeps DefaultMaxRecordSize.
func WithMaxRecordSize(n int) Option {
	return func(s *Socket) {
		if n > 0 {
			s.maxRecord = n
		}
	}
}

// WithAllowedPeers restricts which peers Listen hands out.
func WithAllowedPeers(prefixes ...netip.Prefix) Option {
	return func(s *Socket) { s.acl = newPeerFilter(prefixes) }
}

// WithTLSPorts replaces the set of client ports that are opened with TLS.
func WithTLSPorts(ports ...uint16) Option {
	return func(s *Socket) { s.ep.tlsPorts = append([]uint16(nil), ports...) }
}

// WithTLS queues every set field of o for the TLS option namespace. They are
// applied when the socket enters OpeningClientTLS.
func WithTLS(o tls.Options) Option {
	return func(s *Socket) {
		o.Each(func(name int, value interface{}) error {
			s.ep.tlsPending = append(s.ep.tlsPending, tlsSetting{name, value})
			return nil
		})
	}
}

func WithTLSOption(name int, value interface{}) Option {
	return func(s *Socket) {
		s.ep.tlsPending = append(s.ep.tlsPending, tlsSetting{name, value})
	}
}

func WithCallback(cb Callback) Option {
	return func(s *Socket) { s.callback = cb }
}

type tlsSetting struct {
	name  int
	value interface{}
}
