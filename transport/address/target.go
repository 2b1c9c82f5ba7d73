package address

import (
	"context"
	"strconv"
	"strings"

	"github.com/jabberwocky238/netstream/common/errors"
)

var (
	// ErrAmbiguousTarget is returned for a host with neither a port nor a
	// scheme that implies one.
	ErrAmbiguousTarget = errors.New("target has no port and no scheme implying one")
	ErrInvalidPort     = errors.New("invalid port")
)

var schemePorts = map[string]uint16{
	"http":  80,
	"https": 443,
}

// Target is a parsed [scheme://]host[:port] string.
type Target struct {
	Scheme string
	// Host is empty for the wildcard form ":port".
	Host    string
	Port    uint16
	HasPort bool
}

// ParseTarget splits text into its parts. Unbracketed text with more than one
// colon is taken whole as an IPv6 literal; the resolver decides whether it is
// a valid one. Bracketed literals may carry a port: "[::1]:8080".
func ParseTarget(text string) (Target, error) {
	var t Target
	rest := text
	if i := strings.Index(rest, "://"); i >= 0 {
		t.Scheme = strings.ToLower(rest[:i])
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}

	var port string
	switch {
	case strings.HasPrefix(rest, "["):
		end := strings.IndexByte(rest, ']')
		if end < 0 {
			return Target{}, errors.Tracef("unterminated bracket in %q", text)
		}
		t.Host = rest[1:end]
		tail := rest[end+1:]
		if tail != "" {
			if tail[0] != ':' {
				return Target{}, errors.Tracef("unexpected %q after bracketed host in %q", tail, text)
			}
			port = tail[1:]
			t.HasPort = true
		}
	case strings.Count(rest, ":") == 1:
		i := strings.IndexByte(rest, ':')
		t.Host, port = rest[:i], rest[i+1:]
		t.HasPort = true
	default:
		t.Host = rest
	}

	if t.HasPort {
		p, err := strconv.ParseUint(port, 10, 16)
		if err != nil {
			return Target{}, errors.TraceMsg(ErrInvalidPort, text)
		}
		t.Port = uint16(p)
		return t, nil
	}
	if p, ok := schemePorts[t.Scheme]; ok {
		t.Port = p
		t.HasPort = true
		return t, nil
	}
	return Target{}, errors.TraceMsg(ErrAmbiguousTarget, text)
}

// Resolve resolves the host part with r and merges in the port.
func (t Target) Resolve(ctx context.Context, r *Resolver) Address {
	if r == nil {
		r = DefaultResolver
	}
	return r.Resolve(ctx, t.Host, t.Port)
}

func (t Target) String() string {
	host := t.Host
	if strings.Contains(host, ":") {
		host = "[" + host + "]"
	}
	s := host + ":" + strconv.Itoa(int(t.Port))
	if t.Scheme != "" {
		s = t.Scheme + "://" + s
	}
	return s
}
