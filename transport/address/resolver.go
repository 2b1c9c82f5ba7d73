package address

import (
	"context"
	"net"
	"net/netip"
	"strings"
	"time"

	"github.com/jabberwocky238/netstream/common/errors"
	"github.com/jabberwocky238/netstream/common/log"
	"github.com/jabberwocky238/netstream/transport/sockopt"

	"github.com/miekg/dns"
	cache "github.com/patrickmn/go-cache"
	"golang.org/x/net/idna"
)

const (
	resolverCacheDefaultTTL    = 1 * time.Minute
	resolverCacheReapFrequency = 1 * time.Minute
	resolverDefaultTimeout     = 5 * time.Second
	resolverDNSPort            = "53"
)

// DefaultResolver uses the system resolver.
var DefaultResolver = NewResolver()

// Resolver turns host text into an Address. Forward lookups are cached for
// resolverCacheDefaultTTL. With no servers configured the system resolver is
// used; otherwise queries go to the servers in order.
type Resolver struct {
	// Timeout bounds reverse lookups made by Address.Display. Zero means
	// resolverDefaultTimeout.
	Timeout time.Duration

	servers []string
	cache   *cache.Cache
	client  *dns.Client

	// probe creates and discards a socket of the given family
	probe func(ipv6 bool) error
}

// NewResolver creates a Resolver. Each server is "ip" or "ip:port"; port 53
// is assumed when absent.
func NewResolver(servers ...string) *Resolver {
	r := &Resolver{
		cache:  cache.New(resolverCacheDefaultTTL, resolverCacheReapFrequency),
		client: &dns.Client{Net: "udp"},
		probe:  sockopt.Probe,
	}
	for _, server := range servers {
		if _, _, err := net.SplitHostPort(server); err != nil {
			server = net.JoinHostPort(server, resolverDNSPort)
		}
		r.servers = append(r.servers, server)
	}
	return r
}

func (r *Resolver) timeout() time.Duration {
	if r.Timeout > 0 {
		return r.Timeout
	}
	return resolverDefaultTimeout
}

// Resolve converts text to an Address carrying port.
//
// Empty text is the wildcard. Dotted-decimal text must parse as IPv4 and
// hex/colon text must parse as IPv6; anything else is looked up by name and
// the first candidate whose address family can actually create a socket
// wins. Any failure yields None.
func (r *Resolver) Resolve(ctx context.Context, text string, port uint16) Address {
	switch {
	case text == "":
		return Any(port)
	case looksIPv4(text):
		ip, err := netip.ParseAddr(text)
		if err != nil || !ip.Is4() {
			return None()
		}
		return fromAddrPort(netip.AddrPortFrom(ip, port), r)
	case looksIPv6(text):
		ip, err := netip.ParseAddr(text)
		if err != nil || !ip.Is6() {
			return None()
		}
		return fromAddrPort(netip.AddrPortFrom(ip, port), r)
	}

	candidates, err := r.LookupHost(ctx, text)
	if err != nil {
		log.Debugf("resolve %q failed: %v", text, err)
		return None()
	}
	for _, ip := range preferIPv4(candidates) {
		if err := r.probe(ip.Is6()); err != nil {
			log.Debugf("resolve %q: skipping %s: %v", text, ip, err)
			continue
		}
		return fromAddrPort(netip.AddrPortFrom(ip, port), r)
	}
	return None()
}

// LookupHost returns every address registered for host.
func (r *Resolver) LookupHost(ctx context.Context, host string) ([]netip.Addr, error) {
	name, err := idna.ToASCII(strings.ToLower(strings.TrimSuffix(host, ".")))
	if err != nil {
		return nil, errors.Trace(err)
	}

	if cached, ok := r.cache.Get(name); ok {
		return cached.([]netip.Addr), nil
	}

	var addrs []netip.Addr
	if len(r.servers) == 0 {
		addrs, err = net.DefaultResolver.LookupNetIP(ctx, "ip", name)
		if err != nil {
			return nil, errors.Trace(err)
		}
	} else {
		addrs, err = r.queryHost(ctx, name)
		if err != nil {
			return nil, errors.Trace(err)
		}
	}
	for i := range addrs {
		addrs[i] = addrs[i].Unmap()
	}
	if len(addrs) == 0 {
		return nil, errors.Tracef("no addresses for %s", name)
	}
	r.cache.Set(name, addrs, cache.DefaultExpiration)
	return addrs, nil
}

// LookupAddr returns the primary PTR name of ip, without the trailing dot.
func (r *Resolver) LookupAddr(ctx context.Context, ip netip.Addr) (string, error) {
	if len(r.servers) == 0 {
		names, err := net.DefaultResolver.LookupAddr(ctx, ip.String())
		if err != nil {
			return "", errors.Trace(err)
		}
		if len(names) == 0 {
			return "", errors.Tracef("no PTR record for %s", ip)
		}
		return strings.TrimSuffix(names[0], "."), nil
	}

	arpa, err := dns.ReverseAddr(ip.String())
	if err != nil {
		return "", errors.Trace(err)
	}
	response, err := r.exchange(ctx, arpa, dns.TypePTR)
	if err != nil {
		return "", errors.Trace(err)
	}
	for _, rr := range response.Answer {
		if ptr, ok := rr.(*dns.PTR); ok {
			return strings.TrimSuffix(ptr.Ptr, "."), nil
		}
	}
	return "", errors.Tracef("no PTR record for %s", ip)
}

func (r *Resolver) queryHost(ctx context.Context, name string) ([]netip.Addr, error) {
	var addrs []netip.Addr
	var lastErr error
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		response, err := r.exchange(ctx, dns.Fqdn(name), qtype)
		if err != nil {
			lastErr = err
			continue
		}
		for _, rr := range response.Answer {
			var ip net.IP
			switch record := rr.(type) {
			case *dns.A:
				ip = record.A
			case *dns.AAAA:
				ip = record.AAAA
			default:
				continue
			}
			if addr, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, addr)
			}
		}
	}
	if len(addrs) == 0 && lastErr != nil {
		return nil, errors.Trace(lastErr)
	}
	return addrs, nil
}

func (r *Resolver) exchange(ctx context.Context, question string, qtype uint16) (*dns.Msg, error) {
	lastErr := errors.TraceNew("no DNS servers")
	for _, server := range r.servers {
		request := &dns.Msg{MsgHdr: dns.MsgHdr{RecursionDesired: true}}
		request.SetQuestion(question, qtype)
		response, _, err := r.client.ExchangeContext(ctx, request, server)
		if err != nil {
			lastErr = errors.Trace(err)
			continue
		}
		if response.Rcode != dns.RcodeSuccess {
			lastErr = errors.Tracef("%s: %s", server, dns.RcodeToString[response.Rcode])
			continue
		}
		return response, nil
	}
	return nil, lastErr
}

// preferIPv4 orders IPv4 candidates ahead of IPv6 ones, keeping the relative
// order within each family.
func preferIPv4(addrs []netip.Addr) []netip.Addr {
	ordered := make([]netip.Addr, 0, len(addrs))
	for _, ip := range addrs {
		if ip.Is4() {
			ordered = append(ordered, ip)
		}
	}
	for _, ip := range addrs {
		if !ip.Is4() {
			ordered = append(ordered, ip)
		}
	}
	return ordered
}

func looksIPv4(text string) bool {
	if !strings.Contains(text, ".") {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		if c != '.' && (c < '0' || c > '9') {
			return false
		}
	}
	return true
}

func looksIPv6(text string) bool {
	if !strings.Contains(text, ":") {
		return false
	}
	for i := 0; i < len(text); i++ {
		c := text[i]
		switch {
		case c == ':':
		case c >= '0' && c <= '9':
		case c >= 'a' && c <= 'f':
		case c >= 'A' && c <= 'F':
		default:
			return false
		}
	}
	return true
}
