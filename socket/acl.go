package socket

import (
	"net/netip"

	"github.com/metacubex/bart"
)

// peerFilter holds the prefixes accepted peers must fall in. A nil filter
// allows everyone.
type peerFilter struct {
	table *bart.Table[bool]
}

func newPeerFilter(prefixes []netip.Prefix) *peerFilter {
	if len(prefixes) == 0 {
		return nil
	}
	f := &peerFilter{table: new(bart.Table[bool])}
	for _, p := range prefixes {
		f.table.Insert(p.Masked(), true)
	}
	return f
}

func (f *peerFilter) allowed(ip netip.Addr) bool {
	if f == nil {
		return true
	}
	if !ip.IsValid() {
		return false
	}
	allowed, ok := f.table.Lookup(ip.Unmap())
	return ok && allowed
}
