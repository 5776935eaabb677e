// Package ipallow checks caller addresses against a payment gateway's
// published notification ranges.
package ipallow

import (
	"fmt"
	"net/netip"
	"strings"
)

// YooKassaRanges are the addresses YooKassa sends HTTP notifications from.
var YooKassaRanges = []string{
	"185.71.76.0/27",
	"185.71.77.0/27",
	"77.75.153.0/25",
	"77.75.156.11",
	"77.75.156.35",
	"77.75.154.128/25",
	"2a02:5180::/32",
}

// List is an immutable set of allowed addresses and prefixes.
// IPv4 entries match exactly or by CIDR containment; IPv6 entries match by
// prefix.
type List struct {
	prefixes []netip.Prefix
}

// New parses entries that are either a bare address or a CIDR prefix.
func New(entries []string) (*List, error) {
	l := &List{}
	for _, raw := range entries {
		e := strings.TrimSpace(raw)
		if e == "" {
			continue
		}
		if strings.Contains(e, "/") {
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("ipallow: bad prefix %q: %w", e, err)
			}
			l.prefixes = append(l.prefixes, p.Masked())
			continue
		}
		a, err := netip.ParseAddr(e)
		if err != nil {
			return nil, fmt.Errorf("ipallow: bad address %q: %w", e, err)
		}
		a = a.Unmap()
		l.prefixes = append(l.prefixes, netip.PrefixFrom(a, a.BitLen()))
	}
	return l, nil
}

// MustNew is New for static lists.
func MustNew(entries []string) *List {
	l, err := New(entries)
	if err != nil {
		panic(err)
	}
	return l
}

// Allowed reports whether ip (as text, with optional zone) falls inside the
// list. Unparseable input is never allowed.
func (l *List) Allowed(ip string) bool {
	if l == nil {
		return false
	}
	a, err := netip.ParseAddr(strings.TrimSpace(ip))
	if err != nil {
		return false
	}
	a = a.Unmap().WithZone("")
	for _, p := range l.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}
