package detector

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// ProxyTrust decides which peers may speak for a client through
// X-Forwarded-For
type ProxyTrust struct {
	all      bool
	prefixes []netip.Prefix
}

// TrustAllProxies believes every peer, so the leftmost forwarded hop is the
// client
var TrustAllProxies = &ProxyTrust{all: true}

// ParseTrustedProxies parses addresses and CIDR ranges. "*" trusts every
// peer. An empty list trusts none and X-Forwarded-For is ignored.
func ParseTrustedProxies(entries []string) (*ProxyTrust, error) {
	t := &ProxyTrust{}
	for _, e := range entries {
		e = strings.TrimSpace(e)
		switch {
		case e == "":
		case e == "*":
			t.all = true
		case strings.Contains(e, "/"):
			p, err := netip.ParsePrefix(e)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
			}
			t.prefixes = append(t.prefixes, p.Masked())
		default:
			a, err := netip.ParseAddr(e)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", e, err)
			}
			a = a.Unmap()
			t.prefixes = append(t.prefixes, netip.PrefixFrom(a, a.BitLen()))
		}
	}
	return t, nil
}

func (t *ProxyTrust) trusts(ip string) bool {
	if t.all {
		return true
	}
	a, err := netip.ParseAddr(ip)
	if err != nil {
		return false
	}
	a = a.Unmap()
	for _, p := range t.prefixes {
		if p.Contains(a) {
			return true
		}
	}
	return false
}

// ClientIP resolves the originating address of r. A request from an
// untrusted peer is attributed to the peer. Otherwise forwarded hops are
// read right to left and the first untrusted one wins.
func (t *ProxyTrust) ClientIP(r *http.Request) string {
	peer := remoteHost(r)
	if !t.trusts(peer) {
		return peer
	}

	hops := forwardedHops(r)
	if len(hops) == 0 {
		return peer
	}
	if !t.all {
		for i := len(hops) - 1; i >= 0; i-- {
			if !t.trusts(hops[i]) {
				return hops[i]
			}
		}
	}
	return hops[0]
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func forwardedHops(r *http.Request) []string {
	var hops []string
	for _, v := range r.Header.Values("X-Forwarded-For") {
		for _, hop := range strings.Split(v, ",") {
			if hop = strings.TrimSpace(hop); hop != "" {
				hops = append(hops, hop)
			}
		}
	}
	return hops
}

type clientIPKey struct{}

// WithClientIP returns r carrying a resolved client address
func WithClientIP(r *http.Request, ip string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), clientIPKey{}, ip))
}

// ClientIP returns the address stored by WithClientIP, or resolves it
// trusting every proxy
func ClientIP(r *http.Request) string {
	if ip, ok := r.Context().Value(clientIPKey{}).(string); ok && ip != "" {
		return ip
	}
	return TrustAllProxies.ClientIP(r)
}
