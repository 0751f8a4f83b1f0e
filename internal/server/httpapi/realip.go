package httpapi

import (
	"net/http"
	"net/netip"
	"strings"
)

// realIP rewrites RemoteAddr from X-Real-IP or X-Forwarded-For, but only when
// the TCP peer is one of Options.TrustedProxies. Any other peer is the client
// itself and its forwarding headers are ignored.
func (s *HTTPServer) realIP(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if ip, ok := s.forwardedClient(r); ok {
			r.RemoteAddr = ip.String()
		}
		next.ServeHTTP(w, r)
	})
}

func (s *HTTPServer) trustedProxy(addr netip.Addr) bool {
	for _, p := range s.opts.TrustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

func parseAddr(raw string) (netip.Addr, error) {
	raw = strings.TrimSpace(raw)
	if ap, err := netip.ParseAddrPort(raw); err == nil {
		return ap.Addr().Unmap(), nil
	}
	a, err := netip.ParseAddr(raw)
	if err != nil {
		return netip.Addr{}, err
	}
	return a.Unmap(), nil
}

func (s *HTTPServer) forwardedClient(r *http.Request) (netip.Addr, bool) {
	if len(s.opts.TrustedProxies) == 0 {
		return netip.Addr{}, false
	}
	peer, err := parseAddr(r.RemoteAddr)
	if err != nil || !s.trustedProxy(peer) {
		return netip.Addr{}, false
	}

	if v := r.Header.Get("X-Real-IP"); v != "" {
		if a, err := parseAddr(v); err == nil {
			return a, true
		}
	}

	// Each hop appends to X-Forwarded-For; the rightmost untrusted entry is
	// the first address no trusted proxy vouches for.
	hops := strings.Split(strings.Join(r.Header.Values("X-Forwarded-For"), ","), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		if strings.TrimSpace(hops[i]) == "" {
			continue
		}
		a, err := parseAddr(hops[i])
		if err != nil {
			return netip.Addr{}, false
		}
		if !s.trustedProxy(a) {
			return a, true
		}
	}
	return netip.Addr{}, false
}
