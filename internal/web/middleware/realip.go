package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strings"

	"github.com/JonMunkholm/multinet/internal/core"
)

// TrustedRealIP resolves the client address and records it, together with
// the User-Agent, in the request context for logging and rate limiting.
//
// X-Real-IP and X-Forwarded-For are honored only when the connection comes
// from one of trustedProxies (CIDRs or bare addresses). Otherwise the
// connection source is used, so clients cannot spoof their address.
func TrustedRealIP(trustedProxies []string) func(http.Handler) http.Handler {
	trusted := parsePrefixes(trustedProxies)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := remoteAddr(r.RemoteAddr)

			if ip.IsValid() && isTrusted(ip, trusted) {
				if fwd, ok := forwardedFor(r.Header); ok {
					ip = fwd
					r.RemoteAddr = fwd.String()
				}
			}

			ctx := r.Context()
			if ip.IsValid() {
				ctx = core.ContextWithIPAddress(ctx, ip.String())
			}
			if ua := r.UserAgent(); ua != "" {
				ctx = core.ContextWithUserAgent(ctx, ua)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func parsePrefixes(specs []string) []netip.Prefix {
	var out []netip.Prefix
	for _, spec := range specs {
		spec = strings.TrimSpace(spec)
		if spec == "" {
			continue
		}
		if p, err := netip.ParsePrefix(spec); err == nil {
			out = append(out, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(spec)
		if err != nil {
			slog.Warn("realip: invalid trusted proxy, skipping", "proxy", spec, "error", err)
			continue
		}
		out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return out
}

// forwardedFor returns the client address from X-Real-IP, or else the first
// entry of X-Forwarded-For.
func forwardedFor(h http.Header) (netip.Addr, bool) {
	if rip := strings.TrimSpace(h.Get("X-Real-IP")); rip != "" {
		addr, err := netip.ParseAddr(rip)
		return addr.Unmap(), err == nil
	}
	if xff := h.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		addr, err := netip.ParseAddr(strings.TrimSpace(first))
		return addr.Unmap(), err == nil
	}
	return netip.Addr{}, false
}

// remoteAddr parses a host:port or bare address.
func remoteAddr(addr string) netip.Addr {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}
	}
	return ip.Unmap()
}

func isTrusted(ip netip.Addr, trusted []netip.Prefix) bool {
	for _, p := range trusted {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}
