package metadata

import (
	"net"
	"net/http"
	"strings"

	"custody/pkg/requestcontext"
)

// UnknownIP is returned when no source address can be resolved.
const UnknownIP = "unknown"

// ClientMetadata extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and the audit interceptor.
// This middleware should be applied early in the chain.
func ClientMetadata(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), ClientIPFromRequest(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPFromRequest resolves the originating client address. Precedence:
// first X-Forwarded-For entry, X-Real-IP, the connection's remote address,
// then "unknown". IPv4-mapped IPv6 addresses are reported in IPv4 form.
func ClientIPFromRequest(r *http.Request) string {
	// X-Forwarded-For can contain multiple IPs (client, proxy1, proxy2, ...)
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := normalize(first); ip != "" {
			return ip
		}
	}

	if ip := normalize(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	if addr := strings.TrimSpace(r.RemoteAddr); addr != "" {
		if host, _, err := net.SplitHostPort(addr); err == nil {
			addr = host
		}
		if ip := normalize(addr); ip != "" {
			return ip
		}
	}

	return UnknownIP
}

func normalize(raw string) string {
	ip := strings.Trim(strings.TrimSpace(raw), "[]")
	return strings.TrimPrefix(ip, "::ffff:")
}
