package middleware

import (
	"net"
	"net/url"
	"strconv"
	"strings"
)

// OriginValidator decides which browser origins may call the API and open
// the live preview socket.
type OriginValidator struct {
	allowed map[string]struct{}
}

// NewOriginValidator allows the server's own address on localhost and
// 127.0.0.1 plus every configured origin.
func NewOriginValidator(host string, port int, configured []string) *OriginValidator {
	v := &OriginValidator{allowed: make(map[string]struct{})}
	p := strconv.Itoa(port)
	for _, h := range []string{host, "localhost", "127.0.0.1"} {
		if h == "" || h == "0.0.0.0" || h == "::" {
			continue
		}
		hp := net.JoinHostPort(h, p)
		v.allowed["http://"+hp] = struct{}{}
		v.allowed["https://"+hp] = struct{}{}
	}
	for _, o := range configured {
		if n, ok := normalizeOrigin(o); ok {
			v.allowed[n] = struct{}{}
		}
	}
	return v
}

// IsAllowedOrigin reports whether origin is on the list.
func (v *OriginValidator) IsAllowedOrigin(origin string) bool {
	n, ok := normalizeOrigin(origin)
	if !ok {
		return false
	}
	_, allowed := v.allowed[n]
	return allowed
}

// Patterns lists the allowed hosts in the form websocket.AcceptOptions
// expects.
func (v *OriginValidator) Patterns() []string {
	out := make([]string, 0, len(v.allowed))
	seen := make(map[string]bool)
	for o := range v.allowed {
		u, err := url.Parse(o)
		if err != nil || seen[u.Host] {
			continue
		}
		seen[u.Host] = true
		out = append(out, u.Host)
	}
	return out
}

func normalizeOrigin(origin string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(origin))
	if err != nil || u.Host == "" {
		return "", false
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", false
	}
	return scheme + "://" + strings.ToLower(u.Host), true
}
