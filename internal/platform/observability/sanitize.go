package observability

import (
	"net"
	"net/http"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5"
)

const (
	fieldLimit  = 256
	routeLimit  = 180
	methodLimit = 10
	uidLimit    = 64
	ipLimit     = 64
)

// cleanField strips control characters other than line breaks and tabs and caps the rune count.
// Log lines stay single-entry in Cloud Logging since the encoder escapes the survivors.
func cleanField(value string, limit int) string {
	if limit <= 0 {
		limit = fieldLimit
	}
	var b strings.Builder
	n := 0
	for _, r := range value {
		if n == limit {
			break
		}
		if unicode.IsControl(r) && r != '\n' && r != '\r' && r != '\t' {
			continue
		}
		b.WriteRune(r)
		n++
	}
	return b.String()
}

// routeLabel is the chi pattern once routing has run, else the raw path. Patterns keep order ids
// out of metric labels.
func routeLabel(r *http.Request) string {
	route := ""
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		route = rctx.RoutePattern()
	}
	if route == "" && r.URL != nil {
		route = r.URL.Path
	}
	if route == "" {
		return "/"
	}
	return cleanField(route, routeLimit)
}

func methodLabel(r *http.Request) string {
	return cleanField(r.Method, methodLimit)
}

func remoteIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return cleanField(addr, ipLimit)
}
