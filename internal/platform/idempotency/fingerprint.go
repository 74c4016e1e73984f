package idempotency

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/crumbline/orders-api/internal/platform/auth"
)

const anonymousCaller = "anonymous"

// bufferBody reads the body and puts a fresh reader back for the handler.
func bufferBody(r *http.Request) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

// callerScope is the verified uid, or anonymousCaller for guests. Guests share that scope, so the
// guard never stores responses for them.
func callerScope(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity != nil && identity.UID != "" {
		return identity.UID
	}
	return anonymousCaller
}

// scopeKey binds a client key to the caller and the request path.
func scopeKey(key, caller, path string) string {
	return strings.TrimSpace(key) + "|" + caller + "|" + path
}

// fingerprint identifies the request a key was first used for: method, path, query, content
// type, caller and body hash.
func fingerprint(r *http.Request, body []byte, caller string) string {
	bodyHash := ""
	if len(body) > 0 {
		bodyHash = sha256Hex(body)
	}
	parts := []string{
		strings.ToUpper(r.Method),
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		caller,
		bodyHash,
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}
