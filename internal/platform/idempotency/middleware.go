package idempotency

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crumbline/orders-api/internal/platform/httpx"
)

const (
	defaultHeaderName = "Idempotency-Key"
	replayHeaderName  = "X-Idempotent-Replay"
	maxKeyLength      = 255
)

type clockFunc func() time.Time

// MiddlewareOption customises Middleware.
type MiddlewareOption func(*guard)

// WithHeader sets the request header carrying the key.
func WithHeader(name string) MiddlewareOption {
	return func(g *guard) {
		if name = strings.TrimSpace(name); name != "" {
			g.header = name
		}
	}
}

// WithTTL sets how long completed responses replay.
func WithTTL(ttl time.Duration) MiddlewareOption {
	return func(g *guard) {
		if ttl > 0 {
			g.ttl = ttl
		}
	}
}

// WithMethods limits guarding to the given methods. Others pass straight through.
func WithMethods(methods ...string) MiddlewareOption {
	return func(g *guard) {
		set := make(map[string]struct{}, len(methods))
		for _, method := range methods {
			if method = strings.ToUpper(strings.TrimSpace(method)); method != "" {
				set[method] = struct{}{}
			}
		}
		if len(set) > 0 {
			g.methods = set
		}
	}
}

func WithLogger(logger *zap.Logger) MiddlewareOption {
	return func(g *guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

// WithOptionalKey lets requests without the header through unguarded instead of rejecting them.
func WithOptionalKey() MiddlewareOption {
	return func(g *guard) { g.optional = true }
}

func WithClock(clock clockFunc) MiddlewareOption {
	return func(g *guard) {
		if clock != nil {
			g.clock = clock
		}
	}
}

// guard replays the stored response for a repeated key and records the first one. Keys are
// scoped per caller and path, so two users may reuse the same key independently. Requests
// without a verified caller pass through unguarded.
type guard struct {
	store    Store
	next     http.Handler
	header   string
	ttl      time.Duration
	methods  map[string]struct{}
	clock    clockFunc
	logger   *zap.Logger
	optional bool
}

// Middleware wraps mutating handlers with key-based replay. A nil store disables it.
func Middleware(store Store, opts ...MiddlewareOption) func(http.Handler) http.Handler {
	if store == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	base := guard{
		store:  store,
		header: defaultHeaderName,
		ttl:    DefaultTTL,
		methods: map[string]struct{}{
			http.MethodPost:   {},
			http.MethodPut:    {},
			http.MethodPatch:  {},
			http.MethodDelete: {},
		},
		clock:  time.Now,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&base)
		}
	}

	return func(next http.Handler) http.Handler {
		g := base
		g.next = next
		if g.next == nil {
			g.next = http.HandlerFunc(func(http.ResponseWriter, *http.Request) {})
		}
		return &g
	}
}

func (g *guard) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if _, guarded := g.methods[r.Method]; !guarded {
		g.next.ServeHTTP(w, r)
		return
	}

	ctx := r.Context()
	key := strings.TrimSpace(r.Header.Get(g.header))
	switch {
	case key == "" && g.optional:
		g.next.ServeHTTP(w, r)
		return
	case key == "":
		g.fail(w, r, http.StatusBadRequest, "idempotency_key_required", "missing idempotency key header")
		return
	case len(key) > maxKeyLength:
		g.fail(w, r, http.StatusBadRequest, "idempotency_key_invalid", "idempotency key is too long")
		return
	}

	caller := callerScope(ctx)
	if caller == anonymousCaller {
		g.next.ServeHTTP(w, r)
		return
	}

	body, err := bufferBody(r)
	if err != nil {
		g.fail(w, r, http.StatusBadRequest, "idempotency_read_body_failed", "unable to read request body")
		return
	}

	scoped := scopeKey(key, caller, r.URL.Path)
	fp := fingerprint(r, body, caller)
	logger := g.logger.With(zap.String("idempotency_key", key), zap.String("caller", caller))

	reservation, err := g.store.Reserve(ctx, scoped, fp, g.clock().UTC(), g.ttl)
	if errors.Is(err, ErrFingerprintMismatch) {
		g.fail(w, r, http.StatusUnprocessableEntity, "idempotency_key_conflict", "idempotency key already used for a different request")
		return
	}
	if err != nil {
		logger.Error("idempotency: reserve failed", zap.Error(err))
		g.fail(w, r, http.StatusServiceUnavailable, "idempotency_store_error", "unable to process idempotency key")
		return
	}

	switch reservation.State {
	case ReservationStateCompleted:
		replay(w, reservation.Record)
		return
	case ReservationStatePending:
		g.fail(w, r, http.StatusConflict, "idempotency_in_progress", "another request is processing this idempotency key")
		return
	}

	capture := newCaptureWriter()
	g.next.ServeHTTP(capture, r)

	if capture.status() >= http.StatusInternalServerError {
		// Failed attempts stay retryable under the same key.
		if err := g.store.Release(ctx, scoped, fp); err != nil {
			logger.Warn("idempotency: release after server error failed", zap.Error(err))
		}
		capture.flushTo(w)
		return
	}

	resp := Response{Status: capture.status(), Headers: capture.header, Body: capture.body.Bytes()}
	if err := g.store.SaveResponse(ctx, scoped, fp, resp, g.clock().UTC(), g.ttl); err != nil {
		logger.Error("idempotency: persist response failed", zap.Error(err))
		if err := g.store.Release(ctx, scoped, fp); err != nil {
			logger.Error("idempotency: release after save failure failed", zap.Error(err))
		}
		g.fail(w, r, http.StatusInternalServerError, "idempotency_store_error", "unable to persist idempotency state")
		return
	}
	capture.flushTo(w)
}

func (g *guard) fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	httpx.WriteError(r.Context(), w, httpx.NewError(code, message, status))
}

func replay(w http.ResponseWriter, record Record) {
	dst := w.Header()
	clear(dst)
	for name, values := range record.ResponseHeaders {
		dst[name] = append([]string(nil), values...)
	}
	dst.Set(replayHeaderName, "true")

	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	if len(record.ResponseBody) > 0 {
		_, _ = w.Write(record.ResponseBody)
	}
}
