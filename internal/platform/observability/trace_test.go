package observability

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crumbline/orders-api/internal/platform/requestctx"
)

func TestParseCloudTrace(t *testing.T) {
	tests := []struct {
		name    string
		header  string
		ok      bool
		spanID  string
		sampled bool
	}{
		{name: "decimal span", header: "105445aa7843bc8bf206b12000100000/1;o=1", ok: true, spanID: "0000000000000001", sampled: true},
		{name: "hex span", header: "105445aa7843bc8bf206b12000100000/00f067aa0ba902b7;o=0", ok: true, spanID: "00f067aa0ba902b7"},
		{name: "no options", header: "105445aa7843bc8bf206b12000100000/42", ok: true, spanID: "000000000000002a"},
		{name: "short trace", header: "abc/1;o=1"},
		{name: "zero span", header: "105445aa7843bc8bf206b12000100000/0;o=1"},
		{name: "missing span", header: "105445aa7843bc8bf206b12000100000"},
		{name: "empty", header: ""},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			ct, ok := parseCloudTrace(tc.header)
			if ok != tc.ok {
				t.Fatalf("expected ok=%v, got %v", tc.ok, ok)
			}
			if !ok {
				return
			}
			if ct.spanID.String() != tc.spanID {
				t.Fatalf("expected span %s, got %s", tc.spanID, ct.spanID)
			}
			sc := ct.remote()
			if ct.sampled != tc.sampled || sc.IsSampled() != tc.sampled {
				t.Fatalf("unexpected sampled flag")
			}
			if !sc.IsRemote() {
				t.Fatalf("expected remote span context")
			}
		})
	}
}

func TestFormatCloudTraceUsesDecimalSpan(t *testing.T) {
	ct, ok := parseCloudTrace("105445aa7843bc8bf206b12000100000/000000000000002a;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if got := formatCloudTrace(ct.remote()); got != "105445aa7843bc8bf206b12000100000/42;o=1" {
		t.Fatalf("unexpected header %q", got)
	}
	if formatCloudTrace(trace.SpanContext{}) != "" {
		t.Fatalf("expected empty header without ids")
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var captured requestctx.TraceInfo
	handler := TraceMiddleware("bakery-prod")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured, _ = requestctx.Trace(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if captured.ProjectID != "bakery-prod" {
		t.Fatalf("expected project id on trace info, got %+v", captured)
	}
	if captured.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected inbound trace id to be continued, got %s", captured.TraceID)
	}
	if !strings.HasPrefix(rec.Header().Get(cloudTraceHeader), captured.TraceID+"/") {
		t.Fatalf("expected trace header echoed, got %q", rec.Header().Get(cloudTraceHeader))
	}
}

func TestRequestLoggerMiddlewareLogsRoutePattern(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)

	router := chi.NewRouter()
	router.Use(InjectLoggerMiddleware(zap.New(core)))
	router.Use(RequestLoggerMiddleware("bakery-prod"))
	router.Get("/orders/{orderID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/orders/ord_123", nil))

	completed := logs.FilterMessage("request completed").All()
	if len(completed) != 1 {
		t.Fatalf("expected one completion entry, got %d", len(completed))
	}
	entry := completed[0]
	if entry.Level != zapcore.WarnLevel {
		t.Fatalf("expected warn for 4xx, got %s", entry.Level)
	}
	fields := entry.ContextMap()
	if fields["route"] != "/orders/{orderID}" {
		t.Fatalf("expected route pattern, got %v", fields["route"])
	}
	if fields["status"] != int64(http.StatusNotFound) {
		t.Fatalf("expected status 404, got %v", fields["status"])
	}
}

func TestRecoveryMiddlewareWritesJSONError(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	handler := RecoveryMiddleware(zap.New(core))(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("oven on fire")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))

	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "internal_server_error") {
		t.Fatalf("unexpected body %s", rec.Body.String())
	}
	if logs.FilterMessage("panic recovered").Len() != 1 {
		t.Fatalf("expected panic to be logged")
	}
}
