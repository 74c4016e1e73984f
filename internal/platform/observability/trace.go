package observability

import (
	"encoding/binary"
	"net/http"
	"strconv"
	"strings"

	"go.opentelemetry.io/otel"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/crumbline/orders-api/internal/platform/requestctx"
)

const cloudTraceHeader = "X-Cloud-Trace-Context"

var tracer = otel.Tracer("github.com/crumbline/orders-api/internal/platform/observability")

// cloudTrace is the TRACE_ID/SPAN_ID;o=OPTIONS header Google front ends attach. The span id is
// decimal on the wire.
type cloudTrace struct {
	traceID trace.TraceID
	spanID  trace.SpanID
	sampled bool
}

func parseCloudTrace(header string) (cloudTrace, bool) {
	traceHex, rest, ok := strings.Cut(strings.TrimSpace(header), "/")
	if !ok || len(traceHex) != 32 {
		return cloudTrace{}, false
	}
	traceID, err := trace.TraceIDFromHex(traceHex)
	if err != nil {
		return cloudTrace{}, false
	}

	spanPart, options, _ := strings.Cut(rest, ";")
	spanID, ok := parseSpanID(spanPart)
	if !ok {
		return cloudTrace{}, false
	}

	sampled := false
	for _, opt := range strings.Split(options, ";") {
		if value, found := strings.CutPrefix(strings.TrimSpace(opt), "o="); found {
			sampled = value == "1"
			break
		}
	}
	return cloudTrace{traceID: traceID, spanID: spanID, sampled: sampled}, true
}

// parseSpanID takes the decimal form, or sixteen hex digits as forwarded by some proxies.
func parseSpanID(value string) (trace.SpanID, bool) {
	value = strings.TrimSpace(value)
	var id trace.SpanID
	if n, err := strconv.ParseUint(value, 10, 64); err == nil {
		binary.BigEndian.PutUint64(id[:], n)
		return id, id.IsValid()
	}
	if len(value) != 16 {
		return id, false
	}
	id, err := trace.SpanIDFromHex(strings.ToLower(value))
	return id, err == nil && id.IsValid()
}

func (c cloudTrace) remote() trace.SpanContext {
	flags := trace.TraceFlags(0)
	if c.sampled {
		flags = trace.FlagsSampled
	}
	return trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    c.traceID,
		SpanID:     c.spanID,
		TraceFlags: flags,
		Remote:     true,
	})
}

func formatCloudTrace(sc trace.SpanContext) string {
	if !sc.TraceID().IsValid() || !sc.SpanID().IsValid() {
		return ""
	}
	spanID := sc.SpanID()
	option := "0"
	if sc.IsSampled() {
		option = "1"
	}
	return sc.TraceID().String() + "/" + strconv.FormatUint(binary.BigEndian.Uint64(spanID[:]), 10) + ";o=" + option
}

// TraceMiddleware continues an inbound Cloud Trace context (or starts a new trace), opens the
// server span and echoes the header so callers can correlate responses.
func TraceMiddleware(projectID string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			if inbound, ok := parseCloudTrace(r.Header.Get(cloudTraceHeader)); ok {
				ctx = trace.ContextWithRemoteSpanContext(ctx, inbound.remote())
			}

			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path,
				trace.WithSpanKind(trace.SpanKindServer),
				trace.WithAttributes(
					semconv.HTTPRequestMethodKey.String(r.Method),
					semconv.URLPath(r.URL.Path),
					semconv.UserAgentOriginal(r.UserAgent()),
				),
			)
			defer span.End()

			sc := span.SpanContext()
			info := requestctx.TraceInfo{Sampled: sc.IsSampled(), ProjectID: projectID}
			if sc.IsValid() {
				info.TraceID = sc.TraceID().String()
				info.SpanID = sc.SpanID().String()
			}
			ctx = requestctx.WithTrace(ctx, info)
			if header := formatCloudTrace(sc); header != "" {
				w.Header().Set(cloudTraceHeader, header)
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
