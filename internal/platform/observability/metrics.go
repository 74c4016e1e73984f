package observability

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/crumbline/orders-api/internal/platform/observability"

// MetricsMiddleware records request counts and latency per route. A nil meter falls back to the
// global provider.
func MetricsMiddleware(meter metric.Meter) func(http.Handler) http.Handler {
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(meterName)
	}
	requests, _ := meter.Int64Counter("http.server.requests",
		metric.WithDescription("HTTP requests served"),
		metric.WithUnit("{request}"),
	)
	latency, _ := meter.Float64Histogram("http.server.duration",
		metric.WithDescription("HTTP request latency"),
		metric.WithUnit("ms"),
	)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			attrs := metric.WithAttributes(
				attribute.String("http.route", routeLabel(r)),
				attribute.String("http.request.method", methodLabel(r)),
				attribute.Int("http.response.status_code", status),
			)
			ctx := r.Context()
			if requests != nil {
				requests.Add(ctx, 1, attrs)
			}
			if latency != nil {
				latency.Record(ctx, float64(time.Since(start).Microseconds())/1000, attrs)
			}
		})
	}
}
