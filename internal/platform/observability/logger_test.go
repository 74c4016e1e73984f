package observability

import (
	"context"
	"errors"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/crumbline/orders-api/internal/platform/requestctx"
)

func TestEventLoggerUsesFallbackOutsideRequest(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := NewEventLogger(zap.New(core))

	log(context.Background(), "order.status.updated", map[string]any{
		"orderId": "ord_1",
		"to":      "ready",
	})

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Message != "order.status.updated" || entry.Level != zapcore.InfoLevel {
		t.Fatalf("unexpected entry %+v", entry)
	}
	fields := entry.ContextMap()
	if fields["event"] != "order.status.updated" || fields["orderId"] != "ord_1" || fields["to"] != "ready" {
		t.Fatalf("unexpected fields %v", fields)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	fallbackCore, fallbackLogs := observer.New(zapcore.DebugLevel)
	requestCore, requestLogs := observer.New(zapcore.DebugLevel)

	ctx := requestctx.WithLogger(context.Background(), zap.New(requestCore).With(zap.String("request_id", "req-1")))
	log := NewEventLogger(zap.New(fallbackCore))

	log(ctx, "order.event.publish.failed", map[string]any{"error": errors.New("topic\nnot found")})

	if fallbackLogs.Len() != 0 {
		t.Fatalf("expected fallback logger unused")
	}
	entries := requestLogs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("expected warn level for error events, got %s", entries[0].Level)
	}
	fields := entries[0].ContextMap()
	if fields["request_id"] != "req-1" {
		t.Fatalf("expected request fields to be kept, got %v", fields)
	}
	if fields["error"] != "topic\nnot found" {
		t.Fatalf("unexpected error field %q", fields["error"])
	}
}
