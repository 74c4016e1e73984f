package httpx

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/crumbline/orders-api/internal/platform/requestctx"
)

func TestWriteErrorFillsIDsFromContext(t *testing.T) {
	ctx := context.WithValue(context.Background(), middleware.RequestIDKey, "req-42")
	ctx = requestctx.WithTrace(ctx, requestctx.TraceInfo{TraceID: "0af7651916cd43dd8448eb211c80319c"})

	rr := httptest.NewRecorder()
	WriteError(ctx, rr, NewError("order_not_found", "order not found", http.StatusNotFound))

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
		t.Fatalf("unexpected content type %s", ct)
	}
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["error"] != "order_not_found" || body["request_id"] != "req-42" {
		t.Fatalf("unexpected body %v", body)
	}
	if body["trace_id"] != "0af7651916cd43dd8448eb211c80319c" {
		t.Fatalf("expected trace id, got %v", body["trace_id"])
	}
	if body["status"] != float64(http.StatusNotFound) {
		t.Fatalf("expected status field, got %v", body["status"])
	}
	if _, ok := body["fields"]; ok {
		t.Fatalf("fields should be omitted when empty")
	}
}

func TestWriteErrorDefaultsStatusAndSortsFields(t *testing.T) {
	rr := httptest.NewRecorder()
	err := NewError("invalid_request", "bad\npayload", 0).
		WithField("items", "at least one item is required").
		WithField("customerInfo.email", "invalid email").
		WithField("  ", "ignored")
	WriteError(context.Background(), rr, err)

	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rr.Code)
	}
	var body struct {
		Message string           `json:"message"`
		Fields  []FieldViolation `json:"fields"`
	}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Message != "bad payload" {
		t.Fatalf("control characters should be replaced, got %q", body.Message)
	}
	if len(body.Fields) != 2 || body.Fields[0].Field != "customerInfo.email" || body.Fields[1].Field != "items" {
		t.Fatalf("unexpected fields %+v", body.Fields)
	}
}

func TestErrorImplementsError(t *testing.T) {
	var err error = NewError("order_conflict", "order changed", http.StatusConflict)
	if !strings.Contains(err.Error(), "409 order_conflict") {
		t.Fatalf("unexpected error string %q", err.Error())
	}
}

func TestSanitizeKeepsRuneBoundaries(t *testing.T) {
	got := sanitize("crème brûlée", 4)
	if got != "crè" {
		t.Fatalf("expected rune-safe cut, got %q", got)
	}
	if sanitize("abcdefg", 5) != "abcde" {
		t.Fatalf("expected ascii cut")
	}
}
