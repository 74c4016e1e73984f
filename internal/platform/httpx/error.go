package httpx

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"unicode"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/crumbline/orders-api/internal/platform/requestctx"
)

const (
	codeLimit      = 80
	messageLimit   = 512
	requestIDLimit = 80
	traceIDLimit   = 64
	fieldLimit     = 64
)

// Error is the JSON error envelope every endpoint answers with. It also satisfies error so
// handlers can pass it through helper functions unchanged.
type Error struct {
	Code      string
	Message   string
	Status    int
	RequestID string
	TraceID   string
	Fields    []FieldViolation
}

// FieldViolation names one rejected request field.
type FieldViolation struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

type envelope struct {
	Error     string           `json:"error"`
	Message   string           `json:"message"`
	Status    int              `json:"status"`
	RequestID string           `json:"request_id,omitempty"`
	TraceID   string           `json:"trace_id,omitempty"`
	Fields    []FieldViolation `json:"fields,omitempty"`
}

// NewError builds an envelope. A zero status becomes 500.
func NewError(code, message string, status int) Error {
	if status == 0 {
		status = http.StatusInternalServerError
	}
	return Error{
		Code:    sanitize(code, codeLimit),
		Message: sanitize(message, messageLimit),
		Status:  status,
	}
}

func (e Error) Error() string {
	return fmt.Sprintf("%d %s: %s", e.Status, e.Code, e.Message)
}

// WithRequestID overrides the request id otherwise taken from the context.
func (e Error) WithRequestID(id string) Error {
	e.RequestID = sanitize(id, requestIDLimit)
	return e
}

// WithTraceID overrides the trace id otherwise taken from the context.
func (e Error) WithTraceID(id string) Error {
	e.TraceID = sanitize(id, traceIDLimit)
	return e
}

// WithField appends a field violation. Violations are reported sorted by field name.
func (e Error) WithField(field, reason string) Error {
	field = sanitize(field, fieldLimit)
	if field == "" {
		return e
	}
	fields := make([]FieldViolation, 0, len(e.Fields)+1)
	fields = append(fields, e.Fields...)
	fields = append(fields, FieldViolation{Field: field, Reason: sanitize(reason, messageLimit)})
	sort.SliceStable(fields, func(i, j int) bool { return fields[i].Field < fields[j].Field })
	e.Fields = fields
	return e
}

// WriteError renders err, filling request and trace ids from ctx when unset.
func WriteError(ctx context.Context, w http.ResponseWriter, err Error) {
	status := err.Status
	if status == 0 {
		status = http.StatusInternalServerError
	}

	requestID := err.RequestID
	if requestID == "" {
		requestID = sanitize(middleware.GetReqID(ctx), requestIDLimit)
	}
	traceID := err.TraceID
	if traceID == "" {
		traceID = sanitize(requestctx.TraceID(ctx), traceIDLimit)
	}

	WriteJSON(w, status, envelope{
		Error:     err.Code,
		Message:   err.Message,
		Status:    status,
		RequestID: requestID,
		TraceID:   traceID,
		Fields:    err.Fields,
	})
}

// sanitize drops control characters and cuts to limit bytes without splitting a rune.
func sanitize(value string, limit int) string {
	if limit <= 0 {
		limit = 256
	}
	value = strings.TrimSpace(strings.Map(func(r rune) rune {
		if unicode.IsControl(r) {
			return ' '
		}
		return r
	}, value))
	if len(value) <= limit {
		return value
	}
	cut := 0
	for i := range value {
		if i > limit {
			break
		}
		cut = i
	}
	return strings.TrimSpace(value[:cut])
}
