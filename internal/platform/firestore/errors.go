package firestore

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type kind uint8

const (
	kindOther kind = iota
	kindNotFound
	kindConflict
	kindUnavailable
)

// Error is a classified storage failure. Callers test it through the IsNotFound, IsConflict and
// IsUnavailable methods rather than by inspecting gRPC codes.
type Error struct {
	op   string
	kind kind
	err  error
}

func (e *Error) Error() string {
	if e.op == "" {
		return e.err.Error()
	}
	return fmt.Sprintf("%s: %v", e.op, e.err)
}

func (e *Error) Unwrap() error { return e.err }

func (e *Error) IsNotFound() bool    { return e != nil && e.kind == kindNotFound }
func (e *Error) IsConflict() bool    { return e != nil && e.kind == kindConflict }
func (e *Error) IsUnavailable() bool { return e != nil && e.kind == kindUnavailable }

// NotFound reports a lookup that matched nothing without a document read, such as an empty query.
func NotFound(op, format string, args ...any) error {
	return &Error{op: op, kind: kindNotFound, err: fmt.Errorf(format, args...)}
}

var kindByCode = map[codes.Code]kind{
	codes.NotFound:           kindNotFound,
	codes.AlreadyExists:      kindConflict,
	codes.FailedPrecondition: kindConflict,
	codes.Aborted:            kindConflict,
	codes.OutOfRange:         kindConflict,
	codes.Unavailable:        kindUnavailable,
	codes.ResourceExhausted:  kindUnavailable,
	codes.Internal:           kindUnavailable,
}

// WrapError classifies err and tags it with op. Cancellation and deadline errors come back as the
// context sentinels so errors.Is keeps working; an already classified error keeps its kind.
func WrapError(op string, err error) error {
	if err == nil {
		return nil
	}
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case status.Code(err) == codes.Canceled:
		return context.Canceled
	case status.Code(err) == codes.DeadlineExceeded:
		return context.DeadlineExceeded
	}

	var classified *Error
	if errors.As(err, &classified) {
		if classified.op != "" || op == "" {
			return classified
		}
		tagged := *classified
		tagged.op = op
		return &tagged
	}
	return &Error{op: op, kind: kindByCode[status.Code(err)], err: err}
}
