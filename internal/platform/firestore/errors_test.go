package firestore

import (
	"context"
	"errors"
	"testing"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func TestWrapErrorClassifiesStatusCodes(t *testing.T) {
	cases := []struct {
		code        codes.Code
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{code: codes.NotFound, notFound: true},
		{code: codes.AlreadyExists, conflict: true},
		{code: codes.Aborted, conflict: true},
		{code: codes.FailedPrecondition, conflict: true},
		{code: codes.Unavailable, unavailable: true},
		{code: codes.ResourceExhausted, unavailable: true},
		{code: codes.PermissionDenied},
	}
	for _, tc := range cases {
		err := WrapError("orders.get", status.Error(tc.code, "boom"))
		var repoErr *Error
		if !errors.As(err, &repoErr) {
			t.Fatalf("%s: expected *Error, got %T", tc.code, err)
		}
		if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
			t.Fatalf("%s: unexpected classification %+v", tc.code, repoErr)
		}
	}
}

func TestWrapErrorPassesThroughContextErrors(t *testing.T) {
	if err := WrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if err := WrapError("op", status.Error(codes.DeadlineExceeded, "slow")); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected context.DeadlineExceeded, got %v", err)
	}
	if err := WrapError("op", nil); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}

func TestWrapErrorKeepsExistingClassification(t *testing.T) {
	original := NotFound("", "order %s missing", "ord_1")
	err := WrapError("orders.find", original)
	var repoErr *Error
	if !errors.As(err, &repoErr) || !repoErr.IsNotFound() {
		t.Fatalf("expected not found error, got %v", err)
	}
	if got := err.Error(); got != "orders.find: order ord_1 missing" {
		t.Fatalf("unexpected message %q", got)
	}
}

func TestWrapErrorDoesNotMutateClassifiedError(t *testing.T) {
	original := &Error{kind: kindConflict, err: errors.New("key claimed")}
	wrapped := WrapError("orderIdempotencyKeys.create", original)
	if original.op != "" {
		t.Fatalf("expected original error to stay untagged, got op %q", original.op)
	}
	var repoErr *Error
	if !errors.As(wrapped, &repoErr) || !repoErr.IsConflict() {
		t.Fatalf("expected conflict, got %v", wrapped)
	}
	if WrapError("", original) != error(original) {
		t.Fatalf("expected untagged wrap to return the same error")
	}
}

func TestUnknownCodesStayUnclassified(t *testing.T) {
	err := WrapError("orders.get", status.Error(codes.PermissionDenied, "denied"))
	var repoErr *Error
	if !errors.As(err, &repoErr) {
		t.Fatalf("expected *Error, got %T", err)
	}
	if repoErr.IsNotFound() || repoErr.IsConflict() || repoErr.IsUnavailable() {
		t.Fatalf("expected no classification, got %+v", repoErr)
	}
	if status.Code(errors.Unwrap(err)) != codes.PermissionDenied {
		t.Fatalf("expected wrapped status to be preserved")
	}
}
