package utils

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestErrorKindOf(t *testing.T) {
	cases := []struct {
		err  error
		want ErrorKind
	}{
		{NewValidationError("amount must be greater than zero"), ErrorKindValidation},
		{NewNotFoundError("patient %d not found", 7), ErrorKindNotFound},
		{NewConflictError(nil, "close in progress"), ErrorKindConflict},
		{NewStorageError(errors.New("connection reset"), "failed to record payment"), ErrorKindStorage},
		{errors.New("plain"), ErrorKindStorage},
		{fmt.Errorf("wrapped: %w", NewValidationError("bad")), ErrorKindValidation},
	}
	for _, tc := range cases {
		if got := ErrorKindOf(tc.err); got != tc.want {
			t.Fatalf("ErrorKindOf(%v) = %s, want %s", tc.err, got, tc.want)
		}
	}
}

func TestNewStorageError_KeepsLedgerKind(t *testing.T) {
	notFound := NewNotFoundError("patient %d not found", 9)
	got := NewStorageError(notFound, "failed to record payment")
	if ErrorKindOf(got) != ErrorKindNotFound {
		t.Fatalf("NotFound was downgraded: %v", got)
	}
	if !errors.Is(got, ErrorRecordNotFound) {
		t.Fatalf("expected errors.Is ErrorRecordNotFound")
	}
	if NewStorageError(nil, "x") != nil {
		t.Fatalf("nil error should stay nil")
	}
}

func TestNewStorageError_Cancellation(t *testing.T) {
	err := NewStorageError(context.Canceled, "failed to close 2025-01")
	if ErrorKindOf(err) != ErrorKindStorage {
		t.Fatalf("kind = %s", ErrorKindOf(err))
	}
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("cancellation cause lost")
	}
	if ErrorMessageOf(err) != "failed to close 2025-01 (aborted)" {
		t.Fatalf("message = %q", ErrorMessageOf(err))
	}
}

func TestErrorMessageOf(t *testing.T) {
	if got := ErrorMessageOf(NewValidationError("month must be between 1 and 12, got %d", 13)); got != "month must be between 1 and 12, got 13" {
		t.Fatalf("message = %q", got)
	}
	if got := ErrorMessageOf(errors.New("dial tcp: refused")); got != "internal error" {
		t.Fatalf("unclassified message leaked: %q", got)
	}
}
