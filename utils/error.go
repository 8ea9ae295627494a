package utils

import (
	"context"
	"errors"
	"fmt"
)

var ErrorRecordNotFound = errors.New("record not found")

type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "VALIDATION"
	ErrorKindNotFound   ErrorKind = "NOT_FOUND"
	ErrorKindConflict   ErrorKind = "CONFLICT"
	ErrorKindStorage    ErrorKind = "STORAGE"
)

// LedgerError is the structured error returned by ledger operations.
// Callers branch on Kind; Message is safe to show to users.
type LedgerError struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *LedgerError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *LedgerError) Unwrap() error {
	return e.Err
}

func NewValidationError(format string, args ...any) error {
	return &LedgerError{Kind: ErrorKindValidation, Message: fmt.Sprintf(format, args...)}
}

func NewNotFoundError(format string, args ...any) error {
	return &LedgerError{Kind: ErrorKindNotFound, Message: fmt.Sprintf(format, args...), Err: ErrorRecordNotFound}
}

func NewConflictError(err error, format string, args ...any) error {
	return &LedgerError{Kind: ErrorKindConflict, Message: fmt.Sprintf(format, args...), Err: err}
}

// NewStorageError wraps err unless it already carries a ledger kind,
// so a NotFound raised inside a transaction is not downgraded.
func NewStorageError(err error, message string) error {
	if err == nil {
		return nil
	}
	var le *LedgerError
	if errors.As(err, &le) {
		return err
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return &LedgerError{Kind: ErrorKindStorage, Message: message + " (aborted)", Err: err}
	}
	return &LedgerError{Kind: ErrorKindStorage, Message: message, Err: err}
}

// ErrorKindOf reports the ledger kind of err. Unclassified errors are STORAGE.
func ErrorKindOf(err error) ErrorKind {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Kind
	}
	return ErrorKindStorage
}

// ErrorMessageOf returns the user-facing message of err.
func ErrorMessageOf(err error) string {
	var le *LedgerError
	if errors.As(err, &le) {
		return le.Message
	}
	return "internal error"
}
