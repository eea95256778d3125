// Package apperr defines the settlement error taxonomy shared by every domain
// package. Each error carries a Kind (used for HTTP mapping and sweep reports)
// and a machine-readable Reason returned to callers.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindValidation                Kind = "VALIDATION_ERROR"
	KindNotFound                  Kind = "NOT_FOUND"
	KindInsufficientBalance       Kind = "INSUFFICIENT_BALANCE"
	KindDuplicateEvent            Kind = "DUPLICATE_EVENT"
	KindExternalTransfer          Kind = "EXTERNAL_TRANSFER_FAILED"
	KindExternalTransferAmbiguous Kind = "EXTERNAL_TRANSFER_AMBIGUOUS"
	KindConcurrencyConflict       Kind = "CONCURRENCY_CONFLICT"
	KindInternal                  Kind = "INTERNAL_ERROR"
)

// Kind sentinels, usable with errors.Is against any *Error of the same kind.
var (
	ErrValidation                = &Error{Kind: KindValidation}
	ErrNotFound                  = &Error{Kind: KindNotFound}
	ErrInsufficientBalance       = &Error{Kind: KindInsufficientBalance}
	ErrDuplicateEvent            = &Error{Kind: KindDuplicateEvent}
	ErrExternalTransfer          = &Error{Kind: KindExternalTransfer}
	ErrExternalTransferAmbiguous = &Error{Kind: KindExternalTransferAmbiguous}
	ErrConcurrencyConflict       = &Error{Kind: KindConcurrencyConflict}
)

type Error struct {
	Kind    Kind
	Reason  string
	Message string
	Details map[string]string
	Err     error
}

func New(kind Kind, reason, message string) *Error {
	return &Error{Kind: kind, Reason: reason, Message: message}
}

func (e *Error) Error() string {
	msg := e.Message
	if msg == "" {
		msg = string(e.Kind)
	}
	if e.Reason != "" {
		msg = e.Reason + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on kind, and on reason when the target carries one.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind && (t.Reason == "" || t.Reason == e.Reason)
}

// Wrap returns a copy of e that wraps cause.
func (e *Error) Wrap(cause error) *Error {
	cp := *e
	cp.Err = cause
	return &cp
}

// WithMessage returns a copy of e with a more specific message.
func (e *Error) WithMessage(format string, args ...interface{}) *Error {
	cp := *e
	cp.Message = fmt.Sprintf(format, args...)
	return &cp
}

func Validation(reason, message string) *Error {
	return New(KindValidation, reason, message)
}

// ValidationDetails builds a validation error carrying per-field messages.
func ValidationDetails(details map[string]string) *Error {
	return &Error{Kind: KindValidation, Reason: "invalid_request", Message: "Validation failed", Details: details}
}

func NotFound(reason, message string) *Error {
	return New(KindNotFound, reason, message)
}

func InsufficientBalance(reason, message string) *Error {
	return New(KindInsufficientBalance, reason, message)
}

func ConcurrencyConflict(reason, message string) *Error {
	return New(KindConcurrencyConflict, reason, message)
}

func ExternalTransfer(reason string, cause error) *Error {
	return &Error{Kind: KindExternalTransfer, Reason: reason, Message: "external transfer failed", Err: cause}
}

func ExternalTransferAmbiguous(reason string, cause error) *Error {
	return &Error{Kind: KindExternalTransferAmbiguous, Reason: reason, Message: "external transfer outcome unknown, pending reconciliation", Err: cause}
}

// KindOf reports the kind of err, or KindInternal for errors outside the taxonomy.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// ReasonOf returns the machine reason for err, falling back to its kind.
func ReasonOf(err error) string {
	var e *Error
	if errors.As(err, &e) {
		if e.Reason != "" {
			return e.Reason
		}
		return string(e.Kind)
	}
	return string(KindInternal)
}
