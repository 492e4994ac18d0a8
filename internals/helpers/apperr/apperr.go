// Package apperr is the error taxonomy shared by every billing operation.
// Business-rule kinds are permanent: retrying the same input fails the same way.
package apperr

import (
	"errors"
	"fmt"
)

type Kind string

const (
	KindUnauthorized    Kind = "UNAUTHORIZED"
	KindNotFound        Kind = "NOT_FOUND"
	KindConflict        Kind = "CONFLICT"
	KindMinFirstPayment Kind = "MIN_FIRST_PAYMENT"
	KindValidation      Kind = "VALIDATION_ERROR"
	KindResultBlocked   Kind = "RESULT_BLOCKED"
	KindInternal        Kind = "INTERNAL_ERROR"
)

type Error struct {
	Kind    Kind
	Message string
	Fields  map[string][]string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches on Kind so callers can write errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

var (
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrConflict        = &Error{Kind: KindConflict}
	ErrMinFirstPayment = &Error{Kind: KindMinFirstPayment}
	ErrValidation      = &Error{Kind: KindValidation}
	ErrResultBlocked   = &Error{Kind: KindResultBlocked}
)

func Unauthorized(msg string) *Error {
	return &Error{Kind: KindUnauthorized, Message: msg}
}

func NotFound(entity string) *Error {
	return &Error{Kind: KindNotFound, Message: entity + " not found"}
}

func Conflict(msg string) *Error {
	return &Error{Kind: KindConflict, Message: msg}
}

func MinFirstPayment(msg string, details any) *Error {
	return &Error{Kind: KindMinFirstPayment, Message: msg, Details: details}
}

func Validation(msg string) *Error {
	return &Error{Kind: KindValidation, Message: msg}
}

func ValidationFields(fields map[string][]string) *Error {
	return &Error{Kind: KindValidation, Message: "validation failed", Fields: fields}
}

func ResultBlocked(msg string, details any) *Error {
	return &Error{Kind: KindResultBlocked, Message: msg, Details: details}
}

func Internal(msg string, err error) *Error {
	return &Error{Kind: KindInternal, Message: msg, Err: err}
}

// KindOf returns the taxonomy kind of err, KindInternal for anything foreign.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsPermanent reports whether a queue consumer should dead-letter without retrying.
func IsPermanent(err error) bool {
	switch KindOf(err) {
	case KindUnauthorized, KindNotFound, KindConflict, KindMinFirstPayment, KindValidation, KindResultBlocked:
		return true
	default:
		return false
	}
}
