// Package errors defines the failure kinds of the event-chain engine.
package errors

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
)

type Kind int

const (
	KindUnknown Kind = iota
	KindConflict
	KindPermission
	KindState
	KindNotFound
	KindIntegrity
	KindValidation
)

func (k Kind) String() string {
	switch k {
	case KindConflict:
		return "conflict"
	case KindPermission:
		return "permission"
	case KindState:
		return "state"
	case KindNotFound:
		return "not_found"
	case KindIntegrity:
		return "integrity"
	case KindValidation:
		return "validation"
	default:
		return "unknown"
	}
}

// StatusCode is the HTTP status the API answers with for the kind.
func (k Kind) StatusCode() int {
	switch k {
	case KindConflict, KindState:
		return http.StatusConflict
	case KindPermission:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindValidation:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Error carries a kind and a human readable reason.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinels below, so errors.Is(err, ErrConflict) works through wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

var (
	ErrConflict   = &Error{Kind: KindConflict}
	ErrPermission = &Error{Kind: KindPermission}
	ErrState      = &Error{Kind: KindState}
	ErrNotFound   = &Error{Kind: KindNotFound}
	ErrIntegrity  = &Error{Kind: KindIntegrity}
	ErrValidation = &Error{Kind: KindValidation}
)

func newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Conflictf reports an outstanding proposal blocking a new one.
func Conflictf(format string, args ...any) *Error {
	return newf(KindConflict, format, args...)
}

// Permissionf reports a non-admin actor attempting a decision.
func Permissionf(format string, args ...any) *Error {
	return newf(KindPermission, format, args...)
}

// Statef reports a decision attempted on an event that is no longer pending.
func Statef(format string, args ...any) *Error {
	return newf(KindState, format, args...)
}

func NotFoundf(format string, args ...any) *Error {
	return newf(KindNotFound, format, args...)
}

// Integrityf reports structural corruption of a chain. It is never repaired automatically.
func Integrityf(format string, args ...any) *Error {
	return newf(KindIntegrity, format, args...)
}

func Validationf(format string, args ...any) *Error {
	return newf(KindValidation, format, args...)
}

// Wrap attaches a kind to a lower level error.
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// KindOf returns the kind of the first *Error in the chain, or KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// ToHTTPError converts a domain error into an ectoerror HTTP error. Other errors pass through.
func ToHTTPError(err error) error {
	var e *Error
	if !errors.As(err, &e) {
		return err
	}
	if e.Kind == KindIntegrity {
		return httperror.NewHTTPError(e.Kind.StatusCode(), "chain integrity violation: "+e.Message)
	}
	return httperror.NewHTTPError(e.Kind.StatusCode(), e.Error())
}
