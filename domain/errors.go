package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind classifies failures so both the API and its clients can react to them
// without inspecting messages.
type Kind uint8

const (
	KindInternal Kind = iota
	KindUnauthenticated
	KindUnauthorized
	KindNotFound
	KindInvalidInput
)

func (k Kind) String() string {
	switch k {
	case KindUnauthenticated:
		return "unauthenticated"
	case KindUnauthorized:
		return "unauthorized"
	case KindNotFound:
		return "not_found"
	case KindInvalidInput:
		return "invalid_input"
	default:
		return "internal"
	}
}

// HTTPStatus maps the kind to the status code the API answers with.
func (k Kind) HTTPStatus() int {
	switch k {
	case KindUnauthenticated:
		return http.StatusUnauthorized
	case KindUnauthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidInput:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Fatal reports whether the session cannot continue after this kind of failure.
func (k Kind) Fatal() bool {
	return k == KindUnauthenticated || k == KindUnauthorized
}

// KindFromStatus maps a non-2xx HTTP status onto the taxonomy.
func KindFromStatus(code int) Kind {
	switch {
	case code == http.StatusUnauthorized:
		return KindUnauthenticated
	case code == http.StatusForbidden:
		return KindUnauthorized
	case code == http.StatusNotFound:
		return KindNotFound
	case code == http.StatusBadRequest, code == http.StatusUnprocessableEntity, code == http.StatusRequestEntityTooLarge:
		return KindInvalidInput
	default:
		return KindInternal
	}
}

// Error is the typed failure shared by the API, storage and client packages.
type Error struct {
	Kind Kind
	Op   string
	Msg  string
	Err  error
}

// E builds an Error without an underlying cause.
func E(kind Kind, op, msg string) *Error {
	return &Error{Kind: kind, Op: op, Msg: msg}
}

// Errorf builds an Error with a formatted message.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap attaches a kind and operation to err. A nil err stays nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

func (e *Error) Error() string {
	msg := e.Msg
	if msg == "" && e.Err != nil {
		msg = e.Err.Error()
	} else if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	if msg == "" {
		msg = e.Kind.String()
	}
	if e.Op == "" {
		return msg
	}
	return e.Op + ": " + msg
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches another *Error by kind, so errors.Is(err, ErrNotFound) works.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Op == "" && t.Msg == "" && t.Err == nil && t.Kind == e.Kind
}

// Message returns the user facing part of the error without the operation.
func (e *Error) Message() string {
	if e.Msg != "" {
		return e.Msg
	}
	if e.Err != nil {
		return e.Err.Error()
	}
	return e.Kind.String()
}

// Sentinels for errors.Is comparisons.
var (
	ErrUnauthenticated = &Error{Kind: KindUnauthenticated}
	ErrUnauthorized    = &Error{Kind: KindUnauthorized}
	ErrNotFound        = &Error{Kind: KindNotFound}
	ErrInvalidInput    = &Error{Kind: KindInvalidInput}
)

// KindOf extracts the kind of err. Untyped errors are internal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// IsKind reports whether err carries the given kind.
func IsKind(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
