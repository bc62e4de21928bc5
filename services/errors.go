package services

import (
	"errors"
	"fmt"
)

// ErrorKind classifies failures so the HTTP layer can pick a status code.
type ErrorKind int

const (
	KindInternal ErrorKind = iota
	KindValidation
	KindAuth         // bad credentials
	KindUnauthorized // missing token
	KindForbidden    // invalid token or action not allowed
	KindConflict
	KindNotFound
	KindUnconfigured // relay not configured
	KindUpstream     // relay rejected the request
	KindUnreachable  // relay could not be reached
	KindTimeout      // relay did not answer in time
)

func (k ErrorKind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindAuth:
		return "auth"
	case KindUnauthorized:
		return "unauthorized"
	case KindForbidden:
		return "forbidden"
	case KindConflict:
		return "conflict"
	case KindNotFound:
		return "not_found"
	case KindUnconfigured:
		return "unconfigured"
	case KindUpstream:
		return "upstream_rejected"
	case KindUnreachable:
		return "upstream_unreachable"
	case KindTimeout:
		return "timeout"
	}
	return "internal"
}

// Error is the error type returned by the services. Message is safe to show
// to the user; Detail, when set, is surfaced alongside it (for example the
// relay's response body).
type Error struct {
	Kind    ErrorKind
	Message string
	Detail  any
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

func newError(kind ErrorKind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

func validationError(msg string) *Error {
	return newError(KindValidation, msg, nil)
}

func notFoundError(msg string) *Error {
	return newError(KindNotFound, msg, nil)
}

func internalError(msg string, err error) *Error {
	return newError(KindInternal, msg, err)
}

// KindOf returns the kind of err, KindInternal for foreign errors.
func KindOf(err error) ErrorKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}
