package engine

import (
	"errors"
	"fmt"
	"net/http"

	"orderflow/internal/repo"
)

// ErrorKind classifies business failures.
type ErrorKind string

const (
	KindNotFound        ErrorKind = "not_found"
	KindInvalidState    ErrorKind = "invalid_state"
	KindConflict        ErrorKind = "conflict"
	KindUnauthenticated ErrorKind = "unauthenticated"
	KindFatal           ErrorKind = "fatal"
)

// Error is the single business error raised by the engine.
type Error struct {
	Kind    ErrorKind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil && e.Kind == KindFatal {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Status maps the kind to the HTTP status the API answers with.
func (e *Error) Status() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindInvalidState, KindConflict:
		return http.StatusBadRequest
	case KindUnauthenticated:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func invalidState(format string, args ...any) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func conflict(format string, args ...any) *Error {
	return &Error{Kind: KindConflict, Message: fmt.Sprintf(format, args...)}
}

func fatal(msg string, err error) *Error {
	return &Error{Kind: KindFatal, Message: msg, Err: err}
}

// KindOf returns the kind of a business error, KindFatal for anything else.
func KindOf(err error) ErrorKind {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind
	}
	return KindFatal
}

// storeErr translates record-store failures at the engine boundary.
func storeErr(msg string, err error) error {
	if err == nil {
		return nil
	}
	var be *Error
	if errors.As(err, &be) {
		return err
	}
	if errors.Is(err, repo.ErrNotFound) {
		return &Error{Kind: KindNotFound, Message: err.Error(), Err: err}
	}
	return fatal(msg, err)
}
