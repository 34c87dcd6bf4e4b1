package transport

import (
	"errors"
	"fmt"
	"time"
)

// ErrorKind classifies a failed call.
type ErrorKind string

const (
	KindNetwork      ErrorKind = "network_error"
	KindTimedOut     ErrorKind = "timed_out"
	KindParseFailed  ErrorKind = "parse_failed"
	KindHTTP         ErrorKind = "http_error"
	KindUnauthorized ErrorKind = "unauthorized"
)

// Sentinels matched by *Error through errors.Is.
var (
	ErrNetwork      = errors.New("network error")
	ErrTimedOut     = errors.New("request timed out")
	ErrParseFailed  = errors.New("response could not be parsed")
	ErrHTTP         = errors.New("http error")
	ErrUnauthorized = errors.New("unauthorized")
)

// Result is the outcome of one call. On success Data holds the decoded
// payload and Kind is empty.
type Result[T any] struct {
	Success bool
	Data    T
	Kind    ErrorKind
	Message string
	// Status is the HTTP status, or 0 when no response was received.
	Status int
	// RetryAfter is taken from the Retry-After response header.
	RetryAfter time.Duration
	// Rejected is set when the security gate refused the destination.
	Rejected bool
}

// Err returns nil on success and an *Error otherwise.
func (r Result[T]) Err() error {
	if r.Success {
		return nil
	}
	return &Error{Kind: r.Kind, Status: r.Status, Message: r.Message}
}

// UserMessage is the message fit to show an end user, or "" when the failure
// is not one the user can act on.
func (r Result[T]) UserMessage() string {
	if r.Success {
		return ""
	}
	if r.Kind == KindHTTP || r.Kind == KindUnauthorized || r.Rejected {
		return r.Message
	}
	return ""
}

// Retryable reports whether offering the user a retry makes sense.
func (r Result[T]) Retryable() bool {
	return !r.Success && r.Kind == KindTimedOut
}

func failure[T any](kind ErrorKind, status int, msg string) Result[T] {
	return Result[T]{Kind: kind, Status: status, Message: msg}
}

// convert carries the failure fields of r over to a Result of another type.
func convert[T, U any](r Result[U]) Result[T] {
	return Result[T]{
		Kind:       r.Kind,
		Message:    r.Message,
		Status:     r.Status,
		RetryAfter: r.RetryAfter,
		Rejected:   r.Rejected,
	}
}

// Error is the error form of a failed Result.
type Error struct {
	Kind    ErrorKind
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("%s (%d): %s", e.Kind, e.Status, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Is(target error) bool {
	switch target {
	case ErrNetwork:
		return e.Kind == KindNetwork
	case ErrTimedOut:
		return e.Kind == KindTimedOut
	case ErrParseFailed:
		return e.Kind == KindParseFailed
	case ErrHTTP:
		return e.Kind == KindHTTP
	case ErrUnauthorized:
		return e.Kind == KindUnauthorized
	}
	return false
}
