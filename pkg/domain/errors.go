package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidRequest is returned when a frame is not a well-formed request.
	ErrInvalidRequest = errors.New("invalid request sent")

	// ErrUnknownEndpoint is returned when a request names no registered endpoint.
	ErrUnknownEndpoint = errors.New("invalid endpoint")

	// ErrDisconnected signals that the peer closed the connection.
	ErrDisconnected = errors.New("peer disconnected")

	// ErrSessionClosed is returned by senders once the session reached Closed.
	ErrSessionClosed = errors.New("session closed")

	// ErrSessionNotFound is returned when a session ID cannot be found in a directory.
	ErrSessionNotFound = errors.New("session not found")
)

// ErrorPayload is the {reason, code} body carried by error events and response errors.
type ErrorPayload struct {
	Reason string `json:"reason"`
	Code   string `json:"code"`
}

// RecoverableError is an application-level failure that is reported to the
// peer as a correlated response error without closing the connection.
type RecoverableError interface {
	error
	Payload() ErrorPayload
}

// RequestError is the stock RecoverableError.
type RequestError struct {
	Reason string
	Code   string
}

// NewRequestError creates a RequestError.
func NewRequestError(reason, code string) *RequestError {
	return &RequestError{Reason: reason, Code: code}
}

func (e *RequestError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Reason, e.Code)
}

// Payload implements RecoverableError.
func (e *RequestError) Payload() ErrorPayload {
	return ErrorPayload{Reason: e.Reason, Code: e.Code}
}

// Fault wraps an unexpected failure raised while running a handler, a provider
// or a continuation. Recovered panics are reported as faults too.
type Fault struct {
	Op    string // "handler", "entry", "endpoint", "exit", "continuation", "send", "release"
	Err   error
	Panic any
}

// NewFault wraps err as a fault raised by op.
func NewFault(op string, err error) *Fault {
	return &Fault{Op: op, Err: err}
}

// NewPanicFault converts a recovered panic value into a fault.
func NewPanicFault(op string, v any) *Fault {
	if err, ok := v.(error); ok {
		return &Fault{Op: op, Err: err, Panic: v}
	}
	return &Fault{Op: op, Err: fmt.Errorf("panic: %v", v), Panic: v}
}

func (f *Fault) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("%s panicked: %v", f.Op, f.Err)
	}
	return fmt.Sprintf("%s failed: %v", f.Op, f.Err)
}

func (f *Fault) Unwrap() error {
	return f.Err
}

// Well-known payloads for protocol level problems.
var (
	InvalidRequestPayload  = ErrorPayload{Reason: "Invalid request sent", Code: CodeValidation}
	InvalidEndpointPayload = ErrorPayload{Reason: "Invalid endpoint", Code: CodeInvalidEndpoint}
	InternalErrorPayload   = ErrorPayload{Reason: "Internal server error", Code: CodeInternal}
)

// ErrorClass is the tag of the error taxonomy.
type ErrorClass int

const (
	ClassFault ErrorClass = iota
	ClassValidation
	ClassUnknownEndpoint
	ClassRecoverable
	ClassDisconnect
)

func (c ErrorClass) String() string {
	switch c {
	case ClassValidation:
		return "validation"
	case ClassUnknownEndpoint:
		return "unknown_endpoint"
	case ClassRecoverable:
		return "recoverable"
	case ClassDisconnect:
		return "disconnect"
	default:
		return "fault"
	}
}

// Classify tags err with its class. A RecoverableError wrapped inside a Fault
// stays a fault: only errors returned directly by a request handler are recoverable.
func Classify(err error) ErrorClass {
	var fault *Fault
	switch {
	case errors.Is(err, ErrDisconnected), errors.Is(err, ErrSessionClosed):
		return ClassDisconnect
	case errors.Is(err, ErrInvalidRequest):
		return ClassValidation
	case errors.Is(err, ErrUnknownEndpoint):
		return ClassUnknownEndpoint
	case errors.As(err, &fault):
		return ClassFault
	}
	var rec RecoverableError
	if errors.As(err, &rec) {
		return ClassRecoverable
	}
	return ClassFault
}

// PayloadOf returns the payload the peer should see for err.
func PayloadOf(err error) ErrorPayload {
	switch Classify(err) {
	case ClassValidation:
		return InvalidRequestPayload
	case ClassUnknownEndpoint:
		return InvalidEndpointPayload
	case ClassRecoverable:
		var rec RecoverableError
		errors.As(err, &rec)
		return rec.Payload()
	default:
		return InternalErrorPayload
	}
}
