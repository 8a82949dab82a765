// Package errors provides the registry's typed error taxonomy.
//
// Every failure the registry reports carries a Code. Codes survive the gRPC
// boundary so a client sees the same Code the registry produced.
package errors

import (
	stderrors "errors"
	"fmt"

	"google.golang.org/grpc/codes"
)

// Code is a machine-readable error code.
type Code string

const (
	CodeUnknown               Code = "UNKNOWN"
	CodeUnauthorized          Code = "UNAUTHORIZED"
	CodeNotFound              Code = "NOT_FOUND"
	CodeAlreadyValidated      Code = "ALREADY_VALIDATED"
	CodeCourseInactive        Code = "COURSE_INACTIVE"
	CodeInvalidInput          Code = "INVALID_INPUT"
	CodeDuplicateRegistration Code = "DUPLICATE_REGISTRATION"
	CodeInternal              Code = "INTERNAL"
)

// ParseCode maps a wire string back to a Code. Unrecognized values map to CodeUnknown.
func ParseCode(s string) Code {
	switch c := Code(s); c {
	case CodeUnauthorized, CodeNotFound, CodeAlreadyValidated, CodeCourseInactive,
		CodeInvalidInput, CodeDuplicateRegistration, CodeInternal:
		return c
	default:
		return CodeUnknown
	}
}

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	case CodeUnauthorized:
		return codes.PermissionDenied
	case CodeNotFound:
		return codes.NotFound
	case CodeAlreadyValidated, CodeCourseInactive:
		return codes.FailedPrecondition
	case CodeInvalidInput:
		return codes.InvalidArgument
	case CodeDuplicateRegistration:
		return codes.AlreadyExists
	case CodeInternal:
		return codes.Internal
	default:
		return codes.Unknown
	}
}

// Error is the domain error type.
type Error struct {
	Code    Code
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error by code.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// New creates a domain error with a code and message.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a domain error with a formatted message.
func Newf(code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates a domain error that wraps an underlying cause.
func Wrap(code Code, message string, cause error) *Error {
	return &Error{Code: code, Message: message, Cause: cause}
}

// CodeOf returns the Code carried by err, CodeUnknown when err is not a
// domain error, and "" for a nil error.
func CodeOf(err error) Code {
	if err == nil {
		return ""
	}
	var de *Error
	if stderrors.As(err, &de) {
		return de.Code
	}
	return CodeUnknown
}

// Sentinels for errors.Is comparisons. Matching is by Code only.
var (
	ErrUnauthorized          = New(CodeUnauthorized, "unauthorized")
	ErrNotFound              = New(CodeNotFound, "not found")
	ErrAlreadyValidated      = New(CodeAlreadyValidated, "already validated")
	ErrCourseInactive        = New(CodeCourseInactive, "course inactive")
	ErrInvalidInput          = New(CodeInvalidInput, "invalid input")
	ErrDuplicateRegistration = New(CodeDuplicateRegistration, "duplicate registration")
	ErrInternal              = New(CodeInternal, "internal error")
)

// Unauthorized is shorthand for Newf(CodeUnauthorized, ...).
func Unauthorized(format string, args ...any) *Error {
	return Newf(CodeUnauthorized, format, args...)
}

// NotFound is shorthand for Newf(CodeNotFound, ...).
func NotFound(format string, args ...any) *Error {
	return Newf(CodeNotFound, format, args...)
}

// InvalidInput is shorthand for Newf(CodeInvalidInput, ...).
func InvalidInput(format string, args ...any) *Error {
	return Newf(CodeInvalidInput, format, args...)
}
