package serviceerror

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// ServiceError is the error returned for every terminal failure of a call:
// a non-success response, a transport fault, or a client-side usage error.
type ServiceError struct {
	// Err is the structured error model. Never nil.
	Err *Error

	// StatusCode is the HTTP status of the failed response, or 0 when no
	// response was received.
	StatusCode int

	// Header is a copy of the failed response's headers, if any.
	Header http.Header

	// RawResponseBody is the response body text as received, if any.
	RawResponseBody string

	cause error
}

// New returns a ServiceError with the given code and message.
func New(code, message string) *ServiceError {
	return &ServiceError{Err: &Error{Code: code, Message: message}}
}

// Newf is New with a formatted message.
func Newf(code, format string, args ...any) *ServiceError {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap returns a ServiceError whose Unwrap yields cause.
func Wrap(cause error, code, message string) *ServiceError {
	svcErr := New(code, message)
	svcErr.cause = cause
	return svcErr
}

// Error implements the error interface.
func (e *ServiceError) Error() string {
	var sb strings.Builder
	sb.WriteString("graph: ")
	sb.WriteString(e.Code())
	if msg := e.message(); msg != "" {
		sb.WriteString(": ")
		sb.WriteString(msg)
	}
	if e.StatusCode != 0 {
		fmt.Fprintf(&sb, " (status %d)", e.StatusCode)
	}
	if e.cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.cause.Error())
	}
	return sb.String()
}

// Unwrap returns the underlying cause, if any.
func (e *ServiceError) Unwrap() error {
	return e.cause
}

// Code returns the top-level error code.
func (e *ServiceError) Code() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Code
}

// IsMatch reports whether code matches the top-level error or any inner
// error. It panics on an empty code.
func (e *ServiceError) IsMatch(code string) bool {
	if e.Err == nil {
		if code == "" {
			panic("serviceerror: IsMatch called with an empty error code")
		}
		return false
	}
	return e.Err.IsMatch(code)
}

func (e *ServiceError) message() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Message
}

// HasCode reports whether err is, or wraps, a ServiceError matching code.
func HasCode(err error, code string) bool {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return false
	}
	return svcErr.IsMatch(code)
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var svcErr *ServiceError
	if !errors.As(err, &svcErr) {
		return 0
	}
	return svcErr.StatusCode
}
