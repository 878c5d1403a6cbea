package errors

import (
	"context"
	stderrors "errors"
	"fmt"
	"net"
	"net/http"
)

// ErrorType represents the different kinds of failures a run can hit
type ErrorType string

const (
	ErrorTypeNetwork     ErrorType = "network"
	ErrorTypeTimeout     ErrorType = "timeout"
	ErrorTypeHTTPStatus  ErrorType = "http_status"
	ErrorTypeRateLimit   ErrorType = "rate_limit"
	ErrorTypeServerError ErrorType = "server_error"
	ErrorTypeNotFound    ErrorType = "not_found"
	ErrorTypeParsing     ErrorType = "parsing"
	ErrorTypeIO          ErrorType = "io"
	ErrorTypeUnknown     ErrorType = "unknown"
)

// Error carries a classified failure. Code is the HTTP status when one was
// received and zero otherwise.
type Error struct {
	Type    ErrorType
	Message string
	Code    int
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s error (code %d): %s: %v", e.Type, e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s error (code %d): %s", e.Type, e.Code, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates an error of the given type
func New(t ErrorType, msg string) *Error {
	return &Error{Type: t, Message: msg}
}

// Wrap creates an error of the given type around a cause
func Wrap(t ErrorType, err error, msg string) *Error {
	return &Error{Type: t, Message: msg, Err: err}
}

// NotFound reports that the archive holds nothing for the subject
func NotFound(msg string) *Error {
	return &Error{Type: ErrorTypeNotFound, Message: msg, Code: http.StatusNotFound}
}

// Parse reports a body that could not be interpreted
func Parse(err error, msg string) *Error {
	return &Error{Type: ErrorTypeParsing, Message: msg, Err: err}
}

// FromStatus maps a non-success HTTP status to an error. It returns nil for
// 2xx and 3xx codes.
func FromStatus(code int, url string) *Error {
	if code < http.StatusBadRequest {
		return nil
	}

	msg := fmt.Sprintf("unexpected status %d for %s", code, url)
	switch {
	case code == http.StatusNotFound || code == http.StatusGone:
		return &Error{Type: ErrorTypeNotFound, Message: msg, Code: code}
	case code == http.StatusTooManyRequests:
		return &Error{Type: ErrorTypeRateLimit, Message: msg, Code: code}
	case code >= http.StatusInternalServerError:
		return &Error{Type: ErrorTypeServerError, Message: msg, Code: code}
	default:
		return &Error{Type: ErrorTypeHTTPStatus, Message: msg, Code: code}
	}
}

// Classify turns a transport-level error from an HTTP client into a typed
// error. Errors that are already typed are returned as is.
func Classify(err error, url string) error {
	if err == nil {
		return nil
	}

	var typed *Error
	if stderrors.As(err, &typed) {
		return err
	}

	if stderrors.Is(err, context.Canceled) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrorTypeTimeout, err, url)
	}
	var netErr net.Error
	if stderrors.As(err, &netErr) && netErr.Timeout() {
		return Wrap(ErrorTypeTimeout, err, url)
	}
	return Wrap(ErrorTypeNetwork, err, url)
}

// TypeOf returns the type of a typed error, or ErrorTypeUnknown
func TypeOf(err error) ErrorType {
	var typed *Error
	if stderrors.As(err, &typed) {
		return typed.Type
	}
	return ErrorTypeUnknown
}

// IsNotFound reports whether err means the archive has no data
func IsNotFound(err error) bool {
	return TypeOf(err) == ErrorTypeNotFound
}

// IsParse reports whether err is a parsing failure
func IsParse(err error) bool {
	return TypeOf(err) == ErrorTypeParsing
}

// IsFetch reports whether err is a network or HTTP failure. A 404 on a
// fetched resource counts as a fetch failure too.
func IsFetch(err error) bool {
	switch TypeOf(err) {
	case ErrorTypeNetwork, ErrorTypeTimeout, ErrorTypeHTTPStatus,
		ErrorTypeRateLimit, ErrorTypeServerError, ErrorTypeNotFound:
		return true
	default:
		return false
	}
}
