// Package errs defines the coded errors shared by the page objects, the
// driver adapters and the run API.
package errs

import (
	"errors"
	"net/http"
)

// Code is an error category.
type Code string

const (
	// InvalidArgument reports bad input to a helper (out-of-order bounds,
	// non-numeric parse target, unknown radix).
	InvalidArgument Code = "invalid_argument"
	// NotFound reports an element that never resolved or never became displayed.
	NotFound Code = "not_found"
	// Interaction reports a click or value write that failed after its
	// preconditions were met.
	Interaction Code = "interaction"
	// Timeout reports a wait condition that was not met within the driver budget.
	Timeout Code = "timeout"
	// Failed reports a scenario expectation that did not hold.
	Failed   Code = "failed"
	Internal Code = "internal"
)

// Error is a coded error.
type Error struct {
	Code    Code
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e == nil {
		return ""
	}
	switch {
	case e.Message != "" && e.Err != nil:
		return e.Message + ": " + e.Err.Error()
	case e.Message != "":
		return e.Message
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// New creates a coded error with message.
func New(code Code, message string) error {
	return &Error{Code: code, Message: message}
}

// Wrap creates a coded error with message and cause.
func Wrap(code Code, message string, cause error) error {
	return &Error{Code: code, Message: message, Err: cause}
}

// CodeOf returns the code of the outermost coded error, defaulting to Internal.
func CodeOf(err error) Code {
	var coded *Error
	if errors.As(err, &coded) && coded.Code != "" {
		return coded.Code
	}
	return Internal
}

// Is reports whether err carries the given code.
func Is(err error, code Code) bool {
	return err != nil && CodeOf(err) == code
}

// HTTPStatus maps error code to HTTP status.
func HTTPStatus(code Code) int {
	switch code {
	case InvalidArgument:
		return http.StatusBadRequest
	case NotFound:
		return http.StatusNotFound
	case Timeout:
		return http.StatusGatewayTimeout
	case Interaction:
		return http.StatusConflict
	case Failed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
